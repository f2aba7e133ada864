package model

import (
	"fmt"

	"github.com/agrover/melvin/hostinfo"
	"github.com/agrover/melvin/merrors"
)

// Device identifies a kernel block device by its (major, minor) pair. It is
// the in-memory key for PVs (spec.md §3, §9 "cross-reference strings").
type Device struct {
	Major uint32
	Minor uint32
}

// Packed encodes d as a legacy packed u64: (major << 8) | (minor & 0xff).
// This narrows the minor to 8 bits, matching the legacy on-disk textmap
// `device = <i64>` field (spec.md §9's "one-byte minor" note) — melvin
// itself always carries the full 32-bit minor internally and only narrows
// it at this specific serialization boundary.
func (d Device) Packed() uint64 {
	return (uint64(d.Major) << 8) | uint64(d.Minor&0xff)
}

// DeviceFromPacked decodes a legacy packed u64 back into a Device. Because
// Packed narrows the minor to 8 bits, this is lossy for minors above 255;
// it exists only to read historical on-disk `device = <i64>` values, never
// to round-trip a modern 20-bit minor.
func DeviceFromPacked(packed uint64) Device {
	return Device{
		Major: uint32(packed >> 8),
		Minor: uint32(packed & 0xff),
	}
}

// Less orders devices by (Major, Minor), the deterministic iteration order
// spec.md §4.6/§5 require for allocation and commit.
func (d Device) Less(other Device) bool {
	if d.Major != other.Major {
		return d.Major < other.Major
	}

	return d.Minor < other.Minor
}

func (d Device) String() string {
	return fmt.Sprintf("%d:%d", d.Major, d.Minor)
}

// ResolvePath maps d to a filesystem path by consulting
// /proc/partitions (through the injected HostIntrospection collaborator),
// per spec.md §6's PathResolver interface.
func ResolvePath(host hostinfo.HostIntrospection, d Device) (string, error) {
	parts, err := host.Partitions()
	if err != nil {
		return "", &merrors.External{Component: "PathResolver", Cause: err}
	}

	for _, p := range parts {
		if p.Major == d.Major && p.Minor == d.Minor {
			return "/dev/" + p.Name, nil
		}
	}

	return "", &merrors.NotFound{What: fmt.Sprintf("path for device %s", d)}
}
