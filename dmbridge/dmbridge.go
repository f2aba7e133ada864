// Package dmbridge translates model segments into device-mapper table
// lines (spec.md §4.7) and defines DMController, the external collaborator
// vgops asks to actually load those tables into the kernel. melvin carries
// no in-tree DMController implementation — spec.md §1 scopes the real
// ioctl/netlink plumbing to the caller, the way the teacher's storage
// drivers take a StoragePoolVolume backend as an injected collaborator
// rather than hard-wiring one (lxd/storage/drivers/driver.go).
package dmbridge

import (
	"fmt"
	"strings"

	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/model"
)

// TargetLine is one device-mapper table line: "<start> <length> <target>
// <params>".
type TargetLine struct {
	StartSector   uint64
	LengthSectors uint64
	Target        string
	Params        string
}

// NamedDevice pairs a DM device's name with its (major, minor).
type NamedDevice struct {
	Name   string
	Device model.Device
}

// DMController is the external collaborator spec.md §6 defines: a thin
// wrapper around the device-mapper ioctl control channel. It is opened per
// operation and closed immediately (spec.md §5); it is never held across a
// vgops commit.
type DMController interface {
	Create(name, uuid string) (model.Device, error)
	LoadTable(dev model.Device, table []TargetLine) error
	Suspend(dev model.Device) error
	Resume(dev model.Device) error
	Remove(dev model.Device) error
	ListDevices() ([]NamedDevice, error)
	ListDeps(dev model.Device) ([]model.Device, error)
}

// EscapeName doubles every "-" in s, LVM2's convention for making the
// "<vg>-<lv>" join unambiguously decodable (spec.md §4.7).
func EscapeName(s string) string {
	return strings.ReplaceAll(s, "-", "--")
}

// DMName returns the canonical DM device name for an LV: the escaped VG
// and LV names joined by a single, un-escaped "-".
func DMName(vgName, lvName string) string {
	return EscapeName(vgName) + "-" + EscapeName(lvName)
}

// BuildTable renders lv's segments into a device-mapper table, in segment
// order. peStart supplies each dependency PV's pe_start in sectors.
func BuildTable(lv *model.LV, extentSizeSectors uint64, peStart map[model.Device]uint64) ([]TargetLine, error) {
	table := make([]TargetLine, 0, len(lv.Segments))
	for _, seg := range lv.Segments {
		params, err := seg.DMParams(extentSizeSectors, peStart)
		if err != nil {
			return nil, fmt.Errorf("dmbridge.BuildTable: lv %q: %w", lv.Name, err)
		}

		table = append(table, TargetLine{
			StartSector:   seg.StartExtent() * extentSizeSectors,
			LengthSectors: seg.ExtentCount() * extentSizeSectors,
			Target:        seg.DMTarget(),
			Params:        params,
		})
	}

	if len(table) == 0 {
		return nil, &merrors.Invariant{Detail: fmt.Sprintf("lv %q has no segments to build a table from", lv.Name)}
	}

	return table, nil
}
