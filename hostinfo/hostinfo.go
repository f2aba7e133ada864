// Package hostinfo is the injectable seam spec.md §9 calls out under
// "Global state": /proc/devices and /proc/partitions reads, modeled as a
// HostIntrospection interface so tests can supply fixtures instead of the
// real filesystem. Grounded on the teacher's own pattern of putting a
// small interface between a package and a /proc- or /sys-backed resource
// (lxd/cgroup/abstraction.go's ReadWriter behind CGroup).
package hostinfo

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Partition is one parsed line of /proc/partitions.
type Partition struct {
	Major uint32
	Minor uint32
	Name  string
}

// HostIntrospection is the seam melvin reads kernel-reported device
// information through. Production code uses FileHostIntrospection; tests
// substitute FakeHostIntrospection.
type HostIntrospection interface {
	// Partitions returns every line of /proc/partitions.
	Partitions() ([]Partition, error)
	// IsDMMajor reports whether major is the device-mapper major number,
	// per /proc/devices.
	IsDMMajor(major uint32) (bool, error)
}

// FileHostIntrospection reads the real /proc/partitions and /proc/devices
// on every call; per spec.md §5, neither is cached beyond one call.
type FileHostIntrospection struct{}

// Partitions reads and parses /proc/partitions.
func (FileHostIntrospection) Partitions() ([]Partition, error) {
	f, err := os.Open("/proc/partitions")
	if err != nil {
		return nil, fmt.Errorf("hostinfo: reading /proc/partitions: %w", err)
	}

	defer f.Close()

	return parsePartitions(f)
}

func parsePartitions(f *os.File) ([]Partition, error) {
	var out []Partition
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Skip the "major minor  #blocks  name" header line.
		if first {
			first = false
			if strings.HasPrefix(line, "major") {
				continue
			}
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		major, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}

		minor, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}

		out = append(out, Partition{Major: uint32(major), Minor: uint32(minor), Name: fields[3]})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// IsDMMajor reads /proc/devices and reports whether major matches the
// registered "device-mapper" block device major.
func (FileHostIntrospection) IsDMMajor(major uint32) (bool, error) {
	f, err := os.Open("/proc/devices")
	if err != nil {
		return false, fmt.Errorf("hostinfo: reading /proc/devices: %w", err)
	}

	defer f.Close()

	return parseIsDMMajor(f, major)
}

func parseIsDMMajor(f *os.File, major uint32) (bool, error) {
	scanner := bufio.NewScanner(f)
	inBlock := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "Block devices:" {
			inBlock = true
			continue
		}

		if line == "Character devices:" {
			inBlock = false
			continue
		}

		if !inBlock {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}

		n, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}

		if uint32(n) == major && fields[1] == "device-mapper" {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, err
	}

	return false, nil
}

// FakeHostIntrospection is a fixture implementation for tests.
type FakeHostIntrospection struct {
	PartitionList []Partition
	DMMajor       uint32
}

// Partitions returns the fixed PartitionList.
func (f FakeHostIntrospection) Partitions() ([]Partition, error) {
	return f.PartitionList, nil
}

// IsDMMajor compares against the fixed DMMajor.
func (f FakeHostIntrospection) IsDMMajor(major uint32) (bool, error) {
	return major == f.DMMajor, nil
}
