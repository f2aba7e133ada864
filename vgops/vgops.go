// Package vgops implements spec.md §4.6's commit protocol: the only code
// path that ever writes VG metadata to disk, plus the PV/LV mutation
// operations (pv_add, pv_remove, lv_create_linear, lv_remove) that stage
// changes into a model.VG before asking it to commit. vg_create, pv_add,
// pv_remove and lv_create_linear follow the teacher's own revert-on-failure
// shape: register an undo step after every side effect, defer Fail(), call
// Success() only once every step — including the final commit — has
// landed. lv_remove uses no Reverter; it retries a failed commit and, if
// that fails too, puts the LV back into the in-memory model itself.
package vgops

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/agrover/melvin/dmbridge"
	"github.com/agrover/melvin/hostinfo"
	"github.com/agrover/melvin/mda"
	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/model"
	"github.com/agrover/melvin/pvheader"
	"github.com/agrover/melvin/textfmt"
	"github.com/agrover/melvin/util"
)

// Deps are Handle's injected collaborators: the external 128-bit entropy
// source (spec.md §1), the device-mapper control channel, and the two
// small pieces of ambient I/O (hostname, wall clock) the commit protocol's
// top-level keys need.
type Deps struct {
	Random   util.RandomSource
	DM       dmbridge.DMController
	Hostname func() (string, error)
	Now      func() int64
}

// DefaultDeps returns the ambient defaults: crypto/rand-backed UUIDs via
// google/uuid, the real hostname, and the real wall clock. dm is required;
// there is no sane default device-mapper collaborator (spec.md §1 leaves
// it as a named external interface).
func DefaultDeps(dm dmbridge.DMController) Deps {
	return Deps{
		Random:   util.DefaultRandomSource,
		DM:       dm,
		Hostname: os.Hostname,
		Now:      func() int64 { return time.Now().Unix() },
	}
}

// Handle is a VG open for mutation: the in-memory model plus enough
// per-PV bookkeeping (on-disk path, parsed PvHeader) to recommit it.
type Handle struct {
	VG *model.VG

	pvPaths   map[model.Device]string
	pvHeaders map[model.Device]*pvheader.Header

	deps Deps
}

func newHandle(vg *model.VG, deps Deps) *Handle {
	return &Handle{
		VG:        vg,
		pvPaths:   map[model.Device]string{},
		pvHeaders: map[model.Device]*pvheader.Header{},
		deps:      deps,
	}
}

// topLevelKeys are the commit-protocol keys that sit alongside the VG's
// own named section at the top of the on-disk text (spec.md §6).
var topLevelKeys = map[string]bool{
	"contents":      true,
	"version":       true,
	"description":   true,
	"creation_host": true,
	"creation_time": true,
}

// commit is the only function in this package (or this module) that
// writes VG metadata to disk. Per spec.md §4.6: bump seqno, render the
// full top-level TextMap, serialize it once, then rewrite every live MDA
// of every PV, in PV-device-number order. A failure partway through
// leaves the prior generation readable from the MDAs not yet reached; the
// next successful commit converges them, so this function does not roll
// back a partial write.
func (h *Handle) commit() error {
	h.VG.Seqno++

	outer := textfmt.NewTextMap()
	outer.Set("contents", textfmt.String("Melvin Text Format Volume Group"))
	outer.Set("version", textfmt.Number(1))
	outer.Set("description", textfmt.String(fmt.Sprintf("Created by melvin -- %s", h.VG.Name)))

	hostname, err := h.deps.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	outer.Set("creation_host", textfmt.String(hostname))
	outer.Set("creation_time", textfmt.Number(h.deps.Now()))
	outer.Set(h.VG.Name, h.VG.ToTextMap())

	blob := textfmt.Serialize(outer)

	var firstErr error
	for _, pv := range h.VG.SortedPVs() {
		hdr := h.pvHeaders[pv.Device]
		path := h.pvPaths[pv.Device]
		if hdr == nil || path == "" {
			continue
		}

		if err := writeAllMDAs(path, hdr, blob); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return fmt.Errorf("vgops: commit: %w", firstErr)
	}

	return nil
}

// writeAllMDAs rewrites every metadata area of one PV, in MDA-offset
// order, with blob. The device is opened and closed for this call only:
// melvin never holds a PV file open across commits (spec.md §5).
func writeAllMDAs(path string, hdr *pvheader.Header, blob []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return &merrors.Io{Path: path, Cause: err}
	}

	defer f.Close()

	areas := append([]pvheader.Area(nil), hdr.MetadataAreas...)
	sort.Slice(areas, func(i, j int) bool { return areas[i].OffsetBytes < areas[j].OffsetBytes })

	var firstErr error
	for _, area := range areas {
		mdaArea := mda.Area{OffsetBytes: area.OffsetBytes, SizeBytes: area.SizeBytes}
		if err := mda.Write(f, mdaArea, blob); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// insertPV validates and stages path as a new PV into h.VG, without
// committing: the shared core of pv_add and vg_create's PV-folding step
// (spec.md §4.6 — vg_create commits once at the end, not once per PV).
func (h *Handle) insertPV(path string) (model.Device, error) {
	lbl, hdr, err := pvheader.ReadLabelAndHeader(path)
	if err != nil {
		return model.Device{}, err
	}

	_ = lbl

	major, minor, err := hostinfo.DeviceNumber(path)
	if err != nil {
		return model.Device{}, err
	}

	dev := model.Device{Major: major, Minor: minor}

	if _, exists := h.VG.PV(dev); exists {
		return model.Device{}, &merrors.Invariant{Detail: fmt.Sprintf("device %s is already in this VG", dev)}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return model.Device{}, &merrors.Io{Path: path, Cause: err}
	}

	defer f.Close()

	for _, area := range hdr.MetadataAreas {
		blob, err := mda.Read(f, mda.Area{OffsetBytes: area.OffsetBytes, SizeBytes: area.SizeBytes})
		if err != nil {
			return model.Device{}, err
		}

		if blob != nil {
			return model.Device{}, &merrors.InUse{Who: fmt.Sprintf("device %s already carries foreign VG metadata", dev)}
		}
	}

	if hdr.DataArea == nil {
		return model.Device{}, &merrors.Inconsistent{Detail: fmt.Sprintf("pv %s has no data area", dev)}
	}

	devSectors := hdr.SizeBytes / pvheader.SectorSize
	mda1Sectors := uint64(pvheader.Mda1Size) / pvheader.SectorSize
	dataOffsetSectors := hdr.DataArea.OffsetBytes / pvheader.SectorSize
	peStart := util.AlignUp(dataOffsetSectors, h.VG.ExtentSize)

	if peStart+mda1Sectors >= devSectors {
		return model.Device{}, &merrors.NoSpace{Requested: 1, Available: 0}
	}

	peCount := (devSectors - peStart - mda1Sectors) / h.VG.ExtentSize

	id, err := util.HyphenateUUID(hdr.UUID)
	if err != nil {
		return model.Device{}, err
	}

	pv := &model.PV{
		Device:  dev,
		UUID:    id,
		DevSize: devSectors,
		Status:  []string{"ALLOCATABLE"},
		PeStart: peStart,
		PeCount: peCount,
	}

	h.VG.AddPV(pv)
	h.pvPaths[dev] = path
	h.pvHeaders[dev] = hdr

	return dev, nil
}

// removePVState undoes insertPV; used both by pv_remove and as the revert
// step for a failed pv_add/vg_create.
func (h *Handle) removePVState(dev model.Device) {
	h.VG.RemovePV(dev)
	delete(h.pvPaths, dev)
	delete(h.pvHeaders, dev)
}
