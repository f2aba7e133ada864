package vgops

import (
	"fmt"

	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/model"
	"github.com/agrover/melvin/revert"
	"github.com/agrover/melvin/util"
)

// VgCreate implements spec.md §4.6's vg_create: requires at least one PV,
// folds each into the new VG without an intermediate commit, checks the
// PVs collectively carry at least one MDA, then commits once. A
// successful vg_create therefore always persists at seqno 1.
func VgCreate(name string, pvPaths []string, deps Deps) (*Handle, error) {
	if len(pvPaths) == 0 {
		return nil, &merrors.Invariant{Detail: "vg_create requires at least one PV"}
	}

	id := util.NewRawUUID(deps.Random)

	hyID, err := util.HyphenateUUID(id)
	if err != nil {
		return nil, err
	}

	vg := model.NewVG(name, hyID)
	h := newHandle(vg, deps)

	r := revert.New()
	defer r.Fail()

	for _, path := range pvPaths {
		dev, err := h.insertPV(path)
		if err != nil {
			return nil, fmt.Errorf("vgops.VgCreate: %w", err)
		}

		r.Add(func() { h.removePVState(dev) })
	}

	var totalMDAs int
	for _, hdr := range h.pvHeaders {
		totalMDAs += len(hdr.MetadataAreas)
	}

	if totalMDAs == 0 {
		return nil, &merrors.Invariant{Detail: "vg_create requires at least one MDA across all PVs"}
	}

	if err := h.commit(); err != nil {
		return nil, fmt.Errorf("vgops.VgCreate: %w", err)
	}

	r.Success()
	return h, nil
}

// PvAdd implements spec.md §4.6's pv_add: validate and stage path as a new
// PV, then commit.
func (h *Handle) PvAdd(path string) error {
	r := revert.New()
	defer r.Fail()

	dev, err := h.insertPV(path)
	if err != nil {
		return fmt.Errorf("vgops.PvAdd: %w", err)
	}

	r.Add(func() { h.removePVState(dev) })

	if err := h.commit(); err != nil {
		return fmt.Errorf("vgops.PvAdd: %w", err)
	}

	r.Success()
	return nil
}

// PvRemove implements spec.md §4.6's pv_remove: fail with InUse if any
// segment of any LV still references dev, otherwise remove and commit.
func (h *Handle) PvRemove(dev model.Device) error {
	if lvName, inUse := h.VG.DeviceInUse(dev); inUse {
		return &merrors.InUse{Who: lvName}
	}

	pv, ok := h.VG.PV(dev)
	if !ok {
		return &merrors.NotFound{What: fmt.Sprintf("pv %s", dev)}
	}

	hdr := h.pvHeaders[dev]
	path := h.pvPaths[dev]

	r := revert.New()
	defer r.Fail()

	h.removePVState(dev)
	r.Add(func() {
		h.VG.AddPV(pv)
		h.pvHeaders[dev] = hdr
		h.pvPaths[dev] = path
	})

	if err := h.commit(); err != nil {
		return fmt.Errorf("vgops.PvRemove: %w", err)
	}

	r.Success()
	return nil
}
