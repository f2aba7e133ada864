package vgops

import (
	"fmt"
	"sort"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"

	"github.com/agrover/melvin/dmbridge"
	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/model"
	"github.com/agrover/melvin/revert"
	"github.com/agrover/melvin/util"
)

// LvCreateLinear implements spec.md §4.6's lv_create_linear: find the
// first contiguous free range of at least extentCount extents, scanning
// PVs and free-area entries in key order, construct a single-stripe
// Striped segment there, commit, then ask DMController to instantiate a
// linear mapping.
func (h *Handle) LvCreateLinear(name string, extentCount uint64) error {
	if _, exists := h.VG.LV(name); exists {
		return &merrors.Invariant{Detail: fmt.Sprintf("lv %q already exists", name)}
	}

	dev, start, err := findFreeRange(h.VG, extentCount)
	if err != nil {
		return err
	}

	hostname, err := h.deps.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	id, err := util.HyphenateUUID(util.NewRawUUID(h.deps.Random))
	if err != nil {
		return err
	}

	lv := &model.LV{
		Name:         name,
		UUID:         id,
		Status:       []string{"READ", "WRITE", "VISIBLE"},
		CreationHost: hostname,
		CreationTime: h.deps.Now(),
		Segments: []model.Segment{
			&model.StripedSegment{
				Start: 0,
				Count: extentCount,
				Stripes: []model.Stripe{
					{Device: dev, StartExtent: start},
				},
			},
		},
	}

	r := revert.New()
	defer r.Fail()

	h.VG.AddLV(lv)
	r.Add(func() { h.VG.RemoveLV(name) })

	if err := h.commit(); err != nil {
		return fmt.Errorf("vgops.LvCreateLinear: %w", err)
	}

	peStart := map[model.Device]uint64{}
	for _, pv := range h.VG.PVs {
		peStart[pv.Device] = pv.PeStart
	}

	table, err := dmbridge.BuildTable(lv, h.VG.ExtentSize, peStart)
	if err != nil {
		return fmt.Errorf("vgops.LvCreateLinear: %w", err)
	}

	dmUUID := util.NewRawUUID(h.deps.Random)
	dmName := dmbridge.DMName(h.VG.Name, lv.Name)

	dmDev, err := h.deps.DM.Create(dmName, dmUUID)
	if err != nil {
		return &merrors.External{Component: "DMController", Cause: err}
	}

	r.Add(func() { _ = h.deps.DM.Remove(dmDev) })

	if err := h.deps.DM.LoadTable(dmDev, table); err != nil {
		return &merrors.External{Component: "DMController", Cause: err}
	}

	if err := h.deps.DM.Resume(dmDev); err != nil {
		return &merrors.External{Component: "DMController", Cause: err}
	}

	r.Success()
	return nil
}

// findFreeRange scans PVs and their free-area entries in deterministic key
// order (Device order, then start-extent order) for the first range that
// fits extentCount extents.
func findFreeRange(vg *model.VG, extentCount uint64) (model.Device, uint64, error) {
	free := model.FreeAreas(vg)

	for _, pv := range vg.SortedPVs() {
		ranges := append([]model.Range(nil), free[pv.Device]...)
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

		for _, r := range ranges {
			if r.Count >= extentCount {
				return pv.Device, r.Start, nil
			}
		}
	}

	return model.Device{}, 0, &merrors.NoSpace{Requested: extentCount, Available: 0}
}

// LvRemove implements spec.md §4.6's lv_remove: suspend then remove the DM
// device, drop the LV from the model, then commit. If the DM remove
// succeeds but the commit fails, the persisted state and the kernel have
// diverged; github.com/Rican7/retry re-attempts the commit a bounded
// number of times before giving up, and both errors are surfaced if it
// never lands.
func (h *Handle) LvRemove(name string) error {
	lv, ok := h.VG.LV(name)
	if !ok {
		return &merrors.NotFound{What: fmt.Sprintf("lv %q", name)}
	}

	dmName := dmbridge.DMName(h.VG.Name, name)

	dmDev, err := h.resolveDMDevice(dmName)
	if err != nil {
		return fmt.Errorf("vgops.LvRemove: %w", err)
	}

	if err := h.deps.DM.Suspend(dmDev); err != nil {
		return &merrors.External{Component: "DMController", Cause: err}
	}

	if err := h.deps.DM.Remove(dmDev); err != nil {
		return &merrors.External{Component: "DMController", Cause: err}
	}

	h.VG.RemoveLV(name)

	commitErr := h.commit()
	if commitErr == nil {
		return nil
	}

	retryErr := retry.Retry(func(attempt uint) error {
		return h.commit()
	}, strategy.Limit(5))

	if retryErr != nil {
		// Put the LV back in memory: no commit attempt persisted its
		// removal, so the in-memory model should not claim it is gone
		// either, even though the DM device underneath it no longer
		// exists.
		h.VG.AddLV(lv)
		return fmt.Errorf("vgops.LvRemove: dm device removed but commit failed (%v), retry also failed: %w", commitErr, retryErr)
	}

	return nil
}

func (h *Handle) resolveDMDevice(name string) (model.Device, error) {
	devices, err := h.deps.DM.ListDevices()
	if err != nil {
		return model.Device{}, &merrors.External{Component: "DMController", Cause: err}
	}

	for _, d := range devices {
		if d.Name == name {
			return d.Device, nil
		}
	}

	return model.Device{}, &merrors.NotFound{What: fmt.Sprintf("dm device %q", name)}
}
