package vgops

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agrover/melvin/dmbridge"
	"github.com/agrover/melvin/mda"
	"github.com/agrover/melvin/model"
	"github.com/agrover/melvin/pvheader"
	"github.com/agrover/melvin/textfmt"
	"github.com/agrover/melvin/util"
)

// counterRandom hands out distinct, deterministic 128-bit values, so tests
// creating many PVs/LVs/VGs never collide on a UUID the way a real CSPRNG
// could only almost-never do.
type counterRandom struct{ n byte }

func (c *counterRandom) Random128() [16]byte {
	c.n++
	var b [16]byte
	for i := range b {
		b[i] = c.n
	}
	return b
}

func testDeps(t *testing.T, dm dmbridge.DMController) Deps {
	t.Helper()
	return Deps{
		Random:   &counterRandom{},
		DM:       dm,
		Hostname: func() (string, error) { return "test-host", nil },
		Now:      func() int64 { return 1700000000 },
	}
}

// fakeDM is an in-memory dmbridge.DMController stand-in: no kernel, no
// ioctls, just enough bookkeeping to exercise vgops' create/load/resume and
// suspend/remove sequencing.
type fakeDM struct {
	next      uint32
	named     map[string]model.Device
	tables    map[model.Device][]dmbridge.TargetLine
	suspended map[model.Device]bool
}

func newFakeDM() *fakeDM {
	return &fakeDM{
		named:     map[string]model.Device{},
		tables:    map[model.Device][]dmbridge.TargetLine{},
		suspended: map[model.Device]bool{},
	}
}

func (f *fakeDM) Create(name, uuid string) (model.Device, error) {
	f.next++
	dev := model.Device{Major: 253, Minor: f.next}
	f.named[name] = dev
	return dev, nil
}

func (f *fakeDM) LoadTable(dev model.Device, table []dmbridge.TargetLine) error {
	f.tables[dev] = table
	return nil
}

func (f *fakeDM) Suspend(dev model.Device) error {
	f.suspended[dev] = true
	return nil
}

func (f *fakeDM) Resume(dev model.Device) error {
	f.suspended[dev] = false
	return nil
}

func (f *fakeDM) Remove(dev model.Device) error {
	delete(f.tables, dev)
	delete(f.suspended, dev)
	for name, d := range f.named {
		if d == dev {
			delete(f.named, name)
		}
	}
	return nil
}

func (f *fakeDM) ListDevices() ([]dmbridge.NamedDevice, error) {
	out := make([]dmbridge.NamedDevice, 0, len(f.named))
	for name, dev := range f.named {
		out = append(out, dmbridge.NamedDevice{Name: name, Device: dev})
	}
	return out, nil
}

func (f *fakeDM) ListDeps(dev model.Device) ([]model.Device, error) {
	return nil, nil
}

// makePV truncates a fresh file to size and initializes it as a PV,
// standing in for a real block device the way scan_test.go's fixture does.
func makePV(t *testing.T, dir, name string, size int64) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())

	_, err = pvheader.Initialize(path, "", util.DefaultRandomSource)
	require.NoError(t, err)

	return path
}

func TestVgCreateEndsAtSeqnoOne(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)

	h, err := VgCreate("vg0", []string{p1}, testDeps(t, newFakeDM()))
	require.NoError(t, err)
	require.EqualValues(t, 1, h.VG.Seqno)
	require.Len(t, h.VG.PVs, 1)
}

func TestVgCreateRequiresAtLeastOnePV(t *testing.T) {
	_, err := VgCreate("vg0", nil, testDeps(t, newFakeDM()))
	require.Error(t, err)
}

func TestLvCreateLinearThenReopenRecoversState(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)

	dm := newFakeDM()
	deps := testDeps(t, dm)

	h, err := VgCreate("vg0", []string{p1}, deps)
	require.NoError(t, err)

	require.NoError(t, h.LvCreateLinear("lv0", 4))

	lv, ok := h.VG.LV("lv0")
	require.True(t, ok)
	require.EqualValues(t, 4, lv.ExtentCount())

	// A fresh process would only have the device path to start from.
	reopened, err := Open([]string{p1}, testDeps(t, dm))
	require.NoError(t, err)

	require.Equal(t, h.VG.Name, reopened.VG.Name)
	require.Equal(t, h.VG.Seqno, reopened.VG.Seqno)

	gotLV, ok := reopened.VG.LV("lv0")
	require.True(t, ok)
	require.EqualValues(t, 4, gotLV.ExtentCount())
	require.Len(t, reopened.pvPaths, 1)
}

func TestLvCreateLinearAllocatesOnSecondPVWhenFirstIsFull(t *testing.T) {
	dir := t.TempDir()
	// Small devices: enough for the fixed MDA/label overhead plus a
	// handful of extents at the VG's default 8192-sector extent size.
	p1 := makePV(t, dir, "pv1", 24*pvheader.MiB)
	p2 := makePV(t, dir, "pv2", 24*pvheader.MiB)

	h, err := VgCreate("vg0", []string{p1, p2}, testDeps(t, newFakeDM()))
	require.NoError(t, err)

	// Consume all but a sliver of pv1 (whichever PV sorts first) with one
	// LV, then ask for more extents than remain there.
	first := h.VG.SortedPVs()[0]
	require.NoError(t, h.LvCreateLinear("lvfill", first.PeCount-1))

	require.NoError(t, h.LvCreateLinear("lvoverflow", 2))

	lv, ok := h.VG.LV("lvoverflow")
	require.True(t, ok)
	seg := lv.Segments[0]
	deps := seg.PVDependencies()
	require.Len(t, deps, 1)
	require.NotEqual(t, first.Device, deps[0])
}

func TestPvRemoveRefusesWhenLVStillReferencesIt(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)

	h, err := VgCreate("vg0", []string{p1}, testDeps(t, newFakeDM()))
	require.NoError(t, err)

	require.NoError(t, h.LvCreateLinear("lv0", 4))

	dev := h.VG.SortedPVs()[0].Device
	err = h.PvRemove(dev)
	require.Error(t, err)

	lv, ok := h.VG.LV("lv0")
	require.True(t, ok)
	require.NotEmpty(t, lv.Segments)
}

func TestLvRemoveFreesSpaceAndDMDevice(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)

	dm := newFakeDM()
	h, err := VgCreate("vg0", []string{p1}, testDeps(t, dm))
	require.NoError(t, err)

	require.NoError(t, h.LvCreateLinear("lv0", 4))
	require.Len(t, dm.named, 1)

	require.NoError(t, h.LvRemove("lv0"))

	_, ok := h.VG.LV("lv0")
	require.False(t, ok)
	require.Empty(t, dm.named)

	free := model.FreeAreas(h.VG)
	dev := h.VG.SortedPVs()[0].Device
	require.NotEmpty(t, free[dev])
}

func TestPvAddThenPvRemoveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)
	p2 := makePV(t, dir, "pv2", 32*pvheader.MiB)

	h, err := VgCreate("vg0", []string{p1}, testDeps(t, newFakeDM()))
	require.NoError(t, err)
	require.EqualValues(t, 1, h.VG.Seqno)

	require.NoError(t, h.PvAdd(p2))
	require.EqualValues(t, 2, h.VG.Seqno)
	require.Len(t, h.VG.PVs, 2)

	secondDev := h.VG.SortedPVs()[1].Device

	require.NoError(t, h.PvRemove(secondDev))
	require.Len(t, h.VG.PVs, 1)
}

func TestPvAddRejectsDeviceAlreadyCarryingAForeignVG(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)
	p2 := makePV(t, dir, "pv2", 32*pvheader.MiB)

	_, err := VgCreate("vg0", []string{p1}, testDeps(t, newFakeDM()))
	require.NoError(t, err)

	// p1 already carries vg0's committed metadata, so adding it to vg1
	// must fail.
	h2, err := VgCreate("vg1", []string{p2}, testDeps(t, newFakeDM()))
	require.NoError(t, err)

	err = h2.PvAdd(p1)
	require.Error(t, err)
}

func TestSeqnoIsMonotonicAcrossSeveralCommits(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)

	h, err := VgCreate("vg0", []string{p1}, testDeps(t, newFakeDM()))
	require.NoError(t, err)

	last := h.VG.Seqno
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("lv%d", i)
		require.NoError(t, h.LvCreateLinear(name, 1))
		require.Greater(t, h.VG.Seqno, last)
		last = h.VG.Seqno
	}
}

func TestCommitPartialFailureLeavesReachablePVAdvanced(t *testing.T) {
	dir := t.TempDir()
	p1 := makePV(t, dir, "pv1", 32*pvheader.MiB)
	p2 := makePV(t, dir, "pv2", 32*pvheader.MiB)

	h, err := VgCreate("vg0", []string{p1, p2}, testDeps(t, newFakeDM()))
	require.NoError(t, err)
	require.EqualValues(t, 1, h.VG.Seqno)

	// Simulate p2 becoming unreachable out from under the handle.
	require.NoError(t, os.Remove(p2))

	err = h.commit()
	require.Error(t, err)

	// p1 still got the new generation even though p2's write failed.
	_, hdr, err := pvheader.ReadLabelAndHeader(p1)
	require.NoError(t, err)

	f, err := os.Open(p1)
	require.NoError(t, err)
	defer f.Close()

	found := false
	for _, area := range hdr.MetadataAreas {
		blob, rerr := mda.Read(f, mda.Area{OffsetBytes: area.OffsetBytes, SizeBytes: area.SizeBytes})
		require.NoError(t, rerr)
		if blob != nil {
			found = true

			outer, perr := textfmt.Parse(blob)
			require.NoError(t, perr)
			onDisk, verr := model.FromTextMap("vg0", outer)
			require.NoError(t, verr)
			require.Equal(t, h.VG.Seqno, onDisk.Seqno)
		}
	}

	require.True(t, found)
}
