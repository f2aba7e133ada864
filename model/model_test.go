package model

import (
	"reflect"
	"testing"

	"github.com/agrover/melvin/textfmt"
)

func sampleVG() *VG {
	d1 := Device{Major: 253, Minor: 0}
	d2 := Device{Major: 253, Minor: 1}

	vg := NewVG("myvg", "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	vg.Seqno = 1
	vg.AddPV(&PV{Device: d1, UUID: "pv1-uuid", DevSize: 1 << 20, PeStart: 2048, PeCount: 32})
	vg.AddPV(&PV{Device: d2, UUID: "pv2-uuid", DevSize: 1 << 20, PeStart: 2048, PeCount: 64})

	vg.AddLV(&LV{
		Name:   "data",
		UUID:   "lv1-uuid",
		Status: []string{"READ", "WRITE", "VISIBLE"},
		Segments: []Segment{
			&StripedSegment{
				Start: 0,
				Count: 10,
				Stripes: []Stripe{
					{Device: d1, StartExtent: 0},
				},
			},
		},
	})

	return vg
}

func TestUsedAndFreeAreasPartitionPeCount(t *testing.T) {
	vg := sampleVG()
	used := UsedAreas(vg)
	free := FreeAreas(vg)

	for _, pv := range vg.PVs {
		var usedTotal, freeTotal uint64
		for _, r := range used[pv.Device] {
			usedTotal += r.Count
		}

		for _, r := range free[pv.Device] {
			freeTotal += r.Count
		}

		if usedTotal+freeTotal != pv.PeCount {
			t.Errorf("pv %s: used(%d) + free(%d) != pe_count(%d)", pv.Device, usedTotal, freeTotal, pv.PeCount)
		}
	}
}

func TestFreeAreasNoUsedRangesIsSingleEntry(t *testing.T) {
	vg := sampleVG()
	free := FreeAreas(vg)

	d2 := Device{Major: 253, Minor: 1}
	ranges := free[d2]
	if len(ranges) != 1 || ranges[0].Start != 0 || ranges[0].Count != 64 {
		t.Errorf("free(d2) = %+v, want single [0,64)", ranges)
	}
}

func TestFreeAreasGapAfterUsedRange(t *testing.T) {
	vg := sampleVG()
	free := FreeAreas(vg)

	d1 := Device{Major: 253, Minor: 0}
	ranges := free[d1]
	if len(ranges) != 1 || ranges[0].Start != 10 || ranges[0].Count != 22 {
		t.Errorf("free(d1) = %+v, want single [10,32)", ranges)
	}
}

func TestToTextMapFromTextMapRoundTrip(t *testing.T) {
	vg := sampleVG()

	outer := textfmt.NewTextMap()
	outer.Set(vg.Name, vg.ToTextMap())

	got, err := FromTextMap(vg.Name, outer)
	if err != nil {
		t.Fatal(err)
	}

	if got.ID != vg.ID || got.Seqno != vg.Seqno || got.ExtentSize != vg.ExtentSize {
		t.Errorf("round-trip VG scalar fields mismatch: got %+v", got)
	}

	if len(got.PVs) != len(vg.PVs) {
		t.Fatalf("PVs = %d, want %d", len(got.PVs), len(vg.PVs))
	}

	for _, pv := range vg.PVs {
		gotPV, ok := got.PV(pv.Device)
		if !ok {
			t.Fatalf("round-trip missing PV %s", pv.Device)
		}

		if gotPV.PeStart != pv.PeStart || gotPV.PeCount != pv.PeCount {
			t.Errorf("PV %s round-trip mismatch: got %+v, want %+v", pv.Device, gotPV, pv)
		}
	}

	lv, ok := got.LV("data")
	if !ok {
		t.Fatal("round-trip missing LV \"data\"")
	}

	if lv.ExtentCount() != 10 {
		t.Errorf("LV ExtentCount = %d, want 10", lv.ExtentCount())
	}

	seg, ok := lv.Segments[0].(*StripedSegment)
	if !ok {
		t.Fatalf("segment type = %T, want *StripedSegment", lv.Segments[0])
	}

	wantStripes := []Stripe{{Device: Device{Major: 253, Minor: 0}, StartExtent: 0}}
	if !reflect.DeepEqual(seg.Stripes, wantStripes) {
		t.Errorf("Stripes = %+v, want %+v", seg.Stripes, wantStripes)
	}
}

// TestPVNamesAreNotStableAcrossCommits realizes spec.md §4.5's explicit
// warning: pv<i> cross-reference names are reassigned fresh, in Device
// order, on every ToTextMap call, never carried over from a prior parse.
func TestPVNamesAreNotStableAcrossCommits(t *testing.T) {
	vg := sampleVG()

	// Remove and re-add the first PV: its insertion-order position
	// changes, but Device order (and therefore pv<i> assignment) does
	// not.
	d1 := Device{Major: 253, Minor: 0}
	pv1, _ := vg.PV(d1)
	vg.RemovePV(d1)
	vg.AddPV(pv1)

	sec := vg.ToTextMap()
	pvSec, ok := sec.GetMap("physical_volumes")
	if !ok {
		t.Fatal("missing physical_volumes section")
	}

	if _, ok := pvSec.GetMap("pv0"); !ok {
		t.Error("expected pv0 to exist regardless of PVs slice insertion order")
	}
}

func TestDeviceInUse(t *testing.T) {
	vg := sampleVG()

	d1 := Device{Major: 253, Minor: 0}
	if name, inUse := vg.DeviceInUse(d1); !inUse || name != "data" {
		t.Errorf("DeviceInUse(d1) = (%q, %v), want (\"data\", true)", name, inUse)
	}

	d2 := Device{Major: 253, Minor: 1}
	if _, inUse := vg.DeviceInUse(d2); inUse {
		t.Error("DeviceInUse(d2) = true, want false (no segment references it)")
	}
}
