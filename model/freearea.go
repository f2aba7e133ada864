package model

import "sort"

// UsedAreas returns, per PV, the set of extent ranges occupied by some
// segment stripe (spec.md §4.5). Adjacent ranges are reported as separate
// entries, one per stripe, and are not merged.
func UsedAreas(vg *VG) map[Device][]Range {
	out := map[Device][]Range{}
	for _, name := range vg.LVNames() {
		lv, _ := vg.LV(name)
		for _, seg := range lv.Segments {
			for dev, r := range seg.UsedAreas() {
				out[dev] = append(out[dev], r)
			}
		}
	}

	return out
}

// FreeAreas inverts UsedAreas per PV: for each PV it walks the used
// ranges in sorted order and emits the gaps between them plus the tail gap
// up to PV.PeCount. A PV with no used ranges produces a single
// [0, PeCount) entry. Zero-length gaps never appear in the output.
func FreeAreas(vg *VG) map[Device][]Range {
	used := UsedAreas(vg)
	out := map[Device][]Range{}

	for _, pv := range vg.PVs {
		ranges := append([]Range(nil), used[pv.Device]...)
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

		var free []Range
		cursor := uint64(0)
		for _, r := range ranges {
			if r.Start > cursor {
				free = append(free, Range{Start: cursor, Count: r.Start - cursor})
			}

			end := r.Start + r.Count
			if end > cursor {
				cursor = end
			}
		}

		if cursor < pv.PeCount {
			free = append(free, Range{Start: cursor, Count: pv.PeCount - cursor})
		}

		out[pv.Device] = free
	}

	return out
}
