package model

// LV is a logical volume: a named, ordered sequence of segments covering
// its full extent range with no gaps.
type LV struct {
	Name         string
	UUID         string // hyphenated
	Status       []string
	Flags        []string
	CreationHost string
	CreationTime int64
	Segments     []Segment
}

// ExtentCount returns the LV's total size in extents: the sum of its
// segments' extent counts.
func (lv *LV) ExtentCount() uint64 {
	var total uint64
	for _, seg := range lv.Segments {
		total += seg.ExtentCount()
	}

	return total
}
