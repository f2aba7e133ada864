package model

// PV is a physical volume as recorded inside a VG's metadata: the subset
// of pvheader.Header fields the VG text format cares about, plus the
// allocator geometry (PeStart, PeCount) computed once at pv_add time.
type PV struct {
	Device   Device
	UUID     string // hyphenated
	DevSize  uint64 // sectors
	Status   []string
	Flags    []string
	PeStart  uint64 // sectors
	PeCount  uint64 // extents
}
