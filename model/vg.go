package model

import "sort"

// VG is the in-memory volume group: the root entity every vgops operation
// mutates and every commit serializes.
type VG struct {
	Name           string
	ID             string // hyphenated uuid
	Seqno          int64
	Format         string // always "lvm2"
	Status         []string
	Flags          []string
	ExtentSize     uint64 // sectors
	MaxLV          int64
	MaxPV          int64
	MetadataCopies int64

	PVs []*PV

	lvOrder []string
	lvs     map[string]*LV
}

// NewVG returns an empty VG with vg_ops' default creation attributes
// (spec.md §4.6 vg_create): extent size 8192 sectors, status
// {READ,WRITE,RESIZEABLE}, seqno 0.
func NewVG(name, id string) *VG {
	return &VG{
		Name:       name,
		ID:         id,
		Format:     "lvm2",
		Status:     []string{"READ", "WRITE", "RESIZEABLE"},
		ExtentSize: 8192,
		lvs:        map[string]*LV{},
	}
}

// PV looks up a PV by device.
func (vg *VG) PV(dev Device) (*PV, bool) {
	for _, pv := range vg.PVs {
		if pv.Device == dev {
			return pv, true
		}
	}

	return nil, false
}

// SortedPVs returns vg.PVs ordered by Device, the deterministic iteration
// order spec.md §4.6/§5 require for allocation and commit.
func (vg *VG) SortedPVs() []*PV {
	out := append([]*PV(nil), vg.PVs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Device.Less(out[j].Device) })
	return out
}

// AddPV appends pv to the VG. Callers (vgops.PvAdd) are responsible for
// checking for a duplicate Device first.
func (vg *VG) AddPV(pv *PV) {
	vg.PVs = append(vg.PVs, pv)
}

// RemovePV removes the PV at dev, if present.
func (vg *VG) RemovePV(dev Device) {
	for i, pv := range vg.PVs {
		if pv.Device == dev {
			vg.PVs = append(vg.PVs[:i], vg.PVs[i+1:]...)
			return
		}
	}
}

// LV looks up an LV by name.
func (vg *VG) LV(name string) (*LV, bool) {
	lv, ok := vg.lvs[name]
	return lv, ok
}

// LVNames returns LV names in insertion order, minimizing diff churn
// between successive commits the way textfmt.TextMap.Keys does for its
// own entries.
func (vg *VG) LVNames() []string {
	return append([]string(nil), vg.lvOrder...)
}

// AddLV inserts lv. Callers (vgops.LvCreateLinear) are responsible for
// checking for a duplicate name first.
func (vg *VG) AddLV(lv *LV) {
	if vg.lvs == nil {
		vg.lvs = map[string]*LV{}
	}

	vg.lvOrder = append(vg.lvOrder, lv.Name)
	vg.lvs[lv.Name] = lv
}

// RemoveLV removes the LV named name, if present.
func (vg *VG) RemoveLV(name string) {
	delete(vg.lvs, name)
	for i, n := range vg.lvOrder {
		if n == name {
			vg.lvOrder = append(vg.lvOrder[:i], vg.lvOrder[i+1:]...)
			return
		}
	}
}

// DeviceInUse reports the name of the first LV that references dev in any
// segment, if any (spec.md §4.6 pv_remove's InUse check).
func (vg *VG) DeviceInUse(dev Device) (string, bool) {
	for _, name := range vg.lvOrder {
		lv := vg.lvs[name]
		for _, seg := range lv.Segments {
			for _, d := range seg.PVDependencies() {
				if d == dev {
					return name, true
				}
			}
		}
	}

	return "", false
}
