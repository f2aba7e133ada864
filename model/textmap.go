package model

import (
	"fmt"

	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/textfmt"
)

// FromTextMap parses the VG named name out of outer, the full top-level
// TextMap produced by a commit (spec.md §6's top-level key table). It
// resolves the "pv0", "pv1", ... cross-reference names used by segment
// stripes to their PV definitions, then discards those names in favor of
// indexing by Device: the mapping is a locally-scoped translation table
// used only during this parse, not a long-lived structure (spec.md §9).
func FromTextMap(name string, outer *textfmt.TextMap) (*VG, error) {
	sec, ok := outer.GetMap(name)
	if !ok {
		return nil, &merrors.Parse{Detail: fmt.Sprintf("no section named %q", name)}
	}

	id, _ := sec.GetString("id")
	seqno, _ := sec.GetNumber("seqno")
	format, _ := sec.GetString("format")
	status, _ := sec.GetStringList("status")
	flags, _ := sec.GetStringList("flags")
	extentSize, ok := sec.GetNumber("extent_size")
	if !ok {
		return nil, &merrors.Parse{Detail: "vg section missing \"extent_size\""}
	}

	maxLV, _ := sec.GetNumber("max_lv")
	maxPV, _ := sec.GetNumber("max_pv")
	metadataCopies, _ := sec.GetNumber("metadata_copies")

	vg := &VG{
		Name:           name,
		ID:             id,
		Seqno:          seqno,
		Format:         format,
		Status:         status,
		Flags:          flags,
		ExtentSize:     uint64(extentSize),
		MaxLV:          maxLV,
		MaxPV:          maxPV,
		MetadataCopies: metadataCopies,
		lvs:            map[string]*LV{},
	}

	pvNameToDevice := map[string]Device{}

	if pvSec, ok := sec.GetMap("physical_volumes"); ok {
		for _, pvName := range pvSec.Keys() {
			pvEntry, ok := pvSec.GetMap(pvName)
			if !ok {
				return nil, &merrors.Parse{Detail: fmt.Sprintf("physical_volumes.%s is not a section", pvName)}
			}

			pv, dev, err := pvFromTextMap(pvEntry)
			if err != nil {
				return nil, err
			}

			pvNameToDevice[pvName] = dev
			vg.AddPV(pv)
		}
	}

	resolve := func(pvName string) (Device, bool) {
		dev, ok := pvNameToDevice[pvName]
		return dev, ok
	}

	if lvSec, ok := sec.GetMap("logical_volumes"); ok {
		for _, lvName := range lvSec.Keys() {
			lvEntry, ok := lvSec.GetMap(lvName)
			if !ok {
				return nil, &merrors.Parse{Detail: fmt.Sprintf("logical_volumes.%s is not a section", lvName)}
			}

			lv, err := lvFromTextMap(lvName, lvEntry, resolve)
			if err != nil {
				return nil, err
			}

			vg.AddLV(lv)
		}
	}

	return vg, nil
}

func pvFromTextMap(m *textfmt.TextMap) (*PV, Device, error) {
	id, _ := m.GetString("id")

	packed, ok := m.GetNumber("device")
	if !ok {
		return nil, Device{}, &merrors.Parse{Detail: "pv entry missing \"device\""}
	}

	dev := DeviceFromPacked(uint64(packed))

	status, _ := m.GetStringList("status")
	flags, _ := m.GetStringList("flags")

	devSize, ok := m.GetNumber("dev_size")
	if !ok {
		return nil, Device{}, &merrors.Parse{Detail: "pv entry missing \"dev_size\""}
	}

	peStart, ok := m.GetNumber("pe_start")
	if !ok {
		return nil, Device{}, &merrors.Parse{Detail: "pv entry missing \"pe_start\""}
	}

	peCount, ok := m.GetNumber("pe_count")
	if !ok {
		return nil, Device{}, &merrors.Parse{Detail: "pv entry missing \"pe_count\""}
	}

	pv := &PV{
		Device:  dev,
		UUID:    id,
		DevSize: uint64(devSize),
		Status:  status,
		Flags:   flags,
		PeStart: uint64(peStart),
		PeCount: uint64(peCount),
	}

	return pv, dev, nil
}

func lvFromTextMap(name string, m *textfmt.TextMap, resolve func(string) (Device, bool)) (*LV, error) {
	id, _ := m.GetString("id")
	status, _ := m.GetStringList("status")
	flags, _ := m.GetStringList("flags")
	creationHost, _ := m.GetString("creation_host")
	creationTime, _ := m.GetNumber("creation_time")

	segCount, ok := m.GetNumber("segment_count")
	if !ok {
		return nil, &merrors.Parse{Detail: fmt.Sprintf("lv %q missing \"segment_count\"", name)}
	}

	lv := &LV{
		Name:         name,
		UUID:         id,
		Status:       status,
		Flags:        flags,
		CreationHost: creationHost,
		CreationTime: creationTime,
	}

	for i := int64(1); i <= segCount; i++ {
		key := fmt.Sprintf("segment%d", i)
		segSec, ok := m.GetMap(key)
		if !ok {
			return nil, &merrors.Parse{Detail: fmt.Sprintf("lv %q missing %q", name, key)}
		}

		seg, err := segmentFromTextMap(segSec, resolve)
		if err != nil {
			return nil, err
		}

		lv.Segments = append(lv.Segments, seg)
	}

	return lv, nil
}

// ToTextMap renders vg's own section (everything that sits under
// `<vg_name> { ... }` in the on-disk format; the top-level keys
// contents/version/description/creation_host/creation_time are vgops'
// responsibility, since they describe the commit, not the VG). PV
// cross-reference names (pv0, pv1, ...) are assigned fresh here, in
// Device order, so they are never assumed stable across commits.
func (vg *VG) ToTextMap() *textfmt.TextMap {
	sec := textfmt.NewTextMap()
	sec.Set("id", textfmt.String(vg.ID))
	sec.Set("seqno", textfmt.Number(vg.Seqno))
	sec.Set("format", textfmt.String(vg.Format))
	sec.Set("status", stringListValue(vg.Status))
	sec.Set("flags", stringListValue(vg.Flags))
	sec.Set("extent_size", textfmt.Number(int64(vg.ExtentSize)))
	sec.Set("max_lv", textfmt.Number(vg.MaxLV))
	sec.Set("max_pv", textfmt.Number(vg.MaxPV))
	sec.Set("metadata_copies", textfmt.Number(vg.MetadataCopies))

	pvNames := map[Device]string{}
	pvSec := textfmt.NewTextMap()
	for i, pv := range vg.SortedPVs() {
		name := fmt.Sprintf("pv%d", i)
		pvNames[pv.Device] = name
		pvSec.Set(name, pv.toTextMap())
	}

	sec.Set("physical_volumes", pvSec)

	lvSec := textfmt.NewTextMap()
	for _, name := range vg.LVNames() {
		lv, _ := vg.LV(name)
		lvSec.Set(name, lv.toTextMap(pvNames))
	}

	sec.Set("logical_volumes", lvSec)

	return sec
}

func (pv *PV) toTextMap() *textfmt.TextMap {
	m := textfmt.NewTextMap()
	m.Set("id", textfmt.String(pv.UUID))
	m.Set("device", textfmt.Number(int64(pv.Device.Packed())))
	m.Set("status", stringListValue(pv.Status))
	m.Set("flags", stringListValue(pv.Flags))
	m.Set("dev_size", textfmt.Number(int64(pv.DevSize)))
	m.Set("pe_start", textfmt.Number(int64(pv.PeStart)))
	m.Set("pe_count", textfmt.Number(int64(pv.PeCount)))
	return m
}

func (lv *LV) toTextMap(pvNames map[Device]string) *textfmt.TextMap {
	m := textfmt.NewTextMap()
	m.Set("id", textfmt.String(lv.UUID))
	m.Set("status", stringListValue(lv.Status))
	m.Set("flags", stringListValue(lv.Flags))
	m.Set("creation_host", textfmt.String(lv.CreationHost))
	m.Set("creation_time", textfmt.Number(lv.CreationTime))
	m.Set("segment_count", textfmt.Number(int64(len(lv.Segments))))

	for i, seg := range lv.Segments {
		key := fmt.Sprintf("segment%d", i+1)
		m.Set(key, seg.ToTextMap(pvNames))
	}

	return m
}

func stringListValue(ss []string) *textfmt.List {
	list := make(textfmt.List, len(ss))
	for i, s := range ss {
		list[i] = textfmt.String(s)
	}

	return &list
}
