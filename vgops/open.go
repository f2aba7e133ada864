package vgops

import (
	"fmt"
	"os"

	"github.com/agrover/melvin/mda"
	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/model"
	"github.com/agrover/melvin/pvheader"
	"github.com/agrover/melvin/textfmt"
	"github.com/agrover/melvin/util"
)

// Open realizes spec.md §8 scenario 3: reopen a VG from nothing but the
// devices that carry it, as a fresh process would after a restart. It reads
// every candidate path's label and header, takes the first live MDA blob it
// finds anywhere among them as the authoritative metadata, and then matches
// every scanned device back onto the parsed VG's PV list so the returned
// Handle can commit again.
func Open(pvPaths []string, deps Deps) (*Handle, error) {
	type scanned struct {
		path string
		hdr  *pvheader.Header
	}

	var devices []scanned

	for _, path := range pvPaths {
		_, hdr, err := pvheader.ReadLabelAndHeader(path)
		if err != nil {
			return nil, fmt.Errorf("vgops.Open: %w", err)
		}

		devices = append(devices, scanned{path: path, hdr: hdr})
	}

	var blob []byte

	for _, d := range devices {
		f, err := os.Open(d.path)
		if err != nil {
			return nil, &merrors.Io{Path: d.path, Cause: err}
		}

		for _, area := range d.hdr.MetadataAreas {
			b, err := mda.Read(f, mda.Area{OffsetBytes: area.OffsetBytes, SizeBytes: area.SizeBytes})
			if err != nil {
				f.Close()
				return nil, err
			}

			if b != nil {
				blob = b
				break
			}
		}

		f.Close()

		if blob != nil {
			break
		}
	}

	if blob == nil {
		return nil, &merrors.NotFound{What: "live VG metadata on any of the given devices"}
	}

	outer, err := textfmt.Parse(blob)
	if err != nil {
		return nil, fmt.Errorf("vgops.Open: %w", err)
	}

	vgName := ""
	for _, key := range outer.Keys() {
		if !topLevelKeys[key] {
			vgName = key
			break
		}
	}

	if vgName == "" {
		return nil, &merrors.Parse{Detail: "no VG section found in committed metadata"}
	}

	vg, err := model.FromTextMap(vgName, outer)
	if err != nil {
		return nil, fmt.Errorf("vgops.Open: %w", err)
	}

	h := newHandle(vg, deps)

	// Device.Packed narrows the minor to 8 bits (the legacy on-disk
	// "device" field), so a PV's round-tripped Device is not reliably the
	// same value hostinfo.DeviceNumber reports for its path. Real LVM2
	// doesn't use that field for PV identity either: match scanned devices
	// to parsed PVs by PV UUID, which survives the round trip exactly.
	byUUID := map[string]*model.PV{}
	for _, pv := range vg.PVs {
		byUUID[pv.UUID] = pv
	}

	for _, d := range devices {
		id, err := util.HyphenateUUID(d.hdr.UUID)
		if err != nil {
			return nil, fmt.Errorf("vgops.Open: %w", err)
		}

		pv, ok := byUUID[id]
		if !ok {
			continue
		}

		h.pvPaths[pv.Device] = d.path
		h.pvHeaders[pv.Device] = d.hdr
	}

	return h, nil
}
