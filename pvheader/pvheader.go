// Package pvheader implements the on-disk label sector and PV header
// layouts from spec.md §4.3: label search across the first four sectors,
// CRC validation, and PvHeader::initialize's fresh-layout writer.
//
// All multi-byte fields are little-endian, encoded and decoded field by
// field into fixed-layout record types (no pointer-cast-over-buffer; see
// spec.md §9), the way the teacher encodes its own on-disk records
// (lxd/cluster/migrate.go's encodeRaftMetadata/writeRaftSnapshotMetadata).
package pvheader

import (
	"encoding/binary"
	"fmt"

	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/util"
)

// SectorSize is the fixed 512-byte sector this package reads/writes in.
const SectorSize = 512

// LabelMagic is the fixed 8-byte label-sector magic.
const LabelMagic = "LABELONE"

// LabelType is the fixed label-type string written at label offset 24.
const LabelType = "LVM2 001"

// labelSearchSectors is how many leading sectors are checked for a label.
const labelSearchSectors = 4

// MiB and KiB are used throughout initialize's layout math.
const (
	KiB = 1024
	MiB = 1024 * KiB
)

// Mda0SectorOffset is the sector offset spec.md §4.3 fixes MDA0 at.
const Mda0SectorOffset = 8

// Mda0Size is MDA0's fixed size: 1 MiB minus 4 KiB.
const Mda0Size = 1*MiB - 4*KiB

// Mda1Size is MDA1's fixed size: the last 1 MiB of the device.
const Mda1Size = 1 * MiB

// Label is the parsed contents of a label sector (spec.md §4.3 table).
type Label struct {
	// Sector is the sector index this label was found at and self-reports.
	Sector uint64
	// HeaderOffset is the PV header's offset from the start of this sector.
	HeaderOffset uint32
	// Type is the 8-byte label type, e.g. "LVM2 001".
	Type string
}

// Area is an on-disk (offset, size) area descriptor. Size zero means "to
// end of device" for a data area; a zero offset terminates a descriptor
// list.
type Area struct {
	OffsetBytes uint64
	SizeBytes   uint64
}

// Header is the parsed PV header (spec.md §4.3 table).
type Header struct {
	UUID         string // 32-char unhyphenated ASCII
	SizeBytes    uint64
	DataArea     *Area // nil if absent
	MetadataAreas []Area
	ExtVersion   uint32
	ExtFlags     uint32
	BootloaderAreas []Area
}

// FindLabel scans the first four 512-byte sectors of buf (which must
// contain at least labelSearchSectors*SectorSize bytes) for a valid label,
// returning the first one found. Corruption on one sector does not stop
// the scan of the others, matching the scan-level recovery policy of
// spec.md §7.
func FindLabel(buf []byte) (*Label, error) {
	var lastErr error
	for sector := 0; sector < labelSearchSectors; sector++ {
		start := sector * SectorSize
		if start+SectorSize > len(buf) {
			break
		}

		lbl, err := parseLabelSector(buf[start:start+SectorSize], uint64(sector))
		if err != nil {
			lastErr = err
			continue
		}

		return lbl, nil
	}

	if lastErr == nil {
		lastErr = &merrors.NotFound{What: "LVM2 label in first four sectors"}
	}

	return nil, lastErr
}

// parseLabelSector parses one candidate label sector, per the spec.md
// §4.3 table: magic, self-reported sector index, CRC, header offset,
// label type.
func parseLabelSector(sector []byte, at uint64) (*Label, error) {
	if string(sector[0:8]) != LabelMagic {
		return nil, &merrors.NotFound{What: "LABELONE magic"}
	}

	selfSector := binary.LittleEndian.Uint64(sector[8:16])
	if selfSector != at {
		return nil, &merrors.Inconsistent{Detail: fmt.Sprintf("label self-reports sector %d, found at %d", selfSector, at)}
	}

	wantCRC := binary.LittleEndian.Uint32(sector[16:20])
	gotCRC := util.CRC32(sector[20:SectorSize])
	if gotCRC != wantCRC {
		return nil, &merrors.Corrupt{Where: merrors.WhereLabel, Detail: fmt.Sprintf("CRC mismatch: have %#08x, want %#08x", gotCRC, wantCRC)}
	}

	headerOffset := binary.LittleEndian.Uint32(sector[20:24])
	labelType := string(sector[24:32])

	return &Label{Sector: at, HeaderOffset: headerOffset, Type: labelType}, nil
}

// WriteLabelSector renders a label sector pointing at a PV header located
// headerOffset bytes into the sector, written at sector index 1 per
// spec.md §4.3's initialization rule.
func WriteLabelSector(headerOffset uint32) []byte {
	sector := make([]byte, SectorSize)
	copy(sector[0:8], LabelMagic)
	binary.LittleEndian.PutUint64(sector[8:16], 1)
	binary.LittleEndian.PutUint32(sector[20:24], headerOffset)
	copy(sector[24:32], LabelType)

	crc := util.CRC32(sector[20:SectorSize])
	binary.LittleEndian.PutUint32(sector[16:20], crc)

	return sector
}

// ParseHeader decodes a PV header starting at buf[0], per the spec.md
// §4.3 table.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < 32 {
		return nil, &merrors.Inconsistent{Detail: "buffer too short for a PV header"}
	}

	h := &Header{
		UUID:      string(buf[0:32]),
		SizeBytes: binary.LittleEndian.Uint64(buf[32:40]),
	}

	off := 40

	dataAreas, off, err := readAreaList(buf, off)
	if err != nil {
		return nil, err
	}

	switch len(dataAreas) {
	case 0:
		h.DataArea = nil
	case 1:
		h.DataArea = &dataAreas[0]
	default:
		return nil, &merrors.Inconsistent{Detail: "more than one data area descriptor"}
	}

	mdas, off, err := readAreaList(buf, off)
	if err != nil {
		return nil, err
	}

	if len(mdas) > 2 {
		return nil, &merrors.Inconsistent{Detail: "more than two metadata area descriptors"}
	}

	h.MetadataAreas = mdas

	if off >= len(buf) || off+4 > len(buf) {
		return h, nil
	}

	h.ExtVersion = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4

	if h.ExtVersion == 0 {
		return h, nil
	}

	if off+4 > len(buf) {
		return nil, &merrors.Inconsistent{Detail: "extension flags truncated"}
	}

	h.ExtFlags = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4

	boots, _, err := readAreaList(buf, off)
	if err != nil {
		return nil, err
	}

	h.BootloaderAreas = boots

	return h, nil
}

// readAreaList reads (offset,size) pairs starting at buf[off] until a
// (0,0) terminator pair, returning the areas and the offset just past the
// terminator.
func readAreaList(buf []byte, off int) ([]Area, int, error) {
	var areas []Area
	for {
		if off+16 > len(buf) {
			return nil, 0, &merrors.Inconsistent{Detail: "area descriptor list runs past buffer end"}
		}

		offset := binary.LittleEndian.Uint64(buf[off : off+8])
		size := binary.LittleEndian.Uint64(buf[off+8 : off+16])
		off += 16

		if offset == 0 {
			return areas, off, nil
		}

		areas = append(areas, Area{OffsetBytes: offset, SizeBytes: size})
	}
}

// WriteHeader renders h into its on-disk byte layout.
func WriteHeader(h *Header) ([]byte, error) {
	if len(h.UUID) != 32 {
		return nil, fmt.Errorf("pvheader.WriteHeader: UUID must be 32 characters, got %d", len(h.UUID))
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, []byte(h.UUID)...)

	sizeBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(sizeBytes, h.SizeBytes)
	buf = append(buf, sizeBytes...)

	var dataAreas []Area
	if h.DataArea != nil {
		dataAreas = []Area{*h.DataArea}
	}

	buf = appendAreaList(buf, dataAreas)
	buf = appendAreaList(buf, h.MetadataAreas)

	extVersion := make([]byte, 4)
	binary.LittleEndian.PutUint32(extVersion, h.ExtVersion)
	buf = append(buf, extVersion...)

	if h.ExtVersion > 0 {
		extFlags := make([]byte, 4)
		binary.LittleEndian.PutUint32(extFlags, h.ExtFlags)
		buf = append(buf, extFlags...)
		buf = appendAreaList(buf, h.BootloaderAreas)
	}

	return buf, nil
}

func appendAreaList(buf []byte, areas []Area) []byte {
	pair := make([]byte, 16)
	for _, a := range areas {
		binary.LittleEndian.PutUint64(pair[0:8], a.OffsetBytes)
		binary.LittleEndian.PutUint64(pair[8:16], a.SizeBytes)
		buf = append(buf, pair...)
	}

	// (0,0) terminator.
	binary.LittleEndian.PutUint64(pair[0:8], 0)
	binary.LittleEndian.PutUint64(pair[8:16], 0)
	return append(buf, pair...)
}
