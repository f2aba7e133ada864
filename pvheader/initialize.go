package pvheader

import (
	"fmt"
	"os"

	"github.com/agrover/melvin/hostinfo"
	"github.com/agrover/melvin/mda"
	"github.com/agrover/melvin/util"
)

// Initialized is the on-disk artifact produced by Initialize: the label
// sector and PV header bytes, already written to path, plus the Header
// that was written. vgops.PvAdd takes DevPath and rereads the header from
// disk.
type Initialized struct {
	Header   *Header
	DevPath  string
}

// Initialize lays out a fresh PV on the device or file at path, per
// spec.md §4.3: MDA0 at sector 8 sized 1 MiB - 4 KiB, a data area
// immediately after MDA0, MDA1 in the device's last 1 MiB, no bootloader
// area, extension version 1. Fails if the device is smaller than
// 2*MDA_SIZE + MDA0_OFFSET*SectorSize.
func Initialize(path string, rawUUID string, random util.RandomSource) (*Initialized, error) {
	if rawUUID == "" {
		rawUUID = util.NewRawUUID(random)
	}

	devSize, err := hostinfo.BlockDeviceSize(path)
	if err != nil {
		return nil, fmt.Errorf("pvheader.Initialize: %w", err)
	}

	mda0Offset := uint64(Mda0SectorOffset) * SectorSize
	minSize := 2*uint64(Mda1Size) + mda0Offset
	if devSize < minSize {
		return nil, fmt.Errorf("pvheader.Initialize: device %q is %d bytes, need at least %d", path, devSize, minSize)
	}

	mda1Offset := devSize - Mda1Size
	dataOffset := mda0Offset + Mda0Size

	h := &Header{
		UUID:      rawUUID,
		SizeBytes: devSize,
		DataArea:  &Area{OffsetBytes: dataOffset, SizeBytes: mda1Offset - dataOffset},
		MetadataAreas: []Area{
			{OffsetBytes: mda0Offset, SizeBytes: Mda0Size},
			{OffsetBytes: mda1Offset, SizeBytes: Mda1Size},
		},
		ExtVersion: 1,
		ExtFlags:   0,
	}

	headerBytes, err := WriteHeader(h)
	if err != nil {
		return nil, err
	}

	// The label sector always sits at sector index 1; the header follows
	// immediately after it, so its offset from the label sector's start
	// is one full sector.
	labelSector := WriteLabelSector(SectorSize)

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("pvheader.Initialize: opening %q: %w", path, err)
	}

	defer f.Close()

	if _, err := f.WriteAt(labelSector, SectorSize); err != nil {
		return nil, fmt.Errorf("pvheader.Initialize: writing label sector: %w", err)
	}

	if _, err := f.WriteAt(headerBytes, 2*SectorSize); err != nil {
		return nil, fmt.Errorf("pvheader.Initialize: writing PV header: %w", err)
	}

	// Each metadata area needs its own header written before anything can
	// read or write through it: an all-zero area fails mda.ParseHeader's
	// CRC and magic checks outright, rather than reading back as empty.
	for _, area := range h.MetadataAreas {
		mdaHdr := mda.InitializeHeader(mda.Area{OffsetBytes: area.OffsetBytes, SizeBytes: area.SizeBytes})
		if _, err := f.WriteAt(mdaHdr, int64(area.OffsetBytes)); err != nil {
			return nil, fmt.Errorf("pvheader.Initialize: writing mda header at %d: %w", area.OffsetBytes, err)
		}
	}

	return &Initialized{Header: h, DevPath: path}, nil
}

// ReadLabelAndHeader reads the label and PV header from an already
// initialized device, the read-path counterpart to Initialize.
func ReadLabelAndHeader(path string) (*Label, *Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("pvheader.ReadLabelAndHeader: opening %q: %w", path, err)
	}

	defer f.Close()

	buf := make([]byte, labelSearchSectors*SectorSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return nil, nil, fmt.Errorf("pvheader.ReadLabelAndHeader: reading %q: %w", path, err)
	}

	lbl, err := FindLabel(buf[:n])
	if err != nil {
		return nil, nil, err
	}

	headerStart := lbl.Sector*SectorSize + uint64(lbl.HeaderOffset)
	headerBuf := make([]byte, 512)
	if _, err := f.ReadAt(headerBuf, int64(headerStart)); err != nil {
		return nil, nil, fmt.Errorf("pvheader.ReadLabelAndHeader: reading PV header: %w", err)
	}

	hdr, err := ParseHeader(headerBuf)
	if err != nil {
		return nil, nil, err
	}

	return lbl, hdr, nil
}
