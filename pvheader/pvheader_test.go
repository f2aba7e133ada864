package pvheader

import (
	"encoding/binary"
	"testing"

	"github.com/agrover/melvin/util"
)

// TestParseLabelScenario realizes spec.md §8 scenario 1: a 2048-byte
// buffer with the label sector at sector index 1.
func TestParseLabelScenario(t *testing.T) {
	buf := make([]byte, 2048)
	sector := buf[512:1024]

	copy(sector[0:8], "LABELONE")
	binary.LittleEndian.PutUint64(sector[8:16], 1)
	binary.LittleEndian.PutUint32(sector[20:24], 32)
	copy(sector[24:32], "LVM2 001")

	crc := util.CRC32(sector[20:512])
	binary.LittleEndian.PutUint32(sector[16:20], crc)

	lbl, err := FindLabel(buf)
	if err != nil {
		t.Fatal(err)
	}

	if lbl.Sector != 1 {
		t.Errorf("Sector = %d, want 1", lbl.Sector)
	}

	if lbl.HeaderOffset != 32 {
		t.Errorf("HeaderOffset = %d, want 32", lbl.HeaderOffset)
	}

	if lbl.Type != "LVM2 001" {
		t.Errorf("Type = %q, want %q", lbl.Type, "LVM2 001")
	}
}

func TestFindLabelSkipsCorruptSectors(t *testing.T) {
	buf := make([]byte, 2048)

	// Sector 0: looks like a label but has a bad CRC.
	copy(buf[0:8], "LABELONE")
	binary.LittleEndian.PutUint64(buf[8:16], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 32)
	copy(buf[24:32], "LVM2 001")
	binary.LittleEndian.PutUint32(buf[16:20], 0xdeadbeef)

	// Sector 2: a valid label.
	sector := buf[1024:1536]
	copy(sector[0:8], "LABELONE")
	binary.LittleEndian.PutUint64(sector[8:16], 2)
	binary.LittleEndian.PutUint32(sector[20:24], 32)
	copy(sector[24:32], "LVM2 001")
	crc := util.CRC32(sector[20:512])
	binary.LittleEndian.PutUint32(sector[16:20], crc)

	lbl, err := FindLabel(buf)
	if err != nil {
		t.Fatal(err)
	}

	if lbl.Sector != 2 {
		t.Errorf("Sector = %d, want 2 (should have skipped the corrupt sector 0)", lbl.Sector)
	}
}

func TestFindLabelNoneFound(t *testing.T) {
	buf := make([]byte, 2048)
	if _, err := FindLabel(buf); err == nil {
		t.Fatal("expected an error when no sector carries a valid label")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		UUID:      "abcdefghijklmnopqrstuvwxyz012345",
		SizeBytes: 128 * MiB,
		DataArea:  &Area{OffsetBytes: Mda0Size + Mda0SectorOffset*SectorSize, SizeBytes: 0},
		MetadataAreas: []Area{
			{OffsetBytes: Mda0SectorOffset * SectorSize, SizeBytes: Mda0Size},
			{OffsetBytes: 127 * MiB, SizeBytes: Mda1Size},
		},
		ExtVersion: 1,
		ExtFlags:   0,
	}

	buf, err := WriteHeader(h)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}

	if got.UUID != h.UUID {
		t.Errorf("UUID = %q, want %q", got.UUID, h.UUID)
	}

	if got.SizeBytes != h.SizeBytes {
		t.Errorf("SizeBytes = %d, want %d", got.SizeBytes, h.SizeBytes)
	}

	if got.DataArea == nil || *got.DataArea != *h.DataArea {
		t.Errorf("DataArea = %+v, want %+v", got.DataArea, h.DataArea)
	}

	if len(got.MetadataAreas) != 2 || got.MetadataAreas[0] != h.MetadataAreas[0] || got.MetadataAreas[1] != h.MetadataAreas[1] {
		t.Errorf("MetadataAreas = %+v, want %+v", got.MetadataAreas, h.MetadataAreas)
	}

	if got.ExtVersion != 1 {
		t.Errorf("ExtVersion = %d, want 1", got.ExtVersion)
	}
}

func TestHeaderNoDataArea(t *testing.T) {
	h := &Header{
		UUID:       "abcdefghijklmnopqrstuvwxyz012345",
		SizeBytes:  1,
		ExtVersion: 0,
	}

	buf, err := WriteHeader(h)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}

	if got.DataArea != nil {
		t.Errorf("DataArea = %+v, want nil", got.DataArea)
	}

	if len(got.MetadataAreas) != 0 {
		t.Errorf("MetadataAreas = %+v, want empty", got.MetadataAreas)
	}
}
