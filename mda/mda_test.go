package mda

import (
	"bytes"
	"testing"
)

// fakeDisk is a minimal in-memory ReaderWriterAt over a fixed-size slice:
// a WriteAt starting past the end panics, and one running past the end is
// truncated; the slice never grows.
type fakeDisk struct {
	buf []byte
}

func newFakeDisk(size uint64) *fakeDisk {
	return &fakeDisk{buf: make([]byte, size)}
}

func (d *fakeDisk) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, d.buf[off:])
	return n, nil
}

func (d *fakeDisk) WriteAt(p []byte, off int64) (int, error) {
	n := copy(d.buf[off:], p)
	return n, nil
}

func testArea() Area {
	return Area{OffsetBytes: 0, SizeBytes: 16 * 1024}
}

func TestWriteThenRead(t *testing.T) {
	area := testArea()
	disk := newFakeDisk(area.SizeBytes)

	hdrBuf := InitializeHeader(area)
	if _, err := disk.WriteAt(hdrBuf, int64(area.OffsetBytes)); err != nil {
		t.Fatal(err)
	}

	want := []byte("vg_name = \"test\"\n")
	if err := Write(disk, area, want); err != nil {
		t.Fatal(err)
	}

	got, err := Read(disk, area)
	if err != nil {
		t.Fatal(err)
	}

	// Write appends a trailing NUL.
	if !bytes.Equal(got, append(append([]byte(nil), want...), 0)) {
		t.Errorf("Read = %q, want %q\\x00", got, want)
	}
}

func TestReadEmptyMDAReturnsNil(t *testing.T) {
	area := testArea()
	disk := newFakeDisk(area.SizeBytes)

	hdrBuf := InitializeHeader(area)
	if _, err := disk.WriteAt(hdrBuf, int64(area.OffsetBytes)); err != nil {
		t.Fatal(err)
	}

	got, err := Read(disk, area)
	if err != nil {
		t.Fatal(err)
	}

	if got != nil {
		t.Errorf("Read of a freshly initialized MDA = %q, want nil", got)
	}
}

func TestSuccessiveWritesAdvanceAndWrap(t *testing.T) {
	area := testArea()
	disk := newFakeDisk(area.SizeBytes)

	hdrBuf := InitializeHeader(area)
	if _, err := disk.WriteAt(hdrBuf, int64(area.OffsetBytes)); err != nil {
		t.Fatal(err)
	}

	// Write enough generations that the ring wraps at least once: each
	// blob is a full sector, and the ring has (16KiB-512)/512 = 31
	// sector-sized slots.
	var generations [][]byte
	for i := 0; i < 40; i++ {
		blob := bytes.Repeat([]byte{byte('a' + i%26)}, 500)
		generations = append(generations, blob)

		if err := Write(disk, area, blob); err != nil {
			t.Fatalf("generation %d: %v", i, err)
		}

		got, err := Read(disk, area)
		if err != nil {
			t.Fatalf("generation %d: read back: %v", i, err)
		}

		want := append(append([]byte(nil), blob...), 0)
		if !bytes.Equal(got, want) {
			t.Fatalf("generation %d: Read = %q, want %q", i, got, want)
		}
	}
}

// TestCrashBeforeHeaderSwapLeavesPriorGenerationReadable realizes spec.md
// §8's MDA crash scenario: if the payload write for generation N lands but
// the header rewrite that would point at it never happens, a subsequent
// read must still return generation N-1 intact, not a torn blob.
func TestCrashBeforeHeaderSwapLeavesPriorGenerationReadable(t *testing.T) {
	area := testArea()
	disk := newFakeDisk(area.SizeBytes)

	hdrBuf := InitializeHeader(area)
	if _, err := disk.WriteAt(hdrBuf, int64(area.OffsetBytes)); err != nil {
		t.Fatal(err)
	}

	gen1 := []byte("generation one")
	if err := Write(disk, area, gen1); err != nil {
		t.Fatal(err)
	}

	// Snapshot the header after generation 1's commit, as the "crash
	// point": we will write generation 2's payload, but restore this
	// header afterward instead of letting Write's own header rewrite
	// happen, simulating a crash between the two.
	savedHdr := make([]byte, HeaderSize)
	copy(savedHdr, disk.buf[area.OffsetBytes:area.OffsetBytes+HeaderSize])

	hdr, err := ParseHeader(savedHdr, area)
	if err != nil {
		t.Fatal(err)
	}

	gen2 := []byte("generation two, never committed")
	start := nextRingStart(area, hdr.Live)
	withNUL := append(append([]byte(nil), gen2...), 0)
	if err := writeRing(disk, area, start, withNUL); err != nil {
		t.Fatal(err)
	}

	// Restore the pre-crash header: the payload landed, the pointer swap
	// did not.
	if _, err := disk.WriteAt(savedHdr, int64(area.OffsetBytes)); err != nil {
		t.Fatal(err)
	}

	got, err := Read(disk, area)
	if err != nil {
		t.Fatalf("read after simulated crash: %v", err)
	}

	want := append(append([]byte(nil), gen1...), 0)
	if !bytes.Equal(got, want) {
		t.Errorf("Read after simulated crash = %q, want prior generation %q", got, want)
	}
}

func TestWriteRejectsBlobLargerThanCapacity(t *testing.T) {
	area := testArea()
	disk := newFakeDisk(area.SizeBytes)

	hdrBuf := InitializeHeader(area)
	if _, err := disk.WriteAt(hdrBuf, int64(area.OffsetBytes)); err != nil {
		t.Fatal(err)
	}

	huge := bytes.Repeat([]byte{'x'}, int(area.SizeBytes))
	if err := Write(disk, area, huge); err == nil {
		t.Fatal("expected Write to reject a blob that cannot fit in the ring")
	}
}

func TestNextRingStartSkipsHeaderSector(t *testing.T) {
	area := testArea()

	// A RawLocn whose end aligns exactly to the area size should wrap to
	// the header sector boundary, never to offset 0.
	prev := RawLocn{Offset: area.SizeBytes - SectorSize, Size: SectorSize}
	start := nextRingStart(area, prev)
	if start != HeaderSize {
		t.Errorf("nextRingStart = %d, want %d (start of ring, past the header)", start, HeaderSize)
	}
}

func TestParseHeaderRejectsAreaMismatch(t *testing.T) {
	area := testArea()
	hdrBuf := InitializeHeader(area)

	other := Area{OffsetBytes: area.OffsetBytes, SizeBytes: area.SizeBytes * 2}
	if _, err := ParseHeader(hdrBuf, other); err == nil {
		t.Fatal("expected ParseHeader to reject a header whose self-reported area disagrees with the caller's")
	}
}
