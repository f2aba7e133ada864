package mda

import (
	"fmt"

	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/util"
)

// RawLocn.Offset is relative to the start of the MDA's area (not to the
// end of the header sector): it always lands at or past byte 512, since
// sector 0 holds the header, and wraps back to byte 512 — never to byte
// 0 — when it reaches area.SizeBytes. This matches spec.md §4.4's read
// discipline step 3, which adds MDA.offset + locn.offset directly and
// wraps at MDA.offset + MDA.size back to MDA.offset + 512.

// Read implements spec.md §4.4's read discipline: load and validate the
// header, follow its live RawLocn, and read the blob, wrapping at the end
// of the area back to byte 512 if necessary.
func Read(rw ReaderWriterAt, area Area) ([]byte, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := rw.ReadAt(hdrBuf, int64(area.OffsetBytes)); err != nil {
		return nil, &merrors.Io{Path: "mda", Cause: err}
	}

	hdr, err := ParseHeader(hdrBuf, area)
	if err != nil {
		return nil, err
	}

	if hdr.Live.Offset == 0 || hdr.Live.Ignored {
		return nil, nil
	}

	blob, err := readRing(rw, area, hdr.Live.Offset, hdr.Live.Size)
	if err != nil {
		return nil, err
	}

	if crc := util.CRC32(blob); crc != hdr.Live.CRC {
		return nil, &merrors.Corrupt{Where: merrors.WhereTextPayload, Detail: fmt.Sprintf("blob CRC mismatch: have %#08x, want %#08x", crc, hdr.Live.CRC)}
	}

	return blob, nil
}

// validateRingPosition checks that offset/size describe a placement that
// starts at or past the header sector and fits within the area.
func validateRingPosition(area Area, offset, size uint64) error {
	if offset < HeaderSize || offset >= area.SizeBytes {
		return &merrors.Inconsistent{Detail: fmt.Sprintf("RawLocn offset %d falls outside [%d, %d)", offset, HeaderSize, area.SizeBytes)}
	}

	if size > area.SizeBytes-HeaderSize {
		return &merrors.Inconsistent{Detail: fmt.Sprintf("RawLocn size %d exceeds ring capacity %d", size, area.SizeBytes-HeaderSize)}
	}

	return nil
}

// readRing reads size bytes starting at area.OffsetBytes+offset, wrapping
// back to area.OffsetBytes+512 if the read would run past area.SizeBytes.
func readRing(rw ReaderWriterAt, area Area, offset, size uint64) ([]byte, error) {
	if err := validateRingPosition(area, offset, size); err != nil {
		return nil, err
	}

	blob := make([]byte, size)
	tail := area.SizeBytes - offset
	firstChunk := size
	if firstChunk > tail {
		firstChunk = tail
	}

	absStart := int64(area.OffsetBytes + offset)
	if _, err := rw.ReadAt(blob[:firstChunk], absStart); err != nil {
		return nil, &merrors.Io{Path: "mda", Cause: err}
	}

	if firstChunk < size {
		absWrap := int64(area.OffsetBytes + HeaderSize)
		if _, err := rw.ReadAt(blob[firstChunk:], absWrap); err != nil {
			return nil, &merrors.Io{Path: "mda", Cause: err}
		}
	}

	return blob, nil
}

// writeRing writes blob starting at area.OffsetBytes+offset, wrapping
// back to area.OffsetBytes+512 if it would otherwise run past
// area.SizeBytes.
func writeRing(rw ReaderWriterAt, area Area, offset uint64, blob []byte) error {
	tail := area.SizeBytes - offset
	firstChunk := uint64(len(blob))
	if firstChunk > tail {
		firstChunk = tail
	}

	absStart := int64(area.OffsetBytes + offset)
	if _, err := rw.WriteAt(blob[:firstChunk], absStart); err != nil {
		return &merrors.Io{Path: "mda", Cause: err}
	}

	if firstChunk < uint64(len(blob)) {
		absWrap := int64(area.OffsetBytes + HeaderSize)
		if _, err := rw.WriteAt(blob[firstChunk:], absWrap); err != nil {
			return &merrors.Io{Path: "mda", Cause: err}
		}
	}

	return nil
}

// nextRingStart computes where the next blob should be placed, per
// spec.md §4.4 step 1: align the end of the previous blob up to a sector
// boundary, wrap it modulo the area size, and if that lands at or before
// the header sector, skip forward to byte 512 — the header occupies
// sector 0 and is never available for payload placement.
func nextRingStart(area Area, prev RawLocn) uint64 {
	end := prev.Offset + prev.Size
	aligned := util.AlignUp(end, SectorSize) % area.SizeBytes
	if aligned < HeaderSize {
		return HeaderSize
	}

	return aligned
}

// Write implements spec.md §4.4's write discipline: compute the next ring
// position, write the blob (wrapping if needed), then rewrite the header
// with a RawLocn pointing at it. Data is written before the header's
// pointer swap, so a crash mid-write leaves the previous generation intact
// and readable: the old RawLocn is untouched until the header rewrite.
func Write(rw ReaderWriterAt, area Area, blob []byte) error {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := rw.ReadAt(hdrBuf, int64(area.OffsetBytes)); err != nil {
		return &merrors.Io{Path: "mda", Cause: err}
	}

	hdr, err := ParseHeader(hdrBuf, area)
	if err != nil {
		return err
	}

	// The blob written always carries a trailing NUL, per spec.md §4.4
	// step 3.
	withNUL := append(append([]byte(nil), blob...), 0)
	capacity := area.SizeBytes - HeaderSize
	if uint64(len(withNUL)) > capacity {
		return &merrors.NoSpace{Requested: uint64(len(withNUL)), Available: capacity}
	}

	start := nextRingStart(area, hdr.Live)

	if err := writeRing(rw, area, start, withNUL); err != nil {
		return err
	}

	crc := util.CRC32(withNUL)
	hdr.Live = RawLocn{Offset: start, Size: uint64(len(withNUL)), CRC: crc}

	newHdrBuf := WriteHeader(hdr)
	if _, err := rw.WriteAt(newHdrBuf, int64(area.OffsetBytes)); err != nil {
		return &merrors.Io{Path: "mda", Cause: err}
	}

	return nil
}

// InitializeHeader renders a fresh, empty MDA header for area: no live
// RawLocn yet, CRC computed over the zeroed body.
func InitializeHeader(area Area) []byte {
	return WriteHeader(&Header{AbsoluteOffset: area.OffsetBytes, Size: area.SizeBytes})
}
