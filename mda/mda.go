// Package mda implements the metadata-area circular log from spec.md §4.4:
// the 512-byte MDA header, RawLocn pointer records, and the wrap-around
// write/read discipline that lets a reader racing a writer always observe
// either the pre-commit or the post-commit generation, never a torn frame.
package mda

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/util"
)

// HeaderSize is the fixed 512-byte MDA header size.
const HeaderSize = 512

// SectorSize is the alignment unit the write discipline rounds to.
const SectorSize = 512

// Magic is the fixed 16-byte MDA header magic.
const Magic = "\x20LVM2\x20x[5A%r0N*>"

// Version is the only MDA header version this package understands.
const Version = 1

// rawLocnSize is the on-disk size of one RawLocn entry.
const rawLocnSize = 24

// RawLocn points at the live text blob inside an MDA's byte ring: its
// offset within the area, size, CRC, and an ignore flag. An Offset of
// zero is the sentinel "slot empty".
type RawLocn struct {
	Offset  uint64
	Size    uint64
	CRC     uint32
	Ignored bool
}

// flagIgnored is bit 0 of the on-disk RawLocn flags field (RawLocn.Ignored).
const flagIgnored = 1

// Header is the parsed 512-byte MDA header.
type Header struct {
	AbsoluteOffset uint64
	Size           uint64
	// Live is slot 0, the only slot this package ever populates. Slot 1
	// (precommit) is never written here; per spec.md §9 it may be read
	// past but must never be written.
	Live RawLocn
}

// Area describes the PvArea an MDA lives in, the self-consistency check
// target for Header.AbsoluteOffset/Size (spec.md §4.4 read discipline
// step 1).
type Area struct {
	OffsetBytes uint64
	SizeBytes   uint64
}

// ReaderWriterAt is the narrow I/O seam this package needs: a PV's
// backing device or file, opened once by the caller and passed in here so
// this package never owns file lifetime.
type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// ParseHeader decodes and validates a 512-byte MDA header against the
// PvArea it claims to live in.
func ParseHeader(buf []byte, area Area) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, &merrors.Inconsistent{Detail: "buffer shorter than MDA header size"}
	}

	wantCRC := binary.LittleEndian.Uint32(buf[0:4])
	gotCRC := util.CRC32(buf[4:HeaderSize])
	if gotCRC != wantCRC {
		return nil, &merrors.Corrupt{Where: merrors.WhereMda, Detail: fmt.Sprintf("header CRC mismatch: have %#08x, want %#08x", gotCRC, wantCRC)}
	}

	if string(buf[4:20]) != Magic {
		return nil, &merrors.Corrupt{Where: merrors.WhereMda, Detail: "bad MDA magic"}
	}

	version := binary.LittleEndian.Uint32(buf[20:24])
	if version != Version {
		return nil, &merrors.Corrupt{Where: merrors.WhereMda, Detail: fmt.Sprintf("unsupported MDA version %d", version)}
	}

	absOffset := binary.LittleEndian.Uint64(buf[24:32])
	size := binary.LittleEndian.Uint64(buf[32:40])

	if absOffset != area.OffsetBytes || size != area.SizeBytes {
		return nil, &merrors.Inconsistent{Detail: fmt.Sprintf("MDA self-reports (offset=%d, size=%d), PvArea says (offset=%d, size=%d)", absOffset, size, area.OffsetBytes, area.SizeBytes)}
	}

	locn, err := parseRawLocn(buf[40:])
	if err != nil {
		return nil, err
	}

	return &Header{AbsoluteOffset: absOffset, Size: size, Live: locn}, nil
}

func parseRawLocn(buf []byte) (RawLocn, error) {
	if len(buf) < rawLocnSize {
		return RawLocn{}, &merrors.Inconsistent{Detail: "buffer too short for a RawLocn entry"}
	}

	offset := binary.LittleEndian.Uint64(buf[0:8])
	size := binary.LittleEndian.Uint64(buf[8:16])
	crc := binary.LittleEndian.Uint32(buf[16:20])
	flags := binary.LittleEndian.Uint32(buf[20:24])

	return RawLocn{Offset: offset, Size: size, CRC: crc, Ignored: flags&flagIgnored != 0}, nil
}

// WriteHeader renders h into its 512-byte on-disk form, with slot 1 left
// as an all-zero (and therefore "empty") entry, and the header CRC
// computed last over everything after the CRC field itself.
func WriteHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[4:20], Magic)
	binary.LittleEndian.PutUint32(buf[20:24], Version)
	binary.LittleEndian.PutUint64(buf[24:32], h.AbsoluteOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.Size)

	flags := uint32(0)
	if h.Live.Ignored {
		flags = flagIgnored
	}

	binary.LittleEndian.PutUint64(buf[40:48], h.Live.Offset)
	binary.LittleEndian.PutUint64(buf[48:56], h.Live.Size)
	binary.LittleEndian.PutUint32(buf[56:60], h.Live.CRC)
	binary.LittleEndian.PutUint32(buf[60:64], flags)
	// Terminator entry (zero offset) follows at buf[64:88], already zero.

	crc := util.CRC32(buf[4:HeaderSize])
	binary.LittleEndian.PutUint32(buf[0:4], crc)

	return buf
}
