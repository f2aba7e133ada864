package util

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// hyphenPositions are the byte offsets (into the 32-char raw UUID) after
// which a hyphen is inserted for display, per LVM2's non-RFC-4122 grouping.
var hyphenPositions = [...]int{6, 10, 14, 18, 22, 26}

// HyphenateUUID inserts hyphens into a 32-character raw UUID string at
// positions 6, 10, 14, 18, 22, 26, producing LVM2's display form
// "XXXXXX-XXXX-XXXX-XXXX-XXXX-XXXX-XXXXXX". raw must be exactly 32 bytes.
func HyphenateUUID(raw string) (string, error) {
	if len(raw) != 32 {
		return "", fmt.Errorf("util.HyphenateUUID: raw UUID must be 32 characters, got %d", len(raw))
	}

	out := make([]byte, 0, 32+len(hyphenPositions))
	last := 0
	for _, pos := range hyphenPositions {
		out = append(out, raw[last:pos]...)
		out = append(out, '-')
		last = pos
	}

	out = append(out, raw[last:]...)
	return string(out), nil
}

// RandomSource supplies the 128 bits of entropy a new PV/LV/VG id is built
// from. The entropy source itself is an external collaborator (spec §1);
// this interface is the seam tests substitute a fixed-byte fixture into.
type RandomSource interface {
	Random128() [16]byte
}

// defaultRandomSource is the ambient default: github.com/google/uuid backed
// by crypto/rand.
type defaultRandomSource struct{}

// Random128 returns 16 random bytes via uuid.New(), which draws from a
// CSPRNG. uuid.New() builds a version-4 UUID, so its RFC-4122 version and
// variant bits are set; they are kept as-is in the plain-hex-string ids.
func (defaultRandomSource) Random128() [16]byte {
	return [16]byte(uuid.New())
}

// DefaultRandomSource is the RandomSource used when none is injected.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// NewRawUUID draws 128 bits from src and renders them as a 32-character
// lowercase hex string, the raw (unhyphenated) form PV/LV/VG ids are stored
// and compared in.
func NewRawUUID(src RandomSource) string {
	b := src.Random128()
	return hex.EncodeToString(b[:])
}
