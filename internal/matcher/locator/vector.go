package locator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// BlockSize is the number of text bytes compared per step.
const BlockSize = 16

// ErrBlockBounds is returned when a block load starts outside the text.
var ErrBlockBounds = errors.New("block load out of range")

// Block is one zero-padded window of text.
type Block [BlockSize]byte

const (
	lo8  = 0x0101010101010101
	hi8  = 0x8080808080808080
	lo7  = 0x7f7f7f7f7f7f7f7f
	addA = 0x3f3f3f3f3f3f3f3f // 0x80 - 'A'
	addZ = 0x2525252525252525 // 0x80 - ('Z' + 1)

	// gathers bit 0 of every byte into the top byte
	gather = 0x0102040810204080
)

// LoadBlock copies up to BlockSize bytes of text starting at off into a
// zero-padded block and reports how many of them are real text.
func LoadBlock(text string, off int) (Block, int, error) {
	var b Block
	if off < 0 || off > len(text) {
		return b, 0, fmt.Errorf("%w: offset %d, length %d", ErrBlockBounds, off, len(text))
	}
	n := copy(b[:], text[off:])
	return b, n, nil
}

// foldLane lowers every ASCII capital of the eight bytes in w.
func foldLane(w uint64) uint64 {
	low := w &^ hi8
	geA := low + addA
	gtZ := low + addZ
	upper := geA &^ gtZ &^ w & hi8
	return w | upper>>2
}

// eqLane sets the high bit of every byte of w equal to the same byte of p.
func eqLane(w, p uint64) uint64 {
	x := w ^ p
	nonZero := (x & lo7) + lo7
	return ^(nonZero | x) & hi8
}

func movemask(m uint64) uint16 {
	return uint16(((m >> 7) * gather) >> 56)
}

// Mask returns the positions of b equal to the folded pattern, limited to
// the first n bytes.
func (b *Block) Mask(folded byte, n int) uint16 {
	p := uint64(folded) * lo8
	lo := foldLane(binary.LittleEndian.Uint64(b[:8]))
	hi := foldLane(binary.LittleEndian.Uint64(b[8:]))
	m := movemask(eqLane(lo, p)) | movemask(eqLane(hi, p))<<8
	return m & uint16(uint32(1)<<uint(n)-1)
}

// Vector scans the text one block at a time.
type Vector struct{}

// LocateChecked is Locate with block load failures surfaced to the caller.
func (Vector) LocateChecked(pattern byte, text string, from int) (Match, bool, error) {
	if from < 0 {
		from = 0
	}
	p := Fold(pattern)
	for off := from; off < len(text); off += BlockSize {
		b, n, err := LoadBlock(text, off)
		if err != nil {
			return Match{}, false, err
		}
		if m := b.Mask(p, n); m != 0 {
			pos := off + bits.TrailingZeros16(m)
			return Match{Pos: pos, WordStart: isWordStart(text, pos)}, true, nil
		}
	}
	return Match{}, false, nil
}

// Locate falls back to a scalar scan if a block cannot be loaded.
func (v Vector) Locate(pattern byte, text string, from int) (Match, bool) {
	m, ok, err := v.LocateChecked(pattern, text, from)
	if err != nil {
		return Scalar{}.Locate(pattern, text, from)
	}
	return m, ok
}
