// Package m32 implements the variable-length signed-integer symbol
// stream the predictors (internal/predict) use to carry residuals into
// an entropy-coded codec. Small magnitudes — the common case for
// predictor residuals — are packed into a handful of bits; rare large
// residuals escape to a raw 32-bit form instead of blowing up every
// other symbol's width.
//
// There is no direct teacher analogue for a symbol coder; the shape
// (small-value fast path, length-prefixed escape for the rest) mirrors
// the varint/escape discipline in pmtiles.serializeDirectory, which
// favors small deltas (binary.PutUvarint) and never special-cases large
// ones beyond letting the varint grow.
package m32

import (
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/bitio"
)

// Symbol group tags. A 2-bit tag selects how many more bits follow.
const (
	tagZero   = 0 // value 0, no further bits
	tagShort  = 1 // 8-bit signed value follows (zig-zag)
	tagMedium = 2 // 16-bit signed value follows (zig-zag)
	tagEscape = 3 // raw 32-bit signed value follows
)

// zigzag maps a signed value to an unsigned one so small magnitudes in
// either direction encode compactly: 0,-1,1,-2,2,... -> 0,1,2,3,4,...
func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// Encoder appends M32 symbols to a bitio.Output in emit order.
type Encoder struct {
	out *bitio.Output
}

// NewEncoder wraps out for symbol emission.
func NewEncoder(out *bitio.Output) *Encoder {
	return &Encoder{out: out}
}

// PutSymbol emits one signed residual.
func (e *Encoder) PutSymbol(v int32) {
	z := zigzagEncode(int64(v))
	switch {
	case z == 0:
		e.out.PutBits(tagZero, 2)
	case z <= 0xFF:
		e.out.PutBits(tagShort, 2)
		e.out.PutBits(uint32(z), 8)
	case z <= 0xFFFF:
		e.out.PutBits(tagMedium, 2)
		e.out.PutBits(uint32(z), 16)
	default:
		e.out.PutBits(tagEscape, 2)
		e.out.PutBits(uint32(v), 32)
	}
}

// Decoder consumes M32 symbols from a bitio.Input in the same order
// they were produced.
type Decoder struct {
	in *bitio.Input
}

// NewDecoder wraps in for symbol consumption.
func NewDecoder(in *bitio.Input) *Decoder {
	return &Decoder{in: in}
}

// GetSymbol reads and returns the next signed residual.
func (d *Decoder) GetSymbol() (int32, error) {
	tag, err := d.in.GetBits(2)
	if err != nil {
		return 0, fmt.Errorf("m32: reading tag: %w", err)
	}
	switch tag {
	case tagZero:
		return 0, nil
	case tagShort:
		v, err := d.in.GetBits(8)
		if err != nil {
			return 0, fmt.Errorf("m32: reading short payload: %w", err)
		}
		return int32(zigzagDecode(uint64(v))), nil
	case tagMedium:
		v, err := d.in.GetBits(16)
		if err != nil {
			return 0, fmt.Errorf("m32: reading medium payload: %w", err)
		}
		return int32(zigzagDecode(uint64(v))), nil
	default: // tagEscape
		v, err := d.in.GetBits(32)
		if err != nil {
			return 0, fmt.Errorf("m32: reading escape payload: %w", err)
		}
		return int32(v), nil
	}
}
