// Package raster implements GVRS's builder/opener and element-access
// layer: the pieces that tie primary I/O, the tile directory, the
// file-space manager, the tile cache, and the codec registry together
// into one open raster handle. Grounded on the teacher's header/
// specification-record shape (internal/pmtiles/header.go's
// Serialize/DeserializeHeader pair) generalized from a fixed 127-byte
// PMTiles header into GVRS's variable-length specification block, which
// must additionally describe an open-ended list of typed elements.
package raster

import (
	"fmt"
	"math"

	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

// ElementType identifies the on-disk representation of one element.
type ElementType byte

const (
	// TypeInt is a plain 4-byte signed integer.
	TypeInt ElementType = 1
	// TypeShort is a 2-byte signed integer, padded to 4 bytes in tile
	// layout (spec.md §3).
	TypeShort ElementType = 2
	// TypeFloat is a 4-byte IEEE-754 single.
	TypeFloat ElementType = 3
	// TypeIntCodedFloat stores a 4-byte integer i, presented as
	// v = i/scale + offset, with NaN <-> INT32_MIN.
	TypeIntCodedFloat ElementType = 4
)

func (t ElementType) String() string {
	switch t {
	case TypeInt:
		return "Int"
	case TypeShort:
		return "Short"
	case TypeFloat:
		return "Float"
	case TypeIntCodedFloat:
		return "IntCodedFloat"
	default:
		return fmt.Sprintf("ElementType(%d)", byte(t))
	}
}

// typeSize returns the element's natural storage width in bytes
// (Short's tile-layout padding to 4 bytes is handled by dataSize, not
// here).
func (t ElementType) typeSize() int {
	switch t {
	case TypeShort:
		return 2
	default:
		return 4
	}
}

// IntFillSentinel is the reserved fill value meaning "no data" for
// integer-valued elements, shared with IntCodedFloat's NaN encoding.
const IntFillSentinel = int32(math.MinInt32)

// Element describes one named typed channel present in every tile.
type Element struct {
	Name        string
	Type        ElementType
	Continuous  bool
	Label       string
	Description string
	Unit        string

	UnitsToMeters float64

	// Int/Short range and fill.
	MinInt  int32
	MaxInt  int32
	FillInt int32

	// Float range and fill.
	MinFloat  float32
	MaxFloat  float32
	FillFloat float32

	// IntCodedFloat parameters: v = i/Scale + Offset.
	Scale     float64
	Offset    float64
	MinICF    int32
	MaxICF    int32
	FillICF   int32
	codecName string // resolved at raster open time from the codec index byte

	dataOffset int // byte offset of this element's sub-array within a tile
	nCells     int // nRowsInTile * nColsInTile, set when attached to a raster
}

// DataSize returns the element's contribution to a tile's byte size,
// rounded up to a 4-byte boundary per spec.md §3.
func (e *Element) DataSize() int {
	return roundUp4(e.typeSizeForLayout() * e.nCells)
}

func (e *Element) typeSizeForLayout() int {
	if e.Type == TypeShort {
		return 4 // padded to 4 bytes in tile layout
	}
	return e.Type.typeSize()
}

func roundUp4(n int) int {
	if rem := n % 4; rem != 0 {
		n += 4 - rem
	}
	return n
}

// validate checks an element's invariants per spec.md §3: valid name,
// min <= max for integer forms, nonzero non-NaN scale/offset for ICF.
func (e *Element) validate() error {
	if !gio.ValidIdentifier(e.Name) {
		return fmt.Errorf("%w: element name %q", ErrBadElementSpec, e.Name)
	}
	switch e.Type {
	case TypeInt, TypeShort:
		if e.MinInt > e.MaxInt {
			return fmt.Errorf("%w: element %q has min %d > max %d", ErrBadElementSpec, e.Name, e.MinInt, e.MaxInt)
		}
		if e.Type == TypeShort {
			if e.MinInt < math.MinInt16 || e.MaxInt > math.MaxInt16 {
				return fmt.Errorf("%w: Short element %q range exceeds int16", ErrBadElementSpec, e.Name)
			}
		}
	case TypeFloat:
		if e.MinFloat > e.MaxFloat {
			return fmt.Errorf("%w: element %q has min %g > max %g", ErrBadElementSpec, e.Name, e.MinFloat, e.MaxFloat)
		}
	case TypeIntCodedFloat:
		if e.Scale == 0 || math.IsNaN(e.Scale) || math.IsNaN(e.Offset) {
			return fmt.Errorf("%w: element %q has invalid scale/offset", ErrBadICFParameters, e.Name)
		}
		if e.MinICF > e.MaxICF {
			return fmt.Errorf("%w: element %q has iMin %d > iMax %d", ErrBadICFParameters, e.Name, e.MinICF, e.MaxICF)
		}
	default:
		return fmt.Errorf("%w: unknown element type %d", ErrBadElementSpec, e.Type)
	}
	return nil
}

// floatFromInt converts an IntCodedFloat's stored integer to its
// presented value, honoring the NaN <-> INT32_MIN convention.
func (e *Element) floatFromInt(i int32) float64 {
	if i == IntFillSentinel {
		return math.NaN()
	}
	return float64(i)/e.Scale + e.Offset
}

// intFromFloat is the inverse of floatFromInt, rounding to the nearest
// integer code.
func (e *Element) intFromFloat(v float64) int32 {
	if math.IsNaN(v) {
		return IntFillSentinel
	}
	return int32(math.Round((v - e.Offset) * e.Scale))
}

// range64 reports the element's declared min/max/fill as float64, for
// diagnostic display regardless of the element's underlying type.
func (e *Element) range64() (min, max, fill float64) {
	switch e.Type {
	case TypeFloat:
		return float64(e.MinFloat), float64(e.MaxFloat), float64(e.FillFloat)
	case TypeIntCodedFloat:
		return e.floatFromInt(e.MinICF), e.floatFromInt(e.MaxICF), e.floatFromInt(e.FillICF)
	default:
		return float64(e.MinInt), float64(e.MaxInt), float64(e.FillInt)
	}
}
