// Package tiledir implements GVRS's tile directory: a dense, row-major
// array mapping (tileRow, tileCol) to a tile record's file offset. Unlike
// the teacher's pmtiles directory — a sparse, delta-varint, gzip-compressed
// structure built for a web-served pyramid of immutable tiles — a GVRS
// raster's tile grid is fixed in size at creation and mutated in place, so
// the directory is a flat array indexed by tile position rather than a
// sorted, run-length-optimized entry list. The dense-array shape is
// grounded on pmtiles.Entry's offset/length pairing generalized from a
// sparse list to one slot per tile position; the two storage widths below
// mirror serializeDirectory's habit of choosing a narrow on-disk
// representation (varints) when the data permits it.
package tiledir

import (
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

// Format selects how offsets are packed on disk.
type Format byte

const (
	// Format32 packs each offset as a uint32 count of 8-byte units
	// (offset = value<<3), covering files up to 32 GiB.
	Format32 Format = 0
	// Format64 packs each offset as a raw uint64 byte offset, for files
	// too large for the 32-bit form.
	Format64 Format = 1
)

// maxFormat32Offset is the largest byte offset Format32 can represent:
// (2^32-1) units of 8 bytes.
const maxFormat32Offset = uint64(0xFFFFFFFF) << 3

// Directory is a dense grid of tile offsets. A zero offset means the
// tile at that grid position has never been written (design-level
// NotPopulated).
type Directory struct {
	format Format
	row0   int // first tile row covered
	col0   int // first tile column covered
	nRows  int // number of tile rows covered
	nCols  int // number of tile columns covered

	iOffsets []uint32 // used when format == Format32
	lOffsets []uint64 // used when format == Format64
}

// New creates a directory covering nRows x nCols tiles starting at
// (row0, col0), using format to choose the on-disk packing.
func New(format Format, row0, col0, nRows, nCols int) (*Directory, error) {
	if nRows <= 0 || nCols <= 0 {
		return nil, fmt.Errorf("tiledir: non-positive dimensions %dx%d", nRows, nCols)
	}
	d := &Directory{format: format, row0: row0, col0: col0, nRows: nRows, nCols: nCols}
	switch format {
	case Format32:
		d.iOffsets = make([]uint32, nRows*nCols)
	case Format64:
		d.lOffsets = make([]uint64, nRows*nCols)
	default:
		return nil, fmt.Errorf("tiledir: unknown format %d", format)
	}
	return d, nil
}

// Format reports which storage width this directory uses.
func (d *Directory) Format() Format { return d.format }

// Bounds returns the tile-grid rectangle this directory covers.
func (d *Directory) Bounds() (row0, col0, nRows, nCols int) {
	return d.row0, d.col0, d.nRows, d.nCols
}

func (d *Directory) index(tileRow, tileCol int) (int, error) {
	r := tileRow - d.row0
	c := tileCol - d.col0
	if r < 0 || r >= d.nRows || c < 0 || c >= d.nCols {
		return 0, fmt.Errorf("tiledir: tile (%d,%d) outside directory bounds", tileRow, tileCol)
	}
	return r*d.nCols + c, nil
}

// Offset returns the file offset recorded for (tileRow, tileCol), or 0 if
// the tile has not been populated. An out-of-bounds position is an error
// (design-level COORDINATE_OUT_OF_BOUNDS); a populated-but-zero offset
// cannot occur because offset 0 always falls inside the file header.
func (d *Directory) Offset(tileRow, tileCol int) (uint64, error) {
	idx, err := d.index(tileRow, tileCol)
	if err != nil {
		return 0, err
	}
	switch d.format {
	case Format32:
		return uint64(d.iOffsets[idx]) << 3, nil
	default:
		return d.lOffsets[idx], nil
	}
}

// SetOffset records the file offset for (tileRow, tileCol). offset must be
// a multiple of 8 (the record-alignment invariant every tile record
// observes); Format32 additionally requires it fit in 32 bits of 8-byte
// units.
func (d *Directory) SetOffset(tileRow, tileCol int, offset uint64) error {
	idx, err := d.index(tileRow, tileCol)
	if err != nil {
		return err
	}
	if offset%8 != 0 {
		return fmt.Errorf("tiledir: offset %d is not 8-byte aligned", offset)
	}
	switch d.format {
	case Format32:
		if offset > maxFormat32Offset {
			return fmt.Errorf("tiledir: offset %d exceeds the 32-bit directory's range; open with Format64", offset)
		}
		d.iOffsets[idx] = uint32(offset >> 3)
	default:
		d.lOffsets[idx] = offset
	}
	return nil
}

// IsPopulated reports whether a tile has ever been written.
func (d *Directory) IsPopulated(tileRow, tileCol int) (bool, error) {
	off, err := d.Offset(tileRow, tileCol)
	if err != nil {
		return false, err
	}
	return off != 0, nil
}

// headerFieldBytes is the fixed-size framing preceding the offset array:
// format, three reserved alignment bytes, row0, col0, nRows, nCols (each a
// signed 32-bit value), matching the width of the raster specification
// block's other grid-dimension fields (internal/raster).
const headerFieldBytes = 1 + 3 + 4*4

// WriteTo serializes the directory (header plus offset array) into buf.
func (d *Directory) WriteTo(buf *gio.Buffer) {
	buf.PutByte(byte(d.format))
	buf.PutByte(0)
	buf.PutByte(0)
	buf.PutByte(0)
	buf.PutInt32(int32(d.row0))
	buf.PutInt32(int32(d.col0))
	buf.PutInt32(int32(d.nRows))
	buf.PutInt32(int32(d.nCols))
	switch d.format {
	case Format32:
		for _, v := range d.iOffsets {
			buf.PutUint32(v)
		}
	default:
		for _, v := range d.lOffsets {
			buf.PutUint64(v)
		}
	}
}

// ReadFrom parses a directory previously written by WriteTo.
func ReadFrom(r *gio.Reader) (*Directory, error) {
	formatByte, err := r.GetByte()
	if err != nil {
		return nil, fmt.Errorf("tiledir: reading format: %w", err)
	}
	if _, err := r.GetByte(); err != nil {
		return nil, err
	}
	if _, err := r.GetByte(); err != nil {
		return nil, err
	}
	if _, err := r.GetByte(); err != nil {
		return nil, err
	}
	row0, err := r.GetInt32()
	if err != nil {
		return nil, fmt.Errorf("tiledir: reading row0: %w", err)
	}
	col0, err := r.GetInt32()
	if err != nil {
		return nil, fmt.Errorf("tiledir: reading col0: %w", err)
	}
	nRows, err := r.GetInt32()
	if err != nil {
		return nil, fmt.Errorf("tiledir: reading nRows: %w", err)
	}
	nCols, err := r.GetInt32()
	if err != nil {
		return nil, fmt.Errorf("tiledir: reading nCols: %w", err)
	}
	d, err := New(Format(formatByte), int(row0), int(col0), int(nRows), int(nCols))
	if err != nil {
		return nil, err
	}
	n := int(nRows) * int(nCols)
	switch d.format {
	case Format32:
		for i := 0; i < n; i++ {
			v, err := r.GetUint32()
			if err != nil {
				return nil, fmt.Errorf("tiledir: reading offset %d: %w", i, err)
			}
			d.iOffsets[i] = v
		}
	default:
		for i := 0; i < n; i++ {
			v, err := r.GetUint64()
			if err != nil {
				return nil, fmt.Errorf("tiledir: reading offset %d: %w", i, err)
			}
			d.lOffsets[i] = v
		}
	}
	return d, nil
}

// SerializedSize returns the exact byte length WriteTo will produce.
func (d *Directory) SerializedSize() int {
	n := d.nRows * d.nCols
	switch d.format {
	case Format32:
		return headerFieldBytes + 4*n
	default:
		return headerFieldBytes + 8*n
	}
}
