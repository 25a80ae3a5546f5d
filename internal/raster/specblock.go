// Header and specification-block serialization, per spec.md §6. The
// shape — a small fixed preamble of magic/version/UUID/timestamps
// followed by a variable-length body, checksummed and padded to an
// 8-byte boundary — generalizes the teacher's fixed 127-byte
// Header.Serialize (internal/pmtiles/header.go) into a record whose
// body length depends on the number of elements and codecs a raster
// declares.
package raster

import (
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

// magic is the 12-byte file identifier, matching spec.md §6.
var magic = [12]byte{'g', 'v', 'r', 's', ' ', 'r', 'a', 's', 't', 'e', 'r', 0}

const (
	versionMajor = 1
	versionMinor = 4
	recordTypeHeader byte = 1
)

// header holds the fixed-preamble fields of spec.md §6 (bytes 0..103
// before the specification block begins).
type header struct {
	uuidHi, uuidLo       uint64
	openTimeMillis       [2]int64
	levelCount           int16
	tileDirOffsetFieldAt int64 // absolute offset of the tileDirOffset field, for later patching
	tileDirOffset        int64

	// metaDirOffset/fileSpaceOffset occupy the two "reserved longs" spec.md
	// §6 leaves at bytes 88..103; the header layout has no dedicated field
	// for the metadata directory or free-space record offsets, so these
	// two reserved longs carry them rather than new header bytes.
	metaDirOffsetFieldAt  int64
	metaDirOffset         int64
	fileSpaceOffsetFieldAt int64
	fileSpaceOffset       int64
}

// specification holds the variable-length body of spec.md §6: raster
// geometry, affine matrices, element specs, and codec names.
type specification struct {
	nRows, nCols             int32
	nRowsInTile, nColsInTile int32
	checksumEnabled          bool
	rasterSpaceCode          byte
	geometry                 *Geometry
	elements                 []*Element
	codecNames               []string
	productLabel             string
}

// writeHeaderAndSpec serializes the header preamble and specification
// block into buf, padded to a multiple of 4 and followed by the CRC-32C
// when checksumEnabled. Returns the byte position of the tileDirOffset
// field within buf.
func writeHeaderAndSpec(buf *gio.Buffer, h *header, s *specification, checksumEnabled bool) (tileDirOffsetPos int, err error) {
	buf.PutBytes(magic[:])
	buf.PutByte(versionMajor)
	buf.PutByte(versionMinor)
	buf.PutByte(0) // reserved
	buf.PutByte(0) // reserved

	lengthFieldPos := buf.Len()
	buf.PutInt32(0) // record length, patched below
	buf.PutByte(recordTypeHeader)
	buf.PutByte(0)
	buf.PutByte(0)
	buf.PutByte(0)

	buf.PutUint64(h.uuidHi)
	buf.PutUint64(h.uuidLo)
	buf.PutInt64(h.openTimeMillis[0])
	buf.PutInt64(h.openTimeMillis[1])
	buf.PutInt64(0) // reserved long
	buf.PutInt64(0) // reserved long

	buf.PutInt16(h.levelCount)
	for i := 0; i < 6; i++ {
		buf.PutByte(0) // reserved
	}

	tileDirOffsetPos = buf.Len()
	buf.PutInt64(h.tileDirOffset)

	h.metaDirOffsetFieldAt = int64(buf.Len())
	buf.PutInt64(h.metaDirOffset)
	h.fileSpaceOffsetFieldAt = int64(buf.Len())
	buf.PutInt64(h.fileSpaceOffset)

	if err := writeSpecification(buf, s); err != nil {
		return 0, err
	}

	buf.PadToMultipleOf4()
	if checksumEnabled {
		buf.AppendChecksum()
	} else {
		buf.PutUint32(0)
	}
	for buf.Len()%8 != 0 {
		buf.PutByte(0)
	}

	recordLength := int32(buf.Len())
	patchInt32(buf, lengthFieldPos, recordLength)

	return tileDirOffsetPos, nil
}

// patchInt32 overwrites a previously written little-endian int32 field
// in place.
func patchInt32(buf *gio.Buffer, pos int, v int32) {
	b := buf.Bytes()
	b[pos] = byte(v)
	b[pos+1] = byte(v >> 8)
	b[pos+2] = byte(v >> 16)
	b[pos+3] = byte(v >> 24)
}

func patchInt64(b []byte, pos int, v int64) {
	for i := 0; i < 8; i++ {
		b[pos+i] = byte(v >> (8 * i))
	}
}

func writeSpecification(buf *gio.Buffer, s *specification) error {
	buf.PutInt32(s.nRows)
	buf.PutInt32(s.nCols)
	buf.PutInt32(s.nRowsInTile)
	buf.PutInt32(s.nColsInTile)
	buf.PutInt32(0)
	buf.PutInt32(0)

	buf.PutBool(s.checksumEnabled)
	buf.PutByte(s.rasterSpaceCode)
	buf.PutByte(byte(s.geometry.System))
	for i := 0; i < 5; i++ {
		buf.PutByte(0)
	}

	buf.PutFloat64(s.geometry.X0)
	buf.PutFloat64(s.geometry.Y0)
	buf.PutFloat64(s.geometry.X1)
	buf.PutFloat64(s.geometry.Y1)
	buf.PutFloat64(s.geometry.CellSizeX)
	buf.PutFloat64(s.geometry.CellSizeY)

	writeAffine(buf, s.geometry.m2r)
	writeAffine(buf, s.geometry.r2m)

	buf.PutInt32(int32(len(s.elements)))
	for _, e := range s.elements {
		if err := writeElement(buf, e); err != nil {
			return err
		}
	}

	buf.PutInt32(int32(len(s.codecNames)))
	for _, name := range s.codecNames {
		if err := buf.PutIdentifier(name); err != nil {
			return fmt.Errorf("raster: writing codec name %q: %w", name, err)
		}
	}

	if err := buf.PutString(s.productLabel); err != nil {
		return fmt.Errorf("raster: writing product label: %w", err)
	}
	return nil
}

func writeAffine(buf *gio.Buffer, m affine) {
	buf.PutFloat64(m.a)
	buf.PutFloat64(m.b)
	buf.PutFloat64(m.c)
	buf.PutFloat64(m.d)
	buf.PutFloat64(m.e)
	buf.PutFloat64(m.f)
}

func readAffine(r *gio.Reader) (affine, error) {
	var m affine
	var err error
	vals := make([]float64, 6)
	for i := range vals {
		vals[i], err = r.GetFloat64()
		if err != nil {
			return m, fmt.Errorf("raster: reading affine component %d: %w", i, err)
		}
	}
	m.a, m.b, m.c, m.d, m.e, m.f = vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	return m, nil
}

func writeElement(buf *gio.Buffer, e *Element) error {
	buf.PutByte(byte(e.Type))
	buf.PutBool(e.Continuous)
	for i := 0; i < 6; i++ {
		buf.PutByte(0)
	}
	if err := buf.PutIdentifier(e.Name); err != nil {
		return fmt.Errorf("raster: writing element name %q: %w", e.Name, err)
	}
	buf.PadToMultipleOf4()

	switch e.Type {
	case TypeInt, TypeShort:
		buf.PutInt32(e.MinInt)
		buf.PutInt32(e.MaxInt)
		buf.PutInt32(e.FillInt)
	case TypeFloat:
		buf.PutFloat32(e.MinFloat)
		buf.PutFloat32(e.MaxFloat)
		buf.PutFloat32(e.FillFloat)
	case TypeIntCodedFloat:
		buf.PutFloat64(e.Scale)
		buf.PutFloat64(e.Offset)
		buf.PutInt32(e.MinICF)
		buf.PutInt32(e.MaxICF)
		buf.PutInt32(e.FillICF)
	}
	buf.PutFloat64(e.UnitsToMeters)

	if err := buf.PutString(e.Label); err != nil {
		return err
	}
	if err := buf.PutString(e.Description); err != nil {
		return err
	}
	if err := buf.PutString(e.Unit); err != nil {
		return err
	}
	buf.PadToMultipleOf4()
	return nil
}

func readElement(r *gio.Reader) (*Element, error) {
	typeByte, err := r.GetByte()
	if err != nil {
		return nil, fmt.Errorf("raster: reading element type: %w", err)
	}
	e := &Element{Type: ElementType(typeByte)}
	e.Continuous, err = r.GetBool()
	if err != nil {
		return nil, err
	}
	r.Skip(6)
	e.Name, err = r.GetIdentifier()
	if err != nil {
		return nil, fmt.Errorf("raster: reading element name: %w", err)
	}
	r.PadToMultipleOf4()

	switch e.Type {
	case TypeInt, TypeShort:
		if e.MinInt, err = r.GetInt32(); err != nil {
			return nil, err
		}
		if e.MaxInt, err = r.GetInt32(); err != nil {
			return nil, err
		}
		if e.FillInt, err = r.GetInt32(); err != nil {
			return nil, err
		}
	case TypeFloat:
		if e.MinFloat, err = r.GetFloat32(); err != nil {
			return nil, err
		}
		if e.MaxFloat, err = r.GetFloat32(); err != nil {
			return nil, err
		}
		if e.FillFloat, err = r.GetFloat32(); err != nil {
			return nil, err
		}
	case TypeIntCodedFloat:
		if e.Scale, err = r.GetFloat64(); err != nil {
			return nil, err
		}
		if e.Offset, err = r.GetFloat64(); err != nil {
			return nil, err
		}
		if e.MinICF, err = r.GetInt32(); err != nil {
			return nil, err
		}
		if e.MaxICF, err = r.GetInt32(); err != nil {
			return nil, err
		}
		if e.FillICF, err = r.GetInt32(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown element type %d", ErrBadElementSpec, typeByte)
	}
	if e.UnitsToMeters, err = r.GetFloat64(); err != nil {
		return nil, err
	}
	if e.Label, err = r.GetString(); err != nil {
		return nil, err
	}
	if e.Description, err = r.GetString(); err != nil {
		return nil, err
	}
	if e.Unit, err = r.GetString(); err != nil {
		return nil, err
	}
	r.PadToMultipleOf4()
	return e, nil
}

// readHeaderAndSpec parses a record previously written by
// writeHeaderAndSpec, validating the magic and version.
func readHeaderAndSpec(buf []byte) (*header, *specification, error) {
	r := gio.NewReader(buf)
	gotMagic, err := r.GetBytes(12)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading magic: %v", ErrInvalidFile, err)
	}
	for i := range magic {
		if gotMagic[i] != magic[i] {
			return nil, nil, fmt.Errorf("%w: bad magic bytes", ErrInvalidFile)
		}
	}
	major, err := r.GetByte()
	if err != nil {
		return nil, nil, err
	}
	if _, err := r.GetByte(); err != nil { // minor
		return nil, nil, err
	}
	if major != versionMajor {
		return nil, nil, fmt.Errorf("%w: unsupported major version %d", ErrInvalidFile, major)
	}
	r.Skip(2) // reserved

	if _, err := r.GetInt32(); err != nil { // record length
		return nil, nil, err
	}
	recordType, err := r.GetByte()
	if err != nil {
		return nil, nil, err
	}
	if recordType != recordTypeHeader {
		return nil, nil, fmt.Errorf("%w: unexpected record type %d", ErrInvalidFile, recordType)
	}
	r.Skip(3)

	h := &header{}
	if h.uuidHi, err = r.GetUint64(); err != nil {
		return nil, nil, err
	}
	if h.uuidLo, err = r.GetUint64(); err != nil {
		return nil, nil, err
	}
	if h.openTimeMillis[0], err = r.GetInt64(); err != nil {
		return nil, nil, err
	}
	if h.openTimeMillis[1], err = r.GetInt64(); err != nil {
		return nil, nil, err
	}
	r.Skip(16) // two reserved longs

	if h.levelCount, err = r.GetInt16(); err != nil {
		return nil, nil, err
	}
	r.Skip(6)

	h.tileDirOffsetFieldAt = int64(r.Pos())
	if h.tileDirOffset, err = r.GetInt64(); err != nil {
		return nil, nil, err
	}
	h.metaDirOffsetFieldAt = int64(r.Pos())
	if h.metaDirOffset, err = r.GetInt64(); err != nil {
		return nil, nil, err
	}
	h.fileSpaceOffsetFieldAt = int64(r.Pos())
	if h.fileSpaceOffset, err = r.GetInt64(); err != nil {
		return nil, nil, err
	}

	s, err := readSpecification(r)
	if err != nil {
		return nil, nil, err
	}

	if s.checksumEnabled {
		r.PadToMultipleOf4()
		checksumEnd := r.Pos() + 4
		if checksumEnd > len(buf) {
			return nil, nil, fmt.Errorf("%w: header record truncated before checksum", ErrInvalidFile)
		}
		if err := gio.VerifyChecksum(buf[:checksumEnd]); err != nil {
			return nil, nil, fmt.Errorf("%w: header checksum: %v", ErrInvalidFile, err)
		}
	}

	return h, s, nil
}

func readSpecification(r *gio.Reader) (*specification, error) {
	s := &specification{}
	var err error
	if s.nRows, err = r.GetInt32(); err != nil {
		return nil, err
	}
	if s.nCols, err = r.GetInt32(); err != nil {
		return nil, err
	}
	if s.nRowsInTile, err = r.GetInt32(); err != nil {
		return nil, err
	}
	if s.nColsInTile, err = r.GetInt32(); err != nil {
		return nil, err
	}
	r.Skip(8) // two reserved ints

	if s.checksumEnabled, err = r.GetBool(); err != nil {
		return nil, err
	}
	if s.rasterSpaceCode, err = r.GetByte(); err != nil {
		return nil, err
	}
	systemByte, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	r.Skip(5)

	x0, err := r.GetFloat64()
	if err != nil {
		return nil, err
	}
	y0, err := r.GetFloat64()
	if err != nil {
		return nil, err
	}
	x1, err := r.GetFloat64()
	if err != nil {
		return nil, err
	}
	y1, err := r.GetFloat64()
	if err != nil {
		return nil, err
	}
	if _, err := r.GetFloat64(); err != nil { // cellSizeX, recomputed by Geometry.build
		return nil, err
	}
	if _, err := r.GetFloat64(); err != nil { // cellSizeY
		return nil, err
	}

	m2r, err := readAffine(r)
	if err != nil {
		return nil, err
	}
	r2m, err := readAffine(r)
	if err != nil {
		return nil, err
	}

	s.geometry = NewGeometry(CoordSystem(systemByte), x0, y0, x1, y1, int(s.nRows), int(s.nCols))
	s.geometry.m2r = m2r
	s.geometry.r2m = r2m

	nElements, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	s.elements = make([]*Element, nElements)
	for i := range s.elements {
		e, err := readElement(r)
		if err != nil {
			return nil, fmt.Errorf("raster: reading element %d: %w", i, err)
		}
		s.elements[i] = e
	}

	nCodecs, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	s.codecNames = make([]string, nCodecs)
	for i := range s.codecNames {
		name, err := r.GetIdentifier()
		if err != nil {
			return nil, fmt.Errorf("raster: reading codec name %d: %w", i, err)
		}
		s.codecNames[i] = name
	}

	if s.productLabel, err = r.GetString(); err != nil {
		return nil, err
	}
	return s, nil
}
