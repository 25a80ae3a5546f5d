package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gwlucastrig/gvrs-go/internal/codec"
	"github.com/gwlucastrig/gvrs-go/internal/filespace"
	"github.com/gwlucastrig/gvrs-go/internal/gio"
	"github.com/gwlucastrig/gvrs-go/internal/metadir"
	"github.com/gwlucastrig/gvrs-go/internal/tiledir"
	"github.com/gwlucastrig/gvrs-go/internal/tilecache"
)

// Raster is one open GVRS file: header, specification, tile directory,
// file-space manager, metadata directory, and tile cache bound together,
// grounded on the teacher's pmtiles.Reader/Writer pairing a parsed
// Header with the directories/handles it points to.
type Raster struct {
	path     string
	file     *gio.File
	readOnly bool
	closed   bool

	header *header
	spec   *specification

	geometry       *Geometry
	elements       []*Element
	elementsByName map[string]*Element
	tileSize       int // bytes per decoded tile, sum of element.DataSize()
	nRowsOfTiles   int
	nColsOfTiles   int

	codecs *codec.Registry

	tileDir   *tiledir.Directory
	fileSpace *filespace.Manager
	metaDir   *metadir.Directory
	cache     *tilecache.Cache

	metaDirLen   int64
	fileSpaceLen int64
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// attachElements assigns each element its tile-local byte offset and
// cell count, returning the tile's total decoded byte size.
func attachElements(elements []*Element, nRowsInTile, nColsInTile int) int {
	nCells := nRowsInTile * nColsInTile
	offset := 0
	for _, e := range elements {
		e.nCells = nCells
		e.dataOffset = offset
		offset += e.DataSize()
	}
	return offset
}

func elementsByNameOf(elements []*Element) map[string]*Element {
	m := make(map[string]*Element, len(elements))
	for _, e := range elements {
		m[e.Name] = e
	}
	return m
}

// ---- Builder ----

// Builder accumulates a new raster's specification before Create writes
// it to disk, grounded on the teacher's pmtiles.Writer build-then-
// finalize shape (internal/pmtiles/writer.go). It carries a sticky
// error per spec.md §7: once any method fails, the Builder refuses
// further work until a fresh Builder is created.
type Builder struct {
	nRows, nCols             int
	nRowsInTile, nColsInTile int

	system     CoordSystem
	x0, y0     float64
	x1, y1     float64

	checksumEnabled bool
	rasterSpaceCode byte
	productLabel    string

	elements []*Element

	err error
}

// NewBuilder starts a builder for an nRows x nCols raster, defaulting
// the tile dimensions to min(120, dimension) per axis and the
// coordinate system to Cartesian with unit cell size.
func NewBuilder(nRows, nCols int) (*Builder, error) {
	if nRows <= 0 || nCols <= 0 {
		return nil, Wrap(fmt.Errorf("%w: non-positive raster dimensions %dx%d", ErrBadRasterSpecification, nRows, nCols))
	}
	b := &Builder{
		nRows: nRows, nCols: nCols,
		nRowsInTile: minInt(120, nRows),
		nColsInTile: minInt(120, nCols),
		system:      Cartesian,
		x0:          0, y0: 0,
		x1: float64(nCols - 1), y1: float64(nRows - 1),
	}
	return b, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (b *Builder) fail(err error) error {
	if b.err == nil {
		b.err = Wrap(err)
	}
	return b.err
}

// SetTileSize overrides the default tile dimensions.
func (b *Builder) SetTileSize(nRowsInTile, nColsInTile int) error {
	if b.err != nil {
		return b.err
	}
	if nRowsInTile <= 0 || nColsInTile <= 0 || nRowsInTile > b.nRows || nColsInTile > b.nCols {
		return b.fail(fmt.Errorf("%w: tile size %dx%d invalid for raster %dx%d", ErrBadRasterSpecification, nRowsInTile, nColsInTile, b.nRows, b.nCols))
	}
	b.nRowsInTile, b.nColsInTile = nRowsInTile, nColsInTile
	return nil
}

// SetCartesianCoordinates sets the raster's corner coordinates (cell
// centers) in an unspecified Cartesian unit.
func (b *Builder) SetCartesianCoordinates(x0, y0, x1, y1 float64) error {
	if b.err != nil {
		return b.err
	}
	b.system = Cartesian
	b.x0, b.y0, b.x1, b.y1 = x0, y0, x1, y1
	return nil
}

// SetGeographicCoordinates sets the raster's corner coordinates as
// (latitude, longitude) pairs, marking the raster Geographic.
func (b *Builder) SetGeographicCoordinates(lat0, lon0, lat1, lon1 float64) error {
	if b.err != nil {
		return b.err
	}
	if lat0 < -90 || lat0 > 90 || lat1 < -90 || lat1 > 90 {
		return b.fail(fmt.Errorf("%w: latitude out of [-90,90]", ErrBadRasterSpecification))
	}
	b.system = Geographic
	b.x0, b.y0, b.x1, b.y1 = lon0, lat0, lon1, lat1
	return nil
}

// SetChecksumEnabled turns on the header record's CRC-32C check.
func (b *Builder) SetChecksumEnabled(v bool) { b.checksumEnabled = v }

// SetProductLabel attaches a free-form descriptive label to the raster.
func (b *Builder) SetProductLabel(label string) { b.productLabel = label }

func (b *Builder) addElement(e *Element) error {
	if b.err != nil {
		return b.err
	}
	if err := e.validate(); err != nil {
		return b.fail(err)
	}
	for _, existing := range b.elements {
		if existing.Name == e.Name {
			return b.fail(fmt.Errorf("%w: element %q already defined", ErrNameNotUnique, e.Name))
		}
	}
	b.elements = append(b.elements, e)
	return nil
}

// AddElementInt declares an Int element.
func (b *Builder) AddElementInt(name string, minV, maxV, fill int32) error {
	return b.addElement(&Element{Name: name, Type: TypeInt, Continuous: false, MinInt: minV, MaxInt: maxV, FillInt: fill})
}

// AddElementShort declares a Short (int16-range) element.
func (b *Builder) AddElementShort(name string, minV, maxV, fill int32) error {
	return b.addElement(&Element{Name: name, Type: TypeShort, Continuous: false, MinInt: minV, MaxInt: maxV, FillInt: fill})
}

// AddElementFloat declares a Float element.
func (b *Builder) AddElementFloat(name string, minV, maxV, fill float32) error {
	return b.addElement(&Element{Name: name, Type: TypeFloat, Continuous: true, MinFloat: minV, MaxFloat: maxV, FillFloat: fill})
}

// AddElementIntCodedFloat declares an IntCodedFloat element: v = i/scale + offset.
func (b *Builder) AddElementIntCodedFloat(name string, scale, offset float64, minV, maxV, fill int32) error {
	return b.addElement(&Element{Name: name, Type: TypeIntCodedFloat, Continuous: true, Scale: scale, Offset: offset, MinICF: minV, MaxICF: maxV, FillICF: fill})
}

// Create writes a new raster file at path and returns it open for
// writing. Any prior content at path is discarded.
func (b *Builder) Create(path string) (rr *Raster, err error) {
	defer func() { err = Wrap(err) }()
	if b.err != nil {
		return nil, b.err
	}
	if len(b.elements) == 0 {
		return nil, b.fail(fmt.Errorf("%w: raster must declare at least one element", ErrBadRasterSpecification))
	}
	nTiles := int64(ceilDiv(b.nRows, b.nRowsInTile)) * int64(ceilDiv(b.nCols, b.nColsInTile))
	if nTiles > math.MaxInt32 {
		return nil, b.fail(fmt.Errorf("%w: %d tiles exceeds the 2^31-1 tile limit", ErrBadRasterSpecification, nTiles))
	}
	return create(path, b)
}

// ---- lifecycle ----

func create(path string, b *Builder) (*Raster, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: removing existing file %s: %v", ErrFileAccess, path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrFileAccess, path, err)
	}
	gf := gio.NewFile(f)

	geometry := NewGeometry(b.system, b.x0, b.y0, b.x1, b.y1, b.nRows, b.nCols)
	codecs := codec.Default()
	tileSize := attachElements(b.elements, b.nRowsInTile, b.nColsInTile)

	id := uuid.New()
	now := time.Now().UnixMilli()
	h := &header{
		uuidHi:         binary.BigEndian.Uint64(id[0:8]),
		uuidLo:         binary.BigEndian.Uint64(id[8:16]),
		openTimeMillis: [2]int64{now, now},
		levelCount:     1,
	}

	spec := &specification{
		nRows: int32(b.nRows), nCols: int32(b.nCols),
		nRowsInTile: int32(b.nRowsInTile), nColsInTile: int32(b.nColsInTile),
		checksumEnabled: b.checksumEnabled,
		rasterSpaceCode: b.rasterSpaceCode,
		geometry:        geometry,
		elements:        b.elements,
		codecNames:      codecs.Names(),
		productLabel:    b.productLabel,
	}

	// The header record's length depends only on the shape of its
	// variable-length content (element/codec counts, string lengths),
	// never on the offset field *values* it carries, so its length can
	// be measured with placeholder offsets and then written once with
	// the real tileDirOffset already in place.
	sizingBuf := gio.NewBuffer(4096)
	sizingHeader := *h
	if _, err := writeHeaderAndSpec(sizingBuf, &sizingHeader, spec, spec.checksumEnabled); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	h.tileDirOffset = int64(sizingBuf.Len())

	nRowsOfTiles := ceilDiv(b.nRows, b.nRowsInTile)
	nColsOfTiles := ceilDiv(b.nCols, b.nColsInTile)
	dir, err := tiledir.New(tiledir.Format32, 0, 0, nRowsOfTiles, nColsOfTiles)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrBadRasterSpecification, err)
	}

	headerBuf := gio.NewBuffer(sizingBuf.Len())
	if _, err := writeHeaderAndSpec(headerBuf, h, spec, spec.checksumEnabled); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := gf.WriteRecordAt(0, headerBuf.Bytes()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}

	dirBuf := gio.NewBuffer(dir.SerializedSize())
	dir.WriteTo(dirBuf)
	if err := gf.WriteRecordAt(h.tileDirOffset, dirBuf.Bytes()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}

	fileSpaceMgr := filespace.New(h.tileDirOffset + int64(dir.SerializedSize()))
	metaDir := metadir.New()

	r := &Raster{
		path: path, file: gf, readOnly: false,
		header: h, spec: spec, geometry: geometry,
		elements: spec.elements, elementsByName: elementsByNameOf(spec.elements),
		tileSize: tileSize, nRowsOfTiles: nRowsOfTiles, nColsOfTiles: nColsOfTiles,
		codecs: codecs, tileDir: dir, fileSpace: fileSpaceMgr, metaDir: metaDir,
	}
	cache, err := tilecache.New(dir, &tileStore{r: r}, nRowsOfTiles, nColsOfTiles, tileSize, tilecache.Medium.SlotCount(nColsOfTiles))
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrBadRasterSpecification, err)
	}
	r.cache = cache
	return r, nil
}

// Open opens an existing raster file. mode is "r" for read-only or "w"
// for read/write.
func Open(path, mode string) (rr *Raster, err error) {
	defer func() { err = Wrap(err) }()
	readOnly := mode != "w"
	flags := os.O_RDONLY
	if !readOnly {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrFileAccess, path, err)
	}
	gf := gio.NewFile(f)

	prefix, err := gf.ReadRecordAt(0, 24)
	if err != nil {
		gf.Close()
		return nil, fmt.Errorf("%w: reading header prefix: %v", ErrInvalidFile, err)
	}
	recordLength := int32(binary.LittleEndian.Uint32(prefix[16:20]))
	if recordLength < 24 {
		gf.Close()
		return nil, fmt.Errorf("%w: implausible header record length %d", ErrInvalidFile, recordLength)
	}
	full, err := gf.ReadRecordAt(0, int(recordLength))
	if err != nil {
		gf.Close()
		return nil, fmt.Errorf("%w: reading header record: %v", ErrInvalidFile, err)
	}
	h, spec, err := readHeaderAndSpec(full)
	if err != nil {
		gf.Close()
		return nil, err
	}

	tileSize := attachElements(spec.elements, int(spec.nRowsInTile), int(spec.nColsInTile))
	nRowsOfTiles := ceilDiv(int(spec.nRows), int(spec.nRowsInTile))
	nColsOfTiles := ceilDiv(int(spec.nCols), int(spec.nColsInTile))

	defaults := codec.Default()
	codecs := codec.NewRegistry()
	for _, name := range spec.codecNames {
		c, ok := defaults.Get(name)
		if !ok {
			gf.Close()
			return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidFile, name)
		}
		if err := codecs.Register(c); err != nil {
			gf.Close()
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
	}

	fileSize, err := gf.Size()
	if err != nil {
		gf.Close()
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}

	dirRaw, err := gf.ReadRecordAt(h.tileDirOffset, int(fileSize-h.tileDirOffset))
	if err != nil {
		gf.Close()
		return nil, fmt.Errorf("%w: reading tile directory: %v", ErrInvalidFile, err)
	}
	dir, err := tiledir.ReadFrom(gio.NewReader(dirRaw))
	if err != nil {
		gf.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	var metaDir *metadir.Directory
	var metaDirLen int64
	if h.metaDirOffset != 0 {
		metaRaw, err := gf.ReadRecordAt(h.metaDirOffset, int(fileSize-h.metaDirOffset))
		if err != nil {
			gf.Close()
			return nil, fmt.Errorf("%w: reading metadata directory: %v", ErrInvalidFile, err)
		}
		metaDir, err = metadir.ReadFrom(gio.NewReader(metaRaw))
		if err != nil {
			gf.Close()
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		metaDirLen = int64(metaDir.SerializedSize())
	} else {
		metaDir = metadir.New()
	}

	var fileSpaceMgr *filespace.Manager
	var fileSpaceLen int64
	if h.fileSpaceOffset != 0 {
		fsRaw, err := gf.ReadRecordAt(h.fileSpaceOffset, int(fileSize-h.fileSpaceOffset))
		if err != nil {
			gf.Close()
			return nil, fmt.Errorf("%w: reading file-space record: %v", ErrInvalidFile, err)
		}
		fileSpaceMgr, err = filespace.ReadFrom(gio.NewReader(fsRaw))
		if err != nil {
			gf.Close()
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		fileSpaceLen = int64(fileSpaceMgr.SerializedSize())
	} else {
		fileSpaceMgr = filespace.New(fileSize)
	}

	r := &Raster{
		path: path, file: gf, readOnly: readOnly,
		header: h, spec: spec, geometry: spec.geometry,
		elements: spec.elements, elementsByName: elementsByNameOf(spec.elements),
		tileSize: tileSize, nRowsOfTiles: nRowsOfTiles, nColsOfTiles: nColsOfTiles,
		codecs: codecs, tileDir: dir, fileSpace: fileSpaceMgr, metaDir: metaDir,
		metaDirLen: metaDirLen, fileSpaceLen: fileSpaceLen,
	}
	cache, err := tilecache.New(dir, &tileStore{r: r}, nRowsOfTiles, nColsOfTiles, tileSize, tilecache.Medium.SlotCount(nColsOfTiles))
	if err != nil {
		gf.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadRasterSpecification, err)
	}
	r.cache = cache
	return r, nil
}

// Close flushes pending writes (write mode only) and releases the
// raster's file handle. Close is idempotent. Teardown order follows the
// teacher's Writer.Abort/Reader.Close discipline: the tile cache is
// flushed, then the tile directory, the metadata directory and the
// file-space record are written, the header is rewritten, and the file
// handle itself is closed last.
func (r *Raster) Close() (err error) {
	defer func() { err = Wrap(err) }()
	if r.closed {
		return nil
	}
	r.closed = true

	if r.readOnly {
		return r.file.Close()
	}

	if err := r.cache.FlushAll(); err != nil {
		return err
	}

	dirBuf := gio.NewBuffer(r.tileDir.SerializedSize())
	r.tileDir.WriteTo(dirBuf)
	if err := r.file.WriteRecordAt(r.header.tileDirOffset, dirBuf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing tile directory: %v", ErrFileAccess, err)
	}

	if r.header.metaDirOffset != 0 {
		if err := r.fileSpace.Release(r.header.metaDirOffset, r.metaDirLen); err != nil {
			return err
		}
	}
	if r.header.fileSpaceOffset != 0 {
		if err := r.fileSpace.Release(r.header.fileSpaceOffset, r.fileSpaceLen); err != nil {
			return err
		}
	}

	metaBuf := gio.NewBuffer(r.metaDir.SerializedSize())
	if err := r.metaDir.WriteTo(metaBuf); err != nil {
		return err
	}
	metaLen := int64(metaBuf.Len())
	metaOffset, err := r.fileSpace.Allocate(metaLen)
	if err != nil {
		return err
	}
	if err := r.file.WriteRecordAt(metaOffset, metaBuf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing metadata directory: %v", ErrFileAccess, err)
	}
	r.header.metaDirOffset = metaOffset
	r.metaDirLen = metaLen

	// Snapshot the file-space record before allocating its own storage:
	// the bytes it occupies are, by definition, no longer free, and the
	// snapshot taken just before that allocation already reflects that
	// correctly without needing to describe itself.
	preBuf := gio.NewBuffer(r.fileSpace.SerializedSize())
	r.fileSpace.WriteTo(preBuf)
	fsLen := int64(preBuf.Len())
	fsOffset, err := r.fileSpace.Allocate(fsLen)
	if err != nil {
		return err
	}
	if err := r.file.WriteRecordAt(fsOffset, preBuf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing file-space record: %v", ErrFileAccess, err)
	}
	r.header.fileSpaceOffset = fsOffset
	r.fileSpaceLen = fsLen

	headerBuf := gio.NewBuffer(int(r.header.tileDirOffset))
	if _, err := writeHeaderAndSpec(headerBuf, r.header, r.spec, r.spec.checksumEnabled); err != nil {
		return err
	}
	if err := r.file.WriteRecordAt(0, headerBuf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing header record: %v", ErrFileAccess, err)
	}

	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	return r.file.Close()
}

// ---- accessors ----

// Geometry returns the raster's coordinate transform parameters.
func (r *Raster) Geometry() *Geometry { return r.geometry }

// NRows, NCols return the raster's cell-grid dimensions.
func (r *Raster) NRows() int { return int(r.spec.nRows) }
func (r *Raster) NCols() int { return int(r.spec.nCols) }

// Element looks up a declared element by name.
func (r *Raster) Element(name string) (*Element, error) {
	e, ok := r.elementsByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrElementNotFound, name)
	}
	return e, nil
}

// Elements returns every declared element, in declaration order.
func (r *Raster) Elements() []*Element { return r.elements }

// Path returns the filesystem path the raster was opened or created
// from.
func (r *Raster) Path() string { return r.path }

// TileDimensions returns the size of one tile in cells (rows, columns)
// and the size of the tile grid in tiles (rows, columns).
func (r *Raster) TileDimensions() (nRowsInTile, nColsInTile, nRowsOfTiles, nColsOfTiles int) {
	return int(r.spec.nRowsInTile), int(r.spec.nColsInTile), r.nRowsOfTiles, r.nColsOfTiles
}

// Report produces a human-readable multi-line summary of the raster:
// its dimensions, declared elements, tile grid, and cache occupancy.
// Grounded on cmd/coginfo's single-purpose "open, print a field-by-field
// dump, exit" shape, generalized into a method so both cmd/gvrscat and
// cmd/gvrsutil's "reader" subcommand can share it.
func (r *Raster) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "path:          %s\n", r.path)
	fmt.Fprintf(&b, "dimensions:    %d rows x %d cols\n", r.NRows(), r.NCols())
	fmt.Fprintf(&b, "tile grid:     %d rows x %d cols of tiles (%d x %d cells/tile)\n",
		r.nRowsOfTiles, r.nColsOfTiles, r.spec.nRowsInTile, r.spec.nColsInTile)
	fmt.Fprintf(&b, "checksums:     %v\n", r.spec.checksumEnabled)
	fmt.Fprintf(&b, "codecs:        %s\n", strings.Join(r.codecs.Names(), ", "))
	fmt.Fprintf(&b, "elements (%d):\n", len(r.elements))
	for _, e := range r.elements {
		min, max, fill := e.range64()
		fmt.Fprintf(&b, "  %-20s %-14s min=%g max=%g fill=%g\n", e.Name, e.Type, min, max, fill)
	}
	fmt.Fprintf(&b, "cache:         %d/%d slots resident\n", len(r.cache.ResidentTileIndices()), r.cache.SlotCount())
	return b.String()
}

// SetCachePreset replaces the tile cache with one sized to preset,
// flushing any dirty tiles first.
func (r *Raster) SetCachePreset(preset tilecache.Preset) (err error) {
	defer func() { err = Wrap(err) }()
	if err := r.cache.FlushAll(); err != nil {
		return err
	}
	cache, err := tilecache.New(r.tileDir, &tileStore{r: r}, r.nRowsOfTiles, r.nColsOfTiles, r.tileSize, preset.SlotCount(r.nColsOfTiles))
	if err != nil {
		return err
	}
	r.cache = cache
	return nil
}

// ---- element access ----

func (r *Raster) cellToTile(row, col int) (tileRow, tileCol, idxInTile int, err error) {
	if row < 0 || row >= int(r.spec.nRows) || col < 0 || col >= int(r.spec.nCols) {
		return 0, 0, 0, ErrCoordinateOutOfBounds
	}
	nRowsInTile := int(r.spec.nRowsInTile)
	nColsInTile := int(r.spec.nColsInTile)
	tileRow = row / nRowsInTile
	tileCol = col / nColsInTile
	rowInTile := row % nRowsInTile
	colInTile := col % nColsInTile
	idxInTile = rowInTile*nColsInTile + colInTile
	return tileRow, tileCol, idxInTile, nil
}

func (e *Element) rawFillCode() int32 {
	switch e.Type {
	case TypeInt, TypeShort:
		return e.FillInt
	case TypeFloat:
		return int32(math.Float32bits(e.FillFloat))
	case TypeIntCodedFloat:
		return e.FillICF
	default:
		return 0
	}
}

func (e *Element) asInt(raw int32) int32 {
	switch e.Type {
	case TypeInt, TypeShort:
		return raw
	case TypeFloat:
		f := math.Float32frombits(uint32(raw))
		if math.IsNaN(float64(f)) {
			return IntFillSentinel
		}
		return int32(f)
	case TypeIntCodedFloat:
		v := e.floatFromInt(raw)
		if math.IsNaN(v) {
			return IntFillSentinel
		}
		return int32(v)
	default:
		return raw
	}
}

func (e *Element) asFloat(raw int32) float64 {
	switch e.Type {
	case TypeInt, TypeShort:
		return float64(raw)
	case TypeFloat:
		return float64(math.Float32frombits(uint32(raw)))
	case TypeIntCodedFloat:
		return e.floatFromInt(raw)
	default:
		return float64(raw)
	}
}

func (e *Element) rawFromInt(v int32) (int32, error) {
	switch e.Type {
	case TypeInt:
		return v, nil
	case TypeShort:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return 0, fmt.Errorf("%w: value %d out of Short range", ErrInvalidParameter, v)
		}
		return v, nil
	case TypeFloat:
		return int32(math.Float32bits(float32(v))), nil
	case TypeIntCodedFloat:
		return e.intFromFloat(float64(v)), nil
	default:
		return v, nil
	}
}

func (e *Element) rawFromFloat(v float64) (int32, error) {
	switch e.Type {
	case TypeInt:
		return int32(v), nil
	case TypeShort:
		iv := int32(v)
		if iv < math.MinInt16 || iv > math.MaxInt16 {
			return 0, fmt.Errorf("%w: value %g out of Short range", ErrInvalidParameter, v)
		}
		return iv, nil
	case TypeFloat:
		return int32(math.Float32bits(float32(v))), nil
	case TypeIntCodedFloat:
		return e.intFromFloat(v), nil
	default:
		return int32(v), nil
	}
}

func (r *Raster) initTileFill(slot *tilecache.Slot) {
	for _, e := range r.elements {
		code := uint32(e.rawFillCode())
		for i := 0; i < e.nCells; i++ {
			off := e.dataOffset + i*4
			binary.LittleEndian.PutUint32(slot.Data[off:off+4], code)
		}
	}
}

// ReadInt returns the cell's integer view: the stored value directly
// for Int/Short, truncated otherwise, or the element's fill value
// (also truncated per type) if the tile has never been written.
func (r *Raster) ReadInt(e *Element, row, col int) (v int32, err error) {
	defer func() { err = Wrap(err) }()
	tileRow, tileCol, idx, err := r.cellToTile(row, col)
	if err != nil {
		return 0, err
	}
	slot, err := r.cache.Fetch(tileRow, tileCol)
	if errors.Is(err, tilecache.ErrNotPopulated) {
		return e.asInt(e.rawFillCode()), nil
	}
	if err != nil {
		return 0, translateCacheErr(err)
	}
	off := e.dataOffset + idx*4
	raw := int32(binary.LittleEndian.Uint32(slot.Data[off : off+4]))
	return e.asInt(raw), nil
}

// ReadFloat returns the cell's floating-point view, widening Int/Short
// or decoding IntCodedFloat as appropriate.
func (r *Raster) ReadFloat(e *Element, row, col int) (v float64, err error) {
	defer func() { err = Wrap(err) }()
	tileRow, tileCol, idx, err := r.cellToTile(row, col)
	if err != nil {
		return 0, err
	}
	slot, err := r.cache.Fetch(tileRow, tileCol)
	if errors.Is(err, tilecache.ErrNotPopulated) {
		return e.asFloat(e.rawFillCode()), nil
	}
	if err != nil {
		return 0, translateCacheErr(err)
	}
	off := e.dataOffset + idx*4
	raw := int32(binary.LittleEndian.Uint32(slot.Data[off : off+4]))
	return e.asFloat(raw), nil
}

func (r *Raster) writeRaw(e *Element, row, col int, raw int32) error {
	if r.readOnly {
		return ErrFileAccess
	}
	tileRow, tileCol, idx, err := r.cellToTile(row, col)
	if err != nil {
		return err
	}
	slot, err := r.cache.Fetch(tileRow, tileCol)
	if errors.Is(err, tilecache.ErrNotPopulated) {
		slot, err = r.cache.Allocate(tileRow, tileCol)
		if err != nil {
			return translateCacheErr(err)
		}
		r.initTileFill(slot)
	} else if err != nil {
		return translateCacheErr(err)
	}
	off := e.dataOffset + idx*4
	binary.LittleEndian.PutUint32(slot.Data[off:off+4], uint32(raw))
	return r.cache.MarkDirty(tileRow, tileCol)
}

// WriteInt stores v into the cell, converting to the element's native
// representation.
func (r *Raster) WriteInt(e *Element, row, col int, v int32) (err error) {
	defer func() { err = Wrap(err) }()
	raw, err := e.rawFromInt(v)
	if err != nil {
		return err
	}
	return r.writeRaw(e, row, col, raw)
}

// WriteFloat stores v into the cell, converting to the element's native
// representation.
func (r *Raster) WriteFloat(e *Element, row, col int, v float64) (err error) {
	defer func() { err = Wrap(err) }()
	raw, err := e.rawFromFloat(v)
	if err != nil {
		return err
	}
	return r.writeRaw(e, row, col, raw)
}

// Count increments the integer value at (row, col) by one and returns
// the new value, failing with ErrCounterOverflow (without mutating the
// cell) if the current value is already math.MaxInt32.
func (r *Raster) Count(e *Element, row, col int) (v int32, err error) {
	defer func() { err = Wrap(err) }()
	cur, err := r.ReadInt(e, row, col)
	if err != nil {
		return 0, err
	}
	if cur == math.MaxInt32 {
		return cur, ErrCounterOverflow
	}
	next := cur + 1
	if err := r.WriteInt(e, row, col, next); err != nil {
		return 0, err
	}
	return next, nil
}

func translateCacheErr(err error) error {
	if errors.Is(err, tilecache.ErrCoordinateOutOfBounds) {
		return ErrCoordinateOutOfBounds
	}
	if errors.Is(err, ErrCompressionNotImplemented) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrFileAccess, err)
}
