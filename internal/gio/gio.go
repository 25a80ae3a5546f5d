// Package gio implements GVRS's primary I/O conventions: fixed-width
// little-endian field encoding, length-prefixed strings, the GVRS
// identifier grammar, and checksummed-record framing. It plays the role
// the teacher's internal/cog TIFF tag decoder and internal/pmtiles
// Header.Serialize/DeserializeHeader play for their own formats, but
// generalized into a reusable record builder/reader instead of one
// hand-written struct per record.
package gio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"unicode"

	"github.com/gwlucastrig/gvrs-go/internal/crc"
)

// ErrShortRead mirrors the design-level FILE_ERROR kind for truncated
// records.
var ErrShortRead = errors.New("gvrs: short read")

// ErrBadIdentifier is returned when a name fails the GVRS identifier
// grammar: 1..31 characters, starting with a letter, continuing with
// letters, digits, or underscores.
var ErrBadIdentifier = errors.New("gvrs: invalid identifier")

// ErrStringTooLong is returned when a string exceeds the 16-bit length
// prefix's range.
var ErrStringTooLong = errors.New("gvrs: string exceeds 65535 bytes")

// ErrChecksumMismatch is returned by VerifyChecksum when a checksummed record's
// trailing CRC-32C does not match its body.
var ErrChecksumMismatch = errors.New("gvrs: checksum mismatch")

// ValidIdentifier reports whether s satisfies the GVRS name grammar.
func ValidIdentifier(s string) bool {
	if len(s) < 1 || len(s) > 31 {
		return false
	}
	r := []rune(s)
	if !unicode.IsLetter(r[0]) {
		return false
	}
	for _, c := range r[1:] {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			return false
		}
	}
	return true
}

// Buffer builds a record as a growing little-endian byte slice, the way
// the teacher's Header.Serialize builds a fixed 127-byte slice by hand.
// Unlike that fixed-size buffer, Buffer grows on demand so it can also
// serve variable-length records (the specification block, element
// descriptors, metadata payloads).
type Buffer struct {
	buf []byte
}

// NewBuffer returns an empty Buffer with capacity hint cap.
func NewBuffer(capHint int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capHint)}
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int { return len(b.buf) }

// Bytes returns the accumulated record bytes. The slice is owned by the
// Buffer; callers that retain it across further writes must copy it.
func (b *Buffer) Bytes() []byte { return b.buf }

func (b *Buffer) grow(n int) []byte {
	start := len(b.buf)
	b.buf = append(b.buf, make([]byte, n)...)
	return b.buf[start : start+n]
}

// PutByte appends a single byte.
func (b *Buffer) PutByte(v byte) { b.grow(1)[0] = v }

// PutBool appends a byte: 1 for true, 0 for false.
func (b *Buffer) PutBool(v bool) {
	if v {
		b.PutByte(1)
	} else {
		b.PutByte(0)
	}
}

// PutInt16 appends a little-endian signed 16-bit integer.
func (b *Buffer) PutInt16(v int16) {
	binary.LittleEndian.PutUint16(b.grow(2), uint16(v))
}

// PutInt32 appends a little-endian signed 32-bit integer.
func (b *Buffer) PutInt32(v int32) {
	binary.LittleEndian.PutUint32(b.grow(4), uint32(v))
}

// PutUint32 appends a little-endian unsigned 32-bit integer.
func (b *Buffer) PutUint32(v uint32) {
	binary.LittleEndian.PutUint32(b.grow(4), v)
}

// PutInt64 appends a little-endian signed 64-bit integer.
func (b *Buffer) PutInt64(v int64) {
	binary.LittleEndian.PutUint64(b.grow(8), uint64(v))
}

// PutUint64 appends a little-endian unsigned 64-bit integer.
func (b *Buffer) PutUint64(v uint64) {
	binary.LittleEndian.PutUint64(b.grow(8), v)
}

// PutFloat32 appends a little-endian IEEE-754 single.
func (b *Buffer) PutFloat32(v float32) {
	b.PutUint32(math.Float32bits(v))
}

// PutFloat64 appends a little-endian IEEE-754 double.
func (b *Buffer) PutFloat64(v float64) {
	b.PutUint64(math.Float64bits(v))
}

// PutBytes appends raw bytes verbatim.
func (b *Buffer) PutBytes(p []byte) { copy(b.grow(len(p)), p) }

// PutString appends a 2-byte unsigned length prefix followed by the
// string's bytes.
func (b *Buffer) PutString(s string) error {
	if len(s) > 0xFFFF {
		return ErrStringTooLong
	}
	binary.LittleEndian.PutUint16(b.grow(2), uint16(len(s)))
	b.PutBytes([]byte(s))
	return nil
}

// PutIdentifier validates s against the GVRS name grammar, then writes
// it the way PutString does.
func (b *Buffer) PutIdentifier(s string) error {
	if !ValidIdentifier(s) {
		return fmt.Errorf("%w: %q", ErrBadIdentifier, s)
	}
	return b.PutString(s)
}

// PadToMultipleOf4 appends zero bytes until Len() is a multiple of 4,
// relative to the start of the buffer (callers are responsible for
// ensuring the buffer itself begins at an aligned file offset).
func (b *Buffer) PadToMultipleOf4() {
	for len(b.buf)%4 != 0 {
		b.PutByte(0)
	}
}

// AppendChecksum computes the CRC-32C of everything written so far and
// appends it as a trailing little-endian uint32, per spec.md's
// "checksummed records reserve 4 trailing bytes for CRC-32C" convention.
// The body is fed to an incremental accumulator rather than hashed in
// one pass, mirroring how the record itself was built up field by field.
func (b *Buffer) AppendChecksum() {
	sum := crc.NewIncremental()
	sum.Write(b.buf)
	b.PutUint32(sum.Sum32())
}

// Reader consumes a record previously produced by Buffer (or read
// straight off disk), offering the typed inverse of each Put method.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential typed reads starting at position 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current read offset within the buffer.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Seek repositions the reader to an absolute offset within the buffer.
func (r *Reader) Seek(pos int) { r.pos = pos }

// Skip advances the reader by n bytes.
func (r *Reader) Skip(n int) { r.pos += n }

func (r *Reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortRead, n, len(r.buf)-r.pos)
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

// GetByte reads a single byte.
func (r *Reader) GetByte() (byte, error) {
	p, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// GetBool reads a byte and reports whether it is nonzero.
func (r *Reader) GetBool() (bool, error) {
	v, err := r.GetByte()
	return v != 0, err
}

// GetInt16 reads a little-endian signed 16-bit integer.
func (r *Reader) GetInt16() (int16, error) {
	p, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(p)), nil
}

// GetInt32 reads a little-endian signed 32-bit integer.
func (r *Reader) GetInt32() (int32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(p)), nil
}

// GetUint32 reads a little-endian unsigned 32-bit integer.
func (r *Reader) GetUint32() (uint32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// GetInt64 reads a little-endian signed 64-bit integer.
func (r *Reader) GetInt64() (int64, error) {
	p, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(p)), nil
}

// GetUint64 reads a little-endian unsigned 64-bit integer.
func (r *Reader) GetUint64() (uint64, error) {
	p, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// GetFloat32 reads a little-endian IEEE-754 single.
func (r *Reader) GetFloat32() (float32, error) {
	v, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// GetFloat64 reads a little-endian IEEE-754 double.
func (r *Reader) GetFloat64() (float64, error) {
	v, err := r.GetUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// GetBytes reads n raw bytes.
func (r *Reader) GetBytes(n int) ([]byte, error) {
	p, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

// GetString reads a 2-byte length prefix followed by that many bytes.
func (r *Reader) GetString() (string, error) {
	n, err := r.GetInt16()
	if err != nil {
		return "", err
	}
	p, err := r.take(int(uint16(n)))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// GetIdentifier reads a string and validates it against the GVRS name
// grammar.
func (r *Reader) GetIdentifier() (string, error) {
	s, err := r.GetString()
	if err != nil {
		return "", err
	}
	if !ValidIdentifier(s) {
		return "", fmt.Errorf("%w: %q", ErrBadIdentifier, s)
	}
	return s, nil
}

// PadToMultipleOf4 advances past alignment padding.
func (r *Reader) PadToMultipleOf4() {
	for r.pos%4 != 0 {
		r.pos++
	}
}

// VerifyChecksum checks the trailing 4-byte CRC-32C of buf (the whole
// record, checksum included) against the body that precedes it. Callers
// skip the call entirely when the raster's checksumEnabled header flag
// is false.
func VerifyChecksum(buf []byte) error {
	if len(buf) < 4 {
		return fmt.Errorf("%w: record too short for checksum", ErrShortRead)
	}
	body := buf[:len(buf)-4]
	want := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	sum := crc.NewIncremental()
	sum.Write(body)
	got := sum.Sum32()
	if got != want {
		return ErrChecksumMismatch
	}
	return nil
}

// File wraps an *os.File with positional, bounds-checked record I/O,
// surfacing short reads/seeks as FILE_ERROR-flavored errors the way
// spec.md §4.1 requires, the same ReadAt/WriteAt discipline the teacher
// uses throughout pmtiles.Reader/Writer instead of a buffered stream
// with implicit position.
type File struct {
	f *os.File
}

// NewFile wraps f.
func NewFile(f *os.File) *File { return &File{f: f} }

// ReadRecordAt reads exactly n bytes at offset off.
func (gf *File) ReadRecordAt(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := gf.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("gvrs: reading %d bytes at %d: %w", n, off, err)
	}
	return buf, nil
}

// WriteRecordAt writes data at offset off.
func (gf *File) WriteRecordAt(off int64, data []byte) error {
	if _, err := gf.f.WriteAt(data, off); err != nil {
		return fmt.Errorf("gvrs: writing %d bytes at %d: %w", len(data), off, err)
	}
	return nil
}

// Size returns the current file size.
func (gf *File) Size() (int64, error) {
	fi, err := gf.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Truncate resizes the underlying file.
func (gf *File) Truncate(size int64) error {
	return gf.f.Truncate(size)
}

// Sync flushes the underlying file to stable storage.
func (gf *File) Sync() error {
	return gf.f.Sync()
}

// Close closes the underlying file.
func (gf *File) Close() error {
	return gf.f.Close()
}

// Underlying exposes the wrapped *os.File for callers (e.g. mmap) that
// need the raw handle.
func (gf *File) Underlying() *os.File { return gf.f }

var _ io.Closer = (*File)(nil)
