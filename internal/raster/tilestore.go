package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gwlucastrig/gvrs-go/internal/codec"
	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

// tileStore adapts *Raster to tilecache.Store, owning the tile record
// encode/decode spec.md §6 describes: a diagnostic tileIndex followed
// by, per element, a length-prefixed payload that is either raw bytes
// (n == element.DataSize()) or a one-byte codec index plus compressed
// bytes (n < element.DataSize()).
type tileStore struct {
	r *Raster
}

// encodeElementPayload tries every capable codec in turn and keeps
// whichever result is shortest, falling back to the uncompressed raw
// bytes (the n == DataSize() sentinel) when no codec does better.
func encodeElementPayload(e *Element, raw []int32, codecs *codec.Registry) []byte {
	dataSize := e.DataSize()
	best := make([]byte, dataSize)
	for i, v := range raw {
		binary.LittleEndian.PutUint32(best[i*4:], uint32(v))
	}

	names := codecs.Names()
	for idx, name := range names {
		c, _ := codecs.Get(name)
		capab := c.Capability()
		var encoded []byte
		var err error
		if e.Type == TypeFloat {
			if !capab.EncodeFloat {
				continue
			}
			vals := make([]float32, len(raw))
			for i, v := range raw {
				vals[i] = math.Float32frombits(uint32(v))
			}
			encoded, err = c.EncodeFloat(vals)
		} else {
			if !capab.EncodeInt {
				continue
			}
			encoded, err = c.EncodeInt(raw)
		}
		if err != nil {
			continue
		}
		if len(encoded)+1 < len(best) {
			candidate := make([]byte, len(encoded)+1)
			candidate[0] = byte(idx)
			copy(candidate[1:], encoded)
			best = candidate
		}
	}
	return best
}

// decodeElementPayload writes one element's decoded cells into out at
// dataOffset, recognizing the raw-bytes sentinel before consulting the
// codec registry.
func decodeElementPayload(e *Element, codecs *codec.Registry, payload []byte, out []byte) error {
	dataSize := e.DataSize()
	if len(payload) == dataSize {
		copy(out[e.dataOffset:e.dataOffset+dataSize], payload)
		return nil
	}
	if len(payload) < 1 {
		return fmt.Errorf("%w: empty codec-packed element payload for %q", ErrInvalidFile, e.Name)
	}
	c, err := codecs.ByIndex(int(payload[0]))
	if err != nil {
		return fmt.Errorf("%w: element %q: %v", ErrInvalidFile, e.Name, err)
	}
	if e.Type == TypeFloat {
		vals, err := c.DecodeFloat(payload[1:], e.nCells)
		if err != nil {
			if errors.Is(err, codec.ErrNotImplemented) {
				return fmt.Errorf("%w: codec %q cannot decode element %q: %v", ErrCompressionNotImplemented, c.Name(), e.Name, err)
			}
			return fmt.Errorf("%w: decoding element %q: %v", ErrInvalidFile, e.Name, err)
		}
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[e.dataOffset+i*4:], math.Float32bits(v))
		}
		return nil
	}
	vals, err := c.DecodeInt(payload[1:], e.nCells)
	if err != nil {
		if errors.Is(err, codec.ErrNotImplemented) {
			return fmt.Errorf("%w: codec %q cannot decode element %q: %v", ErrCompressionNotImplemented, c.Name(), e.Name, err)
		}
		return fmt.Errorf("%w: decoding element %q: %v", ErrInvalidFile, e.Name, err)
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[e.dataOffset+i*4:], uint32(v))
	}
	return nil
}

// ReadTile decodes the tile record at offset into a flat raw buffer
// matching a cache Slot's layout: one little-endian uint32 per cell,
// per element, at the element's dataOffset.
func (t *tileStore) ReadTile(offset uint64) ([]byte, error) {
	r := t.r
	pos := int64(offset)
	if _, err := r.file.ReadRecordAt(pos, 4); err != nil { // tileIndex: diagnostic only
		return nil, fmt.Errorf("%w: reading tile index: %v", ErrFileAccess, err)
	}
	pos += 4

	out := make([]byte, r.tileSize)
	for _, e := range r.elements {
		nBuf, err := r.file.ReadRecordAt(pos, 4)
		if err != nil {
			return nil, fmt.Errorf("%w: reading element %q length: %v", ErrFileAccess, e.Name, err)
		}
		n := int32(binary.LittleEndian.Uint32(nBuf))
		pos += 4
		if n < 0 {
			return nil, fmt.Errorf("%w: negative element payload length %d", ErrInvalidFile, n)
		}
		payload, err := r.file.ReadRecordAt(pos, int(n))
		if err != nil {
			return nil, fmt.Errorf("%w: reading element %q payload: %v", ErrFileAccess, e.Name, err)
		}
		pos += int64(n)
		if err := decodeElementPayload(e, r.codecs, payload, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WriteTile encodes data, releasing the tile's prior on-disk space (if
// any) before allocating a fresh record, and updates the tile
// directory to point at it.
func (t *tileStore) WriteTile(tileRow, tileCol int, data []byte) (uint64, error) {
	r := t.r
	buf := gio.NewBuffer(r.tileSize + 8*len(r.elements) + 8)
	tileIdx := int32(tileRow)*int32(r.nColsOfTiles) + int32(tileCol)
	buf.PutInt32(tileIdx)

	for _, e := range r.elements {
		raw := make([]int32, e.nCells)
		for i := 0; i < e.nCells; i++ {
			off := e.dataOffset + i*4
			raw[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		}
		payload := encodeElementPayload(e, raw, r.codecs)
		buf.PutInt32(int32(len(payload)))
		buf.PutBytes(payload)
	}

	oldOffset, err := r.tileDir.Offset(tileRow, tileCol)
	if err != nil {
		return 0, err
	}
	if oldOffset != 0 {
		oldLen, err := r.tileRecordLength(oldOffset)
		if err != nil {
			return 0, err
		}
		if err := r.fileSpace.Release(int64(oldOffset), oldLen); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFileAccess, err)
		}
	}

	newOffset, err := r.fileSpace.Allocate(int64(buf.Len()))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	if err := r.file.WriteRecordAt(newOffset, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	if err := r.tileDir.SetOffset(tileRow, tileCol, uint64(newOffset)); err != nil {
		return 0, err
	}
	return uint64(newOffset), nil
}

// tileRecordLength walks an existing tile record's length-prefixed
// element payloads to compute its total byte length, without decoding
// any of them, so its space can be released before a rewrite.
func (r *Raster) tileRecordLength(offset uint64) (int64, error) {
	pos := int64(offset)
	total := int64(4)
	pos += 4
	for _, e := range r.elements {
		nBuf, err := r.file.ReadRecordAt(pos, 4)
		if err != nil {
			return 0, fmt.Errorf("%w: reading element %q length: %v", ErrFileAccess, e.Name, err)
		}
		n := int32(binary.LittleEndian.Uint32(nBuf))
		pos += 4 + int64(n)
		total += 4 + int64(n)
	}
	return total, nil
}
