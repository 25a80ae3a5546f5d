package tilecache

import (
	"errors"
	"fmt"
	"sort"
	"testing"
)

// fakeBackend is an in-memory Directory+Store: tiles are "stored" keyed
// by tileIndex, with a distinct non-zero offset once written so Fetch's
// populated/unpopulated distinction is exercised honestly.
type fakeBackend struct {
	nColsOfTiles int
	tileSize     int
	offsets      map[int64]uint64
	payloads     map[uint64][]byte
	nextOffset   uint64
	writeCount   int
}

func newFakeBackend(nColsOfTiles, tileSize int) *fakeBackend {
	return &fakeBackend{
		nColsOfTiles: nColsOfTiles,
		tileSize:     tileSize,
		offsets:      make(map[int64]uint64),
		payloads:     make(map[uint64][]byte),
		nextOffset:   8, // 0 is reserved for "unpopulated"
	}
}

func (b *fakeBackend) prepopulate(tileRow, tileCol int, fill byte) {
	ti := int64(tileRow)*int64(b.nColsOfTiles) + int64(tileCol)
	off := b.nextOffset
	b.nextOffset += 8
	data := make([]byte, b.tileSize)
	for i := range data {
		data[i] = fill
	}
	b.offsets[ti] = off
	b.payloads[off] = data
}

func (b *fakeBackend) Offset(tileRow, tileCol int) (uint64, error) {
	ti := int64(tileRow)*int64(b.nColsOfTiles) + int64(tileCol)
	return b.offsets[ti], nil
}

func (b *fakeBackend) ReadTile(offset uint64) ([]byte, error) {
	data, ok := b.payloads[offset]
	if !ok {
		return nil, fmt.Errorf("fakeBackend: no payload at offset %d", offset)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (b *fakeBackend) WriteTile(tileRow, tileCol int, data []byte) (uint64, error) {
	b.writeCount++
	ti := int64(tileRow)*int64(b.nColsOfTiles) + int64(tileCol)
	off, ok := b.offsets[ti]
	if !ok {
		off = b.nextOffset
		b.nextOffset += 8
		b.offsets[ti] = off
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.payloads[off] = cp
	return off, nil
}

func tileRowCol(tileIndex, nColsOfTiles int) (int, int) {
	return tileIndex / nColsOfTiles, tileIndex % nColsOfTiles
}

func TestFetchOutOfBounds(t *testing.T) {
	backend := newFakeBackend(4, 16)
	c, err := New(backend, backend, 4, 4, 16, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Fetch(-1, 0); !errors.Is(err, ErrCoordinateOutOfBounds) {
		t.Errorf("Fetch(-1,0) error = %v, want ErrCoordinateOutOfBounds", err)
	}
	if _, err := c.Fetch(0, 4); !errors.Is(err, ErrCoordinateOutOfBounds) {
		t.Errorf("Fetch(0,4) error = %v, want ErrCoordinateOutOfBounds", err)
	}
}

func TestFetchNotPopulated(t *testing.T) {
	backend := newFakeBackend(4, 16)
	c, _ := New(backend, backend, 4, 4, 16, 4)
	if _, err := c.Fetch(1, 1); !errors.Is(err, ErrNotPopulated) {
		t.Errorf("Fetch on empty tile = %v, want ErrNotPopulated", err)
	}
}

func TestFetchHitPromotesAndHotPath(t *testing.T) {
	backend := newFakeBackend(4, 16)
	backend.prepopulate(0, 0, 0xAA)
	backend.prepopulate(0, 1, 0xBB)
	c, _ := New(backend, backend, 4, 4, 16, 4)

	s1, err := c.Fetch(0, 0)
	if err != nil {
		t.Fatalf("Fetch(0,0): %v", err)
	}
	if s1.Data[0] != 0xAA {
		t.Errorf("tile (0,0) data[0] = %x, want 0xAA", s1.Data[0])
	}

	// Hot path: repeated fetch of the same tile.
	s1again, err := c.Fetch(0, 0)
	if err != nil {
		t.Fatalf("Fetch(0,0) again: %v", err)
	}
	if s1again != s1 {
		t.Error("hot-path fetch should return the identical slot pointer")
	}

	s2, err := c.Fetch(0, 1)
	if err != nil {
		t.Fatalf("Fetch(0,1): %v", err)
	}
	if s2.Data[0] != 0xBB {
		t.Errorf("tile (0,1) data[0] = %x, want 0xBB", s2.Data[0])
	}

	if err := c.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants: %v", err)
	}
}

// TestCacheEvictionScenario is spec.md §8 scenario 5: cache size 4;
// access tiles 1,2,3,4,5 then 1; the LRU evicted is 2; hash contains
// exactly {1,3,4,5}.
func TestCacheEvictionScenario(t *testing.T) {
	const nColsOfTiles = 10
	backend := newFakeBackend(nColsOfTiles, 8)
	for _, ti := range []int{1, 2, 3, 4, 5} {
		r, cTile := tileRowCol(ti, nColsOfTiles)
		backend.prepopulate(r, cTile, byte(ti))
	}
	c, err := New(backend, backend, 1, nColsOfTiles, 8, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, ti := range []int{1, 2, 3, 4, 5, 1} {
		r, cTile := tileRowCol(ti, nColsOfTiles)
		if _, err := c.Fetch(r, cTile); err != nil {
			t.Fatalf("Fetch tile %d: %v", ti, err)
		}
	}

	resident := c.ResidentTileIndices()
	got := make([]int, len(resident))
	for i, ti := range resident {
		got[i] = int(ti)
	}
	sort.Ints(got)
	want := []int{1, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("resident tiles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("resident tiles = %v, want %v", got, want)
		}
	}

	for _, ti := range got {
		if ti == 2 {
			t.Fatalf("tile 2 should have been evicted, but resident set is %v", got)
		}
	}

	if err := c.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants: %v", err)
	}
}

func TestDirtyTileFlushedOnEviction(t *testing.T) {
	const nColsOfTiles = 4
	backend := newFakeBackend(nColsOfTiles, 8)
	c, _ := New(backend, backend, 4, nColsOfTiles, 8, 2)

	s, err := c.Allocate(0, 0)
	if err != nil {
		t.Fatalf("Allocate(0,0): %v", err)
	}
	copy(s.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err := c.MarkDirty(0, 0); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}

	backend.prepopulate(0, 1, 0x11)
	backend.prepopulate(0, 2, 0x22)
	if _, err := c.Fetch(0, 1); err != nil {
		t.Fatalf("Fetch(0,1): %v", err)
	}
	if _, err := c.Fetch(0, 2); err != nil {
		t.Fatalf("Fetch(0,2): %v", err)
	}

	if backend.writeCount != 1 {
		t.Errorf("writeCount = %d, want 1 (dirty tile flushed on eviction)", backend.writeCount)
	}

	off, err := backend.Offset(0, 0)
	if err != nil || off == 0 {
		t.Fatalf("expected tile (0,0) to have been written to a nonzero offset, got %d, %v", off, err)
	}
	flushed, err := backend.ReadTile(off)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	if flushed[0] != 1 || flushed[7] != 8 {
		t.Errorf("flushed tile payload = %v, want the written bytes preserved", flushed)
	}
}

func TestAllocateThenFetchSeesWrittenData(t *testing.T) {
	backend := newFakeBackend(4, 4)
	c, _ := New(backend, backend, 2, 4, 4, 4)
	s, err := c.Allocate(1, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	copy(s.Data, []byte{9, 9, 9, 9})
	if err := c.MarkDirty(1, 1); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := c.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if backend.writeCount != 1 {
		t.Errorf("writeCount = %d, want 1", backend.writeCount)
	}
	got, err := c.Fetch(1, 1)
	if err != nil {
		t.Fatalf("Fetch(1,1): %v", err)
	}
	if got.Data[0] != 9 || got.Data[3] != 9 {
		t.Errorf("Fetch(1,1) data = %v, want the bytes written after Allocate", got.Data)
	}
}

func TestMarkDirtyRequiresResidentTile(t *testing.T) {
	backend := newFakeBackend(4, 4)
	c, _ := New(backend, backend, 2, 4, 4, 4)
	if err := c.MarkDirty(0, 0); err == nil {
		t.Error("expected error marking a non-resident tile dirty")
	}
}
