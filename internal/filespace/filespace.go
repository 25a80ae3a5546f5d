// Package filespace manages the free (reusable) byte ranges inside a
// GVRS file's interior: the space left behind when a tile or metadata
// record is deleted or replaced with a shorter one. It is a classic
// free-list allocator, grounded on the same "grow a flat list, sort,
// merge adjacent runs" shape as pmtiles.optimizeRunLengths
// (internal/pmtiles/directory.go), applied to byte intervals instead of
// tile-ID runs: coalescing here merges two free intervals exactly the
// way optimizeRunLengths merges two contiguous directory entries.
package filespace

import (
	"fmt"
	"sort"

	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

// alignment is the record-alignment granularity every allocation and
// release is rounded to, matching the 8-byte record alignment the tile
// directory and tile records observe.
const alignment = 8

// interval is a free byte range [Offset, Offset+Length).
type interval struct {
	Offset int64
	Length int64
}

// Manager tracks free intervals within a file's interior (the region
// after the fixed header and specification block, where tile and
// metadata records live and die over a raster's lifetime).
type Manager struct {
	free []interval
	end  int64 // current end of the managed file interior
}

// New creates a Manager whose interior begins empty at end (the file
// offset immediately following the header/specification block).
func New(end int64) *Manager {
	return &Manager{end: roundUp(end)}
}

func roundUp(n int64) int64 {
	if rem := n % alignment; rem != 0 {
		n += alignment - rem
	}
	return n
}

// Allocate reserves length bytes (rounded up to the alignment) and
// returns the allocation's starting offset. It first tries to satisfy
// the request from the free list (best-fit, to limit fragmentation from
// the arena-style growth the tile cache's hash-bin pool also uses);
// failing that, it extends the interior.
func (m *Manager) Allocate(length int64) (int64, error) {
	if length <= 0 {
		return 0, fmt.Errorf("filespace: non-positive allocation length %d", length)
	}
	length = roundUp(length)

	bestIdx := -1
	for i, iv := range m.free {
		if iv.Length < length {
			continue
		}
		if bestIdx == -1 || iv.Length < m.free[bestIdx].Length {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		chosen := m.free[bestIdx]
		offset := chosen.Offset
		if chosen.Length == length {
			m.free = append(m.free[:bestIdx], m.free[bestIdx+1:]...)
		} else {
			m.free[bestIdx] = interval{Offset: chosen.Offset + length, Length: chosen.Length - length}
		}
		return offset, nil
	}

	offset := m.end
	m.end += length
	return offset, nil
}

// Release returns a previously allocated [offset, offset+length) range
// to the free list, coalescing it with any adjacent free interval.
func (m *Manager) Release(offset, length int64) error {
	if length <= 0 {
		return fmt.Errorf("filespace: non-positive release length %d", length)
	}
	length = roundUp(length)
	if offset < 0 || offset+length > m.end {
		return fmt.Errorf("filespace: release range [%d,%d) outside managed interior [0,%d)", offset, offset+length, m.end)
	}

	m.free = append(m.free, interval{Offset: offset, Length: length})
	m.coalesce()
	return nil
}

// coalesce sorts the free list by offset and merges adjacent runs,
// mirroring optimizeRunLengths's single left-to-right merge pass.
func (m *Manager) coalesce() {
	sort.Slice(m.free, func(i, j int) bool { return m.free[i].Offset < m.free[j].Offset })

	merged := make([]interval, 0, len(m.free))
	for _, iv := range m.free {
		if n := len(merged); n > 0 && merged[n-1].Offset+merged[n-1].Length == iv.Offset {
			merged[n-1].Length += iv.Length
		} else {
			merged = append(merged, iv)
		}
	}
	m.free = merged
}

// End returns the current end of the managed file interior: the offset
// at which a fresh (non-reused) allocation would be placed.
func (m *Manager) End() int64 { return m.end }

// FreeBytes returns the total bytes currently on the free list.
func (m *Manager) FreeBytes() int64 {
	var total int64
	for _, iv := range m.free {
		total += iv.Length
	}
	return total
}

// FreeIntervalCount returns the number of disjoint free intervals, a
// fragmentation indicator exposed for diagnostics/tests.
func (m *Manager) FreeIntervalCount() int { return len(m.free) }

// WriteTo serializes the free list and interior end for persistence in
// the file-space directory record.
func (m *Manager) WriteTo(buf *gio.Buffer) {
	buf.PutInt64(m.end)
	buf.PutInt32(int32(len(m.free)))
	for _, iv := range m.free {
		buf.PutInt64(iv.Offset)
		buf.PutInt64(iv.Length)
	}
}

// ReadFrom reconstructs a Manager previously written by WriteTo.
func ReadFrom(r *gio.Reader) (*Manager, error) {
	end, err := r.GetInt64()
	if err != nil {
		return nil, fmt.Errorf("filespace: reading interior end: %w", err)
	}
	count, err := r.GetInt32()
	if err != nil {
		return nil, fmt.Errorf("filespace: reading free-interval count: %w", err)
	}
	m := &Manager{end: end, free: make([]interval, count)}
	for i := range m.free {
		off, err := r.GetInt64()
		if err != nil {
			return nil, fmt.Errorf("filespace: reading free interval %d offset: %w", i, err)
		}
		length, err := r.GetInt64()
		if err != nil {
			return nil, fmt.Errorf("filespace: reading free interval %d length: %w", i, err)
		}
		m.free[i] = interval{Offset: off, Length: length}
	}
	return m, nil
}

// SerializedSize returns the exact byte length WriteTo will produce.
func (m *Manager) SerializedSize() int {
	return 8 + 4 + 16*len(m.free)
}
