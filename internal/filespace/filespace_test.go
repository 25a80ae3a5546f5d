package filespace

import (
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

func TestAllocateGrowsInterior(t *testing.T) {
	m := New(100)
	off1, err := m.Allocate(50)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if off1 != 104 { // roundUp(100) == 104
		t.Errorf("first allocation at %d, want 104", off1)
	}
	off2, err := m.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if off2 != off1+56 { // roundUp(50) == 56
		t.Errorf("second allocation at %d, want %d", off2, off1+56)
	}
}

func TestReleaseThenReuse(t *testing.T) {
	m := New(0)
	a, _ := m.Allocate(64)
	b, _ := m.Allocate(32)
	_ = b
	if err := m.Release(a, 64); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if m.FreeBytes() != 64 {
		t.Errorf("FreeBytes = %d, want 64", m.FreeBytes())
	}
	endBefore := m.End()
	reused, err := m.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if reused != a {
		t.Errorf("Allocate after Release = %d, want reused offset %d", reused, a)
	}
	if m.End() != endBefore {
		t.Errorf("End() grew on a reuse: %d != %d", m.End(), endBefore)
	}
	if m.FreeBytes() != 0 {
		t.Errorf("FreeBytes = %d, want 0 after full reuse", m.FreeBytes())
	}
}

func TestReleaseCoalescesAdjacentIntervals(t *testing.T) {
	m := New(0)
	a, _ := m.Allocate(32)
	b, _ := m.Allocate(32)
	c, _ := m.Allocate(32)
	_ = c
	if err := m.Release(a, 32); err != nil {
		t.Fatalf("Release a: %v", err)
	}
	if err := m.Release(b, 32); err != nil {
		t.Fatalf("Release b: %v", err)
	}
	if m.FreeIntervalCount() != 1 {
		t.Errorf("FreeIntervalCount = %d, want 1 after coalescing adjacent frees", m.FreeIntervalCount())
	}
	if m.FreeBytes() != 64 {
		t.Errorf("FreeBytes = %d, want 64", m.FreeBytes())
	}
}

func TestAllocateBestFit(t *testing.T) {
	m := New(0)
	a, _ := m.Allocate(128)
	m.Allocate(8) // separator so a and the next allocation aren't adjacent
	b, _ := m.Allocate(32)
	_ = m.Release(a, 128)
	_ = m.Release(b, 32)

	// A 16-byte request should prefer the smaller (32-byte) free interval
	// over the larger (128-byte) one, to limit fragmentation.
	got, err := m.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != b {
		t.Errorf("Allocate(16) = %d, want best-fit offset %d", got, b)
	}
}

func TestReleaseRejectsOutOfRange(t *testing.T) {
	m := New(0)
	m.Allocate(16)
	if err := m.Release(1000, 16); err == nil {
		t.Error("expected error releasing a range outside the managed interior")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	m := New(0)
	a, _ := m.Allocate(64)
	m.Allocate(64)
	_ = m.Release(a, 64)

	buf := gio.NewBuffer(0)
	m.WriteTo(buf)
	if buf.Len() != m.SerializedSize() {
		t.Errorf("WriteTo wrote %d bytes, SerializedSize() = %d", buf.Len(), m.SerializedSize())
	}

	got, err := ReadFrom(gio.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got.End() != m.End() {
		t.Errorf("End() = %d, want %d", got.End(), m.End())
	}
	if got.FreeBytes() != m.FreeBytes() {
		t.Errorf("FreeBytes() = %d, want %d", got.FreeBytes(), m.FreeBytes())
	}
}
