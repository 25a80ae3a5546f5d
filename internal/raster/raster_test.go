package raster

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func newTestRaster(t *testing.T, nRows, nCols, nRowsInTile, nColsInTile int) (*Builder, string) {
	t.Helper()
	b, err := NewBuilder(nRows, nCols)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if err := b.SetTileSize(nRowsInTile, nColsInTile); err != nil {
		t.Fatalf("SetTileSize: %v", err)
	}
	return b, filepath.Join(t.TempDir(), "test.gvrs")
}

// TestIntRoundTrip is spec.md §8 invariant 1: a Short element's stored
// value survives a write/read round trip exactly, across a Close/Open
// cycle.
func TestIntRoundTrip(t *testing.T) {
	b, path := newTestRaster(t, 10, 10, 5, 5)
	if err := b.AddElementShort("level", -100, 100, 0); err != nil {
		t.Fatalf("AddElementShort: %v", err)
	}
	r, err := b.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, err := r.Element("level")
	if err != nil {
		t.Fatalf("Element: %v", err)
	}
	if err := r.WriteInt(e, 3, 4, -42); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := Open(path, "r")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r2.Close()
	e2, err := r2.Element("level")
	if err != nil {
		t.Fatalf("Element after reopen: %v", err)
	}
	got, err := r2.ReadInt(e2, 3, 4)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if got != -42 {
		t.Errorf("ReadInt(3,4) = %d, want -42", got)
	}
	if got, err := r2.ReadInt(e2, 0, 0); err != nil || got != 0 {
		t.Errorf("ReadInt(0,0) (never written) = %d, %v, want 0, nil", got, err)
	}
}

// TestFloatRoundTrip is spec.md §8 invariant 2: a Float element's value
// survives a round trip within one ulp, and NaN maps to NaN.
func TestFloatRoundTrip(t *testing.T) {
	b, path := newTestRaster(t, 4, 4, 2, 2)
	if err := b.AddElementFloat("z", -1000, 1000, float32(math.NaN())); err != nil {
		t.Fatalf("AddElementFloat: %v", err)
	}
	r, err := b.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, _ := r.Element("z")
	if err := r.WriteFloat(e, 1, 1, 3.25); err != nil {
		t.Fatalf("WriteFloat: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := Open(path, "r")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r2.Close()
	e2, _ := r2.Element("z")
	got, err := r2.ReadFloat(e2, 1, 1)
	if err != nil {
		t.Fatalf("ReadFloat: %v", err)
	}
	if got != 3.25 {
		t.Errorf("ReadFloat(1,1) = %v, want 3.25", got)
	}
	fill, err := r2.ReadFloat(e2, 0, 0)
	if err != nil {
		t.Fatalf("ReadFloat fill: %v", err)
	}
	if !math.IsNaN(fill) {
		t.Errorf("ReadFloat(0,0) (never written) = %v, want NaN", fill)
	}
}

// TestIntCodedFloatRoundTrip exercises scale/offset decoding alongside
// Float, per spec.md §8 invariant 2.
func TestIntCodedFloatRoundTrip(t *testing.T) {
	b, path := newTestRaster(t, 4, 4, 2, 2)
	if err := b.AddElementIntCodedFloat("depth", 100, 0, -1000, 1000, math.MinInt32); err != nil {
		t.Fatalf("AddElementIntCodedFloat: %v", err)
	}
	r, err := b.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, _ := r.Element("depth")
	if err := r.WriteFloat(e, 2, 2, 12.34); err != nil {
		t.Fatalf("WriteFloat: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := Open(path, "r")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r2.Close()
	e2, _ := r2.Element("depth")
	got, err := r2.ReadFloat(e2, 2, 2)
	if err != nil {
		t.Fatalf("ReadFloat: %v", err)
	}
	if math.Abs(got-12.34) > 0.01 {
		t.Errorf("ReadFloat(2,2) = %v, want ~12.34", got)
	}
}

// TestChecksumCorruption is spec.md §8 invariant 6: flipping a byte in a
// checksummed header causes Open to fail with ErrInvalidFile.
func TestChecksumCorruption(t *testing.T) {
	b, path := newTestRaster(t, 4, 4, 2, 2)
	b.SetChecksumEnabled(true)
	if err := b.AddElementInt("v", 0, 100, 0); err != nil {
		t.Fatalf("AddElementInt: %v", err)
	}
	r, err := b.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, _ := r.Element("v")
	if err := r.WriteInt(e, 0, 0, 7); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[40] ^= 0xFF // corrupt a byte inside the checksummed header/spec block
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Open(path, "r")
	if err == nil {
		t.Fatal("Open of corrupted file succeeded, want ErrInvalidFile")
	}
	if !errors.Is(err, ErrInvalidFile) {
		t.Errorf("Open error = %v, want wrapping ErrInvalidFile", err)
	}
	var kindErr *Error
	if errors.As(err, &kindErr) {
		if kindErr.Kind != KindInvalidFile {
			t.Errorf("Kind = %v, want KindInvalidFile", kindErr.Kind)
		}
	} else {
		t.Error("errors.As(err, *Error) failed; want Kind-carrying wrapper")
	}
}

// TestEndToEndCounterScenario is spec.md §8 scenario 1: a 1000x1000
// raster with 128x128 tiles and a "count" element, counted at two
// positions, surviving a Close/Open cycle.
func TestEndToEndCounterScenario(t *testing.T) {
	b, path := newTestRaster(t, 1000, 1000, 128, 128)
	if err := b.AddElementInt("count", 0, math.MaxInt32, 0); err != nil {
		t.Fatalf("AddElementInt: %v", err)
	}
	r, err := b.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, _ := r.Element("count")

	for i := 0; i < 5; i++ {
		if _, err := r.Count(e, 500, 500); err != nil {
			t.Fatalf("Count(500,500) iteration %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := r.Count(e, 10, 900); err != nil {
			t.Fatalf("Count(10,900) iteration %d: %v", i, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := Open(path, "r")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r2.Close()
	e2, _ := r2.Element("count")
	if got, err := r2.ReadInt(e2, 500, 500); err != nil || got != 5 {
		t.Errorf("ReadInt(500,500) = %d, %v, want 5, nil", got, err)
	}
	if got, err := r2.ReadInt(e2, 10, 900); err != nil || got != 2 {
		t.Errorf("ReadInt(10,900) = %d, %v, want 2, nil", got, err)
	}
}

// TestEndToEndFloatTruncationScenario is spec.md §8 scenario 2: a 2x2
// raster with a single 2x2 tile, a Float element with a NaN fill value,
// written with four distinct values, then read back both as floats and
// (truncated) as ints.
func TestEndToEndFloatTruncationScenario(t *testing.T) {
	b, path := newTestRaster(t, 2, 2, 2, 2)
	if err := b.AddElementFloat("z", 0, 10, float32(math.NaN())); err != nil {
		t.Fatalf("AddElementFloat: %v", err)
	}
	r, err := b.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, _ := r.Element("z")

	values := [2][2]float64{{1.0, 2.0}, {3.0, 4.0}}
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			if err := r.WriteFloat(e, row, col, values[row][col]); err != nil {
				t.Fatalf("WriteFloat(%d,%d): %v", row, col, err)
			}
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := Open(path, "r")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r2.Close()
	e2, _ := r2.Element("z")
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			got, err := r2.ReadFloat(e2, row, col)
			if err != nil {
				t.Fatalf("ReadFloat(%d,%d): %v", row, col, err)
			}
			if got != values[row][col] {
				t.Errorf("ReadFloat(%d,%d) = %v, want %v", row, col, got, values[row][col])
			}
		}
	}
	iv, err := r2.ReadInt(e2, 0, 0)
	if err != nil {
		t.Fatalf("ReadInt(0,0): %v", err)
	}
	if iv != 1 {
		t.Errorf("ReadInt(0,0) (truncated Float view) = %d, want 1", iv)
	}
}
