package tiledir

import (
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/gio"
)

func TestSetGetOffsetFormat32(t *testing.T) {
	d, err := New(Format32, 0, 0, 4, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.SetOffset(2, 3, 800); err != nil {
		t.Fatalf("SetOffset: %v", err)
	}
	got, err := d.Offset(2, 3)
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if got != 800 {
		t.Errorf("Offset = %d, want 800", got)
	}
	populated, err := d.IsPopulated(2, 3)
	if err != nil || !populated {
		t.Errorf("IsPopulated(2,3) = %v, %v, want true, nil", populated, err)
	}
	populated, err = d.IsPopulated(0, 0)
	if err != nil || populated {
		t.Errorf("IsPopulated(0,0) = %v, %v, want false, nil", populated, err)
	}
}

func TestSetOffsetRejectsUnaligned(t *testing.T) {
	d, _ := New(Format32, 0, 0, 2, 2)
	if err := d.SetOffset(0, 0, 801); err == nil {
		t.Error("expected alignment error")
	}
}

func TestOffsetOutOfBounds(t *testing.T) {
	d, _ := New(Format32, 10, 20, 3, 3)
	if _, err := d.Offset(0, 0); err == nil {
		t.Error("expected out-of-bounds error")
	}
	if _, err := d.Offset(11, 21); err != nil {
		t.Errorf("in-bounds lookup failed: %v", err)
	}
}

func TestFormat32RejectsOverflow(t *testing.T) {
	d, _ := New(Format32, 0, 0, 1, 1)
	tooLarge := (maxFormat32Offset) + 8
	if err := d.SetOffset(0, 0, tooLarge); err == nil {
		t.Error("expected overflow error for Format32")
	}
}

func TestFormat64AllowsLargeOffsets(t *testing.T) {
	d, _ := New(Format64, 0, 0, 1, 1)
	big := maxFormat32Offset + 800
	if err := d.SetOffset(0, 0, big); err != nil {
		t.Fatalf("SetOffset: %v", err)
	}
	got, err := d.Offset(0, 0)
	if err != nil || got != big {
		t.Errorf("Offset = %d, %v, want %d, nil", got, err, big)
	}
}

func TestSerializeRoundTripFormat32(t *testing.T) {
	d, _ := New(Format32, 5, 7, 3, 4)
	for r := 5; r < 8; r++ {
		for c := 7; c < 11; c++ {
			if (r+c)%2 == 0 {
				continue
			}
			if err := d.SetOffset(r, c, uint64((r*100+c)*8)); err != nil {
				t.Fatalf("SetOffset(%d,%d): %v", r, c, err)
			}
		}
	}

	buf := gio.NewBuffer(0)
	d.WriteTo(buf)
	if buf.Len() != d.SerializedSize() {
		t.Errorf("WriteTo wrote %d bytes, SerializedSize() = %d", buf.Len(), d.SerializedSize())
	}

	reader := gio.NewReader(buf.Bytes())
	got, err := ReadFrom(reader)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	row0, col0, nRows, nCols := got.Bounds()
	if row0 != 5 || col0 != 7 || nRows != 3 || nCols != 4 {
		t.Fatalf("Bounds = %d,%d,%d,%d, want 5,7,3,4", row0, col0, nRows, nCols)
	}
	for r := 5; r < 8; r++ {
		for c := 7; c < 11; c++ {
			want, _ := d.Offset(r, c)
			gotOff, err := got.Offset(r, c)
			if err != nil {
				t.Fatalf("Offset(%d,%d): %v", r, c, err)
			}
			if gotOff != want {
				t.Errorf("Offset(%d,%d) = %d, want %d", r, c, gotOff, want)
			}
		}
	}
}

func TestSerializeRoundTripFormat64(t *testing.T) {
	d, _ := New(Format64, 0, 0, 2, 2)
	_ = d.SetOffset(0, 0, maxFormat32Offset+8000)
	_ = d.SetOffset(1, 1, 16)

	buf := gio.NewBuffer(0)
	d.WriteTo(buf)
	reader := gio.NewReader(buf.Bytes())
	got, err := ReadFrom(reader)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got.Format() != Format64 {
		t.Errorf("Format() = %v, want Format64", got.Format())
	}
	v, _ := got.Offset(0, 0)
	if v != maxFormat32Offset+8000 {
		t.Errorf("Offset(0,0) = %d, want %d", v, maxFormat32Offset+8000)
	}
}
