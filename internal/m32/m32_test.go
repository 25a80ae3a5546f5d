package m32

import (
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/bitio"
)

func TestSymbolRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 127, -128, 200, -200, 30000, -30000, 1 << 20, -(1 << 20), 1<<31 - 1, -(1 << 31)}

	out := bitio.NewOutput(0)
	enc := NewEncoder(out)
	for _, v := range values {
		enc.PutSymbol(v)
	}
	buf := out.Flush()

	in := bitio.NewInput(buf)
	dec := NewDecoder(in)
	for i, want := range values {
		got, err := dec.GetSymbol()
		if err != nil {
			t.Fatalf("symbol %d: %v", i, err)
		}
		if got != want {
			t.Errorf("symbol %d = %d, want %d", i, got, want)
		}
	}
}

func TestSmallMagnitudesAreCompact(t *testing.T) {
	// A stream of small residuals should need far fewer bits than the
	// naive 32-bit-per-symbol encoding.
	out := bitio.NewOutput(0)
	enc := NewEncoder(out)
	for i := 0; i < 1000; i++ {
		enc.PutSymbol(int32(i%5) - 2) // residuals in [-2, 2]
	}
	buf := out.Flush()
	if len(buf)*8 >= 1000*32 {
		t.Errorf("encoded %d bits, expected well under the naive %d bits", len(buf)*8, 1000*32)
	}
}
