// Package predict implements the three differential predictors that
// turn a raster tile's row-major integer grid into a residual stream
// more amenable to entropy coding: P1 (row-delta), P2 (second
// difference), and P3 (triangle). Each predictor writes output[0] as a
// raw seed value, then emits (nRows*nCols-1) M32-coded residuals
// (actual-prediction) in row-major order; the decoder is the exact
// inverse.
//
// Grounded on the delta-then-entropy-code shape of the teacher's
// pmtiles.buildDirectory (tile-ID and offset deltas feeding a varint
// stream, internal/pmtiles/directory.go), generalized from a 1-D
// sequence of deltas to three 2-D prediction schemes.
package predict

import (
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/bitio"
	"github.com/gwlucastrig/gvrs-go/internal/m32"
)

// ID identifies one of the three predictors. A codec that uses a
// predictor fixes its ID in the codec value; no predictor byte is stored
// in the encoded payload.
type ID byte

const (
	// None indicates no predictor stage is applied.
	None ID = 0
	// P1 is the row-delta predictor.
	P1 ID = 1
	// P2 is the second-difference predictor.
	P2 ID = 2
	// P3 is the triangle predictor.
	P3 ID = 3
)

func (id ID) String() string {
	switch id {
	case None:
		return "none"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return fmt.Sprintf("predict.ID(%d)", byte(id))
	}
}

func writeSeed(out *bitio.Output, seed int32) {
	out.PutBits(uint32(seed), 32)
}

func readSeed(in *bitio.Input) (int32, error) {
	v, err := in.GetBits(32)
	if err != nil {
		return 0, fmt.Errorf("predict: reading seed: %w", err)
	}
	return int32(v), nil
}

func at(grid []int32, nCols, row, col int) int32 {
	return grid[row*nCols+col]
}

func set(grid []int32, nCols, row, col int, v int32) {
	grid[row*nCols+col] = v
}

// checkDims validates that grid matches nRows*nCols and is non-empty,
// the shape every Encode entry point requires.
func checkDims(grid []int32, nRows, nCols int) error {
	if nRows <= 0 || nCols <= 0 {
		return fmt.Errorf("predict: non-positive dimensions %dx%d", nRows, nCols)
	}
	if len(grid) != nRows*nCols {
		return fmt.Errorf("predict: grid has %d cells, want %d", len(grid), nRows*nCols)
	}
	return nil
}

// EncodeP1 writes grid (row-major, nRows x nCols) using the row-delta
// predictor: row 0 predicts each cell from its left neighbour; every
// later row predicts its first cell from the cell directly above, then
// falls back to the left neighbour for the rest of the row.
func EncodeP1(grid []int32, nRows, nCols int, out *bitio.Output) error {
	if err := checkDims(grid, nRows, nCols); err != nil {
		return err
	}
	writeSeed(out, grid[0])
	enc := m32.NewEncoder(out)
	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			if row == 0 && col == 0 {
				continue // seed already written
			}
			pred := predictP1(grid, nCols, row, col)
			enc.PutSymbol(at(grid, nCols, row, col) - pred)
		}
	}
	return nil
}

// DecodeP1 is the inverse of EncodeP1.
func DecodeP1(nRows, nCols int, in *bitio.Input) ([]int32, error) {
	if err := checkDims(make([]int32, nRows*nCols), nRows, nCols); err != nil {
		return nil, err
	}
	grid := make([]int32, nRows*nCols)
	seed, err := readSeed(in)
	if err != nil {
		return nil, err
	}
	grid[0] = seed
	dec := m32.NewDecoder(in)
	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			if row == 0 && col == 0 {
				continue
			}
			residual, err := dec.GetSymbol()
			if err != nil {
				return nil, fmt.Errorf("predict: P1 decode at (%d,%d): %w", row, col, err)
			}
			pred := predictP1(grid, nCols, row, col)
			set(grid, nCols, row, col, pred+residual)
		}
	}
	return grid, nil
}

func predictP1(grid []int32, nCols, row, col int) int32 {
	if row == 0 {
		return at(grid, nCols, row, col-1)
	}
	if col == 0 {
		return at(grid, nCols, row-1, col)
	}
	return at(grid, nCols, row, col-1)
}

// EncodeP2 writes grid using the second-difference predictor: the first
// two columns of every row are predicted as in P1; from column 2 on,
// prediction = 2*b - a where a, b are the two prior cells on the row.
func EncodeP2(grid []int32, nRows, nCols int, out *bitio.Output) error {
	if err := checkDims(grid, nRows, nCols); err != nil {
		return err
	}
	writeSeed(out, grid[0])
	enc := m32.NewEncoder(out)
	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			if row == 0 && col == 0 {
				continue
			}
			pred := predictP2(grid, nCols, row, col)
			enc.PutSymbol(at(grid, nCols, row, col) - pred)
		}
	}
	return nil
}

// DecodeP2 is the inverse of EncodeP2.
func DecodeP2(nRows, nCols int, in *bitio.Input) ([]int32, error) {
	if err := checkDims(make([]int32, nRows*nCols), nRows, nCols); err != nil {
		return nil, err
	}
	grid := make([]int32, nRows*nCols)
	seed, err := readSeed(in)
	if err != nil {
		return nil, err
	}
	grid[0] = seed
	dec := m32.NewDecoder(in)
	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			if row == 0 && col == 0 {
				continue
			}
			residual, err := dec.GetSymbol()
			if err != nil {
				return nil, fmt.Errorf("predict: P2 decode at (%d,%d): %w", row, col, err)
			}
			pred := predictP2(grid, nCols, row, col)
			set(grid, nCols, row, col, pred+residual)
		}
	}
	return grid, nil
}

func predictP2(grid []int32, nCols, row, col int) int32 {
	if col < 2 {
		return predictP1(grid, nCols, row, col)
	}
	a := at(grid, nCols, row, col-2)
	b := at(grid, nCols, row, col-1)
	return int32(2*int64(b) - int64(a))
}

// EncodeP3 writes grid using the triangle predictor: row 0 and column 0
// use the same left/up deltas as P1; every other cell is predicted as
// z[i,j-1] + z[i-1,j] - z[i-1,j-1].
func EncodeP3(grid []int32, nRows, nCols int, out *bitio.Output) error {
	if err := checkDims(grid, nRows, nCols); err != nil {
		return err
	}
	writeSeed(out, grid[0])
	enc := m32.NewEncoder(out)
	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			if row == 0 && col == 0 {
				continue
			}
			pred := predictP3(grid, nCols, row, col)
			enc.PutSymbol(at(grid, nCols, row, col) - pred)
		}
	}
	return nil
}

// DecodeP3 is the inverse of EncodeP3.
func DecodeP3(nRows, nCols int, in *bitio.Input) ([]int32, error) {
	if err := checkDims(make([]int32, nRows*nCols), nRows, nCols); err != nil {
		return nil, err
	}
	grid := make([]int32, nRows*nCols)
	seed, err := readSeed(in)
	if err != nil {
		return nil, err
	}
	grid[0] = seed
	dec := m32.NewDecoder(in)
	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			if row == 0 && col == 0 {
				continue
			}
			residual, err := dec.GetSymbol()
			if err != nil {
				return nil, fmt.Errorf("predict: P3 decode at (%d,%d): %w", row, col, err)
			}
			pred := predictP3(grid, nCols, row, col)
			set(grid, nCols, row, col, pred+residual)
		}
	}
	return grid, nil
}

func predictP3(grid []int32, nCols, row, col int) int32 {
	if row == 0 || col == 0 {
		return predictP1(grid, nCols, row, col)
	}
	a := int64(at(grid, nCols, row, col-1))
	b := int64(at(grid, nCols, row-1, col))
	c := int64(at(grid, nCols, row-1, col-1))
	return int32(a + b - c)
}

// Encode dispatches to the predictor named by id.
func Encode(id ID, grid []int32, nRows, nCols int, out *bitio.Output) error {
	switch id {
	case P1:
		return EncodeP1(grid, nRows, nCols, out)
	case P2:
		return EncodeP2(grid, nRows, nCols, out)
	case P3:
		return EncodeP3(grid, nRows, nCols, out)
	default:
		return fmt.Errorf("predict: unknown predictor id %d", id)
	}
}

// Decode dispatches to the predictor named by id.
func Decode(id ID, nRows, nCols int, in *bitio.Input) ([]int32, error) {
	switch id {
	case P1:
		return DecodeP1(nRows, nCols, in)
	case P2:
		return DecodeP2(nRows, nCols, in)
	case P3:
		return DecodeP3(nRows, nCols, in)
	default:
		return nil, fmt.Errorf("predict: unknown predictor id %d", id)
	}
}
