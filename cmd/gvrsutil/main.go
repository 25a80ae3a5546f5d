// Command gvrsutil bundles a handful of small raster inspection and
// maintenance subcommands behind one binary, the way a single
// flag-driven tool dispatches on a -mode flag; here the dispatch is on
// os.Args[1] instead, one subcommand per verb. Each subcommand is a
// thin driver over the raster/tilecache public API only.
package main

import (
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/gwlucastrig/gvrs-go/internal/raster"
	"github.com/gwlucastrig/gvrs-go/internal/tilecache"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "reader":
		err = runReader(os.Args[2:])
	case "perf":
		err = runPerf(os.Args[2:])
	case "transcribe":
		err = runTranscribe(os.Args[2:])
	case "entropy":
		err = runEntropy(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: gvrsutil <command> [args]

Commands:
  reader <file>                 open and print a Report() summary
  perf <file> [n]                time n (default 100000) fixed-stride cell reads
  transcribe <in> <out>          copy a raster, re-encoding every tile
  entropy <file> [element]       report the uncompressed bytes/cell for each element
`)
}

func runReader(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("reader: need a file argument")
	}
	r, err := raster.Open(args[0], "r")
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Print(r.Report())
	return nil
}

func runPerf(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("perf: need a file argument")
	}
	n := 100000
	if len(args) > 1 {
		if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
			return fmt.Errorf("perf: bad count %q: %w", args[1], err)
		}
	}

	r, err := raster.Open(args[0], "r")
	if err != nil {
		return err
	}
	defer r.Close()

	elements := r.Elements()
	if len(elements) == 0 {
		return fmt.Errorf("perf: raster declares no elements")
	}
	e := elements[0]
	nRows, nCols := r.NRows(), r.NCols()

	// A fixed-step, non-random walk over the cell grid: deterministic,
	// so a run is reproducible without needing a seeded RNG dependency.
	start := time.Now()
	stride := nRows*nCols/n + 1
	var idx int64
	for i := 0; i < n; i++ {
		idx = (idx + int64(stride)) % int64(nRows*nCols)
		row := int(idx) / nCols
		col := int(idx) % nCols
		if _, err := r.ReadInt(e, row, col); err != nil && err != tilecache.ErrNotPopulated {
			return fmt.Errorf("perf: ReadInt(%d,%d): %w", row, col, err)
		}
	}
	elapsed := time.Since(start)
	log.Printf("%d reads of element %q in %s (%.0f reads/sec)", n, e.Name, elapsed, float64(n)/elapsed.Seconds())
	return nil
}

func runTranscribe(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("transcribe: need input and output file arguments")
	}
	in, err := raster.Open(args[0], "r")
	if err != nil {
		return err
	}
	defer in.Close()

	nRowsInTile, nColsInTile, _, _ := in.TileDimensions()
	b, err := raster.NewBuilder(in.NRows(), in.NCols())
	if err != nil {
		return err
	}
	if err := b.SetTileSize(nRowsInTile, nColsInTile); err != nil {
		return err
	}
	geo := in.Geometry()
	if geo.System == raster.Geographic {
		if err := b.SetGeographicCoordinates(geo.Y0, geo.X0, geo.Y1, geo.X1); err != nil {
			return err
		}
	} else {
		if err := b.SetCartesianCoordinates(geo.X0, geo.Y0, geo.X1, geo.Y1); err != nil {
			return err
		}
	}
	for _, e := range in.Elements() {
		switch e.Type {
		case raster.TypeInt:
			err = b.AddElementInt(e.Name, e.MinInt, e.MaxInt, e.FillInt)
		case raster.TypeShort:
			err = b.AddElementShort(e.Name, int32(e.MinInt), int32(e.MaxInt), int32(e.FillInt))
		case raster.TypeFloat:
			err = b.AddElementFloat(e.Name, e.MinFloat, e.MaxFloat, e.FillFloat)
		case raster.TypeIntCodedFloat:
			err = b.AddElementIntCodedFloat(e.Name, e.Scale, e.Offset, e.MinICF, e.MaxICF, e.FillICF)
		}
		if err != nil {
			return fmt.Errorf("transcribe: declaring element %q: %w", e.Name, err)
		}
	}

	out, err := b.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()

	nRows, nCols := in.NRows(), in.NCols()
	for _, e := range in.Elements() {
		oe, err := out.Element(e.Name)
		if err != nil {
			return err
		}
		for row := 0; row < nRows; row++ {
			for col := 0; col < nCols; col++ {
				if e.Type == raster.TypeFloat || e.Type == raster.TypeIntCodedFloat {
					v, err := in.ReadFloat(e, row, col)
					if err != nil {
						return err
					}
					if math.IsNaN(v) {
						continue
					}
					if err := out.WriteFloat(oe, row, col, v); err != nil {
						return err
					}
				} else {
					v, err := in.ReadInt(e, row, col)
					if err != nil {
						return err
					}
					if v == e.FillInt {
						continue
					}
					if err := out.WriteInt(oe, row, col, v); err != nil {
						return err
					}
				}
			}
		}
	}
	log.Printf("transcribed %s -> %s (%d elements)", args[0], args[1], len(in.Elements()))
	return nil
}

func runEntropy(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("entropy: need a file argument")
	}
	r, err := raster.Open(args[0], "r")
	if err != nil {
		return err
	}
	defer r.Close()

	elements := r.Elements()
	if len(args) > 1 {
		e, err := r.Element(args[1])
		if err != nil {
			return err
		}
		elements = []*raster.Element{e}
	}

	nRows, nCols := r.NRows(), r.NCols()
	nRowsInTile, nColsInTile, _, _ := r.TileDimensions()
	cellsPerTile := nRowsInTile * nColsInTile
	for _, e := range elements {
		rawBytesPerCell := e.DataSize() / cellsPerTile
		fmt.Printf("%s: %d x %d cells, %d bytes/cell raw (uncompressed); see gvrscat's Report() for the active codec table\n",
			e.Name, nRows, nCols, rawBytesPerCell)
	}
	return nil
}
