// Coordinate transforms between grid (row, col), model (x, y), and,
// for geographic rasters, geographic (longitude, latitude) space.
// Grounded on the teacher's coord.Projection interface
// (internal/coord/projection.go) and WebMercatorProj's forward/inverse
// pair (internal/coord/mercator.go), generalized from a fixed Mercator
// formula to GVRS's general 2x3 affine matrix derived from the
// raster's corner coordinates.
//
// Corner coordinates (x0,y0,x1,y1) are cell CENTERS, the point-grid
// convention spec.md's bracket/wrap tests assume: a raster spanning a
// full 360-degree circle of longitude with one duplicated boundary
// column (bracketing) has cellSizeX = (x1-x0)/(nCols-1); one that
// elides the duplicate (wrapping) has cellSizeX = (x1-x0)/(nCols-1)
// for a one-cell-short span, checked against both the (nCols-1) and
// nCols multiples of cellSizeX to classify which case applies.
package raster

import "math"

// affine is a 2x3 matrix applied as:
//
//	outX = a*inX + b*inY + c
//	outY = d*inX + e*inY + f
type affine struct {
	a, b, c, d, e, f float64
}

func (m affine) apply(inX, inY float64) (outX, outY float64) {
	return m.a*inX + m.b*inY + m.c, m.d*inX + m.e*inY + m.f
}

// CoordSystem is Cartesian or Geographic, matching the coordSystemKind
// byte in spec.md §6.
type CoordSystem byte

const (
	Cartesian  CoordSystem = 1
	Geographic CoordSystem = 2
)

// Geometry holds a raster's spatial parameters: its corner coordinates,
// cell size, coordinate system kind, and the derived affine matrices
// and longitude-wrap parameters.
type Geometry struct {
	System    CoordSystem
	X0, Y0    float64
	X1, Y1    float64
	CellSizeX float64
	CellSizeY float64
	NRows     int
	NCols     int

	m2r affine // model -> row/col (grid)
	r2m affine // row/col (grid) -> model

	geoBracketsLongitude bool
	geoWrapsLongitude    bool
}

// NewGeometry derives the affine matrices and, for geographic rasters,
// the longitude bracket/wrap parameters, from the raster's corner
// coordinates (cell centers) and the raster's row and column counts.
func NewGeometry(system CoordSystem, x0, y0, x1, y1 float64, nRows, nCols int) *Geometry {
	g := &Geometry{System: system, X0: x0, Y0: y0, X1: x1, Y1: y1, NRows: nRows, NCols: nCols}
	g.build()
	return g
}

func (g *Geometry) build() {
	if g.NCols > 1 {
		g.CellSizeX = (g.X1 - g.X0) / float64(g.NCols-1)
	} else {
		g.CellSizeX = 1
	}
	if g.NRows > 1 {
		g.CellSizeY = (g.Y1 - g.Y0) / float64(g.NRows-1)
	} else {
		g.CellSizeY = 1
	}

	// r2m: grid (col,row) -> model (x,y). Row 0 is the raster's north
	// (max-y) edge, so y decreases as row increases.
	g.r2m = affine{
		a: g.CellSizeX, b: 0, c: g.X0,
		d: 0, e: -g.CellSizeY, f: g.Y1,
	}
	g.m2r = affine{
		a: 1 / g.CellSizeX, b: 0, c: -g.X0 / g.CellSizeX,
		d: 0, e: -1 / g.CellSizeY, f: g.Y1 / g.CellSizeY,
	}

	if g.System != Geographic {
		return
	}

	const fullCircle = 360.0
	const tolerance = 1e-6
	span1 := g.CellSizeX * float64(g.NCols-1)
	span0 := g.CellSizeX * float64(g.NCols)
	g.geoBracketsLongitude = math.Abs(span1-fullCircle) < tolerance
	g.geoWrapsLongitude = !g.geoBracketsLongitude && math.Abs(span0-fullCircle) < tolerance
}

// MapGridToModel converts grid (row, col) to model (x, y).
func (g *Geometry) MapGridToModel(row, col float64) (x, y float64) {
	return g.r2m.apply(col, row)
}

// MapModelToGrid converts model (x, y) to grid (row, col).
func (g *Geometry) MapModelToGrid(x, y float64) (row, col float64) {
	col, row = g.m2r.apply(x, y)
	return row, col
}

// MapGeoToGrid converts geographic (lat, lon) to grid (row, col),
// canonicalising longitude first for bracketing/wrapping rasters so
// either representation's bounds resolve consistently, per spec.md §4.9.
func (g *Geometry) MapGeoToGrid(lat, lon float64) (row, col float64) {
	return g.MapModelToGrid(g.canonicalizeLongitude(lon), lat)
}

// MapGridToGeo converts grid (row, col) to geographic (lat, lon).
func (g *Geometry) MapGridToGeo(row, col float64) (lat, lon float64) {
	x, y := g.MapGridToModel(row, col)
	return y, x
}

func (g *Geometry) canonicalizeLongitude(lon float64) float64 {
	switch {
	case g.geoBracketsLongitude:
		// Closed range [X0, X1]: both boundary columns are distinct,
		// duplicated samples of the same physical meridian.
		for lon < g.X0 {
			lon += 360
		}
		for lon > g.X1 {
			lon -= 360
		}
	case g.geoWrapsLongitude:
		// Half-open range [X0, X0+360): no duplicated boundary column.
		for lon < g.X0 {
			lon += 360
		}
		for lon >= g.X0+360 {
			lon -= 360
		}
	}
	return lon
}

// GeoBracketsLongitude reports whether the raster's first and last
// columns lie exactly 360 degrees apart (a duplicated boundary column).
func (g *Geometry) GeoBracketsLongitude() bool { return g.geoBracketsLongitude }

// GeoWrapsLongitude reports whether one column past the raster's last
// would return to its first (no duplicated boundary column).
func (g *Geometry) GeoWrapsLongitude() bool { return g.geoWrapsLongitude }
