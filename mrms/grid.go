// mrms/grid.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package mrms

import "time"

// Bounds describes a lat/lon grid extent.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	Rows, Cols     int
}

// LatStep returns the spacing in degrees between grid rows.
func (b Bounds) LatStep() float64 {
	if b.Rows <= 1 {
		return 0
	}
	return (b.MaxLat - b.MinLat) / float64(b.Rows-1)
}

// LonStep returns the spacing in degrees between grid columns.
func (b Bounds) LonStep() float64 {
	if b.Cols <= 1 {
		return 0
	}
	return (b.MaxLon - b.MinLon) / float64(b.Cols-1)
}

// RowColToLatLon maps a grid index to its center coordinate.
func (b Bounds) RowColToLatLon(row, col int) (lat, lon float64) {
	lat = b.MaxLat - float64(row)*b.LatStep()
	lon = b.MinLon + float64(col)*b.LonStep()
	return lat, lon
}

// Units tags the physical quantity a decoded grid carries, after
// normalization by the GRIB2 decoder.
type Units string

const (
	UnitsDbz     Units = "dBZ"
	UnitsCelsius Units = "celsius"
	UnitsFeet    Units = "feet"
	UnitsRatio   Units = "ratio" // RhoHV, RQI: unitless [0,1]
	UnitsDb      Units = "dB"    // Zdr
	UnitsFlag    Units = "flag"  // PrecipFlag codes
)

// Grid is a decoded GRIB2 message: a row-major array of single-precision
// values plus its spatial bounds, reference time, and normalized units.
// Missing cells are NaN.
type Grid struct {
	Bounds        Bounds
	ReferenceTime time.Time
	Units         Units
	Values        []float32 // len == Bounds.Rows*Bounds.Cols, row-major
}

func NewGrid(b Bounds, ref time.Time, units Units) *Grid {
	return &Grid{
		Bounds:        b,
		ReferenceTime: ref,
		Units:         units,
		Values:        make([]float32, b.Rows*b.Cols),
	}
}

func (g *Grid) At(row, col int) float32 {
	return g.Values[row*g.Bounds.Cols+col]
}

func (g *Grid) Set(row, col int, v float32) {
	g.Values[row*g.Bounds.Cols+col] = v
}
