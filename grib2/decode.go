// grib2/decode.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package grib2 decodes MRMS GRIB2 messages, including PNG-packed data
// templates, into mrms.Grid values with units normalized per family.
package grib2

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/mmp/squall"

	"github.com/mmp/avmrms/errs"
	"github.com/mmp/avmrms/mrms"
)

// DecodeError reports why a GRIB2 message could not be turned into a
// usable Grid: template corruption, dimension mismatch, or an unsupported
// template. It wraps errs.ErrPermanent since none of these are retryable.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "grib2 decode: " + e.Reason }
func (e *DecodeError) Unwrap() error { return errs.ErrPermanent }

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses raw GRIB2 message bytes for the given family and returns
// the single matching decoded grid, with units normalized per family:
// reflectivity stays in dBZ, temperatures become Celsius, heights become
// feet, ratios/flags pass through unchanged.
//
// Section parsing, including PNG-packed (template 5.41-style) payloads,
// is delegated to squall, which already reconstructs the regular lat/lon
// grid and per-point sample array from the GRIB2 bitstream.
func Decode(raw []byte, family mrms.Family) (*mrms.Grid, error) {
	records, err := squall.Read(bytes.NewReader(raw))
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, decodeErrorf("truncated message: %v", err)
		}
		return nil, decodeErrorf("unsupported template or corrupt section: %v", err)
	}
	if len(records) == 0 {
		return nil, decodeErrorf("no records in message")
	}

	rec := records[0]
	if rec.NumPoints == 0 || len(rec.Data) != rec.NumPoints ||
		len(rec.Latitudes) != rec.NumPoints || len(rec.Longitudes) != rec.NumPoints {
		return nil, decodeErrorf("dimension mismatch: NumPoints=%d len(Data)=%d", rec.NumPoints, len(rec.Data))
	}

	grid, err := griddize(rec.Latitudes, rec.Longitudes, rec.Data)
	if err != nil {
		return nil, decodeErrorf("%v", err)
	}
	grid.ReferenceTime = rec.ReferenceTime.UTC()

	normalize(grid, family)
	return grid, nil
}

// griddize reconstructs a regular row-major grid from squall's per-point
// lat/lon/value arrays by discovering the distinct latitude and longitude
// values and placing each sample at its (row, col).
func griddize(lats, lons, values []float32) (*mrms.Grid, error) {
	latSet := distinctSorted(lats, true)
	lonSet := distinctSorted(lons, false)
	rows, cols := len(latSet), len(lonSet)
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty grid")
	}

	latIndex := make(map[float32]int, rows)
	for i, v := range latSet {
		latIndex[v] = i
	}
	lonIndex := make(map[float32]int, cols)
	for i, v := range lonSet {
		lonIndex[v] = i
	}

	b := mrms.Bounds{
		MinLat: float64(latSet[rows-1]),
		MaxLat: float64(latSet[0]),
		MinLon: float64(lonSet[0]),
		MaxLon: float64(lonSet[cols-1]),
		Rows:   rows,
		Cols:   cols,
	}
	g := mrms.NewGrid(b, time.Time{}, mrms.UnitsDbz) // units/time fixed up by caller
	for i := range g.Values {
		g.Values[i] = float32(math.NaN())
	}

	for i := range values {
		row := latIndex[lats[i]]
		col := lonIndex[lons[i]]
		g.Set(row, col, values[i])
	}
	return g, nil
}

func distinctSorted(vals []float32, descending bool) []float32 {
	seen := make(map[float32]bool)
	var out []float32
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i] > out[j]
		}
		return out[i] < out[j]
	})
	return out
}

// normalize rewrites grid.Units and, for temperature/height families,
// rescales grid.Values in place.
func normalize(grid *mrms.Grid, family mrms.Family) {
	switch family {
	case mrms.ReflectivityQC:
		grid.Units = mrms.UnitsDbz
	case mrms.Zdr:
		grid.Units = mrms.UnitsDb
	case mrms.RhoHV, mrms.RadarQualityIndex:
		grid.Units = mrms.UnitsRatio
	case mrms.PrecipFlag:
		grid.Units = mrms.UnitsFlag
	case mrms.WetBulbTemp, mrms.SurfaceTemp:
		normalizeTemperature(grid)
	case mrms.FreezingLevelHeight, mrms.BrightBandTop, mrms.BrightBandBottom:
		normalizeHeight(grid)
	case mrms.EchoTop18, mrms.EchoTop30, mrms.EchoTop50, mrms.EchoTop60:
		normalizeHeight(grid)
	default:
		grid.Units = mrms.UnitsRatio
	}
}

// normalizeTemperature converts Kelvin payloads to Celsius, detected by
// the 5th-95th percentile lying above 150 units.
func normalizeTemperature(grid *mrms.Grid) {
	if looksLikeKelvin(grid.Values) {
		for i, v := range grid.Values {
			if !math.IsNaN(float64(v)) {
				grid.Values[i] = v - 273.15
			}
		}
	}
	grid.Units = mrms.UnitsCelsius
}

func looksLikeKelvin(values []float32) bool {
	var finite []float32
	for _, v := range values {
		if !math.IsNaN(float64(v)) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return false
	}
	sorted := append([]float32(nil), finite...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p5 := percentile(sorted, 0.05)
	p95 := percentile(sorted, 0.95)
	return p5 > 150 && p95 > 150
}

func percentile(sorted []float32, p float64) float32 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lo)
	return sorted[lo] + float32(frac)*(sorted[hi]-sorted[lo])
}

// normalizeHeight converts meter payloads to feet. MRMS height products
// are published in meters; 1 m = 3.2808399 ft.
func normalizeHeight(grid *mrms.Grid) {
	const metersToFeet = 3.2808399
	for i, v := range grid.Values {
		if !math.IsNaN(float64(v)) {
			grid.Values[i] = v * metersToFeet
		}
	}
	grid.Units = mrms.UnitsFeet
}
