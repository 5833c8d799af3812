// grib2/decode_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package grib2

import (
	"math"
	"testing"
	"time"

	"github.com/mmp/avmrms/mrms"
)

func TestLooksLikeKelvin(t *testing.T) {
	celsius := []float32{-10, -5, 0, 5, 10, 15, 20}
	if looksLikeKelvin(celsius) {
		t.Errorf("expected celsius values not to be detected as Kelvin")
	}

	kelvin := []float32{260, 265, 270, 275, 280, 285, 290}
	if !looksLikeKelvin(kelvin) {
		t.Errorf("expected Kelvin values to be detected as Kelvin")
	}
}

func TestNormalizeTemperatureConvertsKelvin(t *testing.T) {
	grid := mrms.NewGrid(mrms.Bounds{Rows: 1, Cols: 3}, time.Time{}, mrms.UnitsDbz)
	grid.Values = []float32{273.15, 283.15, 263.15}

	normalizeTemperature(grid)

	if grid.Units != mrms.UnitsCelsius {
		t.Errorf("expected units celsius, got %v", grid.Units)
	}
	want := []float32{0, 10, -10}
	for i, w := range want {
		if math.Abs(float64(grid.Values[i]-w)) > 1e-3 {
			t.Errorf("value[%d] = %v, want %v", i, grid.Values[i], w)
		}
	}
}

func TestNormalizeHeightMetersToFeet(t *testing.T) {
	grid := mrms.NewGrid(mrms.Bounds{Rows: 1, Cols: 1}, time.Time{}, mrms.UnitsDbz)
	grid.Values = []float32{1000}

	normalizeHeight(grid)

	if grid.Units != mrms.UnitsFeet {
		t.Errorf("expected units feet, got %v", grid.Units)
	}
	if math.Abs(float64(grid.Values[0])-3280.8399) > 1e-2 {
		t.Errorf("value = %v, want ~3280.84", grid.Values[0])
	}
}

func TestDistinctSortedDescending(t *testing.T) {
	lats := []float32{10, 30, 20, 10, 30}
	got := distinctSorted(lats, true)
	want := []float32{30, 20, 10}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
