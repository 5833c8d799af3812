// echotop/snapshot.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package echotop assembles and serves the echo-top grid product: a
// separate, lower-fidelity precipitation-top product keyed by four dBZ
// thresholds (18/30/50/60), served as JSON rather than the binary wire
// format used for the volumetric scan.
package echotop

import (
	"math"
	"time"

	"github.com/mmp/avmrms/mrms"
)

// Thresholds lists the four echo-top dBZ thresholds in the fixed order
// used throughout this package (index 0..3).
var Thresholds = [4]int{18, 30, 50, 60}

func thresholdIndex(dbz int) int {
	for i, t := range Thresholds {
		if t == dbz {
			return i
		}
	}
	return -1
}

// Cell is one echo-top grid point: the four per-threshold tops, in feet,
// paired by grid cell. A missing threshold writes 0.
type Cell struct {
	XNm100  int16
	ZNm100  int16
	Top18Ft uint16
	Top30Ft uint16
	Top50Ft uint16
	Top60Ft uint16
}

func (c *Cell) set(thresholdDbz int, feet uint16) {
	switch thresholdDbz {
	case 18:
		c.Top18Ft = feet
	case 30:
		c.Top30Ft = feet
	case 50:
		c.Top50Ft = feet
	case 60:
		c.Top60Ft = feet
	}
}

// Snapshot is one assembled echo-top scan: the per-threshold grids paired
// cell-by-cell, plus per-threshold timestamps and max-feet summaries.
type Snapshot struct {
	ScanTime               time.Time
	PerThresholdTimestamps [4]time.Time
	PerThresholdMaxFt      [4]uint16
	Cells                  []Cell
}

// Assemble pairs up to four per-threshold grids (any of which may be nil
// if that threshold has not yet arrived for this scan time) into a single
// Snapshot. Grids must share identical Bounds; a mismatched grid is
// skipped rather than erroring, since echo-top thresholds publish
// independently and a scan should still serve whichever thresholds are
// available.
func Assemble(scanTime time.Time, grids map[int]*mrms.Grid, timestamps map[int]time.Time) *Snapshot {
	snap := &Snapshot{ScanTime: scanTime}

	var bounds mrms.Bounds
	haveBounds := false
	for _, dbz := range Thresholds {
		g := grids[dbz]
		if g == nil {
			continue
		}
		if !haveBounds {
			bounds = g.Bounds
			haveBounds = true
		} else if g.Bounds != bounds {
			continue
		}
		idx := thresholdIndex(dbz)
		snap.PerThresholdTimestamps[idx] = timestamps[dbz]
	}
	if !haveBounds {
		return snap
	}

	// Offsets from the grid's northwest corner (max_lat, min_lon), using
	// the same flat-earth projection as the volumetric snapshot.
	nmPerLon := 60 * math.Cos(bounds.MaxLat*math.Pi/180)
	snap.Cells = make([]Cell, bounds.Rows*bounds.Cols)
	for row := 0; row < bounds.Rows; row++ {
		for col := 0; col < bounds.Cols; col++ {
			i := row*bounds.Cols + col
			snap.Cells[i] = Cell{
				XNm100: int16(float64(col) * bounds.LonStep() * nmPerLon * 100),
				ZNm100: int16(float64(row) * bounds.LatStep() * 60 * 100),
			}
		}
	}

	for _, dbz := range Thresholds {
		g := grids[dbz]
		if g == nil || g.Bounds != bounds {
			continue
		}
		idx := thresholdIndex(dbz)
		var maxFt uint16
		for row := 0; row < bounds.Rows; row++ {
			for col := 0; col < bounds.Cols; col++ {
				v := g.At(row, col)
				if v <= 0 {
					continue
				}
				feet := uint16(v)
				snap.Cells[row*bounds.Cols+col].set(dbz, feet)
				if feet > maxFt {
					maxFt = feet
				}
			}
		}
		snap.PerThresholdMaxFt[idx] = maxFt
	}

	return snap
}
