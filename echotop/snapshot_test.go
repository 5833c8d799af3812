// echotop/snapshot_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package echotop

import (
	"testing"
	"time"

	"github.com/mmp/avmrms/mrms"
)

func makeGrid(bounds mrms.Bounds, fill float32) *mrms.Grid {
	g := mrms.NewGrid(bounds, time.Time{}, mrms.UnitsFeet)
	for i := range g.Values {
		g.Values[i] = fill
	}
	return g
}

func TestAssembleMissingThresholdWritesZero(t *testing.T) {
	bounds := mrms.Bounds{MinLat: 30, MaxLat: 31, MinLon: -100, MaxLon: -99, Rows: 2, Cols: 2}
	scanTime := time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)

	grids := map[int]*mrms.Grid{
		18: makeGrid(bounds, 25000),
		// 30, 50, 60 missing
	}
	refs := map[int]time.Time{18: scanTime}

	snap := Assemble(scanTime, grids, refs)
	if len(snap.Cells) != 4 {
		t.Fatalf("expected 4 cells, got %d", len(snap.Cells))
	}
	for _, c := range snap.Cells {
		if c.Top18Ft != 25000 {
			t.Errorf("expected top18=25000, got %d", c.Top18Ft)
		}
		if c.Top30Ft != 0 || c.Top50Ft != 0 || c.Top60Ft != 0 {
			t.Errorf("expected missing thresholds to be 0, got %+v", c)
		}
	}
}

func TestAssembleTracksPerThresholdMax(t *testing.T) {
	bounds := mrms.Bounds{MinLat: 30, MaxLat: 31, MinLon: -100, MaxLon: -99, Rows: 1, Cols: 2}
	scanTime := time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)

	g := mrms.NewGrid(bounds, time.Time{}, mrms.UnitsFeet)
	g.Set(0, 0, 10000)
	g.Set(0, 1, 35000)

	snap := Assemble(scanTime, map[int]*mrms.Grid{30: g}, map[int]time.Time{30: scanTime})
	idx := thresholdIndex(30)
	if snap.PerThresholdMaxFt[idx] != 35000 {
		t.Errorf("expected per-threshold max 35000, got %d", snap.PerThresholdMaxFt[idx])
	}
}

func TestAssembleNoGridsProducesEmptySnapshot(t *testing.T) {
	scanTime := time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)
	snap := Assemble(scanTime, map[int]*mrms.Grid{}, map[int]time.Time{})
	if len(snap.Cells) != 0 {
		t.Errorf("expected no cells when no grids are present, got %d", len(snap.Cells))
	}
}

func TestStoreIngestTracksLatestAndManifest(t *testing.T) {
	s := NewStore()
	bounds := mrms.Bounds{MinLat: 30, MaxLat: 31, MinLon: -100, MaxLon: -99, Rows: 1, Cols: 1}

	t0 := time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Minute)

	s.Ingest(t0, map[int]*mrms.Grid{18: makeGrid(bounds, 1000)}, map[int]time.Time{18: t0})
	s.Ingest(t1, map[int]*mrms.Grid{18: makeGrid(bounds, 2000)}, map[int]time.Time{18: t1})

	latest, ok := s.Latest()
	if !ok {
		t.Fatal("expected a latest snapshot")
	}
	if !latest.ScanTime.Equal(t1) {
		t.Errorf("expected latest scan_time %v, got %v", t1, latest.ScanTime)
	}

	times, ok := s.ThresholdTimestamps(18)
	if !ok || len(times) != 2 {
		t.Fatalf("expected 2 recorded timestamps for threshold 18, got %v (ok=%v)", times, ok)
	}
}

func TestSnapshotToJSONOmitsAllZeroCells(t *testing.T) {
	snap := &Snapshot{
		ScanTime: time.Now().UTC(),
		Cells: []Cell{
			{XNm100: 0, ZNm100: 0},                 // all-zero, omitted
			{XNm100: 100, ZNm100: 0, Top18Ft: 5000}, // kept
		},
	}
	out := snap.ToJSON()
	if len(out.Cells) != 1 {
		t.Fatalf("expected 1 non-empty cell in JSON output, got %d", len(out.Cells))
	}
	if out.Cells[0].Top18 != 5000 {
		t.Errorf("expected top18_ft=5000, got %d", out.Cells[0].Top18)
	}
}
