// ingest/echotop_ingest_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/mmp/avmrms/echotop"
	"github.com/mmp/avmrms/mrms"
)

func TestThresholdForMapsEchoTopFamilies(t *testing.T) {
	cases := map[mrms.Family]int{
		mrms.EchoTop18:     18,
		mrms.EchoTop30:     30,
		mrms.EchoTop50:     50,
		mrms.EchoTop60:     60,
		mrms.ReflectivityQC: 0,
	}
	for fam, want := range cases {
		if got := thresholdFor(fam); got != want {
			t.Errorf("thresholdFor(%v) = %d, want %d", fam, got, want)
		}
	}
}

func testGrid(v float32) *mrms.Grid {
	b := mrms.Bounds{MinLat: 39, MaxLat: 40, MinLon: -76, MaxLon: -75, Rows: 2, Cols: 2}
	g := mrms.NewGrid(b, time.Time{}, mrms.UnitsFeet)
	for i := range g.Values {
		g.Values[i] = v
	}
	return g
}

func TestIngestGridCarriesForwardStaleThresholds(t *testing.T) {
	e := NewEchoTopIngester(nil, echotop.NewStore(), nil)

	t1 := time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)
	e.ingestGrid(18, t1, testGrid(15000))

	t2 := t1.Add(2 * time.Minute)
	e.ingestGrid(30, t2, testGrid(18000))

	snap, ok := e.Store.Latest()
	if !ok {
		t.Fatal("expected a snapshot after ingesting two thresholds")
	}
	if !snap.ScanTime.Equal(t2) {
		t.Errorf("expected latest snapshot's scan_time to be the most recent arrival %v, got %v", t2, snap.ScanTime)
	}

	ts18, ok := e.Store.ThresholdTimestamps(18)
	if !ok || len(ts18) == 0 {
		t.Fatal("expected threshold 18 to still be recorded after threshold 30 arrived")
	}
}

func TestIngestSkipsNonEchoTopFamilies(t *testing.T) {
	e := NewEchoTopIngester(nil, echotop.NewStore(), nil)

	err := e.Ingest(context.Background(), mrms.ProductKey{
		Family:   mrms.ReflectivityQC,
		Level:    "00.50",
		ScanTime: time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected nil error for a non-echo-top family, got %v", err)
	}
	if _, ok := e.Store.Latest(); ok {
		t.Error("expected no snapshot to be published for a non-echo-top family")
	}
}
