// ingest/echotop_ingest.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/mmp/avmrms/echotop"
	"github.com/mmp/avmrms/grib2"
	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/objstore"
	"github.com/mmp/avmrms/wxlog"
)

// EchoTopIngester fetches and decodes the four EchoTop_{18,30,50,60}
// products independently of the volumetric reflectivity pipeline: each
// threshold publishes on its own schedule, with no pending-scan readiness
// gate, so a new arrival immediately republishes an echo-top snapshot
// built from whatever thresholds are currently cached.
type EchoTopIngester struct {
	Backend objstore.Backend
	Store   *echotop.Store
	Lg      *wxlog.Logger

	mu    sync.Mutex
	grids map[int]*mrms.Grid
	times map[int]time.Time
}

func NewEchoTopIngester(backend objstore.Backend, store *echotop.Store, lg *wxlog.Logger) *EchoTopIngester {
	return &EchoTopIngester{
		Backend: backend,
		Store:   store,
		Lg:      lg,
		grids:   make(map[int]*mrms.Grid),
		times:   make(map[int]time.Time),
	}
}

func thresholdFor(f mrms.Family) int {
	switch f {
	case mrms.EchoTop18:
		return 18
	case mrms.EchoTop30:
		return 30
	case mrms.EchoTop50:
		return 50
	case mrms.EchoTop60:
		return 60
	default:
		return 0
	}
}

// Ingest fetches and decodes one EchoTop product, folds it into the
// latest-per-threshold cache, and republishes the echo-top snapshot for
// key.ScanTime built from every threshold currently cached (stale
// thresholds from an earlier scan_time are carried forward rather than
// dropped, matching the "missing threshold writes 0" rule only applying
// to thresholds never observed at all).
func (e *EchoTopIngester) Ingest(ctx context.Context, key mrms.ProductKey) error {
	threshold := thresholdFor(key.Family)
	if threshold == 0 {
		return nil
	}

	raw, err := e.Backend.Fetch(ctx, key.ObjectKey())
	if err != nil {
		return err
	}
	grid, err := grib2.Decode(raw, key.Family)
	if err != nil {
		return err
	}

	e.ingestGrid(threshold, key.ScanTime, grid)
	return nil
}

// ingestGrid folds one already-decoded threshold grid into the cache and
// republishes the echo-top snapshot. Split out from Ingest so the cache
// merge/publish logic can be exercised without a real GRIB2 payload.
func (e *EchoTopIngester) ingestGrid(threshold int, scanTime time.Time, grid *mrms.Grid) {
	e.mu.Lock()
	e.grids[threshold] = grid
	e.times[threshold] = scanTime
	grids := make(map[int]*mrms.Grid, len(e.grids))
	times := make(map[int]time.Time, len(e.times))
	for k, v := range e.grids {
		grids[k] = v
	}
	for k, v := range e.times {
		times[k] = v
	}
	e.mu.Unlock()

	e.Store.Ingest(scanTime, grids, times)
}
