// echotop/store.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package echotop

import (
	"sync"
	"time"

	"github.com/mmp/avmrms/mrms"
)

// Store holds the most recently assembled echo-top snapshot plus the
// per-threshold timestamp manifest. Unlike the volumetric Snapshot Store,
// echo-top is served as JSON with no on-disk wire format; the
// latest snapshot lives in memory only.
type Store struct {
	mu       sync.RWMutex
	latest   *Snapshot
	manifest *Manifest
}

func NewStore() *Store {
	return &Store{manifest: NewManifest()}
}

// Ingest assembles a snapshot from the grids observed for scanTime and
// records their arrival in the manifest. Any subset of the four
// thresholds may be present.
func (s *Store) Ingest(scanTime time.Time, grids map[int]*mrms.Grid, referenceTimes map[int]time.Time) *Snapshot {
	snap := Assemble(scanTime, grids, referenceTimes)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dbz := range Thresholds {
		if grids[dbz] == nil {
			continue
		}
		s.manifest.Observe(dbz, scanTime)
	}
	if s.latest == nil || scanTime.After(s.latest.ScanTime) {
		s.latest = snap
	}
	return snap
}

// Latest returns the most recently ingested snapshot, or false if none
// has arrived yet.
func (s *Store) Latest() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, false
	}
	return s.latest, true
}

// ThresholdTimestamps reports the known scan times for one threshold.
func (s *Store) ThresholdTimestamps(thresholdDbz int) ([]time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Timestamps(thresholdDbz)
}
