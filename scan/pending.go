// scan/pending.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package scan implements the Pending-Scans Scheduler: per-scan-time
// readiness tracking and earliest-due-first retry scheduling, as a hash
// map plus a lazy-deletion binary heap keyed by next_due.
package scan

import (
	"time"

	"github.com/mmp/avmrms/mrms"
)

type State int

const (
	ObservedNone State = iota
	ObservedPartial
	Ready
	Persisted
	Evicted
)

func (s State) String() string {
	switch s {
	case ObservedNone:
		return "observed_none"
	case ObservedPartial:
		return "observed_partial"
	case Ready:
		return "ready"
	case Persisted:
		return "persisted"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// AuxObservation tracks the best dual-pol (or context-aux) timestamp seen
// for one family at or before the scan time, and how many of the 33
// levels it covers (context-aux families are column-wide and record only
// mrms.SurfaceLevel, so Levels holds a single entry for them).
type AuxObservation struct {
	Timestamp time.Time
	Levels    map[string]bool
}

func (a *AuxObservation) LevelFraction() float64 {
	if a == nil {
		return 0
	}
	return float64(len(a.Levels)) / float64(mrms.NumLevels)
}

// Pending tracks one scan_time's ingest progress.
type Pending struct {
	ScanTime  time.Time
	State     State
	Observed  map[string]bool // level keys such as "01.25", reflectivity only
	FirstSeen time.Time
	NextDue   time.Time
	Attempts  int

	// AuxObserved maps family -> timestamp -> AuxObservation, used for
	// Zdr/RhoHV best-effort matching and context-aux latest-available
	// lookups.
	AuxObserved map[mrms.Family]map[int64]*AuxObservation

	// AuxFallback records whether the aux used for the final snapshot
	// was more than the configured staleness threshold old.
	AuxFallback bool

	// heapIndex is maintained by container/heap; -1 means not currently
	// in the heap (a stale/lazily-deleted entry).
	heapIndex int
}

func newPending(scanTime, now time.Time) *Pending {
	return &Pending{
		ScanTime:    scanTime,
		State:       ObservedNone,
		Observed:    make(map[string]bool),
		FirstSeen:   now,
		NextDue:     now,
		AuxObserved: make(map[mrms.Family]map[int64]*AuxObservation),
		heapIndex:   -1,
	}
}

// ReflectivityReady reports whether all 33 reflectivity levels have been
// observed.
func (p *Pending) ReflectivityReady() bool {
	if len(p.Observed) < mrms.NumLevels {
		return false
	}
	for _, level := range mrms.Levels {
		if !p.Observed[level] {
			return false
		}
	}
	return true
}

// ObserveReflectivity records one ReflectivityQC level's arrival.
func (p *Pending) ObserveReflectivity(level string) {
	p.Observed[level] = true
	if p.State == ObservedNone {
		p.State = ObservedPartial
	}
}

// ObserveAux records one Zdr/RhoHV/context-aux product's arrival at a
// given timestamp and level (level is mrms.SurfaceLevel for context aux).
func (p *Pending) ObserveAux(family mrms.Family, ts time.Time, level string) {
	byTs, ok := p.AuxObserved[family]
	if !ok {
		byTs = make(map[int64]*AuxObservation)
		p.AuxObserved[family] = byTs
	}
	key := ts.Unix()
	obs, ok := byTs[key]
	if !ok {
		obs = &AuxObservation{Timestamp: ts, Levels: make(map[string]bool)}
		byTs[key] = obs
	}
	obs.Levels[level] = true
}
