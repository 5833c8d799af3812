// scan/scheduler.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scan

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/mrms"
)

// Scheduler owns the pending-scans map and next_due heap. Its methods are
// safe for concurrent use: a mutex guards the map and heap, and callers
// coordinate through this type rather than sharing the map directly.
type Scheduler struct {
	mu       sync.Mutex
	byTime   map[int64]*Pending
	dueHeap  dueHeap
	retryBase time.Duration
	retryCap  time.Duration
	horizon   time.Duration
	tunables  config.Tunables
}

func NewScheduler(cfg config.Config) *Scheduler {
	return &Scheduler{
		byTime:    make(map[int64]*Pending),
		retryBase: cfg.PendingRetryBase,
		retryCap:  cfg.PendingRetryCap,
		horizon:   cfg.EvictionHorizon,
		tunables:  cfg.Tunables,
	}
}

func (s *Scheduler) get(scanTime time.Time, now time.Time) *Pending {
	key := scanTime.Unix()
	p, ok := s.byTime[key]
	if !ok {
		p = newPending(scanTime, now)
		s.byTime[key] = p
		heap.Push(&s.dueHeap, p)
	}
	return p
}

// ObserveReflectivity records a ReflectivityQC/<level> arrival and
// transitions the scan to Ready if all 33 levels are now present.
func (s *Scheduler) ObserveReflectivity(scanTime time.Time, level string, now time.Time) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.get(scanTime, now)
	p.ObserveReflectivity(level)
	if p.ReflectivityReady() && p.State != Persisted && p.State != Evicted {
		p.State = Ready
	}
	return p
}

// ObserveAux records a Zdr/RhoHV/context-aux arrival.
func (s *Scheduler) ObserveAux(scanTime time.Time, family mrms.Family, ts time.Time, level string, now time.Time) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.get(scanTime, now)
	p.ObserveAux(family, ts, level)
	return p
}

// SelectAux implements the aux best-effort rule: an exact-timestamp
// match across all levels wins; otherwise the latest timestamp <= scanTime
// covering at least AuxMinLevelCoverage of the levels is used. Returns nil
// if nothing qualifies.
func (s *Scheduler) SelectAux(p *Pending, family mrms.Family, scanTime time.Time) *AuxObservation {
	byTs, ok := p.AuxObserved[family]
	if !ok || len(byTs) == 0 {
		return nil
	}

	var candidates []*AuxObservation
	for _, obs := range byTs {
		if !obs.Timestamp.After(scanTime) {
			candidates = append(candidates, obs)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})

	for _, c := range candidates {
		if c.Timestamp.Equal(scanTime) && len(c.Levels) >= mrms.NumLevels {
			return c
		}
	}

	for _, c := range candidates {
		if c.LevelFraction() >= s.tunables.AuxMinLevelCoverage {
			return c
		}
	}
	return nil
}

// SelectContextAux returns the latest context-aux observation at or
// before scanTime for family (PrecipFlag, FreezingLevelHeight, etc.),
// which are column-wide and don't carry a per-level coverage fraction.
func (s *Scheduler) SelectContextAux(p *Pending, family mrms.Family, scanTime time.Time) *AuxObservation {
	byTs, ok := p.AuxObserved[family]
	if !ok || len(byTs) == 0 {
		return nil
	}
	var best *AuxObservation
	for _, obs := range byTs {
		if !obs.Timestamp.After(scanTime) && (best == nil || obs.Timestamp.After(best.Timestamp)) {
			best = obs
		}
	}
	return best
}

// MarkFailedRetry bumps attempts and reschedules next_due using the
// configured backoff, re-pushing a fresh heap entry (lazy deletion: any
// earlier heap entry for this scan becomes stale and is skipped on pop).
func (s *Scheduler) MarkFailedRetry(p *Pending, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Attempts++
	backoff := s.retryBase << uint(min(p.Attempts, 16))
	if backoff > s.retryCap || backoff <= 0 {
		backoff = s.retryCap
	}
	p.NextDue = now.Add(backoff)
	heap.Push(&s.dueHeap, p)
}

func (s *Scheduler) MarkPersisted(p *Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.State = Persisted
	delete(s.byTime, p.ScanTime.Unix())
}

// PopReady returns the pending scan with the earliest next_due that is
// currently due (next_due <= now) and in state Ready, skipping stale
// heap entries (lazy deletion) and already-terminal scans. Returns nil
// if nothing is due.
func (s *Scheduler) PopReady(now time.Time) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Due scans that are not Ready yet are set aside while the search
	// continues, then re-pushed so they are reconsidered at their next_due.
	var notReady []*Pending
	defer func() {
		for _, q := range notReady {
			heap.Push(&s.dueHeap, q)
		}
	}()

	for s.dueHeap.Len() > 0 {
		top := s.dueHeap[0]
		if top.NextDue.After(now) {
			return nil
		}
		popped := heap.Pop(&s.dueHeap).(*Pending)

		current, stillTracked := s.byTime[popped.ScanTime.Unix()]
		if !stillTracked || current != popped {
			continue // stale entry for a scan that's been replaced or retired
		}
		if popped.State == Persisted || popped.State == Evicted {
			continue
		}
		if popped.State != Ready {
			notReady = append(notReady, popped)
			continue
		}
		return popped
	}
	return nil
}

// EvictExpired marks and removes any pending scan older than the
// eviction horizon, returning the evicted scans for logging.
func (s *Scheduler) EvictExpired(now time.Time) []*Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []*Pending
	for key, p := range s.byTime {
		if p.State == Persisted || p.State == Evicted {
			continue
		}
		if now.Sub(p.FirstSeen) > s.horizon {
			p.State = Evicted
			evicted = append(evicted, p)
			delete(s.byTime, key)
		}
	}
	return evicted
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTime)
}

// Stats reports the number of tracked pending scans in each State, for
// /v1/meta's readiness summary.
func (s *Scheduler) Stats() map[State]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[State]int, 4)
	for _, p := range s.byTime {
		out[p.State]++
	}
	return out
}

///////////////////////////////////////////////////////////////////////////
// dueHeap is a container/heap.Interface over *Pending, ordered by NextDue.

type dueHeap []*Pending

func (h dueHeap) Len() int            { return len(h) }
func (h dueHeap) Less(i, j int) bool  { return h[i].NextDue.Before(h[j].NextDue) }
func (h dueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *dueHeap) Push(x any) {
	p := x.(*Pending)
	p.heapIndex = len(*h)
	*h = append(*h, p)
}

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.heapIndex = -1
	*h = old[:n-1]
	return p
}
