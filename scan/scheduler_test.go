// scan/scheduler_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scan

import (
	"container/heap"
	"testing"
	"time"

	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/mrms"
)

func testScheduler() *Scheduler {
	cfg := config.Load()
	return NewScheduler(cfg)
}

func makeReady(s *Scheduler, scanTime, now time.Time) *Pending {
	var p *Pending
	for _, level := range mrms.Levels {
		p = s.ObserveReflectivity(scanTime, level, now)
	}
	return p
}

func TestEarliestDueFirst(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	scanA := now
	scanB := now.Add(time.Minute) // newer scan_time

	pa := makeReady(s, scanA, now)
	pb := makeReady(s, scanB, now)

	// Make B due sooner than A, even though A has an older scan_time.
	pa.NextDue = now.Add(10 * time.Minute)
	pb.NextDue = now.Add(time.Second)
	// NextDue was written directly, so restore the heap order.
	heap.Init(&s.dueHeap)

	check := now.Add(2 * time.Second)
	first := s.PopReady(check)
	if first != pb {
		t.Fatalf("expected B (earlier next_due) to be selected first, got scan_time=%v", first.ScanTime)
	}

	second := s.PopReady(check)
	if second != nil {
		t.Fatalf("A's next_due is still in the future, should not be popped yet")
	}
}

func TestNoStarvationRetrySchedulesFutureAttempt(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	scanTime := now

	p := s.ObserveReflectivity(scanTime, mrms.Levels[0], now)
	if p.State != ObservedPartial {
		t.Fatalf("expected ObservedPartial with only one level observed")
	}

	// Not ready: PopReady at now should find nothing (state != Ready).
	if due := s.PopReady(now); due != nil {
		t.Fatalf("expected no ready scan, got one")
	}

	s.MarkFailedRetry(p, now)
	if !p.NextDue.After(now) {
		t.Fatalf("expected NextDue to move into the future after a failed retry")
	}
	if p.Attempts != 1 {
		t.Fatalf("expected Attempts=1, got %d", p.Attempts)
	}
}

func TestReflectivityReadyRequiresAllLevels(t *testing.T) {
	s := testScheduler()
	now := time.Now()
	scanTime := now

	p := s.ObserveReflectivity(scanTime, mrms.Levels[0], now)
	if p.ReflectivityReady() {
		t.Fatalf("expected not ready with only 1/%d levels", mrms.NumLevels)
	}

	for _, level := range mrms.Levels[1:] {
		p = s.ObserveReflectivity(scanTime, level, now)
	}
	if !p.ReflectivityReady() {
		t.Fatalf("expected ready with all %d levels observed", mrms.NumLevels)
	}
	if p.State != Ready {
		t.Fatalf("expected state Ready, got %v", p.State)
	}
}

func TestSelectAuxFallsBackWhenExactMatchIsPartial(t *testing.T) {
	s := testScheduler()
	scanTime := time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC)
	p := newPending(scanTime, scanTime)

	// Partial coverage at the exact scan time.
	for _, level := range mrms.Levels[:10] {
		p.ObserveAux(mrms.Zdr, scanTime, level)
	}
	// Full coverage 2 minutes earlier.
	earlier := scanTime.Add(-2 * time.Minute)
	for _, level := range mrms.Levels {
		p.ObserveAux(mrms.Zdr, earlier, level)
	}

	sel := s.SelectAux(p, mrms.Zdr, scanTime)
	if sel == nil {
		t.Fatal("expected a selection")
	}
	if !sel.Timestamp.Equal(earlier) {
		t.Errorf("expected to fall back to the full-coverage earlier timestamp since exact match is partial, got %v", sel.Timestamp)
	}
}

func TestSelectAuxRejectsBelowMinCoverage(t *testing.T) {
	s := testScheduler()
	scanTime := time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC)
	p := newPending(scanTime, scanTime)

	for _, level := range mrms.Levels[:5] {
		p.ObserveAux(mrms.RhoHV, scanTime.Add(-time.Minute), level)
	}

	sel := s.SelectAux(p, mrms.RhoHV, scanTime)
	if sel != nil {
		t.Fatalf("expected no selection below AuxMinLevelCoverage, got %v", sel)
	}
}
