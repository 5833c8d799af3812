// ingest/consumer_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/scan"
)

func newTestScheduler() *scan.Scheduler {
	cfg := config.Load()
	cfg.Tunables = config.DefaultTunables()
	return scan.NewScheduler(cfg)
}

func TestConsumerHandleRecognizedKeyAcksAfterObserve(t *testing.T) {
	q := NewFakeQueue()
	sched := newTestScheduler()
	var dispatched []*scan.Pending

	c := &Consumer{
		Queue:    q,
		Sched:    sched,
		Dispatch: func(p *scan.Pending) { dispatched = append(dispatched, p) },
	}

	q.Enqueue("ReflectivityQC_00.50/20260730-130000.grib2")
	msgs, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	c.handle(context.Background(), msgs[0])

	if len(q.Deleted()) != 1 {
		t.Fatalf("expected message to be acknowledged, got %d deletes", len(q.Deleted()))
	}
	if sched.Len() != 1 {
		t.Fatalf("expected 1 pending scan tracked, got %d", sched.Len())
	}
}

func TestConsumerDropsUnrecognizedKeyButStillAcks(t *testing.T) {
	q := NewFakeQueue()
	sched := newTestScheduler()
	c := &Consumer{Queue: q, Sched: sched}

	q.Enqueue("not-a-valid-key")
	msgs, _ := q.Receive(context.Background())
	c.handle(context.Background(), msgs[0])

	if len(q.Deleted()) != 1 {
		t.Fatal("expected unrecognized key to still be acknowledged")
	}
	if sched.Len() != 0 {
		t.Fatalf("expected no pending scan for an unrecognized key, got %d", sched.Len())
	}
}

func TestConsumerDispatchesOnceScanBecomesReady(t *testing.T) {
	q := NewFakeQueue()
	sched := newTestScheduler()
	var dispatched []*scan.Pending
	c := &Consumer{Queue: q, Sched: sched, Dispatch: func(p *scan.Pending) { dispatched = append(dispatched, p) }}

	scanTime := time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)
	for _, level := range mrms.Levels {
		key := "ReflectivityQC_" + level + "/" + scanTime.Format("20060102-150405") + ".grib2"
		q.Enqueue(key)
	}
	msgs, _ := q.Receive(context.Background())
	for _, m := range msgs {
		c.handle(context.Background(), m)
	}

	if len(dispatched) != 1 {
		t.Fatalf("expected exactly one dispatch once all 33 levels arrive, got %d", len(dispatched))
	}
	if dispatched[0].State != scan.Ready {
		t.Errorf("expected dispatched pending scan to be Ready, got %v", dispatched[0].State)
	}
}
