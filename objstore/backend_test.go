// objstore/backend_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package objstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mmp/avmrms/errs"
)

type fakeBackend struct {
	failures int
	fetched  int
}

func (f *fakeBackend) Fetch(ctx context.Context, key string) ([]byte, error) {
	f.fetched++
	if f.fetched <= f.failures {
		return nil, fmt.Errorf("%s: %w", key, errs.ErrTransient)
	}
	return []byte("ok"), nil
}

func TestRetryingBackendRetriesTransient(t *testing.T) {
	fb := &fakeBackend{failures: 2}
	rb := &RetryingBackend{Inner: fb, MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	data, err := rb.Fetch(context.Background(), "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("got %q, want ok", data)
	}
	if fb.fetched != 3 {
		t.Errorf("fetched %d times, want 3", fb.fetched)
	}
}

func TestRetryingBackendGivesUpAfterMaxAttempts(t *testing.T) {
	fb := &fakeBackend{failures: 10}
	rb := &RetryingBackend{Inner: fb, MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	_, err := rb.Fetch(context.Background(), "key")
	if err == nil {
		t.Fatal("expected error")
	}
	if fb.fetched != 3 {
		t.Errorf("fetched %d times, want 3", fb.fetched)
	}
}

type notFoundBackend struct{}

func (notFoundBackend) Fetch(ctx context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("%s: %w", key, errs.ErrNotYetPublished)
}

func TestRetryingBackendDoesNotRetryNotFound(t *testing.T) {
	rb := &RetryingBackend{Inner: notFoundBackend{}, MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	_, err := rb.Fetch(context.Background(), "key")
	if !errs.NotFound(err) {
		t.Fatalf("expected NotYetPublished, got %v", err)
	}
}
