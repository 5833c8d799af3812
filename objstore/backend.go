// objstore/backend.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package objstore implements the Object Store Client: a retrying fetch
// interface over the NOAA MRMS archive (S3-compatible) and an HTTP-only
// variant for auxiliary upstreams such as the traffic feed.
package objstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmp/avmrms/errs"
	"github.com/mmp/avmrms/rand"
)

// Backend fetches a single object by key. NotFound is reported by
// wrapping errs.ErrNotYetPublished; retryable failures wrap
// errs.ErrTransient; anything else is errs.ErrPermanent.
type Backend interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// RetryingBackend decorates another Backend with bounded-attempt
// exponential backoff and an overall deadline, retrying only errors that
// wrap errs.ErrTransient. It never retries ErrNotYetPublished: the caller
// (the pending-scans scheduler) owns that retry schedule.
type RetryingBackend struct {
	Inner      Backend
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewRetryingBackend(inner Backend) *RetryingBackend {
	return &RetryingBackend{
		Inner:       inner,
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (r *RetryingBackend) Fetch(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		data, err := r.Inner.Fetch(ctx, key)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !errs.Transient(err) {
			return nil, err
		}

		delay := backoffDelay(r.BaseDelay, r.MaxDelay, attempt)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w: %v", key, errs.ErrTransient, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%s: exhausted %d attempts: %w", key, r.MaxAttempts, lastErr)
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Intn(int(d) / 2))
	return d/2 + jitter
}

// HTTPBackend fetches objects over plain HTTP(S), relative to BaseURL.
// It is used both as the Tar1090 traffic fetcher and as a fallback/test
// double for the S3 backend.
type HTTPBackend struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{BaseURL: baseURL, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *HTTPBackend) Fetch(ctx context.Context, key string) ([]byte, error) {
	url := h.BaseURL + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", key, errs.ErrPermanent, err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", key, errs.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", key, errs.ErrNotYetPublished)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s: %w: status %d", key, errs.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: %w: status %d", key, errs.ErrPermanent, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", key, errs.ErrTransient, err)
	}
	return body, nil
}
