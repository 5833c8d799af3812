// httpapi/meta.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmp/avmrms/snapshot"
)

// metaResponse is /v1/meta's body: readiness plus scan stats plus phase
// telemetry for the latest snapshot.
type metaResponse struct {
	Ready               bool             `json:"ready"`
	UptimeSeconds       float64          `json:"uptime_seconds"`
	LatestScanTime      *time.Time       `json:"latest_scan_time,omitempty"`
	SnapshotCount       int              `json:"snapshot_count"`
	SnapshotBytes       int64            `json:"snapshot_bytes"`
	PendingScansByState map[string]int   `json:"pending_scans_by_state"`
	PhaseTelemetry      *snapshot.PhaseMeta `json:"phase_telemetry,omitempty"`
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	resp := metaResponse{
		UptimeSeconds:       time.Since(s.Lg.Start).Seconds(),
		SnapshotCount:       s.Store.Len(),
		SnapshotBytes:       s.Store.TotalBytes(),
		PendingScansByState: map[string]int{},
	}
	if s.Sched != nil {
		for state, n := range s.Sched.Stats() {
			resp.PendingScansByState[state.String()] = n
		}
	}

	if snap, err := s.Store.ReadLatest(); err == nil {
		resp.Ready = true
		t := snap.ScanTime
		resp.LatestScanTime = &t
		resp.PhaseTelemetry = &snap.PhaseMeta
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
