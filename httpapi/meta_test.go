// httpapi/meta_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmp/avmrms/brick"
	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/phase"
	"github.com/mmp/avmrms/scan"
)

func TestHandleMetaNotReadyWithoutSnapshot(t *testing.T) {
	s := newTestServer(t, nil)
	s.Sched = scan.NewScheduler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/meta", nil)
	w := httptest.NewRecorder()
	s.handleMeta(w, req)

	var resp metaResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if resp.Ready {
		t.Errorf("expected Ready=false with no snapshot, got true")
	}
	if resp.LatestScanTime != nil {
		t.Errorf("expected nil LatestScanTime, got %v", resp.LatestScanTime)
	}
}

func TestHandleMetaReadyAfterSnapshot(t *testing.T) {
	b := testBounds()
	snap := testSnapshot(b, []brick.Voxel{
		{XNm100: 0, ZNm100: 0, DbzTenths: 300, ThermoPhase: phase.Rain, SurfacePhase: phase.Rain},
	})
	s := newTestServer(t, snap)
	s.Sched = scan.NewScheduler(config.Config{})
	s.Sched.ObserveReflectivity(snap.ScanTime, mrms.Levels[0], snap.ScanTime)

	req := httptest.NewRequest(http.MethodGet, "/v1/meta", nil)
	w := httptest.NewRecorder()
	s.handleMeta(w, req)

	var resp metaResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected Ready=true after a snapshot is written, got false")
	}
	if resp.LatestScanTime == nil || !resp.LatestScanTime.Equal(snap.ScanTime) {
		t.Errorf("unexpected LatestScanTime: %v", resp.LatestScanTime)
	}
	if resp.SnapshotCount != 1 {
		t.Errorf("expected SnapshotCount=1, got %d", resp.SnapshotCount)
	}
	if resp.PendingScansByState["observed_partial"] != 1 {
		t.Errorf("expected one observed_partial pending scan, got %+v", resp.PendingScansByState)
	}
}
