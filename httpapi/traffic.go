// httpapi/traffic.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package httpapi

import (
	"net/http"

	"github.com/mmp/avmrms/errs"
)

// handleTraffic proxies the Tar1090 aircraft feed. Per the "no ADS-B
// decoding beyond acknowledging that the same service may host an
// unrelated traffic endpoint" non-goal, this is an acknowledged passthrough:
// the upstream JSON is forwarded byte-for-byte, with no parsing of aircraft
// records. The fetch shares the object store's retry machinery but not the
// ingest/snapshot pipeline.
func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	if s.Traffic == nil {
		http.Error(w, "traffic endpoint not configured", http.StatusNotFound)
		return
	}

	key := "data/aircraft.json"
	if q := r.URL.RawQuery; q != "" {
		key += "?" + q
	}

	raw, err := s.Traffic.Fetch(r.Context(), key)
	if err != nil {
		switch {
		case errs.NotFound(err):
			http.Error(w, "traffic feed unavailable", http.StatusNotFound)
		case errs.Transient(err):
			http.Error(w, "traffic feed temporarily unavailable", http.StatusBadGateway)
		default:
			s.Lg.Warnf("httpapi: traffic fetch: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}
