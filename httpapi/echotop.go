// httpapi/echotop.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleEchoTops serves the most recently assembled echo-top snapshot as
// JSON; no binary wire format applies to this endpoint. Unlike the volume
// endpoint, cells are reported relative to the grid's own corner; no
// request-origin reprojection applies here.
func (s *Server) handleEchoTops(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.EchoTops.Latest()
	if !ok {
		http.Error(w, "no echo-top snapshot available yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap.ToJSON()); err != nil {
		s.Lg.Warnf("httpapi: encoding echo-top response: %v", err)
	}
}
