// httpapi/server.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package httpapi implements the HTTP surface: /healthz, /v1/meta, the
// binary volume endpoint, the JSON echo-top endpoint, and the
// acknowledged-only traffic passthrough.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"

	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/echotop"
	"github.com/mmp/avmrms/objstore"
	"github.com/mmp/avmrms/scan"
	"github.com/mmp/avmrms/snapshot"
	"github.com/mmp/avmrms/wxlog"
)

// Server wires the volumetric snapshot store, echo-top store, pending-scan
// scheduler (for /v1/meta stats), and the traffic passthrough backend into
// one HTTP surface.
type Server struct {
	Store    *snapshot.Store
	EchoTops *echotop.Store
	Sched    *scan.Scheduler
	Traffic  objstore.Backend
	Cfg      config.Config
	Lg       *wxlog.Logger

	tileIdxMu   sync.Mutex
	tileIdxTime int64
	tileIdx     *TileIndex
}

// tileIndexFor returns the cached TileIndex for snap's scan_time, building
// a fresh one whenever the store has advanced to a newer snapshot.
func (s *Server) tileIndexFor(snap *snapshot.Snapshot) *TileIndex {
	key := snap.ScanTime.UnixMilli()

	s.tileIdxMu.Lock()
	defer s.tileIdxMu.Unlock()
	if s.tileIdx != nil && s.tileIdxTime == key {
		return s.tileIdx
	}
	idx := BuildTileIndex(snap)
	s.tileIdx = idx
	s.tileIdxTime = key
	return idx
}

// Mux builds the request router: the volume/echo-top/meta/health endpoints,
// their legacy aliases, and the debug/pprof endpoints (grounded on
// cmd/wxingest/main.go's launchHTTPServer).
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/meta", s.handleMeta)
	mux.HandleFunc("/v1/weather/volume", s.handleVolume)
	mux.HandleFunc("/v1/volume", s.handleVolume)
	mux.HandleFunc("/v1/weather/echo-tops", s.handleEchoTops)
	mux.HandleFunc("/v1/echo-tops", s.handleEchoTops)
	mux.HandleFunc("/v1/traffic/adsbx", s.handleTraffic)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

// recoverMiddleware catches a panic in a handler, logs it via
// wxlog.Logger.LogCrash (stack trace + crash report file), and returns 500
// instead of taking down the whole process — an ingest pipeline bug should
// never be able to crash request serving. recover() has to be called
// directly by this deferred closure, so the logging itself is split out
// into LogCrash rather than reusing CatchAndLogCrash here.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.Lg.LogCrash(rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP surface on addr, stopping when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.recoverMiddleware(s.Mux()),
	}

	errCh := make(chan error, 1)
	go func() {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- err
			return
		}
		s.Lg.Infof("httpapi: listening on %s", addr)
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
