// httpapi/volume.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package httpapi

import (
	gomath "math"
	"net/http"
	"strconv"
	"time"

	"github.com/mmp/avmrms/brick"
	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/errs"
	"github.com/mmp/avmrms/snapshot"
)

const volumeContentType = "application/vnd.approach-viz.mrms.v3"

// handleVolume implements the binary volume response: load the latest
// snapshot, filter+reproject voxels against the request's origin using a
// precomputed tile index, and serialize the filtered subset in the wire
// format with phase-debug headers attached.
func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.parseLatLon(w, r)
	if !ok {
		return
	}
	maxRangeNm, ok := parseClampedFloat(w, r, "maxRangeNm", float64(config.DefaultMaxRangeNm), float64(config.DefaultMaxRangeNm))
	if !ok {
		return
	}
	minDbz, ok := parseClampedFloat(w, r, "minDbz", float64(config.DefaultMinDbz), 0)
	if !ok {
		return
	}

	snap, err := s.Store.ReadLatest()
	if err != nil {
		if errs.NotFound(err) {
			http.Error(w, "no snapshot available yet", http.StatusNotFound)
			return
		}
		s.Lg.Warnf("httpapi: reading latest snapshot: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	idx := s.tileIndexFor(snap)
	filtered := filterAndReproject(snap, idx, lat, lon, maxRangeNm, minDbz)

	out := &snapshot.Snapshot{
		ScanTime:       snap.ScanTime,
		GeneratedAt:    snap.GeneratedAt,
		Bounds:         snap.Bounds,
		FootprintXMdeg: snap.FootprintXMdeg,
		FootprintYMdeg: snap.FootprintYMdeg,
		PerLevelCounts: snap.PerLevelCounts,
		Voxels:         filtered,
		PhaseMeta:      snap.PhaseMeta,
	}

	raw, err := snapshot.Encode(out)
	if err != nil {
		s.Lg.Warnf("httpapi: encoding volume response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	setPhaseDebugHeaders(w.Header(), snap)
	w.Header().Set("Content-Type", volumeContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// filterAndReproject recomputes each candidate voxel's position relative
// to (lat,lon) and keeps those within range and at/above minDbz. A second
// run-length coalescing pass over the already ingest-merged spans is
// deliberately not attempted here: ingest-time brick.MergeLevel already
// performs the expensive global coalescing once per scan, and re-coalescing
// variable-span records after an origin-dependent reprojection would only
// recover marginal savings at the filtered subset's boundary. See
// DESIGN.md.
func filterAndReproject(snap *snapshot.Snapshot, idx *TileIndex, lat, lon, maxRangeNm, minDbz float64) []brick.Voxel {
	nmPerLon := 60 * gomath.Cos(lat*gomath.Pi/180)
	footprintXNm := float64(snap.FootprintXMdeg) / 1000 * nmPerLon
	footprintYNm := float64(snap.FootprintYMdeg) / 1000 * 60
	diag := gomath.Hypot(footprintXNm, footprintYNm)
	maxRange := maxRangeNm + diag
	minDbzTenths := int16(minDbz * 10)

	candidates := idx.Query(lat, lon, maxRange)
	filtered := make([]brick.Voxel, 0, len(candidates))
	for _, i := range candidates {
		v := snap.Voxels[i]
		if v.DbzTenths < minDbzTenths {
			continue
		}

		vlat, vlon := voxelLatLon(snap.Bounds, v.XNm100, v.ZNm100)
		xNm := (vlon - lon) * nmPerLon
		zNm := -(vlat - lat) * 60
		if gomath.Hypot(xNm, zNm) > maxRange {
			continue
		}

		v.XNm100 = clampInt16(xNm * 100)
		v.ZNm100 = clampInt16(zNm * 100)
		filtered = append(filtered, v)
	}
	return filtered
}

func clampInt16(f float64) int16 {
	if f > gomath.MaxInt16 {
		return gomath.MaxInt16
	}
	if f < gomath.MinInt16 {
		return gomath.MinInt16
	}
	return int16(f)
}

func (s *Server) parseLatLon(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	latStr, lonStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		http.Error(w, "invalid lat", http.StatusBadRequest)
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		http.Error(w, "invalid lon", http.StatusBadRequest)
		return 0, 0, false
	}
	return lat, lon, true
}

// parseClampedFloat parses an optional query parameter, defaulting to def
// and capping at ceiling (clamped to a server max rather than rejected).
func parseClampedFloat(w http.ResponseWriter, r *http.Request, name string, def, ceiling float64) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	if ceiling > 0 && v > ceiling {
		v = ceiling
	}
	return v, true
}

// phaseMode derives the x-av-phase-mode header label from a snapshot's
// phase telemetry counters.
func phaseMode(pm snapshot.PhaseMeta) string {
	switch {
	case pm.DualAdjustedVoxels > 0 && pm.AuxFallback > 0:
		return "thermo-primary+stale-dual-correction"
	case pm.DualAdjustedVoxels > 0:
		return "thermo-primary+dual-correction"
	case pm.AuxFallback > 0:
		return "thermo-primary+aux-fallback"
	default:
		return "thermo-primary"
	}
}

func setPhaseDebugHeaders(h http.Header, snap *snapshot.Snapshot) {
	pm := snap.PhaseMeta
	h.Set("x-av-phase-mode", phaseMode(pm))
	h.Set("x-av-phase-detail", phaseDetail(pm))

	setAuxHeaders(h, "zdr", snap.ScanTime, pm.ZdrTimestamp)
	setAuxHeaders(h, "rhohv", snap.ScanTime, pm.RhoHVTimestamp)
	if !pm.PrecipTimestamp.IsZero() {
		h.Set("x-av-precip-timestamp", pm.PrecipTimestamp.UTC().Format(time.RFC3339))
	}
	if !pm.FreezingTimestamp.IsZero() {
		h.Set("x-av-freezing-timestamp", pm.FreezingTimestamp.UTC().Format(time.RFC3339))
	}
}

func setAuxHeaders(h http.Header, name string, scanTime, ts time.Time) {
	if ts.IsZero() {
		return
	}
	h.Set("x-av-"+name+"-timestamp", ts.UTC().Format(time.RFC3339))
	h.Set("x-av-"+name+"-age-seconds", strconv.FormatFloat(scanTime.Sub(ts).Seconds(), 'f', 0, 64))
}

func phaseDetail(pm snapshot.PhaseMeta) string {
	return "thermo_signal=" + strconv.FormatInt(pm.ThermoSignalVoxels, 10) +
		",dual_adjusted=" + strconv.FormatInt(pm.DualAdjustedVoxels, 10) +
		",dual_suppressed=" + strconv.FormatInt(pm.DualSuppressedVoxels, 10) +
		",mixed_suppressed=" + strconv.FormatInt(pm.MixedSuppressedVoxels, 10) +
		",mixed_edge_promoted=" + strconv.FormatInt(pm.MixedEdgePromotedVoxels, 10) +
		",precip_snow_forced=" + strconv.FormatInt(pm.PrecipSnowForcedVoxels, 10) +
		",aux_wet_bulb=" + strconv.FormatInt(pm.AuxWetBulb, 10) +
		",aux_surface_temp=" + strconv.FormatInt(pm.AuxSurfaceTemp, 10) +
		",aux_bright_band_pair=" + strconv.FormatInt(pm.AuxBrightBandPair, 10) +
		",aux_rqi=" + strconv.FormatInt(pm.AuxRQI, 10) +
		",aux_any=" + strconv.FormatInt(pm.AuxAny, 10) +
		",aux_fallback=" + strconv.FormatInt(pm.AuxFallback, 10)
}
