// echotop/json.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package echotop

import "time"

// CellJSON is the wire shape of one echo-top grid cell for
// /v1/weather/echo-tops; there is no binary wire format for this endpoint.
type CellJSON struct {
	XNm   float64 `json:"x_nm"`
	ZNm   float64 `json:"z_nm"`
	Top18 uint16  `json:"top18_ft"`
	Top30 uint16  `json:"top30_ft"`
	Top50 uint16  `json:"top50_ft"`
	Top60 uint16  `json:"top60_ft"`
}

// SnapshotJSON is the full response body shape.
type SnapshotJSON struct {
	ScanTime               time.Time  `json:"scan_time"`
	PerThresholdTimestamps [4]*time.Time `json:"per_threshold_timestamps"` // index matches Thresholds
	PerThresholdMaxFt      [4]uint16  `json:"per_threshold_max_ft"`
	Cells                  []CellJSON `json:"cells"`
}

// ToJSON converts a Snapshot to its wire shape, omitting cells with no
// measurement at any threshold (all-zero).
func (s *Snapshot) ToJSON() SnapshotJSON {
	out := SnapshotJSON{
		ScanTime:          s.ScanTime,
		PerThresholdMaxFt: s.PerThresholdMaxFt,
	}
	for i, t := range s.PerThresholdTimestamps {
		if !t.IsZero() {
			tc := t
			out.PerThresholdTimestamps[i] = &tc
		}
	}
	for _, c := range s.Cells {
		if c.Top18Ft == 0 && c.Top30Ft == 0 && c.Top50Ft == 0 && c.Top60Ft == 0 {
			continue
		}
		out.Cells = append(out.Cells, CellJSON{
			XNm:   float64(c.XNm100) / 100,
			ZNm:   float64(c.ZNm100) / 100,
			Top18: c.Top18Ft,
			Top30: c.Top30Ft,
			Top50: c.Top50Ft,
			Top60: c.Top60Ft,
		})
	}
	return out
}
