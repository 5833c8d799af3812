// brick/voxel.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package brick builds per-level voxel records from stacked reflectivity
// grids and coalesces horizontally/vertically contiguous equivalent
// voxels into bricks for the wire format.
package brick

import "github.com/mmp/avmrms/phase"

// Voxel is one wire-ready record (post-merge field order matches
// the wire format).
type Voxel struct {
	XNm100      int16 // hundredths of NM from request origin
	ZNm100      int16 // hundredths of NM, +Z south
	BottomFeet  uint16
	TopFeet     uint16
	DbzTenths   int16
	ThermoPhase phase.Phase
	SurfacePhase phase.Phase
	SpanX       uint16
	SpanY       uint16
}

// Cell is one pre-merge grid cell at a given level, with its grid row/col
// so the merge pass can detect horizontal/vertical adjacency.
type Cell struct {
	Row, Col     int
	XNm100       int16
	ZNm100       int16
	BottomFeet   uint16
	TopFeet      uint16
	DbzTenths    int16
	ThermoPhase  phase.Phase
	SurfacePhase phase.Phase
}

// QuantizeDbz buckets dbzTenths to 0.5 dBZ (5-tenths) bins for
// merge-equivalence.
func QuantizeDbz(dbzTenths int16) int16 {
	const bin = 5 // 0.5 dBZ in tenths
	return (dbzTenths / bin) * bin
}
