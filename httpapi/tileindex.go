// httpapi/tileindex.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package httpapi

import (
	gomath "math"

	vmath "github.com/mmp/avmrms/math"
	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/snapshot"
)

// TileIndex is a precomputed spatial index over one snapshot's voxels,
// built once per ReadLatest so /v1/weather/volume's request-origin filter
// doesn't linear-scan every voxel on every request. Built on
// vmath.KDNode/BuildKDTree, the same 2D KD-tree already used elsewhere in
// this codebase for spatial point queries, rather than a bespoke
// grid-bucket structure.
type TileIndex struct {
	bounds  mrms.Bounds
	tree    *vmath.KDNode
	byPoint map[vmath.Point2LL][]int // voxel indices sharing this (lon,lat)
}

// BuildTileIndex reconstructs each voxel's true (lat,lon) from its
// grid-corner-relative x_nm/z_nm (the inverse of the projection the
// ingest pipeline applies at persist time) and indexes the resulting
// points.
func BuildTileIndex(snap *snapshot.Snapshot) *TileIndex {
	points := make([]vmath.Point2LL, 0, len(snap.Voxels))
	byPoint := make(map[vmath.Point2LL][]int, len(snap.Voxels))

	for i, v := range snap.Voxels {
		lat, lon := voxelLatLon(snap.Bounds, v.XNm100, v.ZNm100)
		p := vmath.Point2LL{float32(lon), float32(lat)}
		points = append(points, p)
		byPoint[p] = append(byPoint[p], i)
	}

	return &TileIndex{
		bounds:  snap.Bounds,
		tree:    vmath.BuildKDTree(points),
		byPoint: byPoint,
	}
}

// voxelLatLon inverts the ingest pipeline's grid-corner-relative flat-earth
// projection: x = Δlon·60·cos(refLat), z = Δlat·60, referenced against the
// grid's own northwest corner (max_lat, min_lon).
func voxelLatLon(b mrms.Bounds, xNm100, zNm100 int16) (lat, lon float64) {
	refLat := b.MaxLat
	nmPerLon := 60 * gomath.Cos(refLat*gomath.Pi/180)
	dLon := float64(xNm100) / 100 / nmPerLon
	dLat := float64(zNm100) / 100 / 60
	return refLat - dLat, b.MinLon + dLon
}

// Query returns the indices of voxels whose true position falls within a
// square bounding box of maxRangeNm around (lat,lon); it's a coarse,
// cheap prefilter — exact range/threshold filtering still happens on the
// candidates it returns.
func (idx *TileIndex) Query(lat, lon, maxRangeNm float64) []int {
	if idx.tree == nil {
		return nil
	}

	latDelta := maxRangeNm / 60
	nmPerLon := 60 * gomath.Cos(lat*gomath.Pi/180)
	lonDelta := maxRangeNm / nmPerLon
	if nmPerLon <= 0 {
		lonDelta = 180
	}

	box := bbox{
		minLon: lon - lonDelta, maxLon: lon + lonDelta,
		minLat: lat - latDelta, maxLat: lat + latDelta,
	}

	var hits []vmath.Point2LL
	collectInRange(idx.tree, 0, box, &hits)

	var out []int
	for _, p := range hits {
		out = append(out, idx.byPoint[p]...)
	}
	return out
}

type bbox struct {
	minLon, maxLon float64
	minLat, maxLat float64
}

func (b bbox) contains(p vmath.Point2LL) bool {
	lon, lat := float64(p[0]), float64(p[1])
	return lon >= b.minLon && lon <= b.maxLon && lat >= b.minLat && lat <= b.maxLat
}

// collectInRange walks a KD-tree built with BuildKDTree's even-depth=X
// (longitude), odd-depth=Y (latitude) axis alternation, pruning subtrees
// that cannot intersect box.
func collectInRange(node *vmath.KDNode, depth int, box bbox, out *[]vmath.Point2LL) {
	if node == nil {
		return
	}
	if box.contains(node.Location) {
		*out = append(*out, node.Location)
	}

	axis := depth % 2
	var lo, hi, v float64
	if axis == 0 {
		lo, hi, v = box.minLon, box.maxLon, float64(node.Location[0])
	} else {
		lo, hi, v = box.minLat, box.maxLat, float64(node.Location[1])
	}

	if lo <= v {
		collectInRange(node.Left, depth+1, box, out)
	}
	if hi >= v {
		collectInRange(node.Right, depth+1, box, out)
	}
}
