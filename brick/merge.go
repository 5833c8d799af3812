// brick/merge.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package brick

import (
	"sort"

	"github.com/mmp/avmrms/phase"
)

type equivClass struct {
	thermo, surface phase.Phase
	quantDbz        int16
}

// run is a row-coalesced horizontal span: one or more contiguous cells in
// the same row sharing (thermo_phase, surface_phase, quantized_dbz).
type run struct {
	row, startCol, spanX int
	class                equivClass
	maxDbz               int16
	bottom, top          uint16
	xNm, zNm             int16
}

// MergeLevel row-coalesces horizontally
// contiguous equivalent cells within one level, then extend matching runs
// downward (span_y) across consecutive rows. Merge never crosses levels;
// callers invoke this once per level.
func MergeLevel(cells []Cell) []Voxel {
	if len(cells) == 0 {
		return nil
	}

	byRow := make(map[int][]Cell)
	for _, c := range cells {
		byRow[c.Row] = append(byRow[c.Row], c)
	}

	rows := make([]int, 0, len(byRow))
	for r := range byRow {
		rows = append(rows, r)
	}
	sort.Ints(rows)

	rowRuns := make(map[int][]run, len(rows))
	for _, r := range rows {
		cs := byRow[r]
		sort.Slice(cs, func(i, j int) bool { return cs[i].Col < cs[j].Col })
		rowRuns[r] = coalesceRow(cs)
	}

	return extendVertical(rows, rowRuns)
}

func cellClass(c Cell) equivClass {
	return equivClass{
		thermo:   c.ThermoPhase,
		surface:  c.SurfacePhase,
		quantDbz: QuantizeDbz(c.DbzTenths),
	}
}

func coalesceRow(cs []Cell) []run {
	var runs []run
	i := 0
	for i < len(cs) {
		start := cs[i]
		cls := cellClass(start)
		j := i + 1
		maxDbz := start.DbzTenths
		for j < len(cs) && cs[j].Col == cs[j-1].Col+1 && cellClass(cs[j]) == cls {
			if cs[j].DbzTenths > maxDbz {
				maxDbz = cs[j].DbzTenths
			}
			j++
		}
		runs = append(runs, run{
			row: start.Row, startCol: start.Col, spanX: j - i,
			class: cls, maxDbz: maxDbz,
			bottom: start.BottomFeet, top: start.TopFeet,
			xNm: start.XNm100, zNm: start.ZNm100,
		})
		i = j
	}
	return runs
}

type active struct {
	r        run
	spanY    int
	consumed bool
}

func extendVertical(rows []int, rowRuns map[int][]run) []Voxel {
	var voxels []Voxel
	var activeRuns []*active

	flush := func() {
		for _, a := range activeRuns {
			voxels = append(voxels, toVoxel(a.r, a.spanY))
		}
		activeRuns = nil
	}

	prevRow := -2
	for _, row := range rows {
		runs := rowRuns[row]
		contiguous := row == prevRow+1

		var next []*active
		matched := make([]bool, len(runs))

		if contiguous {
			for _, a := range activeRuns {
				found := false
				for i, r := range runs {
					if matched[i] {
						continue
					}
					if r.startCol == a.r.startCol && r.spanX == a.r.spanX && r.class == a.r.class {
						a.spanY++
						if r.maxDbz > a.r.maxDbz {
							a.r.maxDbz = r.maxDbz
						}
						next = append(next, a)
						matched[i] = true
						found = true
						break
					}
				}
				if !found {
					voxels = append(voxels, toVoxel(a.r, a.spanY))
				}
			}
		} else {
			for _, a := range activeRuns {
				voxels = append(voxels, toVoxel(a.r, a.spanY))
			}
		}

		for i, r := range runs {
			if !matched[i] {
				next = append(next, &active{r: r, spanY: 1})
			}
		}

		activeRuns = next
		prevRow = row
	}
	flush()

	return voxels
}

func toVoxel(r run, spanY int) Voxel {
	return Voxel{
		XNm100: r.xNm, ZNm100: r.zNm,
		BottomFeet: r.bottom, TopFeet: r.top,
		DbzTenths:    r.maxDbz,
		ThermoPhase:  r.class.thermo,
		SurfacePhase: r.class.surface,
		SpanX:        uint16(r.spanX),
		SpanY:        uint16(spanY),
	}
}
