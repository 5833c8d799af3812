// brick/merge_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package brick

import (
	"testing"

	"github.com/mmp/avmrms/phase"
)

func makeCell(row, col int, thermo phase.Phase) Cell {
	return Cell{
		Row: row, Col: col,
		XNm100: int16(col * 100), ZNm100: int16(row * 100),
		BottomFeet: 1000, TopFeet: 2000,
		DbzTenths:    250,
		ThermoPhase:  thermo,
		SurfacePhase: phase.Rain,
	}
}

func TestMergeCoalescesHorizontalRun(t *testing.T) {
	cells := []Cell{
		makeCell(0, 0, phase.Rain),
		makeCell(0, 1, phase.Rain),
		makeCell(0, 2, phase.Rain),
	}
	voxels := MergeLevel(cells)
	if len(voxels) != 1 {
		t.Fatalf("expected 1 merged voxel, got %d", len(voxels))
	}
	if voxels[0].SpanX != 3 {
		t.Errorf("expected span_x=3, got %d", voxels[0].SpanX)
	}
}

func TestMergeDoesNotCoalesceAcrossPhaseBoundary(t *testing.T) {
	cells := []Cell{
		makeCell(0, 0, phase.Rain),
		makeCell(0, 1, phase.Snow),
	}
	voxels := MergeLevel(cells)
	if len(voxels) != 2 {
		t.Fatalf("expected 2 voxels across a phase boundary, got %d", len(voxels))
	}
}

func TestMergeExtendsVerticallyOverMatchingRuns(t *testing.T) {
	cells := []Cell{
		makeCell(0, 0, phase.Rain), makeCell(0, 1, phase.Rain),
		makeCell(1, 0, phase.Rain), makeCell(1, 1, phase.Rain),
	}
	voxels := MergeLevel(cells)
	if len(voxels) != 1 {
		t.Fatalf("expected 1 merged voxel (2x2 block), got %d", len(voxels))
	}
	if voxels[0].SpanX != 2 || voxels[0].SpanY != 2 {
		t.Errorf("expected span_x=2 span_y=2, got %d/%d", voxels[0].SpanX, voxels[0].SpanY)
	}
}

func TestMergeDoesNotExtendVerticallyOverGap(t *testing.T) {
	cells := []Cell{
		makeCell(0, 0, phase.Rain),
		makeCell(2, 0, phase.Rain), // row 1 missing: not vertically adjacent
	}
	voxels := MergeLevel(cells)
	if len(voxels) != 2 {
		t.Fatalf("expected 2 voxels when rows are not contiguous, got %d", len(voxels))
	}
}

// coverageSet returns the set of (row, col) cells a list of voxels covers,
// expanding span_x/span_y footprints. Used to verify merge correctness:
// same coverage before and after merge, no duplicates, no gaps.
func coverageSet(voxels []Voxel, startRow, startCol int) map[[2]int]bool {
	// This helper assumes voxels are emitted in row/col order matching the
	// synthetic grid built by the test, reconstructing row/col from the
	// encoded xNm/zNm (col*100, row*100).
	cov := make(map[[2]int]bool)
	for _, v := range voxels {
		row0 := int(v.ZNm100) / 100
		col0 := int(v.XNm100) / 100
		for dr := 0; dr < int(v.SpanY); dr++ {
			for dc := 0; dc < int(v.SpanX); dc++ {
				cov[[2]int{row0 + dr, col0 + dc}] = true
			}
		}
	}
	return cov
}

func TestMergeCorrectnessCoverageMatchesPreMerge(t *testing.T) {
	var cells []Cell
	want := make(map[[2]int]bool)
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			cells = append(cells, makeCell(row, col, phase.Rain))
			want[[2]int{row, col}] = true
		}
	}

	voxels := MergeLevel(cells)
	got := coverageSet(voxels, 0, 0)

	if len(got) != len(want) {
		t.Fatalf("coverage size mismatch: got %d, want %d", len(got), len(want))
	}
	for k := range want {
		if !got[k] {
			t.Errorf("missing cell %v after merge", k)
		}
	}
}
