// phase/blend.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package phase

// BlendColumn implements step 5: for each voxel in a column (ordered by
// altitude), if its decision is rain (or snow) and the immediately
// adjacent voxel has the opposite phase, promote this voxel to mixed.
// decisions is modified in place and also returned for convenience.
func BlendColumn(decisions []Phase, tel *Telemetry) []Phase {
	if len(decisions) < 2 {
		return decisions
	}

	original := append([]Phase(nil), decisions...)
	promote := func(i int) {
		if decisions[i] != Mixed {
			decisions[i] = Mixed
			tel.MixedEdgePromotedVoxels++
		}
	}

	for i := range original {
		if original[i] != Rain && original[i] != Snow {
			continue
		}
		if i > 0 && isOpposite(original[i], original[i-1]) {
			promote(i)
		}
		if i+1 < len(original) && isOpposite(original[i], original[i+1]) {
			promote(i)
		}
	}
	return decisions
}

func isOpposite(a, b Phase) bool {
	return (a == Rain && b == Snow) || (a == Snow && b == Rain)
}
