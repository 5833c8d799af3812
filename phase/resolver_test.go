// phase/resolver_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package phase

import (
	"testing"

	"github.com/mmp/avmrms/config"
)

func TestSnowGuardrailForcesSnowRegardlessOfWeakRainEvidence(t *testing.T) {
	cfg := config.DefaultTunables()
	tel := &Telemetry{}

	col := ColumnContext{
		PrecipFlag:       FlagSnow,
		HasPrecipFlag:    true,
		FreezingLevelFt:  1500,
		HasFreezingLevel: true,
		WetBulbC:         -5,
		HasWetBulb:       true,
		SurfaceElevationFt: 2000, // freezing level below surface elevation
		ColumnMeanAltFt:  3000,
	}
	v := VoxelInputs{
		DbzTenths:  300,
		AltitudeFt: 3000,
		Dual: DualPolSample{
			ZdrDb: 2.0, RhoHV: 0.98, HasZdr: true, HasRhoHV: true, // strong rain-like dual-pol
		},
	}

	result := Resolve(v, col, cfg, tel)
	if result.ThermoPhase != Snow {
		t.Fatalf("expected snow guardrail to force snow, got %v", result.ThermoPhase)
	}
	if !result.SnowForced {
		t.Errorf("expected SnowForced=true")
	}
	if tel.PrecipSnowForcedVoxels != 1 {
		t.Errorf("expected PrecipSnowForcedVoxels=1, got %d", tel.PrecipSnowForcedVoxels)
	}
}

func TestSnowGuardrailDoesNotFireWithoutFrozenContext(t *testing.T) {
	cfg := config.DefaultTunables()
	tel := &Telemetry{}

	col := ColumnContext{
		PrecipFlag:         FlagSnow,
		HasPrecipFlag:      true,
		FreezingLevelFt:    12000,
		HasFreezingLevel:   true,
		SurfaceElevationFt: 500,
		ColumnMeanAltFt:    1000,
	}
	v := VoxelInputs{DbzTenths: 300, AltitudeFt: 1000}

	result := Resolve(v, col, cfg, tel)
	if result.SnowForced {
		t.Errorf("guardrail should not fire when freezing level is well above surface and no wet-bulb evidence present")
	}
	_ = result
}

func TestBoundaryBlendPromotesSeamToMixed(t *testing.T) {
	tel := &Telemetry{}
	decisions := []Phase{Rain, Rain, Snow, Snow}

	blended := BlendColumn(decisions, tel)

	foundMixed := false
	for _, p := range blended {
		if p == Mixed {
			foundMixed = true
		}
	}
	if !foundMixed {
		t.Fatalf("expected at least one mixed voxel at the rain/snow seam, got %v", blended)
	}
	if tel.MixedEdgePromotedVoxels == 0 {
		t.Errorf("expected MixedEdgePromotedVoxels > 0")
	}
}

func TestStaleAuxWeightedBelow30PercentOfFresh(t *testing.T) {
	cfg := config.DefaultTunables()

	fresh := DualPolSample{HasZdr: true, HasRhoHV: true, AgeSeconds: 0}
	stale := DualPolSample{HasZdr: true, HasRhoHV: true, AgeSeconds: 400, AuxFallback: true}

	col := ColumnContext{}
	freshWeight := auxWeight(fresh, col, cfg)
	staleWeight := auxWeight(stale, col, cfg)

	if staleWeight > 0.30*freshWeight {
		t.Fatalf("stale aux weight %.4f exceeds 30%% of fresh weight %.4f", staleWeight, freshWeight)
	}
}

func TestSurfacePhaseUsesColumnPrecipFlag(t *testing.T) {
	tests := []struct {
		name string
		col  ColumnContext
		want Phase
	}{
		{"snow flag", ColumnContext{HasPrecipFlag: true, PrecipFlag: FlagSnow}, Snow},
		{"rain flag", ColumnContext{HasPrecipFlag: true, PrecipFlag: 1}, Rain},
		{"mixed/hail flag", ColumnContext{HasPrecipFlag: true, PrecipFlag: FlagMixedHail}, Mixed},
		{"no signal", ColumnContext{HasPrecipFlag: true, PrecipFlag: FlagNoSignalA}, Rain},
		{"missing flag", ColumnContext{HasPrecipFlag: false}, Rain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SurfacePhase(tt.col); got != tt.want {
				t.Errorf("SurfacePhase() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDualPolEvidenceHighConfidenceRain(t *testing.T) {
	ev := DualPolSample{ZdrDb: 1.5, RhoHV: 0.98, HasZdr: true, HasRhoHV: true}
	r, m, s := dualPolEvidence(ev)
	if r != 1.0 || m != 0 || s != 0 {
		t.Errorf("expected pure rain evidence, got rain=%v mixed=%v snow=%v", r, m, s)
	}
}

func TestDualPolEvidenceHighConfidenceSnow(t *testing.T) {
	ev := DualPolSample{ZdrDb: 0.1, RhoHV: 0.99, HasZdr: true, HasRhoHV: true}
	r, m, s := dualPolEvidence(ev)
	if s != 1.0 || r != 0 || m != 0 {
		t.Errorf("expected pure snow evidence, got rain=%v mixed=%v snow=%v", r, m, s)
	}
}

// tieScoreColumn builds a column/voxel pair whose baseline scores land in an
// exact sRain == sSnow tie (brightband-below contributes sRain, a
// far-above-freezing-level altitude contributes sSnow), with no dual-pol
// evidence and no precip flag, so Resolve's outcome is decided entirely by
// tieBreak's warm/cold rule.
func tieScoreColumn(columnMeanAltFt float64) (VoxelInputs, ColumnContext) {
	col := ColumnContext{
		FreezingLevelFt:    2000,
		HasFreezingLevel:   true,
		BrightBandTopFt:    8000,
		BrightBandBottomFt: 6000,
		HasBrightBand:      true,
		ColumnMeanAltFt:    columnMeanAltFt,
	}
	v := VoxelInputs{DbzTenths: 300, AltitudeFt: 5000}
	return v, col
}

func TestColdColumnExactTiePrefersSnow(t *testing.T) {
	cfg := config.DefaultTunables()
	tel := &Telemetry{}
	// FreezingLevelFt (2000) < ColumnMeanAltFt (6000): cold column.
	v, col := tieScoreColumn(6000)

	result := Resolve(v, col, cfg, tel)
	if result.ThermoPhase != Snow {
		t.Fatalf("expected cold-column exact tie to resolve to snow, got %v", result.ThermoPhase)
	}
}

func TestWarmColumnExactTiePrefersRain(t *testing.T) {
	cfg := config.DefaultTunables()
	tel := &Telemetry{}
	// FreezingLevelFt (2000) >= ColumnMeanAltFt (1000): warm column.
	v, col := tieScoreColumn(1000)

	result := Resolve(v, col, cfg, tel)
	if result.ThermoPhase != Rain {
		t.Fatalf("expected warm-column exact tie to resolve to rain, got %v", result.ThermoPhase)
	}
}

func TestDualSuppressedVoxelsCountsOutweighedEvidence(t *testing.T) {
	cfg := config.DefaultTunables()
	tel := &Telemetry{}

	col := ColumnContext{
		PrecipFlag:    1, // isRainFlag
		HasPrecipFlag: true,
		WetBulbC:      5,
		HasWetBulb:    true,
	}
	v := VoxelInputs{
		DbzTenths:  300,
		AltitudeFt: 3000,
		Dual: DualPolSample{
			// RhoHV <= 0.9 contributes weak mixed evidence (step 2),
			// but the strong rain baseline (sRain=2.0) outweighs it.
			ZdrDb: 0.5, RhoHV: 0.85, HasZdr: true, HasRhoHV: true,
		},
	}

	result := Resolve(v, col, cfg, tel)
	if result.ThermoPhase != Rain {
		t.Fatalf("expected rain baseline to win despite weak mixed evidence, got %v", result.ThermoPhase)
	}
	if result.DualAdjusted {
		t.Errorf("expected DualAdjusted=false since the decision didn't move off the pre-fusion winner")
	}
	if tel.DualSuppressedVoxels != 1 {
		t.Errorf("expected DualSuppressedVoxels=1, got %d", tel.DualSuppressedVoxels)
	}
}
