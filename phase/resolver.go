// phase/resolver.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package phase resolves per-voxel thermodynamic and surface precipitation
// phase by fusing thermodynamic context with dual-pol evidence. Resolve is
// a pure function of one voxel's inputs and its column-wide context; the
// boundary-blend pass is a second pure pass over a column's decisions.
package phase

import (
	"math"

	"github.com/mmp/avmrms/config"
)

type Phase uint8

const (
	Rain Phase = iota
	Mixed
	Snow
)

// PrecipFlagCode is the raw MRMS PrecipFlag value.
type PrecipFlagCode int

// PrecipFlag mapping.
const (
	FlagSnow          PrecipFlagCode = 3
	FlagMixedHail     PrecipFlagCode = 7
	FlagNoSignalA     PrecipFlagCode = 0
	FlagNoSignalB     PrecipFlagCode = -3
)

func isRainFlag(c PrecipFlagCode) bool {
	switch c {
	case 1, 6, 10, 91, 96:
		return true
	default:
		return false
	}
}

// ColumnContext holds the column-wide (altitude-independent) inputs
// shared by every voxel in one grid column.
type ColumnContext struct {
	PrecipFlag        PrecipFlagCode
	HasPrecipFlag     bool
	FreezingLevelFt    float64
	HasFreezingLevel   bool
	WetBulbC           float64
	HasWetBulb         bool
	SurfaceTempC       float64
	HasSurfaceTemp     bool
	BrightBandTopFt    float64
	BrightBandBottomFt float64
	HasBrightBand      bool
	RQI                float64
	HasRQI             bool
	SurfaceElevationFt float64
	ColumnMeanAltFt    float64
}

// DualPolSample is the level-matched Zdr/RhoHV evidence for one voxel,
// with its age relative to scan_time.
type DualPolSample struct {
	ZdrDb       float64
	RhoHV       float64
	HasZdr      bool
	HasRhoHV    bool
	AgeSeconds  float64
	AuxFallback bool
}

// VoxelInputs are the per-voxel values fed into Resolve.
type VoxelInputs struct {
	DbzTenths int16
	AltitudeFt float64
	Dual       DualPolSample
}

// Telemetry accumulates the per-snapshot phase-resolution counters.
type Telemetry struct {
	ThermoSignalVoxels       int
	DualAdjustedVoxels       int
	DualSuppressedVoxels     int
	MixedSuppressedVoxels    int
	MixedEdgePromotedVoxels  int
	PrecipSnowForcedVoxels   int
	AuxWetBulb               int
	AuxSurfaceTemp           int
	AuxBrightBandPair        int
	AuxRQI                   int
	AuxAny                   int
	AuxFallback              int
}

// Result is the outcome of resolving one voxel's thermodynamic phase.
type Result struct {
	ThermoPhase Phase
	// SnowForced records whether the snow guardrail (step 6) fired.
	SnowForced bool
	// DualAdjusted records whether dual-pol evidence changed the
	// pre-fusion baseline winner.
	DualAdjusted bool
}

// Resolve computes the thermodynamic phase for one voxel via the
// weighted-score fusion steps 1-4 and 6. Step 5 (boundary blending) is a separate
// per-column pass; see BlendColumn.
func Resolve(v VoxelInputs, col ColumnContext, cfg config.Tunables, tel *Telemetry) Result {
	sRain, sMixed, sSnow := baselineScores(v, col)

	weightAux := auxWeight(v.Dual, col, cfg)
	evRain, evMixed, evSnow := dualPolEvidence(v.Dual)

	preFusionWinner := argmax3(sRain, sMixed, sSnow)

	sRain += weightAux * evRain
	sMixed += weightAux * evMixed
	sSnow += weightAux * evSnow

	dualHasEvidence := weightAux > 0 && (evRain != 0 || evMixed != 0 || evSnow != 0)
	if dualHasEvidence {
		tel.DualAdjustedVoxels++
	}
	if v.Dual.AuxFallback {
		tel.AuxFallback++
	}

	// Step 4: mixed suppression / promotion.
	if argmax3(sRain, sMixed, sSnow) == Mixed {
		second := math.Max(sRain, sSnow)
		if sMixed-second < cfg.MixedMarginDelta {
			sMixed -= cfg.MixedMarginDelta // demote so rain/snow wins
			tel.MixedSuppressedVoxels++
		}
	} else if math.Abs(sRain-sSnow) < cfg.MixedTransitionDelta {
		sMixed += cfg.MixedTransitionBonus
	}

	warmColumn := !col.HasFreezingLevel || col.FreezingLevelFt >= col.ColumnMeanAltFt
	decision := tieBreak(sRain, sMixed, sSnow, warmColumn)

	// Dual-pol evidence was present but didn't move the winner off the
	// thermodynamic baseline; it was outweighed rather than adjusting.
	if dualHasEvidence && preFusionWinner == decision {
		tel.DualSuppressedVoxels++
	}

	result := Result{ThermoPhase: decision, DualAdjusted: dualHasEvidence && preFusionWinner != decision}

	// Step 6: snow guardrail.
	if col.HasPrecipFlag && col.PrecipFlag == FlagSnow && frozenContext(col) {
		tel.PrecipSnowForcedVoxels++
		result.SnowForced = true
		result.ThermoPhase = Snow
	}

	tel.ThermoSignalVoxels++
	countAuxTelemetry(col, tel)

	return result
}

func frozenContext(col ColumnContext) bool {
	belowFreezing := col.HasFreezingLevel && col.FreezingLevelFt <= col.SurfaceElevationFt
	belowWetBulb := col.HasWetBulb && col.WetBulbC <= 0
	return belowFreezing || belowWetBulb
}

func countAuxTelemetry(col ColumnContext, tel *Telemetry) {
	any := false
	if col.HasWetBulb {
		tel.AuxWetBulb++
		any = true
	}
	if col.HasSurfaceTemp {
		tel.AuxSurfaceTemp++
		any = true
	}
	if col.HasBrightBand {
		tel.AuxBrightBandPair++
		any = true
	}
	if col.HasRQI {
		tel.AuxRQI++
		any = true
	}
	if any {
		tel.AuxAny++
	}
}

// baselineScores implements step 1: thermodynamic scores from PrecipFlag,
// freezing-level transition band, wet-bulb, surface temp, and bright-band
// placement.
func baselineScores(v VoxelInputs, col ColumnContext) (sRain, sMixed, sSnow float64) {
	if col.HasPrecipFlag {
		switch {
		case col.PrecipFlag == FlagSnow:
			sSnow += 1.0
		case isRainFlag(col.PrecipFlag):
			sRain += 1.0
		case col.PrecipFlag == FlagMixedHail:
			sMixed += 1.0
		}
	}

	if col.HasFreezingLevel {
		const transitionBand = 1500.0
		d := v.AltitudeFt - col.FreezingLevelFt
		switch {
		case d > transitionBand:
			sSnow += 1.0
		case d < -transitionBand:
			sRain += 1.0
		default:
			frac := 1.0 - math.Abs(d)/transitionBand // 1 at freezing level, 0 at band edge
			sMixed += frac
			if d > 0 {
				sSnow += (1 - frac) * 0.5
			} else {
				sRain += (1 - frac) * 0.5
			}
		}
	}

	if col.HasWetBulb {
		switch {
		case col.WetBulbC <= -2:
			sSnow += 1.0
		case col.WetBulbC >= 2:
			sRain += 1.0
		default:
			sMixed += 1.0 - math.Abs(col.WetBulbC)/2.0
		}
	}

	if col.HasSurfaceTemp && col.SurfaceTempC <= 0 {
		sSnow += 0.5
	}

	if col.HasBrightBand {
		switch {
		case v.AltitudeFt > col.BrightBandTopFt:
			sSnow += 1.0
		case v.AltitudeFt < col.BrightBandBottomFt:
			sRain += 1.0
		default:
			sMixed += 1.0
		}
	}

	return sRain, sMixed, sSnow
}

// dualPolEvidence implements step 2: dual-pol confidence, not assignment.
func dualPolEvidence(d DualPolSample) (evRain, evMixed, evSnow float64) {
	if d.HasZdr && d.HasRhoHV {
		switch {
		case d.ZdrDb >= 1.0 && d.RhoHV >= 0.97:
			evRain = 1.0
		case d.ZdrDb <= 0.3 && d.RhoHV >= 0.97:
			evSnow = 1.0
		case d.RhoHV <= 0.9:
			evMixed = 0.5
		}
	}
	return evRain, evMixed, evSnow
}

// auxWeight implements step 3's weight_aux formula.
func auxWeight(d DualPolSample, col ColumnContext, cfg config.Tunables) float64 {
	if !d.HasZdr && !d.HasRhoHV {
		return 0
	}
	const baseWeight = 1.0
	ageFactor := 1 - clamp(d.AgeSeconds/300.0, 0, 1)
	rqiFactor := 1.0
	if col.HasRQI {
		rqiFactor = math.Max(col.RQI, 0.25)
	}
	w := baseWeight * ageFactor * rqiFactor
	if d.AuxFallback {
		w *= cfg.AuxFallbackWeightFactor
	}
	return w
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func argmax3(r, m, s float64) Phase {
	if r >= m && r >= s {
		return Rain
	}
	if s >= r && s >= m {
		return Snow
	}
	return Mixed
}

// tieBreak applies the ε=1e-6 tie-break rule: rain>mixed>snow for warm
// columns, snow>mixed>rain for cold columns.
func tieBreak(sRain, sMixed, sSnow float64, warmColumn bool) Phase {
	const eps = 1e-6
	max := math.Max(sRain, math.Max(sMixed, sSnow))

	within := func(v float64) bool { return max-v < eps }

	order := []Phase{Rain, Mixed, Snow}
	if !warmColumn {
		order = []Phase{Snow, Mixed, Rain}
	}
	scores := map[Phase]float64{Rain: sRain, Mixed: sMixed, Snow: sSnow}
	for _, p := range order {
		if within(scores[p]) {
			return p
		}
	}
	return order[0]
}

// SurfacePhase is a single column-wide lookup from the
// PrecipFlag at the surface level, applied uniformly to every voxel in
// the column.
func SurfacePhase(col ColumnContext) Phase {
	if !col.HasPrecipFlag {
		return Rain
	}
	switch {
	case col.PrecipFlag == FlagSnow:
		return Snow
	case col.PrecipFlag == FlagMixedHail:
		return Mixed
	case col.PrecipFlag == FlagNoSignalA || col.PrecipFlag == FlagNoSignalB:
		return Rain
	case isRainFlag(col.PrecipFlag):
		return Rain
	default:
		return Rain
	}
}
