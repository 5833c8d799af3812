// ingest/pipeline.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package ingest consumes object-creation notifications for MRMS products,
// hands them to the pending-scan scheduler, and runs the
// fetch-decode-resolve-assemble-persist pipeline once a scan is ready.
package ingest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmp/avmrms/brick"
	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/errs"
	"github.com/mmp/avmrms/grib2"
	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/objstore"
	"github.com/mmp/avmrms/phase"
	"github.com/mmp/avmrms/scan"
	"github.com/mmp/avmrms/snapshot"
	"github.com/mmp/avmrms/wxlog"
)

// KeyStore resolves a ready ProductKey to the upstream object key string
// the object store backend expects. Kept as an interface so tests can
// supply a synthetic mapping without a real bucket layout.
type KeyStore interface {
	ObjectKey(k mrms.ProductKey) string
}

// DefaultKeyStore is the production KeyStore: it defers entirely to
// mrms.ProductKey.ObjectKey, the inverse of mrms.ParseObjectKey.
type DefaultKeyStore struct{}

func (DefaultKeyStore) ObjectKey(k mrms.ProductKey) string { return k.ObjectKey() }

// Pipeline runs the per-scan fetch-decode-resolve-assemble-persist path
// (within one fetch-decode-resolve-serialize pipeline for
// one scan, stages execute strictly in order"). Fan-out across the 33
// reflectivity levels and aux products is concurrent; the stages within
// one pipeline run are sequential: fetch+decode all inputs, then resolve
// phase and brick-merge per level, then persist.
type Pipeline struct {
	Backend  objstore.Backend
	KeyStore KeyStore
	Store    *snapshot.Store
	Sched    *scan.Scheduler
	Tunables config.Tunables
	Lg       *wxlog.Logger
}

// Run fetches every required reflectivity level plus the scheduler's
// selected aux set, resolves phase per voxel, merges bricks per level,
// and persists the assembled snapshot.
func (p *Pipeline) Run(ctx context.Context, pend *scan.Pending) error {
	reflect := make([]*mrms.Grid, mrms.NumLevels)
	zdr := make([]*mrms.Grid, mrms.NumLevels)
	rhohv := make([]*mrms.Grid, mrms.NumLevels)
	var auxFallback bool
	var zdrTimestamp, rhohvTimestamp, precipTimestamp, freezingTimestamp time.Time

	var contextAux struct {
		mu                                        sync.Mutex
		precipFlag, freezingLevel, wetBulb         *mrms.Grid
		surfaceTemp, bbTop, bbBottom, rqi          *mrms.Grid
	}

	eg, egCtx := errgroup.WithContext(ctx)

	for i, level := range mrms.Levels {
		i, level := i, level
		eg.Go(func() error {
			g, err := p.fetchAndDecode(egCtx, mrms.ProductKey{Family: mrms.ReflectivityQC, Level: level, ScanTime: pend.ScanTime})
			if err != nil {
				return fmt.Errorf("reflectivity level %s: %w", level, err)
			}
			reflect[i] = g
			return nil
		})
	}

	if obs := p.Sched.SelectAux(pend, mrms.Zdr, pend.ScanTime); obs != nil {
		auxFallback = auxFallback || pend.ScanTime.Sub(obs.Timestamp) > 300*time.Second
		zdrTimestamp = obs.Timestamp
		for i, level := range mrms.Levels {
			if !obs.Levels[level] {
				continue
			}
			i, level := i, level
			eg.Go(func() error {
				g, err := p.fetchAndDecode(egCtx, mrms.ProductKey{Family: mrms.Zdr, Level: level, ScanTime: obs.Timestamp})
				if err != nil {
					if p.Lg != nil {
						p.Lg.Warnf("ingest: Zdr level %s fetch failed, continuing without it: %v", level, err)
					}
					return nil
				}
				zdr[i] = g
				return nil
			})
		}
	}
	if obs := p.Sched.SelectAux(pend, mrms.RhoHV, pend.ScanTime); obs != nil {
		auxFallback = auxFallback || pend.ScanTime.Sub(obs.Timestamp) > 300*time.Second
		rhohvTimestamp = obs.Timestamp
		for i, level := range mrms.Levels {
			if !obs.Levels[level] {
				continue
			}
			i, level := i, level
			eg.Go(func() error {
				g, err := p.fetchAndDecode(egCtx, mrms.ProductKey{Family: mrms.RhoHV, Level: level, ScanTime: obs.Timestamp})
				if err != nil {
					if p.Lg != nil {
						p.Lg.Warnf("ingest: RhoHV level %s fetch failed, continuing without it: %v", level, err)
					}
					return nil
				}
				rhohv[i] = g
				return nil
			})
		}
	}

	contextFamilies := []mrms.Family{
		mrms.PrecipFlag, mrms.FreezingLevelHeight, mrms.WetBulbTemp,
		mrms.SurfaceTemp, mrms.BrightBandTop, mrms.BrightBandBottom, mrms.RadarQualityIndex,
	}
	for _, fam := range contextFamilies {
		fam := fam
		obs := p.Sched.SelectContextAux(pend, fam, pend.ScanTime)
		if obs == nil {
			continue
		}
		eg.Go(func() error {
			g, err := p.fetchAndDecode(egCtx, mrms.ProductKey{Family: fam, Level: mrms.SurfaceLevel, ScanTime: obs.Timestamp})
			if err != nil {
				if p.Lg != nil {
					p.Lg.Warnf("ingest: context aux %s fetch failed, continuing without it: %v", fam, err)
				}
				return nil
			}
			contextAux.mu.Lock()
			defer contextAux.mu.Unlock()
			switch fam {
			case mrms.PrecipFlag:
				contextAux.precipFlag = g
				precipTimestamp = obs.Timestamp
			case mrms.FreezingLevelHeight:
				contextAux.freezingLevel = g
				freezingTimestamp = obs.Timestamp
			case mrms.WetBulbTemp:
				contextAux.wetBulb = g
			case mrms.SurfaceTemp:
				contextAux.surfaceTemp = g
			case mrms.BrightBandTop:
				contextAux.bbTop = g
			case mrms.BrightBandBottom:
				contextAux.bbBottom = g
			case mrms.RadarQualityIndex:
				contextAux.rqi = g
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPermanent, err)
	}

	for i, g := range reflect {
		if g == nil {
			return fmt.Errorf("%w: missing reflectivity level %s after fetch", errs.ErrPermanent, mrms.Levels[i])
		}
	}

	in := assembleInputs{
		scanTime:          pend.ScanTime,
		reflect:           reflect,
		zdr:               zdr,
		rhohv:             rhohv,
		precipFlag:        contextAux.precipFlag,
		freezingLevel:     contextAux.freezingLevel,
		wetBulb:           contextAux.wetBulb,
		surfaceTemp:       contextAux.surfaceTemp,
		bbTop:             contextAux.bbTop,
		bbBottom:          contextAux.bbBottom,
		rqi:               contextAux.rqi,
		auxFallback:       auxFallback,
		tunables:          p.Tunables,
		zdrTimestamp:      zdrTimestamp,
		rhohvTimestamp:    rhohvTimestamp,
		precipTimestamp:   precipTimestamp,
		freezingTimestamp: freezingTimestamp,
	}

	snap, err := assemble(in)
	if err != nil {
		return err
	}
	snap.GeneratedAt = time.Now().UTC()

	if err := p.Store.Write(snap); err != nil {
		return err
	}
	p.Sched.MarkPersisted(pend)
	return nil
}

func (p *Pipeline) fetchAndDecode(ctx context.Context, key mrms.ProductKey) (*mrms.Grid, error) {
	objKey := p.KeyStore.ObjectKey(key)
	raw, err := p.Backend.Fetch(ctx, objKey)
	if err != nil {
		return nil, err
	}
	return grib2.Decode(raw, key.Family)
}

// assembleInputs bundles one scan's fully-fetched product grids for the
// resolve+merge stage.
type assembleInputs struct {
	scanTime                                                        time.Time
	reflect, zdr, rhohv                                              []*mrms.Grid
	precipFlag, freezingLevel, wetBulb, surfaceTemp, bbTop, bbBottom *mrms.Grid
	rqi                                                              *mrms.Grid
	auxFallback                                                      bool
	tunables                                                         config.Tunables
	zdrTimestamp, rhohvTimestamp, precipTimestamp, freezingTimestamp time.Time
}

// assemble resolves per-voxel thermodynamic/surface phase across all 33
// levels, brick-merges each level independently, and packages the result
// as a Snapshot ready for persistence.
func assemble(in assembleInputs) (*snapshot.Snapshot, error) {
	bounds := in.reflect[0].Bounds
	for i, g := range in.reflect {
		if g.Bounds != bounds {
			return nil, fmt.Errorf("%w: level %s bounds mismatch", errs.ErrPermanent, mrms.Levels[i])
		}
	}

	tel := &phase.Telemetry{}
	var allVoxels []brick.Voxel
	var perLevelCounts [mrms.NumLevels]uint32
	cellsByLevel := make([][]brick.Cell, mrms.NumLevels)

	for row := 0; row < bounds.Rows; row++ {
		for col := 0; col < bounds.Cols; col++ {
			colCtx := buildColumnContext(in, row, col, bounds)

			decisions := make([]phase.Phase, 0, mrms.NumLevels)

			for i, level := range mrms.Levels {
				dbz := in.reflect[i].At(row, col)
				if isMissing(dbz) {
					decisions = append(decisions, phase.Rain)
					continue
				}
				v := phase.VoxelInputs{
					DbzTenths:  int16(dbz * 10),
					AltitudeFt: levelFeetOrZero(level),
					Dual:       dualPolSample(in, i, row, col, in.scanTime, in.auxFallback),
				}
				res := phase.Resolve(v, colCtx, in.tunables, tel)
				decisions = append(decisions, res.ThermoPhase)
			}

			blended := phase.BlendColumn(decisions, tel)
			surf := phase.SurfacePhase(colCtx)

			for i, level := range mrms.Levels {
				dbz := in.reflect[i].At(row, col)
				if isMissing(dbz) {
					continue
				}
				bottom, top := levelBoundsFeet(i)
				xNm100, zNm100 := gridCornerOffsetNm100(bounds, row, col)
				cellsByLevel[i] = append(cellsByLevel[i], brick.Cell{
					Row: row, Col: col,
					XNm100:       xNm100,
					ZNm100:       zNm100,
					BottomFeet:   bottom,
					TopFeet:      top,
					DbzTenths:    int16(dbz * 10),
					ThermoPhase:  blended[i],
					SurfacePhase: surf,
				})
				perLevelCounts[i]++
			}
		}
	}

	for i := range mrms.Levels {
		if len(cellsByLevel[i]) == 0 {
			continue
		}
		allVoxels = append(allVoxels, brick.MergeLevel(cellsByLevel[i])...)
	}

	snap := &snapshot.Snapshot{
		ScanTime:       in.scanTime,
		Bounds:         bounds,
		FootprintXMdeg: uint16(bounds.LonStep() * 1000),
		FootprintYMdeg: uint16(bounds.LatStep() * 1000),
		PerLevelCounts: perLevelCounts,
		Voxels:         allVoxels,
		PhaseMeta: snapshot.PhaseMeta{
			ThermoSignalVoxels:      int64(tel.ThermoSignalVoxels),
			DualAdjustedVoxels:      int64(tel.DualAdjustedVoxels),
			DualSuppressedVoxels:    int64(tel.DualSuppressedVoxels),
			MixedSuppressedVoxels:   int64(tel.MixedSuppressedVoxels),
			MixedEdgePromotedVoxels: int64(tel.MixedEdgePromotedVoxels),
			PrecipSnowForcedVoxels:  int64(tel.PrecipSnowForcedVoxels),
			AuxWetBulb:              int64(tel.AuxWetBulb),
			AuxSurfaceTemp:          int64(tel.AuxSurfaceTemp),
			AuxBrightBandPair:       int64(tel.AuxBrightBandPair),
			AuxRQI:                  int64(tel.AuxRQI),
			AuxAny:                  int64(tel.AuxAny),
			AuxFallback:             int64(tel.AuxFallback),
			ZdrTimestamp:            in.zdrTimestamp,
			RhoHVTimestamp:          in.rhohvTimestamp,
			PrecipTimestamp:         in.precipTimestamp,
			FreezingTimestamp:       in.freezingTimestamp,
		},
	}
	return snap, nil
}

func isMissing(v float32) bool { return v != v } // NaN check

// gridCornerOffsetNm100 projects (row,col) to hundredths-of-NM offsets from
// the grid's own northwest corner (max_lat, min_lon), using the same
// flat-earth approximation the HTTP surface applies against a request
// origin. This reference is fixed per snapshot (derivable from the stored
// grid_bounds), so the query path can invert it back to (lat,lon) and then
// reproject relative to whatever origin a request names.
func gridCornerOffsetNm100(b mrms.Bounds, row, col int) (xNm100, zNm100 int16) {
	refLat := b.MaxLat
	dLon := float64(col) * b.LonStep()
	dLat := float64(row) * b.LatStep() // lat decreases with row, so this is -Δlat from refLat
	x := dLon * 60 * math.Cos(refLat*math.Pi/180) * 100
	z := dLat * 60 * 100
	return int16(x), int16(z)
}

func levelFeetOrZero(level string) float64 {
	ft, err := mrms.LevelFeet(level)
	if err != nil {
		return 0
	}
	return ft
}

// levelBoundsFeet returns [bottom,top) feet for level index i, spanning
// from this level's altitude to the next level's altitude (or a fixed
// 1000 ft cap shell for the topmost level).
func levelBoundsFeet(i int) (bottom, top uint16) {
	lo := levelFeetOrZero(mrms.Levels[i])
	var hi float64
	if i+1 < len(mrms.Levels) {
		hi = levelFeetOrZero(mrms.Levels[i+1])
	} else {
		hi = lo + 1000
	}
	return uint16(lo), uint16(hi)
}

func dualPolSample(in assembleInputs, levelIdx, row, col int, scanTime time.Time, auxFallback bool) phase.DualPolSample {
	var d phase.DualPolSample
	if g := in.zdr[levelIdx]; g != nil {
		if v := g.At(row, col); !isMissing(v) {
			d.ZdrDb = float64(v)
			d.HasZdr = true
		}
	}
	if g := in.rhohv[levelIdx]; g != nil {
		if v := g.At(row, col); !isMissing(v) {
			d.RhoHV = float64(v)
			d.HasRhoHV = true
		}
	}
	if d.HasZdr || d.HasRhoHV {
		d.AuxFallback = auxFallback
		if auxFallback {
			d.AgeSeconds = 301
		}
	}
	return d
}

func buildColumnContext(in assembleInputs, row, col int, bounds mrms.Bounds) phase.ColumnContext {
	var c phase.ColumnContext

	if in.precipFlag != nil {
		v := in.precipFlag.At(row, col)
		if !isMissing(v) {
			c.PrecipFlag = phase.PrecipFlagCode(v)
			c.HasPrecipFlag = true
		}
	}
	if in.freezingLevel != nil {
		v := in.freezingLevel.At(row, col)
		if !isMissing(v) {
			c.FreezingLevelFt = float64(v)
			c.HasFreezingLevel = true
		}
	}
	if in.wetBulb != nil {
		v := in.wetBulb.At(row, col)
		if !isMissing(v) {
			c.WetBulbC = float64(v)
			c.HasWetBulb = true
		}
	}
	if in.surfaceTemp != nil {
		v := in.surfaceTemp.At(row, col)
		if !isMissing(v) {
			c.SurfaceTempC = float64(v)
			c.HasSurfaceTemp = true
		}
	}
	if in.bbTop != nil && in.bbBottom != nil {
		top, bottom := in.bbTop.At(row, col), in.bbBottom.At(row, col)
		if !isMissing(top) && !isMissing(bottom) {
			c.BrightBandTopFt = float64(top)
			c.BrightBandBottomFt = float64(bottom)
			c.HasBrightBand = true
		}
	}
	if in.rqi != nil {
		v := in.rqi.At(row, col)
		if !isMissing(v) {
			c.RQI = float64(v)
			c.HasRQI = true
		}
	}

	// Column altitude summary: midpoint of the reflectivity stack, used by
	// Resolve's warm/cold tie-break and the snow guardrail's surface check.
	c.SurfaceElevationFt = 0
	c.ColumnMeanAltFt = levelFeetOrZero(mrms.Levels[mrms.NumLevels/2])

	return c
}
