// ingest/bootstrap.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/scan"
	"github.com/mmp/avmrms/wxlog"
)

// Lister enumerates object keys under a prefix, used only at startup to
// recover from a restart without waiting for fresh notifications.
type Lister interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Bootstrap enumerates a deeper-than-newest-first window of recently
// published keys for every altitude/aux family and folds them into the
// scheduler, so the newest complete scan is recoverable after a restart
// Families are listed concurrently; parse failures are logged and
// skipped rather than aborting the whole bootstrap.
func Bootstrap(ctx context.Context, ls Lister, sched *scan.Scheduler, window time.Duration, lg *wxlog.Logger) error {
	families := []mrms.Family{
		mrms.ReflectivityQC, mrms.Zdr, mrms.RhoHV,
		mrms.PrecipFlag, mrms.FreezingLevelHeight, mrms.WetBulbTemp, mrms.SurfaceTemp,
		mrms.BrightBandTop, mrms.BrightBandBottom, mrms.RadarQualityIndex,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	now := time.Now().UTC()
	cutoff := now.Add(-window)

	for _, fam := range families {
		fam := fam
		eg.Go(func() error {
			keys, err := ls.ListKeys(egCtx, string(fam)+"_")
			if err != nil {
				if lg != nil {
					lg.Warnf("ingest: bootstrap listing %s failed, continuing without it: %v", fam, err)
				}
				return nil
			}
			sort.Strings(keys)
			for _, k := range keys {
				pk, err := mrms.ParseObjectKey(k)
				if err != nil {
					continue
				}
				if pk.ScanTime.Before(cutoff) {
					continue
				}
				if pk.Family == mrms.ReflectivityQC {
					sched.ObserveReflectivity(pk.ScanTime, pk.Level, now)
				} else {
					sched.ObserveAux(pk.ScanTime, pk.Family, pk.ScanTime, pk.Level, now)
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("ingest: bootstrap: %w", err)
	}
	if lg != nil {
		lg.Infof("ingest: bootstrap complete, %d pending scans tracked", sched.Len())
	}
	return nil
}
