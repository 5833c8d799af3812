// cmd/avmrms-server/main.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/mmp/avmrms/config"
	"github.com/mmp/avmrms/echotop"
	"github.com/mmp/avmrms/errs"
	"github.com/mmp/avmrms/httpapi"
	"github.com/mmp/avmrms/ingest"
	"github.com/mmp/avmrms/objstore"
	"github.com/mmp/avmrms/scan"
	"github.com/mmp/avmrms/snapshot"
	"github.com/mmp/avmrms/wxlog"
)

// bucketName is the upstream NOAA MRMS archive; public-read, so
// objstore.NewS3Backend falls back to anonymous credentials.
const bucketName = "noaa-mrms-pds"

var nWorkers = flag.Int("nworkers", 8, "Number of worker goroutines running the assemble/persist pipeline")
var schedTick = flag.Duration("sched-tick", 5*time.Second, "How often to poll the pending-scan scheduler for due/expired scans")

func main() {
	flag.Parse()

	cfg := config.Load()
	lg := wxlog.New(cfg.LogLevel, cfg.LogDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Errorf("avmrms-server: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, lg *wxlog.Logger) error {
	store, err := snapshot.Open(cfg.StorageDir, cfg.RetentionBytes, lg)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	echoStore := echotop.NewStore()
	sched := scan.NewScheduler(cfg)

	s3, err := objstore.NewS3Backend(ctx, bucketName, "")
	if err != nil {
		return fmt.Errorf("new s3 backend: %w", err)
	}
	mainBackend := objstore.NewRetryingBackend(s3)

	var echoBackend objstore.Backend = objstore.NewRetryingBackend(objstore.NewHTTPBackend(cfg.EchoTopObjectStoreURL))

	var trafficBackend objstore.Backend
	if cfg.TrafficObjectStoreURL != "" {
		trafficBackend = objstore.NewHTTPBackend(cfg.TrafficObjectStoreURL)
	}

	if err := ingest.Bootstrap(ctx, s3, sched, cfg.BootstrapWindow, lg); err != nil {
		lg.Warnf("avmrms-server: bootstrap incomplete, continuing: %v", err)
	}

	pipeline := &ingest.Pipeline{
		Backend:  mainBackend,
		KeyStore: ingest.DefaultKeyStore{},
		Store:    store,
		Sched:    sched,
		Tunables: cfg.Tunables,
		Lg:       lg,
	}
	echoIngester := ingest.NewEchoTopIngester(echoBackend, echoStore, lg)

	pendingCh := make(chan *scan.Pending, 64)
	var workers sync.WaitGroup
	for range *nWorkers {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for p := range pendingCh {
				runPipeline(ctx, pipeline, sched, p, lg)
			}
		}()
	}
	defer func() {
		close(pendingCh)
		workers.Wait()
	}()

	if cfg.SQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		queue := ingest.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL)
		consumer := &ingest.Consumer{
			Queue:   queue,
			Sched:   sched,
			Lg:      lg,
			EchoTop: echoIngester,
			Dispatch: func(p *scan.Pending) {
				select {
				case pendingCh <- p:
				default:
					lg.Warnf("avmrms-server: pipeline worker pool saturated, scan %s waits for the retry sweep", p.ScanTime)
				}
			},
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				lg.Errorf("avmrms-server: consumer stopped: %v", err)
			}
		}()
	} else {
		lg.Warnf("avmrms-server: RUNTIME_MRMS_SQS_QUEUE_URL not set, ingest notifications disabled")
	}

	go schedulerSweep(ctx, sched, pendingCh, *schedTick, lg)

	srv := &httpapi.Server{
		Store:    store,
		EchoTops: echoStore,
		Sched:    sched,
		Traffic:  trafficBackend,
		Cfg:      cfg,
		Lg:       lg,
	}
	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}

// runPipeline executes one assemble/persist attempt and reschedules it
// through the scheduler's backoff on transient failure. A permanent
// failure is logged and dropped: the scan will later be evicted by
// schedulerSweep once it passes the eviction horizon.
func runPipeline(ctx context.Context, p *ingest.Pipeline, sched *scan.Scheduler, pend *scan.Pending, lg *wxlog.Logger) {
	if err := p.Run(ctx, pend); err != nil {
		if errs.Permanent(err) {
			lg.Errorf("avmrms-server: pipeline run failed permanently for scan %s, dropping: %v", pend.ScanTime, err)
			return
		}
		lg.Warnf("avmrms-server: pipeline run failed for scan %s, will retry: %v", pend.ScanTime, err)
		sched.MarkFailedRetry(pend, time.Now().UTC())
	}
}

// schedulerSweep periodically re-dispatches scans whose retry backoff has
// elapsed and evicts scans that have aged past the horizon without
// completing, since a scan stuck retrying forever would otherwise never
// free its entry in the scheduler's pending map.
func schedulerSweep(ctx context.Context, sched *scan.Scheduler, pendingCh chan<- *scan.Pending, tick time.Duration, lg *wxlog.Logger) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for {
				p := sched.PopReady(now)
				if p == nil {
					break
				}
				select {
				case pendingCh <- p:
				case <-ctx.Done():
					return
				}
			}

			for _, p := range sched.EvictExpired(now) {
				lg.Warnf("avmrms-server: evicting scan %s after exceeding the eviction horizon", p.ScanTime)
			}
		}
	}
}
