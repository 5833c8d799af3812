// config/config.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package config loads the service's runtime configuration from
// environment variables, following the RUNTIME_* naming convention, and
// carries the resolver's open-question tunables with their documented
// defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultListenAddr              = ":8000"
	DefaultStorageDir              = "avmrms-data"
	DefaultRetentionBytes    int64 = 5 * 1024 * 1024 * 1024 // 5 GiB
	DefaultBootstrapWindow         = 30 * time.Minute
	DefaultPendingRetryBase        = 30 * time.Second
	DefaultPendingRetryCap         = 20 * time.Minute
	DefaultEvictionHorizon         = 90 * time.Minute
	DefaultMaxRangeNm       int16  = 120
	DefaultMinDbz           int16  = 5
)

// Tunables holds the phase resolver's tunable constants.
type Tunables struct {
	// AuxMinLevelCoverage is the minimum fraction of the 33 reflectivity
	// levels that a dual-pol timestamp must cover to be accepted when an
	// exact-timestamp match across all levels is unavailable.
	AuxMinLevelCoverage float64

	// MixedTransitionDelta (δ_transition) bounds how close the top two
	// scores must be for a transition-band mixed bonus to apply.
	MixedTransitionDelta float64

	// MixedTransitionBonus (β_transition) is the bonus added to s_mixed
	// in the transition band.
	MixedTransitionBonus float64

	// MixedMarginDelta (δ_mixed_margin) is the minimum margin s_mixed
	// must hold over the runner-up to survive as the final decision.
	MixedMarginDelta float64

	// AuxStaleAge is the age beyond which dual-pol aux is flagged
	// aux_fallback and down-weighted.
	AuxStaleAge time.Duration

	// AuxFallbackWeightFactor further scales weight_aux when aux_fallback
	// is set.
	AuxFallbackWeightFactor float64
}

func DefaultTunables() Tunables {
	return Tunables{
		AuxMinLevelCoverage:     0.70,
		MixedTransitionDelta:    0.15,
		MixedTransitionBonus:    0.20,
		MixedMarginDelta:        0.10,
		AuxStaleAge:             300 * time.Second,
		AuxFallbackWeightFactor: 0.3,
	}
}

// Config is the resolved set of process-wide settings, read once at
// startup from the environment.
type Config struct {
	ListenAddr              string
	StorageDir              string
	RetentionBytes          int64
	SQSQueueURL             string
	BootstrapWindow         time.Duration
	PendingRetryBase        time.Duration
	PendingRetryCap         time.Duration
	EvictionHorizon         time.Duration
	ObjectStoreBaseURL      string
	EchoTopObjectStoreURL   string
	TrafficObjectStoreURL   string
	LogLevel                string
	LogDir                  string
	Tunables                Tunables
}

// Load reads RUNTIME_* environment variables, falling back to documented
// defaults for anything unset.
func Load() Config {
	return Config{
		ListenAddr:            getEnv("RUNTIME_LISTEN_ADDR", DefaultListenAddr),
		StorageDir:            getEnv("RUNTIME_STORAGE_DIR", DefaultStorageDir),
		RetentionBytes:        getEnvInt64("RUNTIME_MRMS_RETENTION_BYTES", DefaultRetentionBytes),
		SQSQueueURL:           os.Getenv("RUNTIME_MRMS_SQS_QUEUE_URL"),
		BootstrapWindow:       getEnvSeconds("RUNTIME_MRMS_BOOTSTRAP_INTERVAL_SECONDS", DefaultBootstrapWindow),
		PendingRetryBase:      getEnvSeconds("RUNTIME_MRMS_PENDING_RETRY_SECONDS", DefaultPendingRetryBase),
		PendingRetryCap:       DefaultPendingRetryCap,
		EvictionHorizon:       DefaultEvictionHorizon,
		ObjectStoreBaseURL:    getEnv("RUNTIME_MRMS_OBJECT_STORE_URL", "https://noaa-mrms-pds.s3.amazonaws.com"),
		EchoTopObjectStoreURL: getEnv("RUNTIME_MRMS_ECHOTOP_OBJECT_STORE_URL", "https://noaa-mrms-pds.s3.amazonaws.com"),
		TrafficObjectStoreURL: getEnv("RUNTIME_TAR1090_URL", ""),
		LogLevel:              getEnv("RUNTIME_LOG_LEVEL", "info"),
		LogDir:                getEnv("RUNTIME_LOG_DIR", ""),
		Tunables:              DefaultTunables(),
	}
}

func getEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func getEnvInt64(name string, def int64) int64 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvSeconds(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
