// Package config reads the environment variables recognised by the core
// (spec §6) and validates them, failing fast with a fatal-config error on
// anything required but missing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kadena-io/chainweb-indexer/internal/errs"
)

// Config holds every environment-sourced setting the four pipelines need.
type Config struct {
	BaseURL                string        // SYNC_BASE_URL
	Network                 string        // SYNC_NETWORK
	MinHeight               uint64        // SYNC_MIN_HEIGHT
	FetchIntervalInBlocks   uint64        // SYNC_FETCH_INTERVAL_IN_BLOCKS
	SleepInterval           time.Duration // SLEEP_INTERVAL_MS
	DatabaseDSN             string        // standard PG* / DATABASE_URL
	ObjectStoreBucket       string
	ObjectStoreRegion       string
	ObjectStoreEndpoint     string // optional, for S3-compatible stores
	ChainCount              int
	MaxConcurrentFetch      int
	MaxConcurrentMaterialise int
}

const (
	defaultSleepIntervalMS         = 5000
	defaultFetchIntervalInBlocks   = 200
	defaultChainCount              = 20
	defaultMaxConcurrentFetch      = 50
	defaultMaxConcurrentMaterialise = 20
)

// FromEnv builds a Config from the process environment, applying the
// defaults spec §4 and §6 name, and returning a KindFatalConfig error for
// any variable that is present but unparsable, or required but absent.
func FromEnv() (*Config, error) {
	const op = "config.FromEnv"

	baseURL, ok := os.LookupEnv("SYNC_BASE_URL")
	if !ok || baseURL == "" {
		return nil, errs.FatalConfig(op, fmt.Errorf("SYNC_BASE_URL is required"))
	}
	network, ok := os.LookupEnv("SYNC_NETWORK")
	if !ok || network == "" {
		return nil, errs.FatalConfig(op, fmt.Errorf("SYNC_NETWORK is required"))
	}
	dsn, ok := os.LookupEnv("DATABASE_URL")
	if !ok || dsn == "" {
		return nil, errs.FatalConfig(op, fmt.Errorf("DATABASE_URL is required"))
	}
	bucket, ok := os.LookupEnv("SYNC_OBJECT_STORE_BUCKET")
	if !ok || bucket == "" {
		return nil, errs.FatalConfig(op, fmt.Errorf("SYNC_OBJECT_STORE_BUCKET is required"))
	}

	minHeight, err := envUint64("SYNC_MIN_HEIGHT", 0)
	if err != nil {
		return nil, errs.FatalConfig(op, err)
	}
	fetchInterval, err := envUint64("SYNC_FETCH_INTERVAL_IN_BLOCKS", defaultFetchIntervalInBlocks)
	if err != nil {
		return nil, errs.FatalConfig(op, err)
	}
	sleepMS, err := envUint64("SLEEP_INTERVAL_MS", defaultSleepIntervalMS)
	if err != nil {
		return nil, errs.FatalConfig(op, err)
	}
	chainCount, err := envInt("SYNC_CHAIN_COUNT", defaultChainCount)
	if err != nil {
		return nil, errs.FatalConfig(op, err)
	}

	return &Config{
		BaseURL:                  baseURL,
		Network:                  network,
		MinHeight:                minHeight,
		FetchIntervalInBlocks:    fetchInterval,
		SleepInterval:            time.Duration(sleepMS) * time.Millisecond,
		DatabaseDSN:              dsn,
		ObjectStoreBucket:        bucket,
		ObjectStoreRegion:        os.Getenv("SYNC_OBJECT_STORE_REGION"),
		ObjectStoreEndpoint:      os.Getenv("SYNC_OBJECT_STORE_ENDPOINT"),
		ChainCount:               chainCount,
		MaxConcurrentFetch:       defaultMaxConcurrentFetch,
		MaxConcurrentMaterialise: defaultMaxConcurrentMaterialise,
	}, nil
}

func envUint64(name string, def uint64) (uint64, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", name, raw, err)
	}
	return v, nil
}

func envInt(name string, def int) (int, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", name, raw, err)
	}
	return v, nil
}
