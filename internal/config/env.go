package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvCorpus          = "CIDBENCH_CORPUS"
	EnvCorpusSignature = "CIDBENCH_CORPUS_SIGNATURE"
	EnvCorpusPublicKey = "CIDBENCH_CORPUS_PUBLIC_KEY"
	EnvConcurrency     = "CIDBENCH_CONCURRENCY"
	EnvTestName        = "CIDBENCH_TEST_NAME"
	EnvMode            = "CIDBENCH_MODE"
	EnvMaxDuration     = "CIDBENCH_MAX_DURATION"
	EnvRequestTimeout  = "CIDBENCH_REQUEST_TIMEOUT"
	EnvSeed            = "CIDBENCH_SEED"
	EnvTimeStr         = "CIDBENCH_TIME_STR"
	EnvRangeSize       = "CIDBENCH_RANGE_SIZE"
	EnvRateLimit       = "CIDBENCH_RATE_LIMIT"
	EnvOutDir          = "CIDBENCH_OUT_DIR"
	EnvResultsDir      = "CIDBENCH_RESULTS_DIR"
	EnvDiscrepancyFile = "CIDBENCH_DISCREPANCY_FILE"
	EnvDirectFetchURL  = "CIDBENCH_DIRECT_FETCH_URL"
	EnvComparisonURL   = "CIDBENCH_COMPARISON_FETCH_URL"
	EnvDirectDiscURL   = "CIDBENCH_DIRECT_DISCOVERY_URL"
	EnvIndexerURL      = "CIDBENCH_INDEXER_URL"
	EnvMonitorAddr     = "CIDBENCH_MONITOR_ADDR"
	EnvMirrorEndpoint  = "CIDBENCH_MIRROR_ENDPOINT"
	EnvMirrorAccessKey = "CIDBENCH_MIRROR_ACCESS_KEY"
	EnvMirrorSecretKey = "CIDBENCH_MIRROR_SECRET_KEY"
	EnvMirrorBucket    = "CIDBENCH_MIRROR_BUCKET"
	EnvMirrorRegion    = "CIDBENCH_MIRROR_REGION"
	EnvMirrorUseSSL    = "CIDBENCH_MIRROR_USE_SSL"
	EnvMirrorPrefix    = "CIDBENCH_MIRROR_PREFIX"
)

// ApplyEnv overrides configuration values with any CIDBENCH_* variables that
// are present in the environment.
func (c *Config) ApplyEnv() error {
	setString(EnvCorpus, &c.Corpus.Path)
	setString(EnvCorpusSignature, &c.Corpus.Signature)
	setString(EnvCorpusPublicKey, &c.Corpus.PublicKey)
	setString(EnvTestName, &c.Run.TestName)
	setString(EnvMode, &c.Run.Mode)
	setString(EnvTimeStr, &c.Run.TimeStr)
	setString(EnvOutDir, &c.Output.Dir)
	setString(EnvResultsDir, &c.Output.ResultsDir)
	setString(EnvDiscrepancyFile, &c.Output.DiscrepancyFile)
	setString(EnvDirectFetchURL, &c.Backends.DirectFetch.URL)
	setString(EnvComparisonURL, &c.Backends.ComparisonFetch.URL)
	setString(EnvDirectDiscURL, &c.Backends.DirectDiscovery.URL)
	setString(EnvIndexerURL, &c.Backends.IndexerDiscovery.URL)
	setString(EnvMonitorAddr, &c.Monitor.Addr)
	setString(EnvMirrorEndpoint, &c.Mirror.Endpoint)
	setString(EnvMirrorAccessKey, &c.Mirror.AccessKey)
	setString(EnvMirrorSecretKey, &c.Mirror.SecretKey)
	setString(EnvMirrorBucket, &c.Mirror.Bucket)
	setString(EnvMirrorRegion, &c.Mirror.Region)
	setString(EnvMirrorPrefix, &c.Mirror.Prefix)

	if err := setInt(EnvConcurrency, &c.Run.Concurrency); err != nil {
		return err
	}
	if err := setDuration(EnvMaxDuration, &c.Run.MaxDuration); err != nil {
		return err
	}
	if err := setDuration(EnvRequestTimeout, &c.Run.RequestTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvSeed); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvSeed, err)
		}
		c.Run.Seed = seed
	}
	if v, ok := os.LookupEnv(EnvRangeSize); ok {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvRangeSize, err)
		}
		c.Run.RangeSize = size
	}
	if v, ok := os.LookupEnv(EnvRateLimit); ok {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvRateLimit, err)
		}
		c.Run.RateLimit = limit
	}
	if v, ok := os.LookupEnv(EnvMirrorUseSSL); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvMirrorUseSSL, err)
		}
		c.Mirror.UseSSL = b
	}
	return nil
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = i
	}
	return nil
}

func setDuration(key string, dst *time.Duration) error {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
	}
	return nil
}
