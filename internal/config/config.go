package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "CIDBENCH_CONFIG"
	DefaultConfigPath = "cidbench.yaml"
	DefaultEnvFile    = ".env"
)

const (
	ModeFetch     = "fetch"
	ModeFindProvs = "findprovs"
)

const (
	defaultConcurrency    = 1
	defaultMaxDuration    = 60 * time.Minute
	defaultRequestTimeout = 60 * time.Second
	defaultTestName       = "fetch"
	defaultOutDir         = "out"
	defaultResultsDir     = "results"
	defaultComparisonQry  = "depthType=shallow&format=car"
)

type Config struct {
	Run      RunConfig      `yaml:"run"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Output   OutputConfig   `yaml:"output"`
	Backends BackendsConfig `yaml:"backends"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Mirror   MirrorConfig   `yaml:"mirror"`
}

type RunConfig struct {
	TestName       string        `yaml:"test_name"`
	Mode           string        `yaml:"mode"`
	Concurrency    int           `yaml:"concurrency"`
	MaxDuration    time.Duration `yaml:"max_duration"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Seed           uint64        `yaml:"seed"`
	TimeStr        string        `yaml:"time_str"`
	RangeSize      int64         `yaml:"range_size"`
	RateLimit      float64       `yaml:"rate_limit"`
}

type CorpusConfig struct {
	Path      string `yaml:"path"`
	Signature string `yaml:"signature"`
	PublicKey string `yaml:"public_key"`
}

type OutputConfig struct {
	Dir             string `yaml:"dir"`
	ResultsDir      string `yaml:"results_dir"`
	DiscrepancyFile string `yaml:"discrepancy_file"`
}

// BackendsConfig lists every backend the benchmark knows about. A backend
// takes part in a run only when its URL is set.
type BackendsConfig struct {
	DirectFetch      BackendConfig `yaml:"direct_fetch"`
	ComparisonFetch  BackendConfig `yaml:"comparison_fetch"`
	DirectDiscovery  BackendConfig `yaml:"direct_discovery"`
	IndexerDiscovery BackendConfig `yaml:"indexer_discovery"`
}

type BackendConfig struct {
	URL   string `yaml:"url"`
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Query string `yaml:"query"`
}

type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// Enabled reports whether artifacts should be mirrored to object storage.
func (m MirrorConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != "" && strings.TrimSpace(m.Bucket) != ""
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

// LoadOptional behaves like Load but returns an empty Config when the file
// does not exist.
func LoadOptional(ctx context.Context, path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	return Load(ctx, path)
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	return LoadOptional(ctx, PathFromEnv())
}

// PathFromEnv returns the config path named by CIDBENCH_CONFIG, or the default.
func PathFromEnv() string {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return path
}

// LoadEnvFile populates the process environment from a dotenv file. Variables
// already set are left untouched and a missing file is ignored.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Run.Concurrency <= 0 {
		c.Run.Concurrency = defaultConcurrency
	}
	if c.Run.MaxDuration <= 0 {
		c.Run.MaxDuration = defaultMaxDuration
	}
	if c.Run.RequestTimeout <= 0 {
		c.Run.RequestTimeout = defaultRequestTimeout
	}
	c.Run.TestName = strings.TrimSpace(c.Run.TestName)
	if c.Run.TestName == "" {
		c.Run.TestName = defaultTestName
	}
	c.Run.Mode = strings.ToLower(strings.TrimSpace(c.Run.Mode))
	if c.Run.Mode == "" {
		c.Run.Mode = ModeForTest(c.Run.TestName)
	}
	if c.Output.Dir == "" {
		c.Output.Dir = defaultOutDir
	}
	if c.Output.ResultsDir == "" {
		c.Output.ResultsDir = defaultResultsDir
	}

	b := &c.Backends
	b.DirectFetch.defaults("kubo", "Kubo get", "")
	b.ComparisonFetch.defaults("lassie", "Lassie Fetch", defaultComparisonQry)
	b.DirectDiscovery.defaults("kubo", "Kubo Find Provs", "")
	b.IndexerDiscovery.defaults("indexer", "Indexer Query", "")
}

func (b *BackendConfig) defaults(name, label, query string) {
	b.URL = strings.TrimSuffix(strings.TrimSpace(b.URL), "/")
	if b.Name == "" {
		b.Name = name
	}
	if b.Label == "" {
		b.Label = label
	}
	if b.Query == "" {
		b.Query = query
	}
}

// Validate checks the settings needed to execute a benchmark run.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Corpus.Path) == "" {
		return errors.New("corpus path must be configured")
	}
	if c.Run.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Run.Concurrency)
	}
	switch c.Run.Mode {
	case ModeFetch, ModeFindProvs:
	default:
		return fmt.Errorf("unknown mode %q (expected %s or %s)", c.Run.Mode, ModeFetch, ModeFindProvs)
	}
	if c.Run.RangeSize < 0 {
		return fmt.Errorf("range size must not be negative, got %d", c.Run.RangeSize)
	}
	if (c.Corpus.Signature == "") != (c.Corpus.PublicKey == "") {
		return errors.New("corpus signature and public key must be configured together")
	}
	primary, counterpart := c.Backends.DirectFetch, c.Backends.ComparisonFetch
	if c.Run.Mode == ModeFindProvs {
		primary, counterpart = c.Backends.DirectDiscovery, c.Backends.IndexerDiscovery
	}
	if primary.Name == counterpart.Name {
		return fmt.Errorf("backends of mode %s must have distinct names, both are %q", c.Run.Mode, primary.Name)
	}
	return nil
}

// ModeForTest maps a test name onto the run mode it implies. Test names that
// normalize to "findprovs" ("find provs", "find-provs") compare provider
// discovery; every other test compares fetches.
func ModeForTest(testName string) string {
	normalized := strings.ToLower(testName)
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(normalized)
	if normalized == ModeFindProvs {
		return ModeFindProvs
	}
	return ModeFetch
}
