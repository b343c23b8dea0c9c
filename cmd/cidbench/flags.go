package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pingsantohq/cidbench/internal/config"
)

// commonFlags are shared by every subcommand that reads configuration.
type commonFlags struct {
	configPath string
	envFile    string
	outDir     string

	directFetchURL     string
	comparisonFetchURL string
	directDiscoveryURL string
	indexerURL         string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to configuration file (default $CIDBENCH_CONFIG or "+config.DefaultConfigPath+")")
	fs.StringVar(&c.envFile, "env-file", config.DefaultEnvFile, "Dotenv file loaded before reading the environment")
	fs.StringVar(&c.outDir, "out", "", "Output root for run artifacts")
	fs.StringVar(&c.directFetchURL, "direct-fetch-url", "", "Direct gateway base URL")
	fs.StringVar(&c.comparisonFetchURL, "comparison-fetch-url", "", "Comparison fetch base URL")
	fs.StringVar(&c.directDiscoveryURL, "direct-discovery-url", "", "Direct find-providers API base URL")
	fs.StringVar(&c.indexerURL, "indexer-url", "", "Indexer base URL")
}

// loadConfig resolves configuration: flags override the environment, which
// overrides the config file, which overrides defaults.
func (c *commonFlags) loadConfig(ctx context.Context, fs *flag.FlagSet, apply func(name string, cfg *config.Config)) (config.Config, error) {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return config.Config{}, err
	}

	var (
		cfg config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.Load(ctx, c.configPath)
	} else {
		cfg, err = config.LoadFromEnv(ctx)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, fmt.Errorf("failed to apply environment: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.Dir = c.outDir
		case "direct-fetch-url":
			cfg.Backends.DirectFetch.URL = c.directFetchURL
		case "comparison-fetch-url":
			cfg.Backends.ComparisonFetch.URL = c.comparisonFetchURL
		case "direct-discovery-url":
			cfg.Backends.DirectDiscovery.URL = c.directDiscoveryURL
		case "indexer-url":
			cfg.Backends.IndexerDiscovery.URL = c.indexerURL
		default:
			if apply != nil {
				apply(f.Name, &cfg)
			}
		}
	})
	cfg.Normalize()
	return cfg, nil
}
