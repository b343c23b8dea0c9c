package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/pingsantohq/cidbench/internal/config"
	"github.com/pingsantohq/cidbench/internal/health"
	"github.com/pingsantohq/cidbench/internal/runtime"
)

// check reports whether the backends of the configured mode answer.
func check(ctx context.Context, args []string, deps Dependencies) error {
	deps = deps.withDefaults()

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	mode := fs.String("mode", "", "Run mode: fetch or findprovs")
	timeout := fs.Duration("timeout", 0, "Per-backend timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.loadConfig(ctx, fs, func(name string, cfg *config.Config) {
		if name == "mode" {
			cfg.Run.Mode = *mode
		}
	})
	if err != nil {
		return err
	}

	ready, findings := health.NewChecker(deps.HTTPClient, *timeout).Check(ctx, runtime.ComparisonFor(cfg).Backends())
	for _, f := range findings {
		fmt.Fprintln(deps.Stdout, f)
	}
	if !ready {
		return errors.New("one or more backends are unreachable")
	}
	fmt.Fprintf(deps.Stdout, "%s backends ready\n", cfg.Run.Mode)
	return nil
}
