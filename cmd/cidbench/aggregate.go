package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pingsantohq/cidbench/internal/aggregate"
)

func aggregateCmd(ctx context.Context, args []string, deps Dependencies) error {
	deps = deps.withDefaults()

	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	resultsDir := fs.String("results", "", "Directory receiving results_<test>.csv")
	fromArtifact := fs.Bool("from-artifact", false, "Choose rows from the backend markers stored in each artifact")
	parallelism := fs.Int("parallelism", 0, "Artifacts decoded concurrently")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.loadConfig(ctx, fs, nil)
	if err != nil {
		return err
	}
	if *resultsDir != "" {
		cfg.Output.ResultsDir = *resultsDir
	}

	reports, err := aggregate.Run(ctx, aggregate.Options{
		OutDir:       cfg.Output.Dir,
		ResultsDir:   cfg.Output.ResultsDir,
		Backends:     cfg.Backends,
		FromArtifact: *fromArtifact,
		Parallelism:  *parallelism,
		Logger:       deps.Logger,
	})
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		deps.Logger.Printf("no test directories under %s", cfg.Output.Dir)
	}

	if cfg.Mirror.Enabled() {
		mirror, err := newMirror(cfg.Mirror, deps)
		if err != nil {
			return err
		}
		for _, r := range reports {
			if _, err := mirror.Upload(ctx, mirrorName(cfg.Output.ResultsDir, r.Path), r.Path, "text/csv"); err != nil {
				return err
			}
		}
	}

	for _, r := range reports {
		fmt.Fprintf(deps.Stdout, "%s\t%d files\t%d rows\n", r.Path, r.Files, r.Rows)
	}
	return nil
}
