package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/cidbench/internal/artifacts"
	"github.com/pingsantohq/cidbench/internal/config"
	"github.com/pingsantohq/cidbench/internal/corpus"
	"github.com/pingsantohq/cidbench/internal/discrepancy"
	"github.com/pingsantohq/cidbench/internal/health"
	"github.com/pingsantohq/cidbench/internal/metrics"
	"github.com/pingsantohq/cidbench/internal/monitor"
	"github.com/pingsantohq/cidbench/internal/probe"
	"github.com/pingsantohq/cidbench/internal/runtime"
	"github.com/pingsantohq/cidbench/internal/summary"
	"github.com/pingsantohq/cidbench/internal/worker"
	"github.com/pingsantohq/cidbench/pkg/types"
)

func run(ctx context.Context, args []string, deps Dependencies) error {
	deps = deps.withDefaults()
	logger := deps.Logger

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	corpusPath := fs.String("corpus", "", "Path to the identifier corpus (JSON array)")
	concurrency := fs.Int("concurrency", 0, "Number of virtual users")
	testName := fs.String("test-name", "", "Test name; \"find provs\" selects provider discovery")
	mode := fs.String("mode", "", "Run mode: fetch or findprovs (default derived from test name)")
	rangeSize := fs.Int64("range-size", 0, "Bytes requested from the fetch backends (0 fetches everything)")
	maxDuration := fs.Duration("max-duration", 0, "Stop claiming iterations after this long")
	timeout := fs.Duration("timeout", 0, "Per-request timeout")
	rateLimit := fs.Float64("rate", 0, "Maximum iterations per second (0 is unlimited)")
	seed := fs.Uint64("seed", 0, "Seed for backend ordering (0 picks one from the clock)")
	timeStrFlag := fs.String("time-str", "", "Timestamp embedded in the artifact name")
	discrepancyFile := fs.String("discrepancy-file", "", "Evidence file for discrepancies")
	monitorAddr := fs.String("monitor-addr", "", "Serve /metrics and /progress on this address")
	skipCheck := fs.Bool("skip-check", false, "Do not check backend reachability before the run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.loadConfig(ctx, fs, func(name string, cfg *config.Config) {
		switch name {
		case "corpus":
			cfg.Corpus.Path = *corpusPath
		case "concurrency":
			cfg.Run.Concurrency = *concurrency
		case "test-name":
			cfg.Run.TestName = *testName
			if !flagSet(fs, "mode") {
				cfg.Run.Mode = ""
			}
		case "mode":
			cfg.Run.Mode = *mode
		case "range-size":
			cfg.Run.RangeSize = *rangeSize
		case "max-duration":
			cfg.Run.MaxDuration = *maxDuration
		case "timeout":
			cfg.Run.RequestTimeout = *timeout
		case "rate":
			cfg.Run.RateLimit = *rateLimit
		case "seed":
			cfg.Run.Seed = *seed
		case "time-str":
			cfg.Run.TimeStr = *timeStrFlag
		case "discrepancy-file":
			cfg.Output.DiscrepancyFile = *discrepancyFile
		case "monitor-addr":
			cfg.Monitor.Addr = *monitorAddr
		}
	})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	items, err := loadCorpus(ctx, cfg.Corpus)
	if err != nil {
		return err
	}
	if items.Len() == 0 {
		logger.Printf("corpus %s is empty", cfg.Corpus.Path)
	}

	store, err := artifacts.NewFileStore(cfg.Output.Dir)
	if err != nil {
		return err
	}

	cmp := runtime.ComparisonFor(cfg)
	timeStr := cfg.Run.TimeStr
	if timeStr == "" {
		timeStr = summary.TimeString(deps.Now())
	}
	artifactName := summary.ArtifactPath(cfg.Run.TestName, cfg.Run.Concurrency, rangeSizeFor(cfg, cmp), timeStr)
	if _, err := store.Prepare(artifactName); err != nil {
		return fmt.Errorf("prepare run output: %w", err)
	}

	if !*skipCheck {
		ready, findings := health.NewChecker(deps.HTTPClient, 0).Check(ctx, cmp.Backends())
		for _, f := range findings {
			logger.Printf("preflight %s", f)
		}
		if !ready {
			logger.Printf("preflight found unreachable backends; their probes will fail")
		}
	}

	var evidence *discrepancy.Logger
	if cfg.Output.DiscrepancyFile != "" {
		evidence, err = discrepancy.Open(cfg.Output.DiscrepancyFile, cmp.Header, discrepancy.WithLogger(logger))
		if err != nil {
			return err
		}
	}

	progress := metrics.NewProgress()
	prober := probe.NewProber(
		probe.Dependencies{HTTPClient: deps.HTTPClient, Now: deps.Now, Logger: logger},
		probe.WithTimeout(cfg.Run.RequestTimeout),
		probe.WithRangeSize(cfg.Run.RangeSize),
	)
	workerOpts := []worker.PoolOption{
		worker.WithWorkerCount(cfg.Run.Concurrency),
		worker.WithMaxDuration(cfg.Run.MaxDuration),
	}
	if cfg.Run.RateLimit > 0 {
		workerOpts = append(workerOpts, worker.WithRate(cfg.Run.RateLimit, cfg.Run.Concurrency))
	}
	rt := runtime.New(cmp,
		runtime.WithProber(prober),
		runtime.WithEvidence(evidence),
		runtime.WithProgress(progress),
		runtime.WithWorkerOptions(workerOpts...),
		runtime.WithSeed(cfg.Run.Seed),
		runtime.WithLogger(logger),
		runtime.WithNow(deps.Now),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result runtime.Result
	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})
	g.Go(func() error {
		defer close(runDone)
		result = rt.Run(gctx, items.Items())
		return nil
	})
	if cfg.Monitor.Addr != "" {
		g.Go(func() error {
			monCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			go func() {
				<-runDone
				cancel()
			}()
			return serveMonitoring(monCtx, cfg.Monitor.Addr, progress, deps)
		})
	}
	runErr := g.Wait()

	if evidence != nil {
		if err := evidence.Close(); err != nil {
			logger.Printf("close discrepancy file: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if err := ctx.Err(); err != nil {
		logger.Printf("run interrupted after %d/%d iterations", result.Stats.Completed, result.Stats.Total)
	}

	meta := runMetadata(cfg, cmp, result, timeStr)
	s := summary.Build(meta, result.Metrics)
	exporter := summary.Exporter{Store: store, Stdout: deps.Stdout, Logger: logger}
	written, err := exporter.Export(context.WithoutCancel(ctx), s)
	if err != nil {
		return err
	}

	if cfg.Mirror.Enabled() {
		mirror, err := newMirror(cfg.Mirror, deps)
		if err != nil {
			return err
		}
		mctx := context.WithoutCancel(ctx)
		if _, err := mirror.Upload(mctx, written.Name, written.Path, "application/json"); err != nil {
			return err
		}
		if evidence != nil {
			name := filepath.ToSlash(filepath.Join(filepath.Dir(written.Name), filepath.Base(evidence.Path())))
			if _, err := mirror.Upload(mctx, name, evidence.Path(), "text/csv"); err != nil {
				return err
			}
		}
	}

	fmt.Fprintln(deps.Stdout, written.Path)
	return nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func loadCorpus(ctx context.Context, cfg config.CorpusConfig) (*corpus.Corpus, error) {
	var verifier *corpus.Verifier
	if cfg.PublicKey != "" {
		v, err := corpus.NewVerifierFromFile(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		verifier = v
	}
	return corpus.LoadVerified(ctx, cfg.Path, cfg.Signature, verifier)
}

func rangeSizeFor(cfg config.Config, cmp runtime.Comparison) int64 {
	if cmp.Mode == config.ModeFetch {
		return cfg.Run.RangeSize
	}
	return 0
}

func runMetadata(cfg config.Config, cmp runtime.Comparison, result runtime.Result, timeStr string) types.RunMetadata {
	return types.RunMetadata{
		RunID:       uuid.NewString(),
		TestName:    cfg.Run.TestName,
		Mode:        cmp.Mode,
		Concurrency: cfg.Run.Concurrency,
		RangeSize:   rangeSizeFor(cfg, cmp),
		Timestamp:   timeStr,
		StartedAt:   result.StartedAt.UTC(),
		ElapsedMs:   float64(result.Stats.Elapsed) / float64(time.Millisecond),
		Seed:        result.Seed,
		Iterations: types.IterationCounts{
			Total:            result.Stats.Total,
			Completed:        result.Stats.Completed,
			DeadlineExceeded: result.Stats.DeadlineExceeded,
		},
		Backends: cmp.BackendInfo(),
	}
}

func serveMonitoring(ctx context.Context, addr string, progress *metrics.Progress, deps Dependencies) error {
	srv := monitor.New(monitor.Config{Addr: addr}, monitor.Dependencies{Progress: progress, Logger: deps.Logger})
	deps.Logger.Printf("monitoring listening on %s", addr)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("monitoring server: %w", err)
	}
	return nil
}

func newMirror(cfg config.MirrorConfig, deps Dependencies) (*artifacts.Mirror, error) {
	mc := artifacts.MirrorConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		UseSSL:    cfg.UseSSL,
		Prefix:    cfg.Prefix,
	}
	client, err := artifacts.NewMinioClient(mc)
	if err != nil {
		return nil, err
	}
	return artifacts.NewMirror(client, mc, deps.Logger), nil
}

// mirrorName maps a path under root onto its store-relative object name.
func mirrorName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(filepath.Base(path))
	}
	return filepath.ToSlash(rel)
}
