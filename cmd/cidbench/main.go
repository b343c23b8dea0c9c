package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/pingsantohq/cidbench/internal/logging"
)

// Dependencies allow tests to capture output and fake the clock.
type Dependencies struct {
	Stdout     io.Writer
	Logger     *log.Logger
	HTTPClient *http.Client
	Now        func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Logger == nil {
		d.Logger = logging.New()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				ForceAttemptHTTP2:   true,
				MaxIdleConnsPerHost: 256,
			},
		}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:], Dependencies{})
	case "check":
		err = check(ctx, os.Args[2:], Dependencies{})
	case "aggregate":
		err = aggregateCmd(ctx, os.Args[2:], Dependencies{})
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("cidbench: direct vs discovery retrieval benchmark")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cidbench run [--config cidbench.yaml] [--env-file .env] [--corpus latest.json] [--concurrency N]")
	fmt.Println("               [--test-name fetch|range-requests|find provs] [--mode fetch|findprovs] [--range-size M]")
	fmt.Println("               [--direct-fetch-url URL] [--comparison-fetch-url URL] [--direct-discovery-url URL] [--indexer-url URL]")
	fmt.Println("               [--out dir] [--discrepancy-file path] [--seed N] [--time-str T] [--monitor-addr host:port]")
	fmt.Println("  cidbench check [--config cidbench.yaml] [--mode fetch|findprovs] [--timeout 5s]")
	fmt.Println("  cidbench aggregate [--config cidbench.yaml] [--env-file .env] [--out dir] [--results dir] [--from-artifact]")
}
