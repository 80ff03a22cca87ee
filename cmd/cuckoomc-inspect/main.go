// cuckoomc-inspect is the operator CLI for a running cuckoomcd: it scrapes
// the Prometheus text endpoint and prints the counters and gauges that
// matter for day-to-day triage, optionally on a repeating interval. It also
// downloads pprof profiles when cuckoomcd is built with net/http/pprof
// registered on its metrics mux.
//
// The target process is expected to expose:
//   - GET /metrics                    — Prometheus text-format exposition.
//   - GET /debug/pprof/{heap,goroutine} — standard pprof handlers, if enabled.
//
// Usage:
//
//	go run ./cmd/cuckoomc-inspect -target http://127.0.0.1:9150 -watch -interval 5s
//
// © 2025 cuckoomc authors. MIT License.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
)

var version = "dev"

type options struct {
	target           string
	watch            bool
	interval         time.Duration
	heapProfile      string
	goroutineProfile string
	showVersion      bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("cuckoomc-inspect", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.target, "target", "http://127.0.0.1:9150", "base URL of the cuckoomcd metrics endpoint")
	fs.BoolVar(&opts.watch, "watch", false, "poll repeatedly instead of a single snapshot")
	fs.DurationVar(&opts.interval, "interval", 5*time.Second, "poll interval when -watch is set")
	fs.StringVar(&opts.heapProfile, "heap-profile", "", "download a heap profile to this path and exit")
	fs.StringVar(&opts.goroutineProfile, "goroutine-profile", "", "download a goroutine profile to this path and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print the inspector's own version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(64)
	}

	if opts.showVersion {
		fmt.Println(version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if opts.heapProfile != "" {
		if err := downloadProfile(ctx, opts.target, "heap", opts.heapProfile); err != nil {
			fatal(err)
		}
		return
	}
	if opts.goroutineProfile != "" {
		if err := downloadProfile(ctx, opts.target, "goroutine", opts.goroutineProfile); err != nil {
			fatal(err)
		}
		return
	}

	if opts.watch {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			if err := dumpOnce(ctx, opts); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}
	}

	if err := dumpOnce(ctx, opts); err != nil {
		fatal(err)
	}
}

func dumpOnce(ctx context.Context, opts *options) error {
	metrics, err := fetchMetrics(ctx, opts.target)
	if err != nil {
		return err
	}
	printMetrics(metrics)
	return nil
}

// fetchMetrics scrapes the Prometheus text-format /metrics endpoint and
// returns every sample keyed by its full metric name including labels, e.g.
// `cuckoomc_events_total{event="cmd_get_hit_total"}`. It is a deliberately
// small scanner rather than a full exposition-format decoder: cuckoomcd only
// ever emits counters and gauges with no histograms, so a line-oriented scan
// of "name value" pairs is sufficient.
func fetchMetrics(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/metrics", nil)
	if err != nil {
		return nil, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", res.Status)
	}

	out := make(map[string]float64)
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.LastIndex(line, " ")
		if idx < 0 {
			continue
		}
		name, valStr := line[:idx], line[idx+1:]
		val, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			continue
		}
		out[name] = val
	}
	return out, sc.Err()
}

func printMetrics(m map[string]float64) {
	fmt.Printf("items_live:     %.0f\n", m["cuckoomc_items_live"])
	for name, val := range m {
		if strings.HasPrefix(name, `cuckoomc_events_total{event="cmd_get`) ||
			strings.HasPrefix(name, `cuckoomc_events_total{event="cuckoo_`) {
			fmt.Printf("%-40s %.0f\n", name, val)
		}
	}
}

func downloadProfile(ctx context.Context, base, name, path string) error {
	url := fmt.Sprintf("%s/debug/pprof/%s", base, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", res.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, res.Body); err != nil {
		return err
	}
	fmt.Printf("%s profile saved to %s\n", name, path)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "cuckoomc-inspect:", err)
	os.Exit(1)
}
