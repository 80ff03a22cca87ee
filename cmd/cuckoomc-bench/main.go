// cuckoomc-bench drives a simple get/set workload against a running
// cuckoomcd instance over TCP and reports throughput and latency
// percentiles. It is the load-generation counterpart of a dataset generator:
// a small, flag-driven, standalone binary
// kept under version control so a contributor can reproduce a performance
// run exactly, given the same -seed.
//
// Usage:
//
//	go run ./cmd/cuckoomc-bench -addr 127.0.0.1:11211 -n 100000 -dist zipf -seed 42
//
// © 2025 cuckoomc authors. MIT License.
package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sort"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:11211", "cuckoomcd address to connect to")
		n        = flag.Int("n", 100_000, "number of requests to issue")
		dist     = flag.String("dist", "uniform", "key distribution: uniform or zipf")
		zipfS    = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV    = flag.Float64("zipfv", 1.0, "zipf v parameter (>0)")
		keyspace = flag.Uint64("keyspace", 1_000_000, "number of distinct keys")
		writePct = flag.Int("write-pct", 10, "percentage of requests that are `set` rather than `get`")
		seedVal  = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = func() uint64 { return rnd.Uint64() % *keyspace }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV <= 0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >0")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, *keyspace-1)
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	nc, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer nc.Close()

	r := bufio.NewReader(nc)
	latencies := make([]time.Duration, 0, *n)

	start := time.Now()
	for i := 0; i < *n; i++ {
		key := "bench:" + strconv.FormatUint(gen(), 10)
		isWrite := rnd.Intn(100) < *writePct

		reqStart := time.Now()
		if isWrite {
			doSet(nc, r, key)
		} else {
			doGet(nc, r, key)
		}
		latencies = append(latencies, time.Since(reqStart))
	}
	elapsed := time.Since(start)

	report(*n, elapsed, latencies)
}

func doSet(nc net.Conn, r *bufio.Reader, key string) {
	fmt.Fprintf(nc, "set %s 0 0 1\r\nx\r\n", key)
	mustReadLine(r)
}

func doGet(nc net.Conn, r *bufio.Reader, key string) {
	fmt.Fprintf(nc, "get %s\r\n", key)
	line := mustReadLine(r)
	if len(line) >= 5 && line[:5] == "VALUE" {
		mustReadLine(r) // value data
		mustReadLine(r) // END
	}
}

func mustReadLine(r *bufio.Reader) string {
	line, err := r.ReadString('\n')
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	return line
}

func report(n int, elapsed time.Duration, latencies []time.Duration) {
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	pct := func(p float64) time.Duration {
		if len(latencies) == 0 {
			return 0
		}
		idx := int(p * float64(len(latencies)-1))
		return latencies[idx]
	}

	fmt.Printf("requests:      %d\n", n)
	fmt.Printf("elapsed:       %s\n", elapsed)
	fmt.Printf("throughput:    %.0f req/s\n", float64(n)/elapsed.Seconds())
	fmt.Printf("latency p50:   %s\n", pct(0.50))
	fmt.Printf("latency p95:   %s\n", pct(0.95))
	fmt.Printf("latency p99:   %s\n", pct(0.99))
}
