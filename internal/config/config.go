// Package config parses cuckoomcd's startup-only flags. Every value here is
// read once at process start; the storage engine's tuning is immutable for
// the remainder of the process's lifetime, the same "all fields initialised
// with sensible defaults, no live mutation" discipline pkg/engine's functional
// options follow, just expressed through command-line flags instead of
// in-code options (a library caller wires up a struct in code; cuckoomcd's
// caller is a shell invocation).
//
// © 2025 cuckoomc authors. MIT License.
package config

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/cuckoomc/cuckoomc/pkg/engine"
)

// Config holds every cuckoomcd startup option.
type Config struct {
	ItemSize uint32
	Nitem    int
	Policy   engine.EvictionPolicy

	ServerHost string
	ServerPort int

	MetricsAddr string
	Version     string
}

const (
	defaultItemSize   = 1024
	defaultNitem      = 1 << 20
	defaultServerHost = "0.0.0.0"
	defaultServerPort = 11211
	defaultMetricAddr = ":9150"
	defaultVersion    = "cuckoomc 1.0.0"
)

// policy name string for --cuckoo_policy
const (
	policyRandom = "random"
	policyFirst  = "first"
)

// ErrBadConfig is returned by Parse when a flag's value is individually
// invalid (e.g. a negative table size). Callers map this to exit code 65.
var ErrBadConfig = errors.New("config: invalid value")

// ErrPostValidation is returned by Validate when the combination of
// otherwise-individually-valid flags cannot build a working engine (e.g. an
// item size too small to hold a one-byte key plus a one-byte value). Callers map this to
// exit code 78.
var ErrPostValidation = errors.New("config: configuration rejected after validation")

// Parse parses args (excluding the program name) into a Config. A pflag
// usage error, including -h/--help, is returned as *flag.FlagSet's own
// error and identified via errors.Is(err, flag.ErrHelp) by the caller,
// which maps either case to exit code 64.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("cuckoomcd", flag.ContinueOnError)

	itemSize := fs.Uint32("cuckoo_item_size", defaultItemSize, "maximum key+value payload per slot, in bytes")
	nitem := fs.Int("cuckoo_nitem", defaultNitem, "fixed table capacity, in slots")
	policy := fs.String("cuckoo_policy", policyRandom, "cuckoo eviction policy: random or first")
	host := fs.String("server_host", defaultServerHost, "address to bind the memcached listener to")
	port := fs.Int("server_port", defaultServerPort, "TCP port to bind the memcached listener to")
	metricsAddr := fs.String("metrics_addr", defaultMetricAddr, "address to serve /metrics on; empty disables it")
	version := fs.String("version_string", defaultVersion, "string reported by the `version` command")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		ItemSize:    *itemSize,
		Nitem:       *nitem,
		ServerHost:  *host,
		ServerPort:  *port,
		MetricsAddr: *metricsAddr,
		Version:     *version,
	}

	switch *policy {
	case policyRandom:
		cfg.Policy = engine.EvictRandomProbe
	case policyFirst:
		cfg.Policy = engine.EvictFirstProbe
	default:
		return nil, fmt.Errorf("%w: cuckoo_policy must be %q or %q, got %q", ErrBadConfig, policyRandom, policyFirst, *policy)
	}

	if cfg.Nitem <= 0 {
		return nil, fmt.Errorf("%w: cuckoo_nitem must be > 0", ErrBadConfig)
	}
	if cfg.ItemSize == 0 {
		return nil, fmt.Errorf("%w: cuckoo_item_size must be > 0", ErrBadConfig)
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("%w: server_port must be in [1, 65535]", ErrBadConfig)
	}

	return cfg, nil
}

// Validate performs the cross-field checks that can only be decided once
// every flag is in hand (as opposed to Parse's per-flag bounds checks). A
// failure here is a post-validation config error.
func (c *Config) Validate() error {
	// A slot must fit at least a one-byte key plus a one-byte value;
	// smaller item sizes are rejected.
	if c.ItemSize < 2 {
		return fmt.Errorf("%w: cuckoo_item_size %d cannot hold any key+value pair", ErrPostValidation, c.ItemSize)
	}
	return nil
}
