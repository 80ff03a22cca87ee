package engine

// config.go defines the functional options accepted by NewTable: a private
// config struct filled with defaults, then mutated by a slice of Option
// values, then validated once before the Table is constructed. Options
// never allocate unless strictly necessary.
//
// © 2025 cuckoomc authors. MIT License.

import (
	"errors"
)

// EvictionPolicy selects how the cuckoo displacement chain picks its victim
// slot on each step. Both values are equally valid: the source's
// deterministic first-probe rule, or a documented random equivalent.
type EvictionPolicy int

const (
	// EvictFirstProbe always evicts from the first (lowest-index) probe,
	// matching the source's deterministic rule.
	EvictFirstProbe EvictionPolicy = iota

	// EvictRandomProbe picks a uniformly random probe among the D
	// candidates as the victim, a documented equivalent.
	EvictRandomProbe
)

// maxChainMultiplier bounds the cuckoo displacement chain depth L as a
// multiple of numProbes ("L = N, or a small multiple of D").
const maxChainMultiplier = 8

type config struct {
	itemSize uint32 // max key+value payload per slot, in bytes
	nitem    int    // table capacity, fixed for the table's lifetime
	policy   EvictionPolicy
	metrics  Sink
}

// Option mutates a table's configuration before construction.
type Option func(*config)

// WithPolicy overrides the default eviction policy (EvictRandomProbe).
func WithPolicy(p EvictionPolicy) Option {
	return func(c *config) { c.policy = p }
}

// WithMetrics plugs an external metric sink. Passing nil leaves the default
// no-op sink in place.
func WithMetrics(sink Sink) Option {
	return func(c *config) {
		if sink != nil {
			c.metrics = sink
		}
	}
}

func defaultConfig(itemSize uint32, nitem int) *config {
	return &config{
		itemSize: itemSize,
		nitem:    nitem,
		policy:   EvictRandomProbe,
		metrics:  noopSink{},
	}
}

func applyOptions(cfg *config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.itemSize == 0 {
		return errInvalidItemSize
	}
	if cfg.nitem <= 0 {
		return errInvalidNitem
	}
	return nil
}

var (
	errInvalidItemSize = errors.New("engine: cuckoo_item_size must be > 0")
	errInvalidNitem    = errors.New("engine: cuckoo_nitem must be > 0")
)
