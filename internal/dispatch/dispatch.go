// Package dispatch implements Component D, the request dispatcher: it binds
// a parsed protocol.Command to pkg/engine.Table calls and drives a
// protocol.Formatter to write the matching reply, enforcing the per-command
// error mapping table.
//
// © 2025 cuckoomc authors. MIT License.
package dispatch

import (
	"errors"

	"github.com/cuckoomc/cuckoomc/internal/clock"
	"github.com/cuckoomc/cuckoomc/internal/protocol"
	"github.com/cuckoomc/cuckoomc/pkg/engine"
)

const (
	// secondsMonth is the threshold the wire protocol uses to distinguish a
	// relative exptime (seconds from now) from an absolute Unix timestamp.
	secondsMonth = 30 * 24 * 60 * 60

	defaultVersion = "cuckoomc 1.0.0"
)

// StatsSource supplies the counters the `stats` command reports. Keeping it
// narrow (one method, pre-rendered strings) lets internal/metrics own the
// decision of which gauges and counters are worth exposing without
// dispatch needing to know anything about Prometheus types.
type StatsSource interface {
	Snapshot() map[string]string
}

type noopStats struct{}

func (noopStats) Snapshot() map[string]string { return nil }

// Dispatcher routes parsed commands to a table and writes replies.
type Dispatcher struct {
	table   *engine.Table
	clock   clock.Clock
	version string
	stats   StatsSource
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithVersion overrides the string reported by the `version` command.
func WithVersion(v string) Option {
	return func(d *Dispatcher) { d.version = v }
}

// WithStatsSource plugs the source the `stats` command reads from.
func WithStatsSource(s StatsSource) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.stats = s
		}
	}
}

// WithClock overrides the default wall clock, primarily for tests.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// New builds a Dispatcher over table.
func New(table *engine.Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:   table,
		clock:   clock.Real(),
		version: defaultVersion,
		stats:   noopStats{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle executes cmd against the table and writes its reply through f,
// unless cmd.NoReply suppresses it. It returns closeConn true for `quit` and
// for an unrecognized command Kind. A failure to write the reply to the
// formatter's underlying writer is returned as err.
func (d *Dispatcher) Handle(cmd *protocol.Command, f *protocol.Formatter) (closeConn bool, err error) {
	switch cmd.Kind {
	case protocol.KindGet, protocol.KindGets:
		return false, d.handleRetrieve(cmd, f)
	case protocol.KindSet:
		return false, d.handleSet(cmd, f)
	case protocol.KindAdd:
		return false, d.handleAdd(cmd, f)
	case protocol.KindReplace:
		return false, d.handleReplace(cmd, f)
	case protocol.KindCas:
		return false, d.handleCas(cmd, f)
	case protocol.KindIncr:
		return false, d.handleArithmetic(cmd, f, false)
	case protocol.KindDecr:
		return false, d.handleArithmetic(cmd, f, true)
	case protocol.KindDelete:
		return false, d.handleDelete(cmd, f)
	case protocol.KindFlushAll:
		return false, d.handleFlushAll(cmd, f)
	case protocol.KindVersion:
		return false, d.reply(cmd, f, func() error { return f.WriteVersion(d.version) })
	case protocol.KindQuit:
		return true, nil
	case protocol.KindStats:
		return false, d.handleStats(f)
	default:
		return true, d.reply(cmd, f, func() error { return f.WriteError(&protocol.MalformedError{Bare: true}) })
	}
}

// reply invokes write unless cmd.NoReply suppresses the response.
func (d *Dispatcher) reply(cmd *protocol.Command, f *protocol.Formatter, write func() error) error {
	if cmd.NoReply {
		return nil
	}
	return write()
}

func (d *Dispatcher) handleRetrieve(cmd *protocol.Command, f *protocol.Formatter) error {
	now := d.clock.Now()
	withCas := cmd.Kind == protocol.KindGets
	for _, key := range cmd.Keys {
		view, ok := d.table.Get(key, now)
		if !ok {
			continue
		}
		if err := f.WriteValue(view.Key, view.Flags, view.Value, view.Cas, withCas); err != nil {
			return err
		}
	}
	return f.WriteEnd()
}

// handleSet implements the overwrite-by-delete-then-insert rule: the
// table's Insert does not itself de-duplicate an existing slot for the same
// key, so `set` must clear any prior slot before writing the new one, or
// the uniqueness invariant over the stored key set would be violated.
func (d *Dispatcher) handleSet(cmd *protocol.Command, f *protocol.Formatter) error {
	now := d.clock.Now()
	expireAt, alreadyExpired := resolveExpire(cmd.ExpireAt, now)

	d.table.Delete(cmd.Key, now)
	if alreadyExpired {
		// A set with an already-past exptime is a no-op store: the prior
		// value is gone and nothing new takes its place.
		return d.reply(cmd, f, f.WriteStored)
	}

	_, err := d.table.Insert(cmd.Key, cmd.Value, cmd.Flags, expireAt, now)
	if err != nil {
		return d.replyStoreErr(cmd, f, err)
	}
	return d.reply(cmd, f, f.WriteStored)
}

func (d *Dispatcher) handleAdd(cmd *protocol.Command, f *protocol.Formatter) error {
	now := d.clock.Now()
	expireAt, alreadyExpired := resolveExpire(cmd.ExpireAt, now)
	if alreadyExpired {
		// Nothing is ever written on this path, so there's no race to
		// close here: add still only succeeds against an absent key.
		if _, ok := d.table.Get(cmd.Key, now); ok {
			return d.reply(cmd, f, f.WriteNotStored)
		}
		return d.reply(cmd, f, f.WriteStored)
	}
	// Check-then-insert atomically under one lock acquisition: two
	// concurrent `add`s for the same key must not both win, which a
	// separate Get followed by Insert could allow.
	_, inserted, err := d.table.InsertIfAbsent(cmd.Key, cmd.Value, cmd.Flags, expireAt, now)
	if err != nil {
		return d.replyStoreErr(cmd, f, err)
	}
	if !inserted {
		return d.reply(cmd, f, f.WriteNotStored)
	}
	return d.reply(cmd, f, f.WriteStored)
}

func (d *Dispatcher) handleReplace(cmd *protocol.Command, f *protocol.Formatter) error {
	now := d.clock.Now()
	expireAt, alreadyExpired := resolveExpire(cmd.ExpireAt, now)
	if alreadyExpired {
		// replace only succeeds against an existing item; an already-past
		// exptime still requires one to have been there to expire.
		if !d.table.Delete(cmd.Key, now) {
			return d.reply(cmd, f, f.WriteNotStored)
		}
		return d.reply(cmd, f, f.WriteStored)
	}
	_, err := d.table.Update(cmd.Key, cmd.Value, cmd.Flags, expireAt, now)
	switch {
	case err == nil:
		return d.reply(cmd, f, f.WriteStored)
	case errors.Is(err, engine.ErrNotFound):
		return d.reply(cmd, f, f.WriteNotStored)
	default:
		return d.replyStoreErr(cmd, f, err)
	}
}

func (d *Dispatcher) handleCas(cmd *protocol.Command, f *protocol.Formatter) error {
	now := d.clock.Now()
	expireAt, alreadyExpired := resolveExpire(cmd.ExpireAt, now)
	if alreadyExpired {
		// An already-past exptime still has to pass the usual cas checks
		// against whatever is currently stored before it can "succeed".
		view, ok := d.table.Get(cmd.Key, now)
		if !ok {
			return d.reply(cmd, f, f.WriteNotFound)
		}
		if view.Cas != cmd.CasUnique {
			return d.reply(cmd, f, f.WriteExists)
		}
		d.table.Delete(cmd.Key, now)
		return d.reply(cmd, f, f.WriteStored)
	}
	_, err := d.table.CasUpdate(cmd.Key, cmd.Value, cmd.Flags, expireAt, cmd.CasUnique, now)
	switch {
	case err == nil:
		return d.reply(cmd, f, f.WriteStored)
	case errors.Is(err, engine.ErrCasMismatch):
		return d.reply(cmd, f, f.WriteExists)
	case errors.Is(err, engine.ErrNotFound):
		return d.reply(cmd, f, f.WriteNotFound)
	default:
		return d.replyStoreErr(cmd, f, err)
	}
}

func (d *Dispatcher) handleArithmetic(cmd *protocol.Command, f *protocol.Formatter, decrement bool) error {
	now := d.clock.Now()
	next, err := d.table.Arithmetic(cmd.Key, cmd.Delta, decrement, now)
	switch {
	case err == nil:
		return d.reply(cmd, f, func() error { return f.WriteNumber(next) })
	case errors.Is(err, engine.ErrNotFound):
		return d.reply(cmd, f, f.WriteNotFound)
	case errors.Is(err, engine.ErrNonNumeric):
		return d.reply(cmd, f, func() error {
			return f.WriteError(&protocol.MalformedError{Msg: "cannot increment or decrement non-numeric value"})
		})
	case errors.Is(err, engine.ErrOverflow):
		return d.reply(cmd, f, func() error {
			return f.WriteError(&protocol.MalformedError{Msg: "incr/decr overflow"})
		})
	default:
		return d.replyStoreErr(cmd, f, err)
	}
}

func (d *Dispatcher) handleDelete(cmd *protocol.Command, f *protocol.Formatter) error {
	now := d.clock.Now()
	if d.table.Delete(cmd.Key, now) {
		return d.reply(cmd, f, f.WriteDeleted)
	}
	return d.reply(cmd, f, f.WriteNotFound)
}

func (d *Dispatcher) handleFlushAll(cmd *protocol.Command, f *protocol.Formatter) error {
	d.table.Flush()
	return d.reply(cmd, f, f.WriteOK)
}

func (d *Dispatcher) handleStats(f *protocol.Formatter) error {
	for name, value := range d.stats.Snapshot() {
		if err := f.WriteStat(name, value); err != nil {
			return err
		}
	}
	return f.WriteEnd()
}

// replyStoreErr maps a storage-layer sizing error to the CLIENT_ERROR reply
// the wire protocol uses for an oversized payload; any other error is
// reported as a server-side failure.
func (d *Dispatcher) replyStoreErr(cmd *protocol.Command, f *protocol.Formatter, err error) error {
	if errors.Is(err, engine.ErrValueTooLarge) || errors.Is(err, engine.ErrKeyTooLarge) {
		return d.reply(cmd, f, func() error {
			return f.WriteError(&protocol.MalformedError{Msg: "bad data chunk"})
		})
	}
	return d.reply(cmd, f, func() error { return f.WriteError(err) })
}

// resolveExpire converts a wire exptime into the table's absolute-seconds
// convention: 0 stays "never expires", 1..30 days is relative to now,
// anything larger is already an absolute Unix timestamp, and anything
// negative means the item is already expired.
func resolveExpire(exptime int64, now uint64) (expireAt uint64, alreadyExpired bool) {
	switch {
	case exptime == 0:
		return 0, false
	case exptime < 0:
		return 0, true
	case exptime <= secondsMonth:
		return now + uint64(exptime), false
	default:
		return uint64(exptime), false
	}
}
