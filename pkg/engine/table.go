package engine

// table.go implements the cuckoo table: a fixed-capacity slot array
// supporting Get/Insert/Update/CasUpdate/Delete/Arithmetic with
// bounded-depth cuckoo displacement and lazy expiry.
//
// The displacement chain (insertLocked/displace below) follows the random-
// walk kick-chain shape of salviati-cuckoo's tryGreedyAdd: evict a victim,
// try to re-home it at one of its other candidate slots, and if that fails
// keep chasing for a bounded number of steps before dropping the tail of
// the chain. cuckoomc differs from that reference in two required ways: the
// chain length is bounded by a small constant (L =
// maxChainMultiplier*numProbes) rather than growing the table, and a failed
// chain is resolved by silently evicting the displaced tail instead of
// ever reporting the table "full" — memcached's unconditional `set`
// semantics have no notion of insertion failure.
//
// © 2025 cuckoomc authors. MIT License.

import (
	"bytes"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// View is a read-only snapshot of a stored item, returned by Get. Key and
// Value are copies owned by the View, not slices of the table's shared
// arena, so later mutating calls on the table do not change them.
type View struct {
	Key      []byte
	Value    []byte
	Flags    uint32
	Cas      uint64
	ExpireAt uint64
}

// Table is a constant-capacity, cuckoo-hashed item store. It is created
// once via NewTable and destroyed via Close; capacity never changes during
// its lifetime. All exported methods are safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	slots []slot
	arena []byte

	itemSize uint32
	seeds    probeSeeds
	policy   EvictionPolicy
	metrics  Sink
	casCtr   atomic.Uint64
	rng      *rand.Rand
}

// NewTable allocates a table of nitem slots, each able to hold up to
// itemSize bytes of combined key+value payload. This is the one allocation
// of consequence in the table's lifetime: the backing arena and slot
// descriptors are both sized up front, and no further allocation happens
// on the Get/Insert/Update/Delete/Arithmetic hot paths.
func NewTable(itemSize uint32, nitem int, opts ...Option) (*Table, error) {
	cfg := defaultConfig(itemSize, nitem)
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	t := &Table{
		slots:    make([]slot, cfg.nitem),
		arena:    make([]byte, uint64(cfg.nitem)*uint64(cfg.itemSize)),
		itemSize: cfg.itemSize,
		seeds:    newProbeSeeds(),
		policy:   cfg.policy,
		metrics:  cfg.metrics,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range t.slots {
		lo := uint64(i) * uint64(cfg.itemSize)
		hi := lo + uint64(cfg.itemSize)
		t.slots[i].buf = t.arena[lo:hi:hi]
	}
	return t, nil
}

// Close releases the table's backing storage. After Close the table must
// not be used again.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = nil
	t.arena = nil
}

// Cap returns the table's fixed slot count.
func (t *Table) Cap() int {
	return len(t.slots)
}

// ItemSize returns the configured maximum key+value payload per slot.
func (t *Table) ItemSize() uint32 {
	return t.itemSize
}

func (t *Table) probesFor(key []byte) [numProbes]int {
	return t.seeds.probes(key, len(t.slots))
}

// locate returns the index of the unexpired occupied slot holding key, or
// -1 if none of key's candidate positions currently hold it. Any expired
// slot encountered along the way is lazily cleared.
func (t *Table) locate(key []byte, now uint64) (probes [numProbes]int, idx int) {
	probes = t.probesFor(key)
	for _, p := range probes {
		sl := &t.slots[p]
		if sl.occupied && sl.expired(now) {
			sl.clear()
			t.metrics.Incr(MetricItemExpired, 1)
			continue
		}
		if sl.occupied && bytes.Equal(sl.key(), key) {
			return probes, p
		}
	}
	return probes, -1
}

// Get looks up key, returning its current view and true on a hit. A
// logically expired item is treated as absent and reclaimed in passing.
//
// The returned View owns copies of the key and value, not slices into the
// shared arena: a slot's buffer is reused in place by a later Insert/Update
// on any connection once t.mu is released, so a View that aliased it could
// be corrupted mid-read by an unrelated concurrent write to the same slot.
func (t *Table) Get(key []byte, now uint64) (View, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.Incr(MetricCmdGet, 1)
	_, idx := t.locate(key, now)
	if idx < 0 {
		t.metrics.Incr(MetricCmdGetMiss, 1)
		return View{}, false
	}
	t.metrics.Incr(MetricCmdGetHit, 1)
	sl := &t.slots[idx]
	view := View{
		Key:      append([]byte(nil), sl.key()...),
		Value:    append([]byte(nil), sl.value()...),
		Flags:    sl.flags,
		Cas:      sl.cas,
		ExpireAt: sl.expireAt,
	}
	return view, true
}

// nextCas mints a fresh, process-wide monotonically increasing cas token.
func (t *Table) nextCas() uint64 {
	return t.casCtr.Add(1)
}

// Insert unconditionally stores key/value, minting a fresh cas token. It
// never reports the table full: if every candidate slot is occupied, it
// performs bounded cuckoo displacement and, in the worst case, silently
// evicts whichever item the displacement chain could not re-home.
//
// Insert does not check whether key already occupies one of its candidate
// slots — callers that need
// at-most-one-slot-per-key on overwrite (i.e. the `set` command) must
// Delete before Insert.
func (t *Table) Insert(key, value []byte, flags uint32, expireAt, now uint64) (uint64, error) {
	if len(key) == 0 {
		return 0, ErrKeyTooLarge
	}
	if uint32(len(key)+len(value)) > t.itemSize {
		return 0, ErrValueTooLarge
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.Incr(MetricCmdInsert, 1)
	cas := t.nextCas()
	t.insertLocked(key, value, flags, expireAt, cas, now)
	return cas, nil
}

// InsertIfAbsent stores key/value only if key does not already occupy one
// of its candidate slots, checking and inserting under one lock acquisition
// so two concurrent callers can never both "win" for the same key, the way
// two sequential Get-then-Insert calls could. The bool return reports
// whether the insert happened; false means key was already present and
// nothing was written.
func (t *Table) InsertIfAbsent(key, value []byte, flags uint32, expireAt, now uint64) (uint64, bool, error) {
	if len(key) == 0 {
		return 0, false, ErrKeyTooLarge
	}
	if uint32(len(key)+len(value)) > t.itemSize {
		return 0, false, ErrValueTooLarge
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.Incr(MetricCmdInsert, 1)
	if _, idx := t.locate(key, now); idx >= 0 {
		return 0, false, nil
	}
	cas := t.nextCas()
	t.insertLocked(key, value, flags, expireAt, cas, now)
	return cas, true, nil
}

// insertLocked performs the probe-then-displace algorithm described in
// the design note above. The caller holds t.mu.
func (t *Table) insertLocked(key, value []byte, flags uint32, expireAt, cas, now uint64) {
	probes := t.probesFor(key)
	for _, idx := range probes {
		sl := &t.slots[idx]
		if !sl.occupied || sl.expired(now) {
			if sl.occupied {
				t.metrics.Incr(MetricItemExpired, 1)
			}
			sl.init(key, value, flags, expireAt, cas)
			return
		}
	}

	// All D candidate positions are occupied by live items: displace.
	t.displace(key, value, flags, expireAt, cas, probes, now)
}

const chainBound = maxChainMultiplier * numProbes

// displace runs the bounded cuckoo kick chain. The new item is always
// placed immediately (at the first victim's slot); what may be dropped on
// chain exhaustion is the *displaced* item, never the one the caller asked
// to insert.
func (t *Table) displace(key, value []byte, flags uint32, expireAt, cas uint64, probes [numProbes]int, now uint64) {
	victimProbe := t.chooseVictim(probes, -1)
	origin := probes[victimProbe]

	evOccupied, evKey, evValue, evFlags, evExpire, evCas := t.evictSlotContent(origin, now)
	t.slots[origin].init(key, value, flags, expireAt, cas)

	if !evOccupied {
		// The victim was already logically empty (expired); nothing to
		// relocate. The metric still counts this as a one-step placement.
		t.metrics.Incr(MetricCuckooDisplaced, 1)
		return
	}

	curKey, curValue, curFlags, curExpire, curCas := evKey, evValue, evFlags, evExpire, evCas
	curOrigin := origin

	for step := 0; step < chainBound; step++ {
		curProbes := t.probesFor(curKey)

		placed := false
		for _, p := range curProbes {
			if p == curOrigin {
				continue
			}
			if !t.slots[p].occupied || t.slots[p].expired(now) {
				if t.slots[p].occupied {
					t.metrics.Incr(MetricItemExpired, 1)
				}
				t.slots[p].init(curKey, curValue, curFlags, curExpire, curCas)
				placed = true
				break
			}
		}
		if placed {
			t.metrics.Incr(MetricCuckooDisplaced, int64(step+2))
			return
		}

		// The newly inserted item's slot (origin) is never a victim: mask it
		// out as if it were curOrigin. If no other candidate remains, the
		// carried item is dropped as on chain exhaustion.
		cand := curProbes
		eligible := false
		for i, p := range cand {
			if p == origin {
				cand[i] = curOrigin
			} else if p != curOrigin {
				eligible = true
			}
		}
		if !eligible {
			break
		}
		victimProbe = t.chooseVictim(cand, curOrigin)
		next := curProbes[victimProbe]
		_, nextKey, nextValue, nextFlags, nextExpire, nextCas := t.evictSlotContent(next, now)
		t.slots[next].init(curKey, curValue, curFlags, curExpire, curCas)

		curKey, curValue, curFlags, curExpire, curCas = nextKey, nextValue, nextFlags, nextExpire, nextCas
		curOrigin = next
	}

	// Chain exhausted: the item still being carried never found a home.
	t.metrics.Incr(MetricCuckooEvicted, 1)
}

// evictSlotContent copies a slot's item out (so it can be relocated) and
// returns it, along with whether the slot held a live (unexpired) item at
// all. The slot itself is left as-is until the caller overwrites it with
// init(); this function never clears a slot on its own.
func (t *Table) evictSlotContent(idx int, now uint64) (occupied bool, key, value []byte, flags uint32, expireAt, cas uint64) {
	sl := &t.slots[idx]
	if !sl.occupied || sl.expired(now) {
		return false, nil, nil, 0, 0, 0
	}
	key = append([]byte(nil), sl.key()...)
	value = append([]byte(nil), sl.value()...)
	return true, key, value, sl.flags, sl.expireAt, sl.cas
}

// chooseVictim returns the index into probes (0..numProbes-1) of the slot
// to evict, excluding the slot at table-index `exclude` (-1 means no
// exclusion, used for the very first victim pick). EvictFirstProbe always
// picks the lowest-index eligible probe, matching the deterministic rule
// the source uses; EvictRandomProbe picks uniformly among the eligible
// probes, a documented equivalent.
func (t *Table) chooseVictim(probes [numProbes]int, exclude int) int {
	if t.policy == EvictRandomProbe {
		var eligible []int
		for i, p := range probes {
			if p != exclude {
				eligible = append(eligible, i)
			}
		}
		return eligible[t.rng.Intn(len(eligible))]
	}
	for i, p := range probes {
		if p != exclude {
			return i
		}
	}
	// unreachable for numProbes > 1 with a single exclusion
	return 0
}

// Update overwrites an existing item in place, minting a fresh cas. It
// never relocates the item to a different slot. Returns ErrNotFound if key
// is absent.
func (t *Table) Update(key, value []byte, flags uint32, expireAt, now uint64) (uint64, error) {
	if uint32(len(key)+len(value)) > t.itemSize {
		return 0, ErrValueTooLarge
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.Incr(MetricCmdUpdate, 1)
	_, idx := t.locate(key, now)
	if idx < 0 {
		return 0, ErrNotFound
	}
	cas := t.nextCas()
	t.slots[idx].init(key, value, flags, expireAt, cas)
	return cas, nil
}

// CasUpdate behaves like Update but additionally requires the slot's
// current cas token to equal expectedCas, failing with ErrCasMismatch
// otherwise.
func (t *Table) CasUpdate(key, value []byte, flags uint32, expireAt, expectedCas, now uint64) (uint64, error) {
	if uint32(len(key)+len(value)) > t.itemSize {
		return 0, ErrValueTooLarge
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.Incr(MetricCmdUpdate, 1)
	_, idx := t.locate(key, now)
	if idx < 0 {
		return 0, ErrNotFound
	}
	if t.slots[idx].cas != expectedCas {
		return 0, ErrCasMismatch
	}
	cas := t.nextCas()
	t.slots[idx].init(key, value, flags, expireAt, cas)
	return cas, nil
}

// Delete removes key's slot if present, reporting whether one existed.
func (t *Table) Delete(key []byte, now uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.Incr(MetricCmdDelete, 1)
	_, idx := t.locate(key, now)
	if idx < 0 {
		return false
	}
	t.slots[idx].clear()
	return true
}

// Arithmetic applies delta to the stored decimal value of key, saturating
// at zero on decrement (decrement == true) and failing with ErrOverflow if
// an increment would exceed 64 bits. The new value is written back as its
// textual decimal form with a freshly minted cas.
func (t *Table) Arithmetic(key []byte, delta uint64, decrement bool, now uint64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.Incr(MetricCmdArithmetic, 1)
	_, idx := t.locate(key, now)
	if idx < 0 {
		return 0, ErrNotFound
	}
	sl := &t.slots[idx]
	cur, err := strconv.ParseUint(string(sl.value()), 10, 64)
	if err != nil {
		return 0, ErrNonNumeric
	}

	var next uint64
	if decrement {
		if delta >= cur {
			next = 0
		} else {
			next = cur - delta
		}
	} else {
		next = cur + delta
		if next < cur {
			return 0, ErrOverflow
		}
	}

	var scratch [20]byte
	text := strconv.AppendUint(scratch[:0], next, 10)
	if uint32(int(sl.keyLen)+len(text)) > t.itemSize {
		return 0, ErrValueTooLarge
	}
	cas := t.nextCas()
	sl.init(sl.key(), text, sl.flags, sl.expireAt, cas)
	return next, nil
}

// Flush clears every slot, logically emptying the table without
// reallocating it. Used by the dispatcher's flush_all handling.
func (t *Table) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i].clear()
	}
}

// Len reports the number of currently occupied slots, including any not
// yet lazily reclaimed despite being expired. It is O(N) and intended for
// diagnostics, not the hot path.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].occupied {
			n++
		}
	}
	return n
}
