package engine

// item.go implements the item layout: a fixed-size slot record stored
// inline in the table's preallocated arena, along with the handful of
// operations every slot supports (init, matches, expired, clear).
//
// Every slot's key+value bytes live in a sub-slice of one contiguous
// []byte arena allocated once by NewTable — see table.go. init() copies
// into that region instead of assigning a fresh slice, so a slot never
// triggers a heap allocation on the hot path once the table exists.
//
// © 2025 cuckoomc authors. MIT License.

import "bytes"

// slot is one fixed-size cell of the cuckoo table. Exactly one of
// "unoccupied" or "holds one item" is true at any time.
type slot struct {
	keyLen   uint32
	valLen   uint32
	flags    uint32
	cas      uint64
	expireAt uint64 // absolute Unix seconds; 0 = never expires
	occupied bool

	// buf is a fixed-capacity sub-slice of the table's shared arena. The
	// first keyLen bytes are the key, the next valLen bytes are the value;
	// the remainder of buf's capacity is unused until the slot is reused.
	buf []byte
}

// init writes every field of the slot and marks it occupied. The caller
// must already have validated that len(key)+len(value) <= cap(s.buf).
func (s *slot) init(key, value []byte, flags uint32, expireAt uint64, cas uint64) {
	n := copy(s.buf[:cap(s.buf)], key)
	n += copy(s.buf[n:cap(s.buf)], value)
	s.buf = s.buf[:n]
	s.keyLen = uint32(len(key))
	s.valLen = uint32(len(value))
	s.flags = flags
	s.expireAt = expireAt
	s.cas = cas
	s.occupied = true
}

// matches reports whether the slot currently holds an unexpired item whose
// key equals key bytewise.
func (s *slot) matches(key []byte, now uint64) bool {
	if !s.occupied || s.expired(now) {
		return false
	}
	return bytes.Equal(s.key(), key)
}

// expired reports whether the slot's expiry timestamp has passed. A slot
// with expireAt == 0 never expires.
func (s *slot) expired(now uint64) bool {
	return s.expireAt != 0 && s.expireAt <= now
}

// clear marks the slot unoccupied. It does not zero the backing buffer;
// the bytes are logically garbage until the next init() overwrites them.
func (s *slot) clear() {
	s.occupied = false
}

// key returns the slot's key bytes, aliasing the shared arena.
func (s *slot) key() []byte {
	return s.buf[:s.keyLen]
}

// value returns the slot's value bytes, aliasing the shared arena.
func (s *slot) value() []byte {
	return s.buf[s.keyLen : s.keyLen+s.valLen]
}
