package protocol

// commands.go defines the parsed-request shapes the codec produces and the
// dispatcher consumes. One Command value covers every request kind in the
// grammar; the dispatcher switches on Kind rather than type-asserting a
// family of command structs, the same flat-struct-plus-enum shape the
// source's request grammar implies and that keeps the codec allocation-free
// per request.
//
// © 2025 cuckoomc authors. MIT License.

// Kind identifies which branch of the request grammar a Command holds.
type Kind int

const (
	KindGet Kind = iota
	KindGets
	KindSet
	KindAdd
	KindReplace
	KindCas
	KindIncr
	KindDecr
	KindDelete
	KindFlushAll
	KindVersion
	KindQuit
	KindStats
)

// Command is the parser's single output shape. Key, Keys and Value alias
// the connection's read buffer and are only valid until the caller advances
// past the bytes they were parsed from — callers that need to retain them
// past that point (the dispatcher handing a key to the table, for example)
// must copy explicitly.
type Command struct {
	Kind Kind

	// Keys holds one or more keys for get/gets; Key holds the single key
	// for store/delta/delete commands. Exactly one of the two is populated
	// for any given Kind.
	Keys [][]byte
	Key  []byte

	// Store-command header fields (set/add/replace/cas).
	Flags     uint32
	ExpireAt  int64 // raw wire exptime, not yet resolved to an absolute clock
	Bytes     int
	CasUnique uint64 // only meaningful for KindCas

	// Delta holds the incr/decr operand.
	Delta uint64

	// NoReply suppresses all reply formatting for this command, success or
	// error alike.
	NoReply bool

	// FlushDelay and HasFlushDelay carry flush_all's optional delay
	// argument; cuckoomc does not implement memcached's delayed flush and
	// treats any flush_all as immediate, but still accepts and ignores the
	// argument for wire compatibility with clients that always send it.
	FlushDelay    int64
	HasFlushDelay bool

	// StatsArgs is the (ignored) remainder of a stats request line; kept
	// only so the line is consumed and echoed nowhere.
	StatsArgs []byte

	// Value holds the data block for a store command once FillData has
	// validated and attached it. It is nil until then.
	Value []byte
}

// NeedsData reports whether this command's header must be followed by a
// <bytes>+CRLF data block before it can be dispatched.
func (c *Command) NeedsData() bool {
	switch c.Kind {
	case KindSet, KindAdd, KindReplace, KindCas:
		return true
	default:
		return false
	}
}
