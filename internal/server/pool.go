package server

// pool.go re-expresses the design note flagging "pool objects with raw
// pointer handoff and required explicit return" as idiomatic scoped
// acquisition: a sync.Pool loans a *connBuf, the caller defers release, and
// there is no out-param or caller-tracked bookkeeping to get wrong across
// early returns.
//
// © 2025 cuckoomc authors. MIT License.

import "sync"

// connBuf bundles the two growable buffers a connection needs: read holds
// the current request line, and write holds a store command's data block
// (value plus trailing CRLF). Replies go through the connection's
// bufio.Writer, not through either buffer.
type connBuf struct {
	read  []byte
	write []byte
}

const initialBufSize = 4096

var bufPool = sync.Pool{
	New: func() any {
		return &connBuf{
			read:  make([]byte, 0, initialBufSize),
			write: make([]byte, 0, initialBufSize),
		}
	},
}

// acquireBuf loans a reset *connBuf from the pool.
func acquireBuf() *connBuf {
	b := bufPool.Get().(*connBuf)
	b.read = b.read[:0]
	b.write = b.write[:0]
	return b
}

// releaseBuf returns b to the pool. Oversized buffers (grown far past the
// initial size by an unusually large request) are dropped instead of
// pooled, so one large request does not permanently inflate every future
// connection's footprint.
func releaseBuf(b *connBuf) {
	const maxPooled = 1 << 20
	if cap(b.read) > maxPooled || cap(b.write) > maxPooled {
		return
	}
	bufPool.Put(b)
}
