package server

// conn.go drives one accepted connection through the
// READ_HEADER -> READ_DATA -> DISPATCH -> WRITE_REPLY state machine. The
// only suspension points are the underlying bufio.Reader's fill from the
// socket and the bufio.Writer's flush to it; parsing and dispatch never
// block, matching the "only the I/O boundary suspends" resource model.
//
// © 2025 cuckoomc authors. MIT License.

import (
	"bufio"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/cuckoomc/cuckoomc/internal/dispatch"
	"github.com/cuckoomc/cuckoomc/internal/protocol"
)

// maxLineLength bounds a single request header to guard against an
// unbounded read buffer growth from a client that never sends a CRLF.
const maxLineLength = 8192

type conn struct {
	nc   net.Conn
	d    *dispatch.Dispatcher
	log  *zap.Logger
	buf  *connBuf
	r    *bufio.Reader
	w    *bufio.Writer
	fmtr *protocol.Formatter
}

func newConn(nc net.Conn, d *dispatch.Dispatcher, log *zap.Logger) *conn {
	buf := acquireBuf()
	w := bufio.NewWriter(nc)
	return &conn{
		nc:   nc,
		d:    d,
		log:  log,
		buf:  buf,
		r:    bufio.NewReaderSize(nc, initialBufSize),
		w:    w,
		fmtr: protocol.NewFormatter(w),
	}
}

// serve runs the connection's request loop until the client disconnects,
// sends `quit`, or a malformed request forces a close.
func (c *conn) serve() {
	defer releaseBuf(c.buf)
	defer c.nc.Close()

	for {
		line, err := c.readLine()
		if err != nil {
			if !isExpectedClose(err) {
				c.log.Warn("connection read failed", zap.Error(err), zap.String("remote", c.nc.RemoteAddr().String()))
			}
			return
		}

		cmd, _, perr := protocol.ParseHeader(line)
		if perr != nil {
			c.writeMalformed(perr)
			return
		}

		if cmd.NeedsData() {
			data, derr := c.readExact(cmd.Bytes + 2)
			if derr != nil {
				if !isExpectedClose(derr) {
					c.log.Warn("connection read failed", zap.Error(derr))
				}
				return
			}
			if ferr := protocol.FillData(&cmd, data); ferr != nil {
				c.writeMalformed(ferr)
				return
			}
		}

		closeConn, herr := c.d.Handle(&cmd, c.fmtr)
		if herr != nil {
			c.log.Warn("failed to write reply", zap.Error(herr))
			return
		}
		if ferr := c.w.Flush(); ferr != nil {
			c.log.Warn("failed to flush reply", zap.Error(ferr))
			return
		}
		if closeConn {
			return
		}
	}
}

// readLine reads bytes up to and including the next CRLF, growing buf.read
// as needed. It returns the full line (with trailing CRLF) so ParseHeader
// sees exactly one complete request.
func (c *conn) readLine() ([]byte, error) {
	c.buf.read = c.buf.read[:0]
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return nil, err
		}
		c.buf.read = append(c.buf.read, b)
		n := len(c.buf.read)
		if n >= 2 && c.buf.read[n-2] == '\r' && c.buf.read[n-1] == '\n' {
			return c.buf.read, nil
		}
		if n > maxLineLength {
			return nil, errLineTooLong
		}
	}
}

func (c *conn) readExact(n int) ([]byte, error) {
	if cap(c.buf.write) < n {
		c.buf.write = make([]byte, n)
	} else {
		c.buf.write = c.buf.write[:n]
	}
	if _, err := io.ReadFull(c.r, c.buf.write); err != nil {
		return nil, err
	}
	return c.buf.write, nil
}

func (c *conn) writeMalformed(err error) {
	var me *protocol.MalformedError
	if !errors.As(err, &me) {
		me = &protocol.MalformedError{Bare: true}
	}
	if werr := c.fmtr.WriteError(me); werr == nil {
		c.w.Flush()
	}
}

var errLineTooLong = errors.New("server: request line exceeds maximum length")

func isExpectedClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
