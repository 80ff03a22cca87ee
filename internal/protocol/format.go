package protocol

// format.go implements the reply half of Component C: a thin Formatter
// that writes the response grammar's tokens to an io.Writer (in practice
// the connection's bufio.Writer — see internal/server/conn.go). It never
// flushes; that responsibility belongs to the caller, keeping the formatter
// itself free of any notion of when a reply batch ends.
//
// © 2025 cuckoomc authors. MIT License.

import (
	"fmt"
	"io"
	"strconv"
)

var (
	tokStored    = []byte("STORED\r\n")
	tokNotStored = []byte("NOT_STORED\r\n")
	tokExists    = []byte("EXISTS\r\n")
	tokNotFound  = []byte("NOT_FOUND\r\n")
	tokDeleted   = []byte("DELETED\r\n")
	tokEnd       = []byte("END\r\n")
	tokOK        = []byte("OK\r\n")
	tokError     = []byte("ERROR\r\n")
)

// Formatter writes memcached ASCII replies to an underlying writer.
type Formatter struct {
	w io.Writer
}

// NewFormatter wraps w for reply writing.
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// WriteValue writes one "VALUE ..." line and its data block. Pass
// includeCas true for a `gets` reply.
func (f *Formatter) WriteValue(key []byte, flags uint32, value []byte, cas uint64, includeCas bool) error {
	var err error
	if includeCas {
		_, err = fmt.Fprintf(f.w, "VALUE %s %d %d %d\r\n", key, flags, len(value), cas)
	} else {
		_, err = fmt.Fprintf(f.w, "VALUE %s %d %d\r\n", key, flags, len(value))
	}
	if err != nil {
		return err
	}
	if _, err := f.w.Write(value); err != nil {
		return err
	}
	_, err = f.w.Write([]byte(crlf))
	return err
}

// WriteEnd writes the retrieve reply's terminating "END" line.
func (f *Formatter) WriteEnd() error {
	_, err := f.w.Write(tokEnd)
	return err
}

// WriteStored writes "STORED".
func (f *Formatter) WriteStored() error { return f.writeTok(tokStored) }

// WriteNotStored writes "NOT_STORED".
func (f *Formatter) WriteNotStored() error { return f.writeTok(tokNotStored) }

// WriteExists writes "EXISTS".
func (f *Formatter) WriteExists() error { return f.writeTok(tokExists) }

// WriteNotFound writes "NOT_FOUND".
func (f *Formatter) WriteNotFound() error { return f.writeTok(tokNotFound) }

// WriteDeleted writes "DELETED".
func (f *Formatter) WriteDeleted() error { return f.writeTok(tokDeleted) }

// WriteOK writes "OK", used for flush_all's success reply.
func (f *Formatter) WriteOK() error { return f.writeTok(tokOK) }

// WriteNumber writes a delta reply's new decimal value.
func (f *Formatter) WriteNumber(v uint64) error {
	_, err := fmt.Fprintf(f.w, "%d\r\n", v)
	return err
}

// WriteVersion writes memcached's "VERSION <string>" reply.
func (f *Formatter) WriteVersion(version string) error {
	_, err := fmt.Fprintf(f.w, "VERSION %s\r\n", version)
	return err
}

// WriteStat writes one "STAT <name> <value>" line. Call WriteEnd to close
// the stats reply once every counter has been written.
func (f *Formatter) WriteStat(name string, value string) error {
	_, err := fmt.Fprintf(f.w, "STAT %s %s\r\n", name, value)
	return err
}

// WriteStatUint is a convenience wrapper around WriteStat for integer
// counters, avoiding a strconv call at every metrics call site.
func (f *Formatter) WriteStatUint(name string, value uint64) error {
	return f.WriteStat(name, strconv.FormatUint(value, 10))
}

// WriteError renders err as the appropriate error token: a *MalformedError
// becomes "ERROR" or "CLIENT_ERROR <msg>" depending on its Bare field; any
// other error is reported as "SERVER_ERROR <msg>", keeping the client-caused
// and server-caused failure paths distinct on the wire.
func (f *Formatter) WriteError(err error) error {
	if me, ok := err.(*MalformedError); ok {
		if me.Bare {
			_, werr := f.w.Write(tokError)
			return werr
		}
		_, werr := fmt.Fprintf(f.w, "CLIENT_ERROR %s\r\n", me.Msg)
		return werr
	}
	_, werr := fmt.Fprintf(f.w, "SERVER_ERROR %s\r\n", err.Error())
	return werr
}

func (f *Formatter) writeTok(tok []byte) error {
	_, err := f.w.Write(tok)
	return err
}
