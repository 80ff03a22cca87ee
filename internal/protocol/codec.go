package protocol

// codec.go implements Component C, the line-and-length framed ASCII parser
// described by the request grammar: a restartable scanner over a caller-
// owned buffer that never copies key or value bytes, only slices them.
//
// Parsing is split into two calls mirroring the connection's READ_HEADER /
// READ_DATA states: ParseHeader consumes one CRLF-terminated line and
// returns a Command plus the header's byte length; for a command whose
// NeedsData is true, the connection layer then reads Bytes+2 more bytes and
// hands them to FillData before dispatch. This split — rather than one call
// blocking until the whole request is buffered — is what lets a single
// goroutine serve a connection with a single growable buffer rather than a
// ring buffer with no notion of "wait for a length-prefixed tail".
//
// © 2025 cuckoomc authors. MIT License.

import (
	"bytes"
	"strconv"
)

// MaxKeyLength is the longest key this codec accepts, matching the
// de facto memcached wire limit. The grammar leaves key_max unspecified;
// 250 is the value real clients assume.
const MaxKeyLength = 250

const crlf = "\r\n"

// ParseHeader scans buf for one complete CRLF-terminated request line
// starting at offset 0 and returns the parsed Command plus the number of
// bytes consumed, including the CRLF. If buf does not yet contain a full
// line, it returns ErrIncomplete and the caller must supply more bytes
// before calling again with a larger buffer. A *MalformedError return means
// the connection must be closed after the error is flushed.
func ParseHeader(buf []byte) (Command, int, error) {
	idx := bytes.Index(buf, []byte(crlf))
	if idx < 0 {
		return Command{}, 0, ErrIncomplete
	}
	line := buf[:idx]
	consumed := idx + len(crlf)

	fields := splitFields(line)
	if len(fields) == 0 {
		return Command{}, 0, bareError()
	}

	cmd, err := parseFields(fields)
	if err != nil {
		return Command{}, 0, err
	}
	return cmd, consumed, nil
}

// FillData validates and attaches a store command's data block. data must
// be exactly cmd.Bytes+2 bytes (the value followed by its trailing CRLF);
// a missing or misplaced CRLF is a MalformedError, matching the framing
// rule for a connection's data-reading state.
func FillData(cmd *Command, data []byte) error {
	if len(data) != cmd.Bytes+2 {
		return clientError("bad data chunk")
	}
	if data[cmd.Bytes] != '\r' || data[cmd.Bytes+1] != '\n' {
		return clientError("bad data chunk")
	}
	cmd.Value = data[:cmd.Bytes]
	return nil
}

func splitFields(line []byte) [][]byte {
	var fields [][]byte
	for len(line) > 0 {
		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			fields = append(fields, line)
			break
		}
		if sp > 0 {
			fields = append(fields, line[:sp])
		}
		line = line[sp+1:]
	}
	return fields
}

func parseFields(fields [][]byte) (Command, error) {
	name := fields[0]
	args := fields[1:]

	switch string(name) {
	case "get":
		return parseRetrieve(KindGet, args)
	case "gets":
		return parseRetrieve(KindGets, args)
	case "set":
		return parseStore(KindSet, args)
	case "add":
		return parseStore(KindAdd, args)
	case "replace":
		return parseStore(KindReplace, args)
	case "cas":
		return parseStore(KindCas, args)
	case "incr":
		return parseDelta(KindIncr, args)
	case "decr":
		return parseDelta(KindDecr, args)
	case "delete":
		return parseDelete(args)
	case "flush_all":
		return parseFlushAll(args)
	case "version":
		return Command{Kind: KindVersion}, nil
	case "quit":
		return Command{Kind: KindQuit}, nil
	case "stats":
		rest := bytes.Join(args, []byte(" "))
		return Command{Kind: KindStats, StatsArgs: rest}, nil
	default:
		return Command{}, bareError()
	}
}

func parseRetrieve(kind Kind, args [][]byte) (Command, error) {
	if len(args) == 0 {
		return Command{}, clientError("bad command line format")
	}
	for _, k := range args {
		if err := validateKey(k); err != nil {
			return Command{}, err
		}
	}
	return Command{Kind: kind, Keys: args}, nil
}

func parseStore(kind Kind, args [][]byte) (Command, error) {
	minArgs := 4
	if kind == KindCas {
		minArgs = 5
	}
	if len(args) < minArgs {
		return Command{}, clientError("bad command line format")
	}
	key := args[0]
	if err := validateKey(key); err != nil {
		return Command{}, err
	}

	flags, err := parseUint32(args[1])
	if err != nil {
		return Command{}, clientError("bad command line format")
	}
	exptime, err := parseInt64(args[2])
	if err != nil {
		return Command{}, clientError("bad command line format")
	}
	byteLen, err := parseNonNegInt(args[3])
	if err != nil {
		return Command{}, clientError("bad command line format")
	}

	rest := args[4:]
	cmd := Command{
		Kind:     kind,
		Key:      key,
		Flags:    flags,
		ExpireAt: exptime,
		Bytes:    byteLen,
	}

	if kind == KindCas {
		if len(rest) == 0 {
			return Command{}, clientError("bad command line format")
		}
		cas, err := parseUint64(rest[0])
		if err != nil {
			return Command{}, clientError("bad command line format")
		}
		cmd.CasUnique = cas
		rest = rest[1:]
	}

	if len(rest) > 0 {
		if !bytes.Equal(rest[0], []byte("noreply")) {
			return Command{}, clientError("bad command line format")
		}
		cmd.NoReply = true
	}
	return cmd, nil
}

func parseDelta(kind Kind, args [][]byte) (Command, error) {
	if len(args) < 2 {
		return Command{}, clientError("bad command line format")
	}
	if err := validateKey(args[0]); err != nil {
		return Command{}, err
	}
	delta, err := parseUint64(args[1])
	if err != nil {
		return Command{}, clientError("invalid numeric delta argument")
	}
	cmd := Command{Kind: kind, Key: args[0], Delta: delta}
	if len(args) >= 3 {
		if !bytes.Equal(args[2], []byte("noreply")) {
			return Command{}, clientError("bad command line format")
		}
		cmd.NoReply = true
	}
	return cmd, nil
}

func parseDelete(args [][]byte) (Command, error) {
	if len(args) == 0 {
		return Command{}, clientError("bad command line format")
	}
	if err := validateKey(args[0]); err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: KindDelete, Key: args[0]}
	if len(args) >= 2 {
		if !bytes.Equal(args[1], []byte("noreply")) {
			return Command{}, clientError("bad command line format")
		}
		cmd.NoReply = true
	}
	return cmd, nil
}

func parseFlushAll(args [][]byte) (Command, error) {
	cmd := Command{Kind: KindFlushAll}
	if len(args) == 0 {
		return cmd, nil
	}
	if bytes.Equal(args[0], []byte("noreply")) {
		cmd.NoReply = true
		return cmd, nil
	}
	delay, err := parseInt64(args[0])
	if err != nil {
		return Command{}, clientError("bad command line format")
	}
	cmd.FlushDelay = delay
	cmd.HasFlushDelay = true
	if len(args) >= 2 && bytes.Equal(args[1], []byte("noreply")) {
		cmd.NoReply = true
	}
	return cmd, nil
}

func validateKey(key []byte) error {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return clientError("bad command line format")
	}
	for _, b := range key {
		if b <= ' ' || b == 0x7f {
			return clientError("bad command line format")
		}
	}
	return nil
}

func parseUint32(b []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 10, 32)
	return uint32(v), err
}

func parseUint64(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

func parseInt64(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}

func parseNonNegInt(b []byte) (int, error) {
	v, err := strconv.ParseUint(string(b), 10, 31)
	return int(v), err
}
