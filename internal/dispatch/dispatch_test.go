package dispatch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuckoomc/cuckoomc/internal/clock"
	"github.com/cuckoomc/cuckoomc/internal/protocol"
	"github.com/cuckoomc/cuckoomc/pkg/engine"
)

func newFixture(t *testing.T) (*Dispatcher, *clock.Fake, *bytes.Buffer) {
	t.Helper()
	tbl, err := engine.NewTable(64, 128)
	require.NoError(t, err)
	fake := clock.NewFake(1000)
	var buf bytes.Buffer
	d := New(tbl, WithClock(fake))
	return d, fake, &buf
}

func handle(t *testing.T, d *Dispatcher, buf *bytes.Buffer, line string) bool {
	t.Helper()
	cmd, _, err := protocol.ParseHeader([]byte(line))
	require.NoError(t, err)
	if cmd.NeedsData() {
		t.Fatalf("test helper does not support store commands with a data block: %s", line)
	}
	closeConn, err := d.Handle(&cmd, protocol.NewFormatter(buf))
	require.NoError(t, err)
	return closeConn
}

func handleStore(t *testing.T, d *Dispatcher, buf *bytes.Buffer, header string, value []byte) bool {
	t.Helper()
	cmd, _, err := protocol.ParseHeader([]byte(header))
	require.NoError(t, err)
	require.True(t, cmd.NeedsData())
	data := append(append([]byte{}, value...), '\r', '\n')
	require.NoError(t, protocol.FillData(&cmd, data))
	closeConn, err := d.Handle(&cmd, protocol.NewFormatter(buf))
	require.NoError(t, err)
	return closeConn
}

func TestSetThenGet(t *testing.T) {
	d, _, buf := newFixture(t)

	handleStore(t, d, buf, "set foo 0 0 5\r\n", []byte("hello"))
	require.Equal(t, "STORED\r\n", buf.String())
	buf.Reset()

	handle(t, d, buf, "get foo\r\n")
	require.Equal(t, "VALUE foo 0 5\r\nhello\r\nEND\r\n", buf.String())
}

func TestAddFailsWhenAlreadyPresent(t *testing.T) {
	d, _, buf := newFixture(t)

	handleStore(t, d, buf, "set foo 0 0 3\r\n", []byte("bar"))
	buf.Reset()

	handleStore(t, d, buf, "add foo 0 0 3\r\n", []byte("baz"))
	require.Equal(t, "NOT_STORED\r\n", buf.String())
}

func TestCasExistsThenSucceedsWithRealToken(t *testing.T) {
	d, _, buf := newFixture(t)

	handleStore(t, d, buf, "set foo 0 0 3\r\n", []byte("bar"))
	buf.Reset()

	handleStore(t, d, buf, "cas foo 0 0 3 999\r\n", []byte("baz"))
	require.Equal(t, "EXISTS\r\n", buf.String())
	buf.Reset()

	handle(t, d, buf, "gets foo\r\n")
	line := buf.String()
	require.Contains(t, line, "VALUE foo 0 3 ")
	buf.Reset()

	// Extract the real cas from the gets reply and retry the cas store.
	var cas uint64
	n, err := parseCasFromGetsReply(line)
	require.NoError(t, err)
	cas = n

	handleStore(t, d, buf, casHeader(cas), []byte("baz"))
	require.Equal(t, "STORED\r\n", buf.String())
}

func TestIncrThenDecrSaturates(t *testing.T) {
	d, _, buf := newFixture(t)

	handleStore(t, d, buf, "set x 7 0 1\r\n", []byte("9"))
	buf.Reset()

	handle(t, d, buf, "incr x 3\r\n")
	require.Equal(t, "12\r\n", buf.String())
	buf.Reset()

	handle(t, d, buf, "decr x 100\r\n")
	require.Equal(t, "0\r\n", buf.String())
}

func TestFillTableThenSetEvictsExactlyOnePriorKey(t *testing.T) {
	tbl, err := engine.NewTable(32, 16)
	require.NoError(t, err)
	fake := clock.NewFake(1000)
	d := New(tbl, WithClock(fake))
	var buf bytes.Buffer

	// Displacement can drop a key while the table is still filling, so keep
	// setting distinct keys until every slot is occupied.
	for i := 0; tbl.Len() < tbl.Cap() && i < 1000; i++ {
		handleStore(t, d, &buf, headerFor(i), []byte("v"))
		buf.Reset()
	}
	require.Equal(t, tbl.Cap(), tbl.Len())

	before := tbl.Len()
	handleStore(t, d, &buf, "set overflow-key 0 0 1\r\n", []byte("v"))
	require.Equal(t, "STORED\r\n", buf.String())
	require.LessOrEqual(t, tbl.Len(), before+1)
	// The table was full and the new key is stored, so an unchanged slot
	// count means exactly one prior key was evicted.
	require.Equal(t, before, tbl.Len())

	_, ok := tbl.Get([]byte("overflow-key"), fake.Now())
	require.True(t, ok)
}

func TestNoreplySuppressesOutput(t *testing.T) {
	d, _, buf := newFixture(t)

	handleStore(t, d, buf, "set foo 0 0 3 noreply\r\n", []byte("bar"))
	require.Empty(t, buf.String())
}

func TestQuitRequestsClose(t *testing.T) {
	d, _, buf := newFixture(t)
	require.True(t, handle(t, d, buf, "quit\r\n"))
}

func TestDeleteReportsNotFound(t *testing.T) {
	d, _, buf := newFixture(t)
	handle(t, d, buf, "delete ghost\r\n")
	require.Equal(t, "NOT_FOUND\r\n", buf.String())
}

func TestVersionReportsConfiguredString(t *testing.T) {
	tbl, err := engine.NewTable(64, 16)
	require.NoError(t, err)
	d := New(tbl, WithVersion("cuckoomc test-build"))
	var buf bytes.Buffer
	handle(t, d, &buf, "version\r\n")
	require.Equal(t, "VERSION cuckoomc test-build\r\n", buf.String())
}

func TestStatsUsesConfiguredSource(t *testing.T) {
	tbl, err := engine.NewTable(64, 16)
	require.NoError(t, err)
	d := New(tbl, WithStatsSource(fakeStats{"cmd_get_total": "3"}))
	var buf bytes.Buffer
	handle(t, d, &buf, "stats\r\n")
	require.Equal(t, "STAT cmd_get_total 3\r\nEND\r\n", buf.String())
}

type fakeStats map[string]string

func (f fakeStats) Snapshot() map[string]string { return f }

func headerFor(i int) string {
	return "set k" + itoa(i) + " 0 0 1\r\n"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func casHeader(cas uint64) string {
	return "cas foo 0 0 3 " + utoa(cas) + "\r\n"
}

func utoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func parseCasFromGetsReply(line string) (uint64, error) {
	// line is "VALUE foo 0 3 <cas>\r\nbaz\r\nEND\r\n"; extract the field
	// after the byte count on the VALUE line.
	end := bytes.IndexByte([]byte(line), '\r')
	header := line[:end]
	fields := bytes.Fields([]byte(header))
	casField := fields[len(fields)-1]
	var v uint64
	for _, b := range casField {
		v = v*10 + uint64(b-'0')
	}
	return v, nil
}
