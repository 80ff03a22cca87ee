package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatterWriteValueWithoutCas(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteValue([]byte("foo"), 0, []byte("hello"), 0, false))
	require.NoError(t, f.WriteEnd())

	require.Equal(t, "VALUE foo 0 5\r\nhello\r\nEND\r\n", buf.String())
}

func TestFormatterWriteValueWithCas(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteValue([]byte("foo"), 3, []byte("bar"), 42, true))
	require.Equal(t, "VALUE foo 3 3 42\r\nbar\r\n", buf.String())
}

func TestFormatterStoreReplies(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteStored())
	require.NoError(t, f.WriteNotStored())
	require.NoError(t, f.WriteExists())
	require.NoError(t, f.WriteNotFound())
	require.NoError(t, f.WriteDeleted())

	require.Equal(t, "STORED\r\nNOT_STORED\r\nEXISTS\r\nNOT_FOUND\r\nDELETED\r\n", buf.String())
}

func TestFormatterWriteNumber(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteNumber(12))
	require.Equal(t, "12\r\n", buf.String())
}

func TestFormatterWriteErrorBare(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteError(bareError()))
	require.Equal(t, "ERROR\r\n", buf.String())
}

func TestFormatterWriteErrorClient(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteError(clientError("bad data chunk")))
	require.Equal(t, "CLIENT_ERROR bad data chunk\r\n", buf.String())
}

func TestFormatterWriteErrorServer(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteError(errBoom))
	require.Equal(t, "SERVER_ERROR boom\r\n", buf.String())
}

func TestFormatterStatsSequence(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	require.NoError(t, f.WriteStatUint("cmd_get_total", 7))
	require.NoError(t, f.WriteEnd())
	require.Equal(t, "STAT cmd_get_total 7\r\nEND\r\n", buf.String())
}

var errBoom = boomError{}

type boomError struct{}

func (boomError) Error() string { return "boom" }
