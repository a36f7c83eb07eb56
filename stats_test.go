package memcache

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/pior/memcache-async/internal/testutils"
	"github.com/pior/memcache-async/text"
)

func TestStatsCollectorSnapshot(t *testing.T) {
	s := newStatsCollector(noop.NewMeterProvider())

	cmd, err := text.Build(nil, "get", "k")
	require.NoError(t, err)

	s.recordRequest("get", true)
	s.recordRequest("set", false)
	s.recordReply(cmd)
	s.recordError(ErrConnectionClosed)
	s.recordConnect(nil)
	s.recordConnect(errors.New("refused"))
	s.recordUnsolicited(12)

	assert.Equal(t, ClientStats{
		Requests:         2,
		NoReply:          1,
		Replies:          1,
		Errors:           1,
		Connects:         1,
		ConnectFailures:  1,
		UnsolicitedBytes: 12,
	}, s.snapshot())
}

func TestErrorKind(t *testing.T) {
	_, buildErr := text.Build(nil, "get")
	require.Error(t, buildErr)

	tests := []struct {
		err  error
		kind string
	}{
		{buildErr, "invalid_params"},
		{&text.UnknownResponseError{Command: "get", Line: "BOGUS"}, "unknown_response"},
		{&ConnectError{Addr: "x:1", Err: io.EOF}, "connect_failure"},
		{closedError(io.EOF), "connection_closed"},
		{&ConnectionError{Op: "write", Err: io.ErrClosedPipe}, "connection"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, errorKind(tt.err), "%v", tt.err)
	}
}

func TestClientStats(t *testing.T) {
	conn := testutils.NewConnectionMock()
	client, _, _ := newMockClient(t, Config{MeterProvider: noop.NewMeterProvider()}, conn)

	client.Set("a", "1", NoTTL, true)
	get := client.Get("a")
	bad := client.Get("bad key")

	require.True(t, conn.WaitWritten("set a 0 0 1 noreply\r\n1\r\nget a\r\n", testTimeout))
	conn.Feed("VALUE a 0 1\r\n1\r\nEND\r\n")
	requireReply(t, get)
	_, err := wait(t, bad)
	require.ErrorIs(t, err, ErrInvalidParams)

	assert.Equal(t, ClientStats{
		Requests: 3,
		NoReply:  1,
		Replies:  1,
		Errors:   1,
		Connects: 1,
	}, client.Stats())
}
