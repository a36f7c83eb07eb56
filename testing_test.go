package memcache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/memcache-async/internal/testutils"
	"github.com/pior/memcache-async/reactor"
	"github.com/pior/memcache-async/text"
)

const testTimeout = 2 * time.Second

// startLoop runs a loop until the test ends.
func startLoop(t testing.TB) *reactor.Loop {
	t.Helper()

	loop := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

// flushLoop waits until every task posted so far has run.
func flushLoop(t testing.TB, loop *reactor.Loop) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, loop.Post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("loop did not run posted task")
	}
}

// onLoop runs fn on the loop and waits for it.
func onLoop(t testing.TB, loop *reactor.Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, loop.Post(func() {
		fn()
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("loop did not run posted task")
	}
}

func wait(t testing.TB, res *Result) (text.Reply, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	reply, err := res.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "result did not complete")
	return reply, err
}

func requireReply(t testing.TB, res *Result) text.Reply {
	t.Helper()
	reply, err := wait(t, res)
	require.NoError(t, err)
	return reply
}

func requireLine(t testing.TB, res *Result, expected string) {
	t.Helper()
	reply := requireReply(t, res)
	require.Equal(t, text.ReplyLine, reply.Kind, "reply kind")
	require.Equal(t, expected, reply.Line)
}

func requirePending(t testing.TB, res *Result) {
	t.Helper()
	select {
	case <-res.Done():
		reply, err := res.Wait(context.Background())
		t.Fatalf("result completed unexpectedly: %+v, %v", reply, err)
	case <-time.After(50 * time.Millisecond):
	}
}

// newMockClient returns a client whose dials return conns in order.
func newMockClient(t testing.TB, config Config, conns ...net.Conn) (*Client, *testutils.DialerMock, *reactor.Loop) {
	t.Helper()
	loop := startLoop(t)
	dialer := testutils.NewDialerMock(conns...)
	config.Dialer = dialer
	client := NewClient("mock:11211", loop, config)
	return client, dialer, loop
}

// newServerClient returns a client connected to an in-process server.
func newServerClient(t testing.TB, config Config) (*Client, *testutils.Server) {
	t.Helper()
	server := testutils.NewServer(t)
	loop := startLoop(t)
	client := NewClient(server.Addr(), loop, config)
	t.Cleanup(client.Close)
	return client, server
}
