package memcache

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/pior/memcache-async/codec"
	"github.com/pior/memcache-async/internal/bufpool"
	"github.com/pior/memcache-async/reactor"
	"github.com/pior/memcache-async/text"
)

var enableWireLogging = os.Getenv("MEMCACHE_WIRE_LOGGING") != ""

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadBufferSize = 16 * 1024
)

// Dialer opens the transport connection. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds configuration for a Client.
type Config struct {
	// Dialer is used to open the connection.
	// If nil, a zero net.Dialer is used.
	Dialer Dialer

	// Codec converts values to (flags, payload) and back.
	// If nil, codec.Default is used.
	Codec codec.Codec

	// ConnectTimeout bounds a connect attempt. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// ReadBufferSize is the size of a single read from the connection.
	// Zero means DefaultReadBufferSize.
	ReadBufferSize int

	// Logger receives the client logs. If nil, nothing is logged.
	Logger *zap.Logger

	// WireLogging logs every command written and every chunk received at
	// debug level. The MEMCACHE_WIRE_LOGGING environment variable enables it
	// too.
	WireLogging bool

	// NewCircuitBreaker creates the circuit breaker guarding connect attempts.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) *CircuitBreaker

	// OnUnsolicited is called on the loop with a copy of bytes received while
	// no command was waiting for a reply. The bytes are discarded either way.
	OnUnsolicited func(data []byte)

	// OnClose is called on the loop when the connection is closed: err is nil
	// for Close, and the read error when the server closed it.
	OnClose func(err error)

	// FailPendingOnClose completes the commands still waiting for a reply
	// with ErrConnectionClosed when the connection closes. By default they
	// are abandoned and never complete.
	FailPendingOnClose bool

	// MeterProvider receives the client metrics.
	// If nil, the global provider is used.
	MeterProvider metric.MeterProvider
}

type connState uint8

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is a memcached text protocol client over a single pipelined
// connection.
//
// The connection is opened on the first command and reopened on the next
// command after it was closed. Commands are written as soon as they are
// issued and replies are matched to them in order.
//
// Every method is safe to call from any goroutine. All protocol state is
// owned by the loop: it only changes in tasks posted to it, so the loop must
// be running for commands to make progress.
type Client struct {
	addr        string
	loop        *reactor.Loop
	config      Config
	codec       codec.Codec
	dialer      Dialer
	breaker     *CircuitBreaker
	logger      *zap.Logger
	wireLogging bool
	stats       *statsCollector
	readPool    *bufpool.Pool

	// Owned by the loop.
	state   connState
	gen     uint64
	conn    *Connection
	waiting []*pending
	queue   pendingQueue
	buf     *text.Buffer
}

// NewClient creates a client for the server at addr. Nothing is dialed until
// the first command.
func NewClient(addr string, loop *reactor.Loop, config Config) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultReadBufferSize
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	valueCodec := config.Codec
	if valueCodec == nil {
		valueCodec = codec.Default{}
	}

	var breaker *CircuitBreaker
	if config.NewCircuitBreaker != nil {
		breaker = config.NewCircuitBreaker(addr)
	}

	logger := loggerOrNop(config.Logger).With(
		zap.String("clientId", uuid.NewString()[:8]),
		zap.String("addr", addr),
	)

	return &Client{
		addr:        addr,
		loop:        loop,
		config:      config,
		codec:       valueCodec,
		dialer:      dialer,
		breaker:     breaker,
		logger:      logger,
		wireLogging: config.WireLogging || enableWireLogging,
		stats:       newStatsCollector(config.MeterProvider),
		readPool:    bufpool.New(config.ReadBufferSize, config.ReadBufferSize),
		buf:         text.NewBuffer(bufpool.New(config.ReadBufferSize, 4*config.ReadBufferSize)),
	}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// CircuitBreakerState returns the state of the connect circuit breaker.
// It is always closed when no circuit breaker is configured.
func (c *Client) CircuitBreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// Do issues the named command with positional arguments.
// See text.Build for the arguments of each command; unrecognized names are
// sent verbatim.
//
// Do never fails synchronously: invalid arguments, noreply commands and
// transport failures all complete the returned Result on a later loop tick.
func (c *Client) Do(name string, args ...any) *Result {
	res := newResult(c.loop)

	cmd, err := text.Build(c.codec, name, args...)
	if err != nil {
		c.stats.recordRequest(name, true)
		c.stats.recordError(err)
		c.post(res, func() {
			res.complete(text.Reply{}, err)
		})
		return res
	}

	c.stats.recordRequest(cmd.Name, cmd.ExpectsReply)

	if !cmd.ExpectsReply {
		c.post(res, func() {
			res.complete(text.Reply{Kind: text.ReplyNone}, nil)
		})
	}

	p := &pending{cmd: cmd, result: res}
	c.post(res, func() {
		c.issue(p)
	})
	return res
}

// post schedules task on the loop, failing res when the loop is stopped.
func (c *Client) post(res *Result, task func()) {
	if !c.loop.Post(task) {
		res.complete(text.Reply{}, reactor.ErrLoopStopped)
	}
}

// Close drops the connection. Commands issued afterwards open a new one.
func (c *Client) Close() {
	c.loop.Post(func() {
		if c.state == stateDisconnected {
			return
		}
		c.logger.Debug("closing connection", zap.Stringer("state", c.state))
		c.teardown(nil)
	})
}

func (c *Client) issue(p *pending) {
	switch c.state {
	case stateConnected:
		_ = c.send(p)
	case stateConnecting:
		c.waiting = append(c.waiting, p)
	case stateDisconnected:
		c.waiting = append(c.waiting, p)
		c.connect()
	}
}

func (c *Client) connect() {
	c.state = stateConnecting
	c.gen++
	gen := c.gen

	c.logger.Debug("connecting")

	go func() {
		conn, err := c.dial()
		posted := c.loop.Post(func() {
			c.onConnectResult(gen, conn, err)
		})
		if !posted && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *Client) dial() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	defer cancel()

	if c.breaker == nil {
		return c.dialer.DialContext(ctx, "tcp", c.addr)
	}
	return c.breaker.Execute(func() (net.Conn, error) {
		return c.dialer.DialContext(ctx, "tcp", c.addr)
	})
}

func (c *Client) onConnectResult(gen uint64, netConn net.Conn, err error) {
	if gen != c.gen || c.state != stateConnecting {
		// Closed while connecting.
		if netConn != nil {
			_ = netConn.Close()
		}
		return
	}

	c.stats.recordConnect(err)

	waiting := c.waiting
	c.waiting = nil

	if err != nil {
		c.state = stateDisconnected
		connectErr := &ConnectError{Addr: c.addr, Err: err}
		c.logger.Debug("connect failed", zap.Error(err), zap.Int("waiting", len(waiting)))
		for _, p := range waiting {
			c.fail(p, connectErr)
		}
		return
	}

	c.logger.Debug("connected", zap.Int("waiting", len(waiting)))

	c.state = stateConnected
	c.conn = newConnection(netConn, c.loop, c.readPool)
	c.conn.start(
		func(chunk []byte) { c.onData(gen, chunk) },
		func(err error) { c.onReadClosed(gen, err) },
	)

	for i, p := range waiting {
		if err := c.send(p); err != nil {
			// Torn down: the rest fail without dialing again.
			closedErr := closedError(err)
			for _, rest := range waiting[i+1:] {
				c.fail(rest, closedErr)
			}
			return
		}
	}
}

// send writes the command and queues it for its reply. A write failure tears
// the connection down and is returned.
func (c *Client) send(p *pending) error {
	if c.wireLogging {
		c.logger.Debug("writing command", zap.String("command", p.cmd.Name), zap.Binary("wire", p.cmd.Wire))
	}

	if err := c.conn.Write(p.cmd.Wire); err != nil {
		connErr := &ConnectionError{Op: "write", Err: err}
		c.logger.Debug("write failed", zap.Error(err))
		if p.cmd.ExpectsReply {
			c.fail(p, connErr)
		}
		c.teardown(connErr)
		return connErr
	}

	c.queue.push(p)
	return nil
}

func (c *Client) onData(gen uint64, chunk []byte) {
	if gen != c.gen || c.state != stateConnected {
		return
	}

	if c.wireLogging {
		c.logger.Debug("received chunk", zap.Binary("data", chunk))
	}

	c.buf.Append(chunk)
	c.processReplies()
}

// processReplies matches buffered replies to queued commands until the
// buffer runs out of complete replies.
func (c *Client) processReplies() {
	for {
		c.queue.skipNoReply()

		head := c.queue.peek()
		if head == nil {
			if c.buf.Len() > 0 {
				c.discardUnsolicited()
			}
			return
		}

		reply, n, err := text.Decode(head.cmd, c.buf.Bytes(), c.codec)
		if errors.Is(err, text.ErrIncomplete) {
			return
		}

		c.buf.Advance(n)
		c.queue.pop()

		if err != nil {
			c.logger.Warn("unknown response", zap.String("command", head.cmd.Name), zap.Error(err))
			c.fail(head, err)
			continue
		}

		c.stats.recordReply(head.cmd)
		head.result.complete(reply, nil)
	}
}

func (c *Client) discardUnsolicited() {
	n := c.buf.Len()
	c.stats.recordUnsolicited(n)
	c.logger.Warn("discarding unsolicited data", zap.Int("bytes", n))

	if c.config.OnUnsolicited != nil {
		data := make([]byte, n)
		copy(data, c.buf.Bytes())
		c.config.OnUnsolicited(data)
	}

	c.buf.Advance(n)
}

func (c *Client) onReadClosed(gen uint64, err error) {
	if gen != c.gen {
		return
	}

	if errors.Is(err, io.EOF) {
		c.logger.Debug("connection closed by server")
	} else {
		c.logger.Debug("connection read failed", zap.Error(err))
	}

	if err == nil {
		err = io.EOF
	}
	c.teardown(err)
}

// teardown drops the connection and resets the protocol state. cause is nil
// for an explicit close.
func (c *Client) teardown(cause error) {
	c.gen++
	c.state = stateDisconnected

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	waiting := c.waiting
	c.waiting = nil
	abandoned := c.queue.drain()
	c.buf.Reset()

	closedErr := closedError(cause)
	for _, p := range waiting {
		c.fail(p, closedErr)
	}

	if c.config.FailPendingOnClose {
		for _, p := range abandoned {
			c.fail(p, closedErr)
		}
	} else if len(abandoned) > 0 {
		c.logger.Debug("abandoning pending commands", zap.Int("count", len(abandoned)))
	}

	if c.config.OnClose != nil {
		c.config.OnClose(cause)
	}
}

func (c *Client) fail(p *pending, err error) {
	if p.result.complete(text.Reply{}, err) {
		c.stats.recordError(err)
	}
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
