package testutils

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// ConnectionMock is a scripted net.Conn for testing.
//
// Reads block until a chunk is fed with Feed, and each Read returns at most
// one chunk, so tests control exactly how the reply stream is split.
// Writes are recorded.
type ConnectionMock struct {
	chunks chan []byte
	done   chan struct{}

	mu       sync.Mutex
	pending  []byte
	writeBuf bytes.Buffer
	writeErr error
	closed   bool
	eof      bool
	written  chan struct{}
}

// NewConnectionMock creates a new mock connection. The responseData chunks
// are readable right away, one per Read.
func NewConnectionMock(responseData ...string) *ConnectionMock {
	m := &ConnectionMock{
		chunks:  make(chan []byte, 1024),
		done:    make(chan struct{}),
		written: make(chan struct{}, 1),
	}
	m.Feed(responseData...)
	return m
}

// Feed queues chunks to be returned by Read.
func (m *ConnectionMock) Feed(chunks ...string) {
	for _, chunk := range chunks {
		m.chunks <- []byte(chunk)
	}
}

// CloseRemote makes Read return io.EOF once the fed chunks are consumed,
// as when the server closes the connection.
func (m *ConnectionMock) CloseRemote() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.eof {
		m.eof = true
		close(m.chunks)
	}
}

// FailWrites makes every following Write return err.
func (m *ConnectionMock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *ConnectionMock) Read(b []byte) (int, error) {
	m.mu.Lock()
	if len(m.pending) > 0 {
		n := copy(b, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	select {
	case chunk, ok := <-m.chunks:
		if !ok {
			return 0, io.EOF
		}
		n := copy(b, chunk)
		if n < len(chunk) {
			m.mu.Lock()
			m.pending = chunk[n:]
			m.mu.Unlock()
		}
		return n, nil
	case <-m.done:
		return 0, net.ErrClosed
	}
}

func (m *ConnectionMock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	n, err := m.writeBuf.Write(b)
	select {
	case m.written <- struct{}{}:
	default:
	}
	return n, err
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// IsClosed reports whether Close was called.
func (m *ConnectionMock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11211}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error      { return nil }
func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// GetWrittenRequest returns the raw request bytes written to the mock connection
func (m *ConnectionMock) GetWrittenRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBuf.String()
}

// WaitWritten blocks until the written bytes equal expected or timeout
// elapses. It reports whether they matched.
func (m *ConnectionMock) WaitWritten(expected string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.GetWrittenRequest() == expected {
			return true
		}
		select {
		case <-m.written:
		case <-deadline:
			return m.GetWrittenRequest() == expected
		}
	}
}

// DialerMock hands out prepared connections, one per dial.
type DialerMock struct {
	mu    sync.Mutex
	conns []net.Conn
	errs  []error
	dials int
	gate  chan struct{}
}

// NewDialerMock returns a dialer that returns conns in order. Once they are
// exhausted, dials fail with net.ErrClosed.
func NewDialerMock(conns ...net.Conn) *DialerMock {
	return &DialerMock{conns: conns}
}

// FailNext makes the next dials fail with errs, in order, before any
// prepared connection is returned.
func (d *DialerMock) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, errs...)
}

// Hold makes dials block until Release is called.
func (d *DialerMock) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
}

// Release unblocks dials held by Hold.
func (d *DialerMock) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// Dials returns the number of dial attempts.
func (d *DialerMock) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *DialerMock) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	if len(d.conns) == 0 {
		return nil, net.ErrClosed
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}
