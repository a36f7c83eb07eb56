package memcache

import (
	"net"

	"go.uber.org/atomic"

	"github.com/pior/memcache-async/internal/bufpool"
	"github.com/pior/memcache-async/reactor"
)

// Connection is the transport of a Client: a net.Conn whose reads are
// delivered to the loop as chunks.
type Connection struct {
	conn   net.Conn
	loop   *reactor.Loop
	pool   *bufpool.Pool
	closed atomic.Bool
}

func newConnection(conn net.Conn, loop *reactor.Loop, pool *bufpool.Pool) *Connection {
	return &Connection{
		conn: conn,
		loop: loop,
		pool: pool,
	}
}

// start launches the read goroutine. onData receives every chunk and onClose
// the read error, both on the loop. onClose gets nil when the connection was
// closed locally.
func (c *Connection) start(onData func(chunk []byte), onClose func(err error)) {
	go c.readLoop(onData, onClose)
}

func (c *Connection) readLoop(onData func([]byte), onClose func(error)) {
	for {
		buf := c.pool.Get()
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			posted := c.loop.Post(func() {
				onData(chunk)
				c.pool.Put(buf)
			})
			if !posted {
				_ = c.Close()
				return
			}
		} else {
			c.pool.Put(buf)
		}

		if err != nil {
			if c.closed.Load() {
				err = nil
			}
			c.loop.Post(func() {
				onClose(err)
			})
			return
		}
	}
}

// Write writes the whole of b.
func (c *Connection) Write(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// Close closes the connection. The read goroutine stops on its own.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// IsClosed returns whether the connection was closed locally
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
