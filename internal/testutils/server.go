package testutils

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Server is an in-process memcached speaking the text protocol, for tests.
//
// It implements the storage, retrieval, arithmetic, touch, delete, stats,
// flush_all, version and quit commands. Replies to pipelined commands are
// flushed together once the request stream is drained, so they reach the
// client coalesced like they would from a real server.
type Server struct {
	listener net.Listener

	mu     sync.Mutex
	items  map[string]serverItem
	casSeq uint64
	conns  map[net.Conn]struct{}
	accept int
}

type serverItem struct {
	flags   uint32
	value   []byte
	cas     uint64
	expires time.Time
}

func (it serverItem) expired(now time.Time) bool {
	return !it.expires.IsZero() && !now.Before(it.expires)
}

// NewServer starts a server on a random local port. It is stopped when the
// test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	s := &Server{
		listener: listener,
		items:    make(map[string]serverItem),
		conns:    make(map[net.Conn]struct{}),
	}
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accept
}

// Close stops the server and drops every connection.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.DropConnections()
}

// DropConnections closes every open client connection, as a server restart
// would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	clear(s.conns)
}

// Item returns the stored value and flags of key.
func (s *Server) Item(key string) (value []byte, flags uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok || it.expired(time.Now()) {
		return nil, 0, false
	}
	return it.value, it.flags, true
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.accept++
		s.mu.Unlock()

		go func(c net.Conn) {
			defer func() {
				s.mu.Lock()
				delete(s.conns, c)
				s.mu.Unlock()
				_ = c.Close()
			}()
			s.handle(c)
		}(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		fields := strings.Fields(line)
		quit := len(fields) > 0 && fields[0] == "quit"
		if quit {
			_ = w.Flush()
			return
		}

		reply, noreply, ok := s.dispatch(fields, r)
		if !ok {
			return
		}
		if !noreply {
			_, _ = w.WriteString(reply)
		}

		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

// dispatch runs one command. ok is false when the connection must close.
func (s *Server) dispatch(fields []string, r *bufio.Reader) (reply string, noreply bool, ok bool) {
	if len(fields) == 0 {
		return "ERROR\r\n", false, true
	}

	cmd, args := fields[0], fields[1:]
	noreply = len(args) > 0 && args[len(args)-1] == "noreply"
	if noreply {
		args = args[:len(args)-1]
	}

	switch cmd {
	case "set", "add", "replace", "append", "prepend", "cas":
		reply, ok = s.storage(cmd, args, r)
		return reply, noreply, ok
	case "get", "gets":
		return s.retrieve(cmd == "gets", nil, args), false, true
	case "gat", "gats":
		if len(args) < 2 {
			return "ERROR\r\n", false, true
		}
		exptime, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return "CLIENT_ERROR invalid exptime argument\r\n", false, true
		}
		return s.retrieve(cmd == "gats", &exptime, args[1:]), false, true
	case "delete":
		if len(args) != 1 {
			return "ERROR\r\n", noreply, true
		}
		return s.delete(args[0]), noreply, true
	case "incr", "decr":
		if len(args) != 2 {
			return "ERROR\r\n", noreply, true
		}
		return s.arithmetic(cmd == "incr", args[0], args[1]), noreply, true
	case "touch":
		if len(args) != 2 {
			return "ERROR\r\n", noreply, true
		}
		return s.touch(args[0], args[1]), noreply, true
	case "flush_all":
		s.mu.Lock()
		clear(s.items)
		s.mu.Unlock()
		return "OK\r\n", noreply, true
	case "version":
		return "VERSION 1.6.0-testutils\r\n", false, true
	case "stats":
		if len(args) > 0 {
			return "ERROR\r\n", false, true
		}
		return s.stats(), false, true
	default:
		return "ERROR\r\n", false, true
	}
}

func expiry(exptime int64, now time.Time) (time.Time, bool) {
	switch {
	case exptime < 0:
		return time.Time{}, false
	case exptime == 0:
		return time.Time{}, true
	case exptime <= 30*86400:
		return now.Add(time.Duration(exptime) * time.Second), true
	default:
		return time.Unix(exptime, 0), true
	}
}

// <cmd> <key> <flags> <exptime> <bytes> [<cas unique>]
func (s *Server) storage(cmd string, args []string, r *bufio.Reader) (string, bool) {
	want := 4
	if cmd == "cas" {
		want = 5
	}
	if len(args) != want {
		return "ERROR\r\n", true
	}

	key := args[0]
	flags, err1 := strconv.ParseUint(args[1], 10, 32)
	exptime, err2 := strconv.ParseInt(args[2], 10, 64)
	size, err3 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil || err3 != nil || size < 0 {
		return "CLIENT_ERROR bad command line format\r\n", true
	}
	var casUnique uint64
	if cmd == "cas" {
		var err error
		if casUnique, err = strconv.ParseUint(args[4], 10, 64); err != nil {
			return "CLIENT_ERROR bad command line format\r\n", true
		}
	}

	data := make([]byte, size+2)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", false
	}
	if string(data[size:]) != "\r\n" {
		return "CLIENT_ERROR bad data chunk\r\n", true
	}
	value := data[:size]

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, exists := s.items[key]
	if exists && existing.expired(now) {
		delete(s.items, key)
		exists = false
	}

	switch cmd {
	case "add":
		if exists {
			return "NOT_STORED\r\n", true
		}
	case "replace", "append", "prepend":
		if !exists {
			return "NOT_STORED\r\n", true
		}
	case "cas":
		if !exists {
			return "NOT_FOUND\r\n", true
		}
		if existing.cas != casUnique {
			return "EXISTS\r\n", true
		}
	}

	s.casSeq++
	item := serverItem{flags: uint32(flags), value: value, cas: s.casSeq}

	switch cmd {
	case "append":
		item = existing
		item.value = append(append([]byte{}, existing.value...), value...)
		item.cas = s.casSeq
	case "prepend":
		item = existing
		item.value = append(append([]byte{}, value...), existing.value...)
		item.cas = s.casSeq
	default:
		expires, keep := expiry(exptime, now)
		if !keep {
			delete(s.items, key)
			return "STORED\r\n", true
		}
		item.expires = expires
	}

	s.items[key] = item
	return "STORED\r\n", true
}

func (s *Server) retrieve(withCAS bool, touch *int64, keys []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var sb strings.Builder
	for _, key := range keys {
		item, ok := s.items[key]
		if !ok || item.expired(now) {
			continue
		}

		if touch != nil {
			expires, keep := expiry(*touch, now)
			if !keep {
				delete(s.items, key)
			} else {
				item.expires = expires
				s.items[key] = item
			}
		}

		sb.WriteString("VALUE " + key + " " + strconv.FormatUint(uint64(item.flags), 10) + " " + strconv.Itoa(len(item.value)))
		if withCAS {
			sb.WriteString(" " + strconv.FormatUint(item.cas, 10))
		}
		sb.WriteString("\r\n")
		sb.Write(item.value)
		sb.WriteString("\r\n")
	}
	sb.WriteString("END\r\n")
	return sb.String()
}

func (s *Server) delete(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(time.Now()) {
		return "NOT_FOUND\r\n"
	}
	delete(s.items, key)
	return "DELETED\r\n"
}

func (s *Server) arithmetic(incr bool, key, deltaArg string) string {
	delta, err := strconv.ParseUint(deltaArg, 10, 64)
	if err != nil {
		return "CLIENT_ERROR invalid numeric delta argument\r\n"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(time.Now()) {
		return "NOT_FOUND\r\n"
	}

	current, err := strconv.ParseUint(string(item.value), 10, 64)
	if err != nil {
		return "CLIENT_ERROR cannot increment or decrement non-numeric value\r\n"
	}

	if incr {
		current += delta
	} else if delta > current {
		current = 0
	} else {
		current -= delta
	}

	s.casSeq++
	item.value = []byte(strconv.FormatUint(current, 10))
	item.cas = s.casSeq
	s.items[key] = item
	return string(item.value) + "\r\n"
}

func (s *Server) touch(key, exptimeArg string) string {
	exptime, err := strconv.ParseInt(exptimeArg, 10, 64)
	if err != nil {
		return "CLIENT_ERROR invalid exptime argument\r\n"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	item, ok := s.items[key]
	if !ok || item.expired(now) {
		return "NOT_FOUND\r\n"
	}

	expires, keep := expiry(exptime, now)
	if !keep {
		delete(s.items, key)
	} else {
		item.expires = expires
		s.items[key] = item
	}
	return "TOUCHED\r\n"
}

func (s *Server) stats() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("STAT pid 1\r\n")
	sb.WriteString("STAT version 1.6.0-testutils\r\n")
	sb.WriteString("STAT curr_items " + strconv.Itoa(len(s.items)) + "\r\n")
	sb.WriteString("STAT curr_connections " + strconv.Itoa(len(s.conns)) + "\r\n")
	sb.WriteString("END\r\n")
	return sb.String()
}
