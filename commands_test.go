package memcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/memcache-async/internal/testutils"
	"github.com/pior/memcache-async/text"
)

func TestCommandsWire(t *testing.T) {
	tests := []struct {
		name  string
		issue func(c *Client) *Result
		wire  string
		reply string
		check func(t *testing.T, reply text.Reply)
	}{
		{
			name:  "set",
			issue: func(c *Client) *Result { return c.Set("k", "v", time.Minute, false) },
			wire:  "set k 0 60 1\r\nv\r\n",
			reply: "STORED\r\n",
		},
		{
			name:  "add",
			issue: func(c *Client) *Result { return c.Add("k", 42, NoTTL, false) },
			wire:  "add k 0 0 2\r\n42\r\n",
			reply: "NOT_STORED\r\n",
		},
		{
			name:  "replace",
			issue: func(c *Client) *Result { return c.Replace("k", map[string]int{"a": 1}, time.Second, false) },
			wire:  "replace k 4 1 7\r\n{\"a\":1}\r\n",
			reply: "STORED\r\n",
		},
		{
			name:  "append",
			issue: func(c *Client) *Result { return c.Append("k", "x", false) },
			wire:  "append k 0 0 1\r\nx\r\n",
			reply: "STORED\r\n",
		},
		{
			name:  "prepend",
			issue: func(c *Client) *Result { return c.Prepend("k", "x", false) },
			wire:  "prepend k 0 0 1\r\nx\r\n",
			reply: "STORED\r\n",
		},
		{
			name:  "cas",
			issue: func(c *Client) *Result { return c.Cas("k", "v", NoTTL, 99, false) },
			wire:  "cas k 0 0 1 99\r\nv\r\n",
			reply: "EXISTS\r\n",
		},
		{
			name:  "get",
			issue: func(c *Client) *Result { return c.Get("a", "b") },
			wire:  "get a b\r\n",
			reply: "VALUE a 0 1\r\n1\r\nEND\r\n",
			check: func(t *testing.T, reply text.Reply) {
				assert.Equal(t, text.ReplyValues, reply.Kind)
				assert.Len(t, reply.Items, 1)
			},
		},
		{
			name:  "gets",
			issue: func(c *Client) *Result { return c.Gets("a") },
			wire:  "gets a\r\n",
			reply: "VALUE a 0 1 5\r\n1\r\nEND\r\n",
			check: func(t *testing.T, reply text.Reply) {
				assert.Equal(t, uint64(5), reply.Item.CAS)
			},
		},
		{
			name:  "gat",
			issue: func(c *Client) *Result { return c.Gat(time.Hour, "a") },
			wire:  "gat 3600 a\r\n",
			reply: "END\r\n",
			check: func(t *testing.T, reply text.Reply) {
				assert.True(t, reply.IsNone())
			},
		},
		{
			name:  "gats",
			issue: func(c *Client) *Result { return c.Gats(0, "a", "b") },
			wire:  "gats 0 a b\r\n",
			reply: "END\r\n",
			check: func(t *testing.T, reply text.Reply) {
				assert.Equal(t, text.ReplyValues, reply.Kind)
				assert.Empty(t, reply.Items)
			},
		},
		{
			name:  "delete",
			issue: func(c *Client) *Result { return c.Delete("k", false) },
			wire:  "delete k\r\n",
			reply: "NOT_FOUND\r\n",
		},
		{
			name:  "incr",
			issue: func(c *Client) *Result { return c.Incr("n", 10, false) },
			wire:  "incr n 10\r\n",
			reply: "11\r\n",
		},
		{
			name:  "decr",
			issue: func(c *Client) *Result { return c.Decr("n", 1, false) },
			wire:  "decr n 1\r\n",
			reply: "10\r\n",
		},
		{
			name:  "touch",
			issue: func(c *Client) *Result { return c.Touch("k", 90*time.Second, false) },
			wire:  "touch k 90\r\n",
			reply: "TOUCHED\r\n",
		},
		{
			name:  "stats",
			issue: func(c *Client) *Result { return c.ServerStats() },
			wire:  "stats\r\n",
			reply: "STAT pid 7\r\nEND\r\n",
			check: func(t *testing.T, reply text.Reply) {
				assert.Equal(t, map[string]string{"pid": "7"}, reply.StatsMap())
			},
		},
		{
			name:  "flush_all",
			issue: func(c *Client) *Result { return c.FlushAll(0, false) },
			wire:  "flush_all\r\n",
			reply: "OK\r\n",
		},
		{
			name:  "flush_all delayed",
			issue: func(c *Client) *Result { return c.FlushAll(30*time.Second, false) },
			wire:  "flush_all 30\r\n",
			reply: "OK\r\n",
		},
		{
			name:  "version",
			issue: func(c *Client) *Result { return c.Version() },
			wire:  "version\r\n",
			reply: "VERSION 1.6.21\r\n",
		},
		{
			name:  "pass-through",
			issue: func(c *Client) *Result { return c.Do("verbosity", 1) },
			wire:  "verbosity 1\r\n",
			reply: "OK\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testutils.NewConnectionMock()
			client, _, _ := newMockClient(t, Config{}, conn)

			res := tt.issue(client)
			require.True(t, conn.WaitWritten(tt.wire, testTimeout), "got %q", conn.GetWrittenRequest())
			conn.Feed(tt.reply)

			reply := requireReply(t, res)
			if tt.check != nil {
				tt.check(t, reply)
				return
			}
			assert.Equal(t, text.ReplyLine, reply.Kind)
			assert.Equal(t, tt.reply[:len(tt.reply)-2], reply.Line)
		})
	}
}

func TestCommandsNoReply(t *testing.T) {
	conn := testutils.NewConnectionMock()
	client, _, _ := newMockClient(t, Config{}, conn)

	results := []*Result{
		client.Set("k", "v", NoTTL, true),
		client.Add("k", "v", NoTTL, true),
		client.Replace("k", "v", NoTTL, true),
		client.Append("k", "v", true),
		client.Prepend("k", "v", true),
		client.Cas("k", "v", NoTTL, 1, true),
		client.Delete("k", true),
		client.Incr("n", 1, true),
		client.Decr("n", 1, true),
		client.Touch("k", time.Second, true),
		client.FlushAll(0, true),
	}

	for _, res := range results {
		reply := requireReply(t, res)
		assert.True(t, reply.IsNone())
	}

	expected := "set k 0 0 1 noreply\r\nv\r\n" +
		"add k 0 0 1 noreply\r\nv\r\n" +
		"replace k 0 0 1 noreply\r\nv\r\n" +
		"append k 0 0 1 noreply\r\nv\r\n" +
		"prepend k 0 0 1 noreply\r\nv\r\n" +
		"cas k 0 0 1 1 noreply\r\nv\r\n" +
		"delete k noreply\r\n" +
		"incr n 1 noreply\r\n" +
		"decr n 1 noreply\r\n" +
		"touch k 1 noreply\r\n" +
		"flush_all noreply\r\n"
	require.True(t, conn.WaitWritten(expected, testTimeout), "got %q", conn.GetWrittenRequest())
}
