package text

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/memcache-async/codec"
)

func mustBuild(t testing.TB, name string, args ...any) *Command {
	t.Helper()
	cmd, err := Build(nil, name, args...)
	require.NoError(t, err)
	return cmd
}

func TestDecodeSingleLine(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *Command
		input    string
		line     string
		consumed int
	}{
		{"stored", mustBuild(t, "set", "k", "v"), "STORED\r\n", "STORED", 8},
		{"not stored", mustBuild(t, "add", "k", "v"), "NOT_STORED\r\n", "NOT_STORED", 12},
		{"exists", mustBuild(t, "cas", "k", "v", 0, 1), "EXISTS\r\n", "EXISTS", 8},
		{"deleted", mustBuild(t, "delete", "k"), "DELETED\r\n", "DELETED", 9},
		{"incr value", mustBuild(t, "incr", "k", 1), "5\r\n", "5", 3},
		{"touched", mustBuild(t, "touch", "k", 1), "TOUCHED\r\n", "TOUCHED", 9},
		{"version", mustBuild(t, "version"), "VERSION 1.6.21\r\n", "VERSION 1.6.21", 16},
		{"error text passed verbatim", mustBuild(t, "set", "k", "v"), "SERVER_ERROR out of memory\r\n", "SERVER_ERROR out of memory", 28},
		{"only first line consumed", mustBuild(t, "set", "k", "v"), "STORED\r\nSTORED\r\n", "STORED", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, n, err := Decode(tt.cmd, []byte(tt.input), nil)
			require.NoError(t, err)
			assert.Equal(t, ReplyLine, reply.Kind)
			assert.Equal(t, tt.line, reply.Line)
			assert.Equal(t, tt.line, reply.Value())
			assert.Equal(t, tt.consumed, n)
		})
	}
}

func TestDecodeIncomplete(t *testing.T) {
	tests := []struct {
		name  string
		cmd   *Command
		input string
	}{
		{"empty", mustBuild(t, "set", "k", "v"), ""},
		{"partial line", mustBuild(t, "set", "k", "v"), "STOR"},
		{"missing LF", mustBuild(t, "set", "k", "v"), "STORED\r"},
		{"get empty", mustBuild(t, "get", "k"), ""},
		{"get partial header", mustBuild(t, "get", "k"), "VALUE k 0"},
		{"get partial payload", mustBuild(t, "get", "k"), "VALUE k 0 3\r\nab"},
		{"get payload without terminator", mustBuild(t, "get", "k"), "VALUE k 0 3\r\nabc"},
		{"get payload with half terminator", mustBuild(t, "get", "k"), "VALUE k 0 3\r\nabc\r"},
		{"get missing END", mustBuild(t, "get", "k"), "VALUE k 0 3\r\nabc\r\n"},
		{"get partial END", mustBuild(t, "get", "k"), "VALUE k 0 3\r\nabc\r\nEN"},
		{"stats missing END", mustBuild(t, "stats"), "STAT pid 1\r\nSTAT uptime 2\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := []byte(tt.input)
			reply, n, err := Decode(tt.cmd, buf, nil)
			assert.ErrorIs(t, err, ErrIncomplete)
			assert.Equal(t, 0, n)
			assert.Equal(t, Reply{}, reply)
			assert.Equal(t, tt.input, string(buf), "buffer must be left untouched")
		})
	}
}

func TestDecodeSplitValue(t *testing.T) {
	cmd := mustBuild(t, "get", "k")

	first := []byte("VALUE k 0 3\r\nab")
	_, n, err := Decode(cmd, first, nil)
	require.ErrorIs(t, err, ErrIncomplete)
	require.Equal(t, 0, n)
	require.Equal(t, "VALUE k 0 3\r\nab", string(first))

	whole := append(first, []byte("c\r\nEND\r\n")...)
	reply, n, err := Decode(cmd, whole, nil)
	require.NoError(t, err)
	assert.Equal(t, len(whole), n)
	assert.Equal(t, ReplyValue, reply.Kind)
	assert.Equal(t, "abc", reply.Value())
	assert.Equal(t, "k", reply.Item.Key)
}

func TestDecodeRetrieval(t *testing.T) {
	t.Run("single key miss is none", func(t *testing.T) {
		reply, n, err := Decode(mustBuild(t, "get", "k"), []byte("END\r\n"), nil)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.True(t, reply.IsNone())
		assert.Nil(t, reply.Value())
	})

	t.Run("multi key with misses", func(t *testing.T) {
		input := "VALUE a 0 1\r\n1\r\nVALUE c 0 1\r\n3\r\nEND\r\n"
		reply, n, err := Decode(mustBuild(t, "get", "a", "b", "c"), []byte(input), nil)
		require.NoError(t, err)
		assert.Equal(t, len(input), n)
		assert.Equal(t, ReplyValues, reply.Kind)
		require.Len(t, reply.Items, 2)
		assert.Equal(t, "1", reply.Items["a"].Value)
		assert.Equal(t, "3", reply.Items["c"].Value)
		assert.NotContains(t, reply.Items, "b")
	})

	t.Run("multi key all missing is empty map", func(t *testing.T) {
		reply, _, err := Decode(mustBuild(t, "get", "a", "b"), []byte("END\r\n"), nil)
		require.NoError(t, err)
		assert.Equal(t, ReplyValues, reply.Kind)
		assert.NotNil(t, reply.Items)
		assert.Empty(t, reply.Items)
	})

	t.Run("gets carries cas", func(t *testing.T) {
		input := "VALUE k 0 5 987654321\r\nhello\r\nEND\r\n"
		reply, _, err := Decode(mustBuild(t, "gets", "k"), []byte(input), nil)
		require.NoError(t, err)
		require.Equal(t, ReplyValue, reply.Kind)
		assert.Equal(t, uint64(987654321), reply.Item.CAS)
		assert.Equal(t, "hello", reply.Item.Value)
	})

	t.Run("get ignores cas field", func(t *testing.T) {
		input := "VALUE k 0 5 99\r\nhello\r\nEND\r\n"
		reply, _, err := Decode(mustBuild(t, "get", "k"), []byte(input), nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), reply.Item.CAS)
	})

	t.Run("gats multi key carries cas", func(t *testing.T) {
		input := "VALUE a 0 1 10\r\n1\r\nVALUE b 0 1 11\r\n2\r\nEND\r\n"
		reply, _, err := Decode(mustBuild(t, "gats", 0, "a", "b"), []byte(input), nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), reply.Items["a"].CAS)
		assert.Equal(t, uint64(11), reply.Items["b"].CAS)
	})

	t.Run("payload containing CRLF and END", func(t *testing.T) {
		input := "VALUE k 0 7\r\nEND\r\nab\r\nEND\r\n"
		reply, n, err := Decode(mustBuild(t, "get", "k"), []byte(input), nil)
		require.NoError(t, err)
		assert.Equal(t, len(input), n)
		assert.Equal(t, "END\r\nab", reply.Value())
	})

	t.Run("structured value", func(t *testing.T) {
		input := "VALUE k 4 11\r\n{\"a\":[1,2]}\r\nEND\r\n"
		reply, _, err := Decode(mustBuild(t, "get", "k"), []byte(input), nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}}, reply.Value())
	})

	t.Run("foreign flags read as text", func(t *testing.T) {
		input := "VALUE k 2 3\r\nabc\r\nEND\r\n"
		reply, _, err := Decode(mustBuild(t, "get", "k"), []byte(input), nil)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), reply.Item.Flags)
		assert.Equal(t, "abc", reply.Value())
	})

	t.Run("trailing bytes left for the next reply", func(t *testing.T) {
		input := "END\r\nSTORED\r\n"
		_, n, err := Decode(mustBuild(t, "get", "k"), []byte(input), nil)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("payload is copied", func(t *testing.T) {
		buf := []byte("VALUE k 1 3\r\nabc\r\nEND\r\n")
		reply, _, err := Decode(mustBuild(t, "get", "k"), buf, codec.Raw{})
		require.NoError(t, err)
		copy(buf, "XXXXXXXXXXXXXXXXXX")
		assert.Equal(t, []byte("abc"), reply.Value())
	})
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *Command
		input    string
		consumed int
		cause    any
	}{
		{"garbage line", mustBuild(t, "get", "k"), "HELLO\r\nSTORED\r\n", 7, nil},
		{"server error", mustBuild(t, "get", "k"), "SERVER_ERROR busy\r\n", 19, &ServerError{}},
		{"client error", mustBuild(t, "gets", "k"), "CLIENT_ERROR bad command line format\r\n", 38, &ClientError{}},
		{"generic error", mustBuild(t, "get", "k"), "ERROR\r\n", 7, &GenericError{}},
		{"short header", mustBuild(t, "get", "k"), "VALUE k 0\r\n", 11, nil},
		{"bad size", mustBuild(t, "get", "k"), "VALUE k 0 x\r\n", 13, nil},
		{"negative size", mustBuild(t, "get", "k"), "VALUE k 0 -1\r\n", 14, nil},
		{"oversized value", mustBuild(t, "get", "k"), "VALUE k 0 9223372036854775807\r\n", 31, nil},
		{"value over item limit", mustBuild(t, "get", "k"), "VALUE k 0 1073741825\r\n", 22, nil},
		{"bad flags", mustBuild(t, "get", "k"), "VALUE k f 1\r\n", 13, nil},
		{"bad cas", mustBuild(t, "gets", "k"), "VALUE k 0 1 z\r\n", 15, nil},
		{"bad payload terminator", mustBuild(t, "get", "k"), "VALUE k 0 3\r\nabcXYEND\r\n", 18, nil},
		{"garbage after item", mustBuild(t, "get", "k"), "VALUE k 0 1\r\na\r\nWAT\r\nEND\r\n", 21, nil},
		{"stats error", mustBuild(t, "stats", "bogus"), "ERROR\r\n", 7, &GenericError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := Decode(tt.cmd, []byte(tt.input), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnknownResponse)
			assert.Equal(t, tt.consumed, n)

			var ure *UnknownResponseError
			require.True(t, errors.As(err, &ure))
			assert.Equal(t, tt.cmd.Name, ure.Command)

			switch tt.cause.(type) {
			case *ServerError:
				var se *ServerError
				assert.True(t, errors.As(err, &se))
			case *ClientError:
				var ce *ClientError
				assert.True(t, errors.As(err, &ce))
			case *GenericError:
				var ge *GenericError
				assert.True(t, errors.As(err, &ge))
			}
		})
	}
}

func TestDecodeCodecError(t *testing.T) {
	input := "VALUE a 4 1\r\nx\r\nVALUE b 0 1\r\ny\r\nEND\r\nSTORED\r\n"
	_, n, err := Decode(mustBuild(t, "get", "a", "b"), []byte(input), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownResponse)
	assert.Equal(t, len(input)-len("STORED\r\n"), n, "the whole reply is consumed")
}

func TestDecodeStats(t *testing.T) {
	input := "STAT pid 42\r\nSTAT version 1.6.21\r\nSTAT rusage_user 0.1 0.2\r\nEND\r\n"
	reply, n, err := Decode(mustBuild(t, "stats"), []byte(input), nil)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.Equal(t, ReplyLines, reply.Kind)
	assert.Equal(t, []string{"STAT pid 42", "STAT version 1.6.21", "STAT rusage_user 0.1 0.2"}, reply.Lines)
	assert.Equal(t, map[string]string{
		"pid":         "42",
		"version":     "1.6.21",
		"rusage_user": "0.1 0.2",
	}, reply.StatsMap())

	reply, n, err = Decode(mustBuild(t, "stats"), []byte("END\r\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{}, reply.Lines)
}

// Feeding a pipelined reply stream one chunk at a time must give the same
// replies as feeding it whole, whatever the chunk boundaries.
func TestDecodeChunkingIsTransparent(t *testing.T) {
	cmds := []*Command{
		mustBuild(t, "set", "a", "1"),
		mustBuild(t, "get", "a"),
		mustBuild(t, "gets", "a", "b"),
		mustBuild(t, "incr", "n", 1),
		mustBuild(t, "stats"),
		mustBuild(t, "get", "missing"),
	}
	stream := "STORED\r\n" +
		"VALUE a 0 1\r\n1\r\nEND\r\n" +
		"VALUE a 0 1 5\r\n1\r\nVALUE b 0 2 6\r\n\r\n\r\nEND\r\n" +
		"2\r\n" +
		"STAT pid 1\r\nEND\r\n" +
		"END\r\n"

	decodeAll := func(chunks []string) []Reply {
		var replies []Reply
		buf := NewBuffer(nil)
		next := 0
		for _, chunk := range chunks {
			buf.Append([]byte(chunk))
			for next < len(cmds) {
				reply, n, err := Decode(cmds[next], buf.Bytes(), nil)
				if errors.Is(err, ErrIncomplete) {
					break
				}
				require.NoError(t, err)
				buf.Advance(n)
				replies = append(replies, reply)
				next++
			}
		}
		assert.Equal(t, 0, buf.Len())
		return replies
	}

	expected := decodeAll([]string{stream})
	require.Len(t, expected, len(cmds))
	assert.Equal(t, "2", expected[3].Line)
	assert.True(t, expected[5].IsNone())
	assert.Equal(t, "\r\n", expected[2].Items["b"].Value)

	for size := 1; size <= 7; size++ {
		var chunks []string
		for i := 0; i < len(stream); i += size {
			chunks = append(chunks, stream[i:min(i+size, len(stream))])
		}
		assert.Equal(t, expected, decodeAll(chunks), "chunk size %d", size)
	}
}
