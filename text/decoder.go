package text

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"

	"github.com/pior/memcache-async/codec"
)

var (
	crlfBytes   = []byte(CRLF)
	endBytes    = []byte(EndMarker)
	valueBytes  = []byte(ValuePrefix)
	errBadFrame = errors.New("data block not terminated by CRLF")
)

// Decode extracts exactly one reply to cmd from the start of buf.
//
// It returns the reply and the number of bytes it spans. When buf does not
// yet hold the whole reply it returns ErrIncomplete and the caller must retry
// with more bytes; no state is kept between calls.
//
// When the bytes do not match the reply grammar of cmd, Decode returns an
// *UnknownResponseError together with the number of bytes to discard (through
// the offending line) so that following replies stay aligned.
func Decode(cmd *Command, buf []byte, c codec.Codec) (Reply, int, error) {
	if c == nil {
		c = codec.Default{}
	}

	switch {
	case cmd.Kind.IsRetrieval():
		return decodeRetrieval(cmd, buf, c)
	case cmd.MultiValue:
		return decodeLines(cmd, buf)
	default:
		return decodeLine(buf)
	}
}

// nextLine returns the line starting at pos, without its terminator, and the
// offset just past the terminator.
func nextLine(buf []byte, pos int) (line []byte, next int, ok bool) {
	idx := bytes.Index(buf[pos:], crlfBytes)
	if idx < 0 {
		return nil, 0, false
	}
	return buf[pos : pos+idx], pos + idx + len(crlfBytes), true
}

// Single-line replies are returned verbatim: STORED, NOT_FOUND, 42, ERROR...
func decodeLine(buf []byte) (Reply, int, error) {
	line, next, ok := nextLine(buf, 0)
	if !ok {
		return Reply{}, 0, ErrIncomplete
	}
	return Reply{Kind: ReplyLine, Line: string(line)}, next, nil
}

// decodeLines collects lines until END, as for stats.
func decodeLines(cmd *Command, buf []byte) (Reply, int, error) {
	var lines []string
	pos := 0
	for {
		line, next, ok := nextLine(buf, pos)
		if !ok {
			return Reply{}, 0, ErrIncomplete
		}

		if bytes.Equal(line, endBytes) {
			if lines == nil {
				lines = []string{}
			}
			return Reply{Kind: ReplyLines, Lines: lines}, next, nil
		}

		// Stats lines are kept verbatim, but an error line in place of the
		// first one is the whole reply: no END follows it, and waiting for one
		// would swallow the replies of the next commands.
		if pos == 0 {
			if cause := ParseErrorLine(string(line)); cause != nil {
				return Reply{}, next, &UnknownResponseError{Command: cmd.Name, Line: string(line), Cause: cause}
			}
		}

		lines = append(lines, string(line))
		pos = next
	}
}

type valueHeader struct {
	key   string
	flags uint32
	size  int
	cas   uint64
}

// parseValueHeader parses VALUE <key> <flags> <bytes> [<cas unique>].
func parseValueHeader(line []byte) (valueHeader, bool) {
	fields := bytes.Fields(line)
	if len(fields) != 4 && len(fields) != 5 {
		return valueHeader{}, false
	}
	if !bytes.Equal(fields[0], valueBytes) {
		return valueHeader{}, false
	}

	flags, err := strconv.ParseUint(string(fields[2]), 10, 32)
	if err != nil {
		return valueHeader{}, false
	}

	size, err := strconv.Atoi(string(fields[3]))
	if err != nil || size < 0 || size > MaxValueLength {
		return valueHeader{}, false
	}

	h := valueHeader{
		key:   string(fields[1]),
		flags: uint32(flags),
		size:  size,
	}

	if len(fields) == 5 {
		h.cas, err = strconv.ParseUint(string(fields[4]), 10, 64)
		if err != nil {
			return valueHeader{}, false
		}
	}

	return h, true
}

// decodeRetrieval parses VALUE items until END.
func decodeRetrieval(cmd *Command, buf []byte, c codec.Codec) (Reply, int, error) {
	items := make(map[string]Item)
	var first *Item
	var decodeErr error
	var decodeLine string

	pos := 0
	for {
		line, next, ok := nextLine(buf, pos)
		if !ok {
			return Reply{}, 0, ErrIncomplete
		}

		if bytes.Equal(line, endBytes) {
			pos = next
			break
		}

		header, ok := parseValueHeader(line)
		if !ok {
			return Reply{}, next, &UnknownResponseError{
				Command: cmd.Name,
				Line:    string(line),
				Cause:   ParseErrorLine(string(line)),
			}
		}

		if len(buf)-next-len(crlfBytes) < header.size {
			return Reply{}, 0, ErrIncomplete
		}
		end := next + header.size
		if !bytes.Equal(buf[end:end+len(crlfBytes)], crlfBytes) {
			return Reply{}, end + len(crlfBytes), &UnknownResponseError{
				Command: cmd.Name,
				Line:    string(line),
				Cause:   errBadFrame,
			}
		}

		// buf is reused once consumed, so the payload is copied out.
		payload := make([]byte, header.size)
		copy(payload, buf[next:end])

		value, err := c.Deserialize(header.flags, payload)
		if err != nil && decodeErr == nil {
			decodeErr = errors.Wrapf(err, "decoding value of key %q", header.key)
			decodeLine = string(line)
		}

		item := Item{Key: header.key, Flags: header.flags, Value: value}
		if cmd.WantsCAS {
			item.CAS = header.cas
		}
		items[item.Key] = item
		if first == nil {
			first = &item
		}

		pos = end + len(crlfBytes)
	}

	if decodeErr != nil {
		return Reply{}, pos, &UnknownResponseError{Command: cmd.Name, Line: decodeLine, Cause: decodeErr}
	}

	if cmd.SingleKey {
		if first == nil {
			return Reply{Kind: ReplyNone}, pos, nil
		}
		return Reply{Kind: ReplyValue, Item: first}, pos, nil
	}

	return Reply{Kind: ReplyValues, Items: items}, pos, nil
}
