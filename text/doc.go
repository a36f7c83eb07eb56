// Package text implements the memcached text protocol for a pipelined client.
//
// It has no connection management: it turns commands into wire bytes and
// extracts replies from a receive buffer, leaving ordering and I/O to the
// caller.
//
// # Encoding
//
// Build validates positional arguments and produces an immutable Command:
//
//	cmd, err := text.Build(codec.Default{}, "set", "mykey", "hello", 60)
//	// cmd.Wire == "set mykey 0 60 5\r\nhello\r\n"
//
// Validation failures are *InvalidParamsError values naming the command and
// the offending field. Unrecognized command names are passed through verbatim
// so protocol extensions remain reachable.
//
// # Decoding
//
// Decode extracts exactly one reply for a command from the head of a buffer.
// It is incremental: when the buffer is truncated it returns ErrIncomplete and
// the same call is retried once more bytes arrived.
//
//	buf.Append(chunk)
//	for {
//	    reply, n, err := text.Decode(head, buf.Bytes(), nil)
//	    if errors.Is(err, text.ErrIncomplete) {
//	        break
//	    }
//	    buf.Advance(n)
//	    // complete head with reply or err
//	}
//
// Replies take one of these shapes:
//
//   - ReplyLine: single-line replies (STORED, NOT_FOUND, 42, ...), verbatim
//   - ReplyValue: a single-key retrieval hit
//   - ReplyNone: a single-key retrieval miss
//   - ReplyValues: a multi-key retrieval, keyed by item key
//   - ReplyLines: the lines of a stats dump
//
// Bytes that do not match the reply grammar produce an *UnknownResponseError.
// The returned byte count still covers the offending line so that the next
// reply in the stream stays aligned.
package text
