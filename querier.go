package memcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/pior/memcache-async/text"
)

var (
	// ErrCacheMiss is returned by Querier when the key does not exist.
	ErrCacheMiss = errors.New("memcache: cache miss")
	// ErrNotStored is returned by Querier when a conditional store was refused.
	ErrNotStored = errors.New("memcache: item not stored")
	// ErrCASConflict is returned by Querier when the item changed since Gets.
	ErrCASConflict = errors.New("memcache: compare-and-swap conflict")
)

// Querier is a blocking facade over a Client, mapping reply lines to errors.
//
// Its methods wait for the reply: they must not be called from the loop
// goroutine, which would never get to process it.
type Querier interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Add(ctx context.Context, key string, value any, ttl time.Duration) error
	CompareAndSwap(ctx context.Context, key string, value any, ttl time.Duration, casUnique uint64) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string, delta uint64) (uint64, error)
	Decrement(ctx context.Context, key string, delta uint64) (uint64, error)
}

func NewQuerier(client *Client) Querier {
	return &querier{
		client: client,
	}
}

type querier struct {
	client *Client
}

// Get retrieves a value for a key. Returns ErrCacheMiss if not found.
func (q *querier) Get(ctx context.Context, key string) (any, error) {
	reply, err := q.client.Get(key).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if reply.IsNone() {
		return nil, ErrCacheMiss
	}
	return reply.Value(), nil
}

// Set stores a value for a key with an optional TTL.
func (q *querier) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	reply, err := q.client.Set(key, value, ttl, false).Wait(ctx)
	return storeResult("set", reply, err)
}

// Add stores a value only if the key does not exist. Returns ErrNotStored if it does.
func (q *querier) Add(ctx context.Context, key string, value any, ttl time.Duration) error {
	reply, err := q.client.Add(key, value, ttl, false).Wait(ctx)
	return storeResult("add", reply, err)
}

// CompareAndSwap stores a value if the item is unchanged since casUnique was
// read. Returns ErrCASConflict if it changed, and ErrCacheMiss if it is gone.
func (q *querier) CompareAndSwap(ctx context.Context, key string, value any, ttl time.Duration, casUnique uint64) error {
	reply, err := q.client.Cas(key, value, ttl, casUnique, false).Wait(ctx)
	return storeResult("cas", reply, err)
}

// Delete removes a key from the cache. Returns ErrCacheMiss if not found.
func (q *querier) Delete(ctx context.Context, key string) error {
	reply, err := q.client.Delete(key, false).Wait(ctx)
	if err != nil {
		return err
	}
	switch reply.Line {
	case text.Deleted:
		return nil
	case text.NotFound:
		return ErrCacheMiss
	default:
		return lineError("delete", reply.Line)
	}
}

// Increment increases a numeric value by delta. Returns new value or ErrCacheMiss if not found.
func (q *querier) Increment(ctx context.Context, key string, delta uint64) (uint64, error) {
	reply, err := q.client.Incr(key, delta, false).Wait(ctx)
	return arithmeticResult("incr", reply, err)
}

// Decrement decreases a numeric value by delta, stopping at 0. Returns new value or ErrCacheMiss if not found.
func (q *querier) Decrement(ctx context.Context, key string, delta uint64) (uint64, error) {
	reply, err := q.client.Decr(key, delta, false).Wait(ctx)
	return arithmeticResult("decr", reply, err)
}

func storeResult(command string, reply text.Reply, err error) error {
	if err != nil {
		return err
	}
	switch reply.Line {
	case text.Stored:
		return nil
	case text.NotStored:
		return ErrNotStored
	case text.Exists:
		return ErrCASConflict
	case text.NotFound:
		return ErrCacheMiss
	default:
		return lineError(command, reply.Line)
	}
}

func arithmeticResult(command string, reply text.Reply, err error) (uint64, error) {
	if err != nil {
		return 0, err
	}
	if reply.Line == text.NotFound {
		return 0, ErrCacheMiss
	}
	val, convErr := strconv.ParseUint(reply.Line, 10, 64)
	if convErr != nil {
		return 0, pkgerrors.WithMessage(lineError(command, reply.Line), "failed to parse response value")
	}
	return val, nil
}

// lineError turns an unexpected reply line into an error.
func lineError(command, line string) error {
	return &text.UnknownResponseError{Command: command, Line: line, Cause: text.ParseErrorLine(line)}
}
