package memcache

import (
	"strconv"
	"time"
)

// NoTTL represents an infinite TTL (no expiration).
// Use this constant when you want items to persist indefinitely in memcache.
const NoTTL = 0

// Commander is the typed command surface of a Client.
//
// Every method returns immediately with a Result. Storage and arithmetic
// commands complete with the server reply line (STORED, NOT_STORED, EXISTS,
// NOT_FOUND, DELETED, TOUCHED or the new counter value). When noreply is
// set, the Result completes with an empty reply without waiting for the
// server.
type Commander interface {
	Set(key string, value any, ttl time.Duration, noreply bool) *Result
	Add(key string, value any, ttl time.Duration, noreply bool) *Result
	Replace(key string, value any, ttl time.Duration, noreply bool) *Result
	Append(key string, value any, noreply bool) *Result
	Prepend(key string, value any, noreply bool) *Result
	Cas(key string, value any, ttl time.Duration, casUnique uint64, noreply bool) *Result
	Get(keys ...string) *Result
	Gets(keys ...string) *Result
	Gat(ttl time.Duration, keys ...string) *Result
	Gats(ttl time.Duration, keys ...string) *Result
	Delete(key string, noreply bool) *Result
	Incr(key string, delta uint64, noreply bool) *Result
	Decr(key string, delta uint64, noreply bool) *Result
	Touch(key string, ttl time.Duration, noreply bool) *Result
	ServerStats(args ...string) *Result
	FlushAll(delay time.Duration, noreply bool) *Result
	Version() *Result
}

var _ Commander = (*Client)(nil)

// exptime converts a TTL to the exptime field, in seconds.
func exptime(ttl time.Duration) int64 {
	return int64(ttl / time.Second)
}

// Set stores value under key.
func (c *Client) Set(key string, value any, ttl time.Duration, noreply bool) *Result {
	return c.Do("set", key, value, exptime(ttl), noreply)
}

// Add stores value only if key does not exist yet.
func (c *Client) Add(key string, value any, ttl time.Duration, noreply bool) *Result {
	return c.Do("add", key, value, exptime(ttl), noreply)
}

// Replace stores value only if key already exists.
func (c *Client) Replace(key string, value any, ttl time.Duration, noreply bool) *Result {
	return c.Do("replace", key, value, exptime(ttl), noreply)
}

// Append adds value after the existing value of key.
func (c *Client) Append(key string, value any, noreply bool) *Result {
	return c.Do("append", key, value, NoTTL, noreply)
}

// Prepend adds value before the existing value of key.
func (c *Client) Prepend(key string, value any, noreply bool) *Result {
	return c.Do("prepend", key, value, NoTTL, noreply)
}

// Cas stores value only if key was not modified since casUnique was read
// with Gets or Gats. It completes with EXISTS when it was, and NOT_FOUND when
// the key is gone.
func (c *Client) Cas(key string, value any, ttl time.Duration, casUnique uint64, noreply bool) *Result {
	return c.Do("cas", key, value, exptime(ttl), casUnique, noreply)
}

// Get retrieves keys. With a single key the reply is unwrapped to its item,
// and is empty on a miss. With several keys the reply maps the keys that
// were found to their items.
func (c *Client) Get(keys ...string) *Result {
	return c.Do("get", stringArgs(keys)...)
}

// Gets is Get, with the cas unique of every item.
func (c *Client) Gets(keys ...string) *Result {
	return c.Do("gets", stringArgs(keys)...)
}

// Gat is Get, updating the TTL of the items found.
func (c *Client) Gat(ttl time.Duration, keys ...string) *Result {
	return c.Do("gat", append([]any{exptime(ttl)}, stringArgs(keys)...)...)
}

// Gats is Gets, updating the TTL of the items found.
func (c *Client) Gats(ttl time.Duration, keys ...string) *Result {
	return c.Do("gats", append([]any{exptime(ttl)}, stringArgs(keys)...)...)
}

func (c *Client) Delete(key string, noreply bool) *Result {
	return c.Do("delete", key, noreply)
}

// Incr adds delta to the counter stored at key. The reply line is the new
// value, or NOT_FOUND.
func (c *Client) Incr(key string, delta uint64, noreply bool) *Result {
	return c.Do("incr", key, delta, noreply)
}

// Decr subtracts delta from the counter stored at key, stopping at 0.
func (c *Client) Decr(key string, delta uint64, noreply bool) *Result {
	return c.Do("decr", key, delta, noreply)
}

func (c *Client) Touch(key string, ttl time.Duration, noreply bool) *Result {
	return c.Do("touch", key, exptime(ttl), noreply)
}

// ServerStats sends the stats command. The reply holds the STAT lines; use
// Reply.StatsMap to index them.
func (c *Client) ServerStats(args ...string) *Result {
	return c.Do("stats", stringArgs(args)...)
}

// FlushAll invalidates every item, after delay when it is positive.
func (c *Client) FlushAll(delay time.Duration, noreply bool) *Result {
	var args []any
	if delay > 0 {
		args = append(args, strconv.FormatInt(exptime(delay), 10))
	}
	if noreply {
		args = append(args, "noreply")
	}
	return c.Do("flush_all", args...)
}

// Version completes with the VERSION line of the server.
func (c *Client) Version() *Result {
	return c.Do("version")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
