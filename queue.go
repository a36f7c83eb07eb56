package memcache

import (
	"github.com/pior/memcache-async/text"
)

// pending is a command written to the connection and not yet answered.
type pending struct {
	cmd    *text.Command
	result *Result
}

// pendingQueue is the FIFO pairing replies with the commands that were
// written, in write order. It is only touched from the loop.
type pendingQueue struct {
	items []*pending
	head  int
}

func (q *pendingQueue) push(p *pending) {
	q.items = append(q.items, p)
}

func (q *pendingQueue) len() int {
	return len(q.items) - q.head
}

// peek returns the oldest entry, or nil when the queue is empty.
func (q *pendingQueue) peek() *pending {
	if q.head == len(q.items) {
		return nil
	}
	return q.items[q.head]
}

func (q *pendingQueue) pop() *pending {
	p := q.peek()
	if p == nil {
		return nil
	}
	q.items[q.head] = nil
	q.head++

	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return p
}

// skipNoReply drops head entries the server will not answer. Their results
// were already completed when they were issued.
func (q *pendingQueue) skipNoReply() {
	for {
		p := q.peek()
		if p == nil || p.cmd.ExpectsReply {
			return
		}
		q.pop()
	}
}

// drain empties the queue and returns the entries still expecting a reply.
func (q *pendingQueue) drain() []*pending {
	var out []*pending
	for p := q.pop(); p != nil; p = q.pop() {
		if p.cmd.ExpectsReply {
			out = append(out, p)
		}
	}
	return out
}
