// File: internal/concurrency/timer_list.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TimerList keeps expiry records sorted ascending in a doubly-linked list
// whose nodes live in an arena and link to each other by index. Handles carry
// a generation so that a handle outliving its record is rejected, not aliased.

package concurrency

import "time"

const nilIdx int32 = -1

// TimerID is a stable handle to a record in a TimerList.
// The zero value never refers to a live record.
type TimerID struct {
	idx int32
	gen uint32
}

// Valid reports whether the handle was issued by Insert. It may still be stale.
func (id TimerID) Valid() bool {
	return id.gen != 0
}

type timerRecord[T any] struct {
	expire time.Time
	owner  T
	prev   int32
	next   int32
	gen    uint32
	live   bool
}

// TimerList is a sorted expiry list. It is not safe for concurrent use;
// the reactor goroutine is its only writer.
type TimerList[T any] struct {
	recs []timerRecord[T]
	free []int32
	head int32
	tail int32
	size int
}

// NewTimerList creates an empty list with room for capacity records.
func NewTimerList[T any](capacity int) *TimerList[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &TimerList[T]{
		recs: make([]timerRecord[T], 0, capacity),
		head: nilIdx,
		tail: nilIdx,
	}
}

// Len returns the number of live records.
func (l *TimerList[T]) Len() int {
	return l.size
}

// Insert adds a record expiring at expire on behalf of owner.
// Inserting at the head or the tail is O(1); anything else scans from the head.
func (l *TimerList[T]) Insert(expire time.Time, owner T) TimerID {
	i := l.alloc()
	r := &l.recs[i]
	r.gen++
	if r.gen == 0 {
		r.gen = 1
	}
	r.expire = expire
	r.owner = owner
	r.prev, r.next = nilIdx, nilIdx
	r.live = true
	l.size++
	l.link(i, l.head)
	return TimerID{idx: i, gen: r.gen}
}

// Renew moves the record to its new expiry. Deadlines normally only move
// forward, so the walk starts at the record's old successor rather than the head.
func (l *TimerList[T]) Renew(id TimerID, expire time.Time) bool {
	i, ok := l.lookup(id)
	if !ok {
		return false
	}
	r := &l.recs[i]
	old := r.expire
	r.expire = expire
	if expire.Before(old) {
		l.unlink(i)
		l.link(i, l.head)
		return true
	}
	next := r.next
	if next == nilIdx || expire.Before(l.recs[next].expire) {
		return true
	}
	l.unlink(i)
	l.link(i, next)
	return true
}

// Remove deletes the record. It returns false for stale or zero handles.
func (l *TimerList[T]) Remove(id TimerID) bool {
	i, ok := l.lookup(id)
	if !ok {
		return false
	}
	l.unlink(i)
	l.release(i)
	return true
}

// Expiry returns the deadline of a live record.
func (l *TimerList[T]) Expiry(id TimerID) (time.Time, bool) {
	i, ok := l.lookup(id)
	if !ok {
		return time.Time{}, false
	}
	return l.recs[i].expire, true
}

// Next returns the earliest deadline in the list.
func (l *TimerList[T]) Next() (time.Time, bool) {
	if l.head == nilIdx {
		return time.Time{}, false
	}
	return l.recs[l.head].expire, true
}

// Sweep fires fn for every record with expiry <= now, earliest first, and
// stops at the first record still in the future. Each record is removed
// before fn runs, so fn may freely Remove (a no-op) or Insert.
func (l *TimerList[T]) Sweep(now time.Time, fn func(owner T)) int {
	fired := 0
	for l.head != nilIdx {
		i := l.head
		if now.Before(l.recs[i].expire) {
			break
		}
		owner := l.recs[i].owner
		l.unlink(i)
		l.release(i)
		fn(owner)
		fired++
	}
	return fired
}

// Deadlines returns all expiries in list order.
func (l *TimerList[T]) Deadlines() []time.Time {
	out := make([]time.Time, 0, l.size)
	for i := l.head; i != nilIdx; i = l.recs[i].next {
		out = append(out, l.recs[i].expire)
	}
	return out
}

func (l *TimerList[T]) lookup(id TimerID) (int32, bool) {
	if id.gen == 0 || id.idx < 0 || int(id.idx) >= len(l.recs) {
		return nilIdx, false
	}
	r := &l.recs[id.idx]
	if !r.live || r.gen != id.gen {
		return nilIdx, false
	}
	return id.idx, true
}

func (l *TimerList[T]) alloc() int32 {
	if n := len(l.free); n > 0 {
		i := l.free[n-1]
		l.free = l.free[:n-1]
		return i
	}
	l.recs = append(l.recs, timerRecord[T]{prev: nilIdx, next: nilIdx})
	return int32(len(l.recs) - 1)
}

func (l *TimerList[T]) release(i int32) {
	var zero T
	r := &l.recs[i]
	r.live = false
	r.owner = zero
	l.free = append(l.free, i)
	l.size--
}

// link places an unlinked record i, scanning forward from `from` for the
// first record expiring strictly later. Equal deadlines keep insertion order.
func (l *TimerList[T]) link(i, from int32) {
	r := &l.recs[i]
	if l.head == nilIdx {
		r.prev, r.next = nilIdx, nilIdx
		l.head, l.tail = i, i
		return
	}
	if !r.expire.Before(l.recs[l.tail].expire) {
		r.prev, r.next = l.tail, nilIdx
		l.recs[l.tail].next = i
		l.tail = i
		return
	}
	if from == nilIdx {
		from = l.head
	}
	for j := from; j != nilIdx; j = l.recs[j].next {
		if r.expire.Before(l.recs[j].expire) {
			l.insertBefore(i, j)
			return
		}
	}
}

func (l *TimerList[T]) insertBefore(i, j int32) {
	r := &l.recs[i]
	p := l.recs[j].prev
	r.prev, r.next = p, j
	if p == nilIdx {
		l.head = i
	} else {
		l.recs[p].next = i
	}
	l.recs[j].prev = i
}

func (l *TimerList[T]) unlink(i int32) {
	r := &l.recs[i]
	if r.prev == nilIdx {
		l.head = r.next
	} else {
		l.recs[r.prev].next = r.next
	}
	if r.next == nilIdx {
		l.tail = r.prev
	} else {
		l.recs[r.next].prev = r.prev
	}
	r.prev, r.next = nilIdx, nilIdx
}
