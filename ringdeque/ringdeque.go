/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package ringdeque implements a power-of-two capacity circular buffer used
// as the local queue of a pool worker and as the backing store of the
// manual executor: a flat array in place of an intrusive linked-list
// queue, which is what lets a thread-pool worker steal from the opposite
// end in O(1) without chasing pointers.
package ringdeque

// minCapacity is the floor capacity a Deque shrinks back down to; it never
// goes below this regardless of how empty the deque becomes.
const minCapacity = 16

// Deque is a double-ended queue backed by a power-of-two sized ring buffer.
// It is not safe for concurrent use; callers serialize access themselves
// (see package pool, whose worker owns its local Deque and takes a mutex
// only when a thief wants to steal from it).
type Deque[T any] struct {
	buf        []T
	head, tail int // buf[head] is the front element; tail is one past the back
	count      int
}

// New creates an empty Deque with the given initial capacity rounded up to
// the next power of two, floored at minCapacity.
func New[T any](initialCapacity int) *Deque[T] {
	cap := minCapacity
	for cap < initialCapacity {
		cap <<= 1
	}
	return &Deque[T]{buf: make([]T, cap)}
}

// Len returns the number of elements currently stored.
func (d *Deque[T]) Len() int {
	return d.count
}

// Empty reports whether the deque holds no elements.
func (d *Deque[T]) Empty() bool {
	return d.count == 0
}

// Cap returns the current backing array capacity (a power of two).
func (d *Deque[T]) Cap() int {
	return len(d.buf)
}

func (d *Deque[T]) mask() int {
	return len(d.buf) - 1
}

// PushFront inserts v at the front of the deque.
func (d *Deque[T]) PushFront(v T) {
	d.growIfFull()
	d.head = (d.head - 1) & d.mask()
	d.buf[d.head] = v
	d.count++
}

// PushBack inserts v at the back of the deque.
func (d *Deque[T]) PushBack(v T) {
	d.growIfFull()
	d.buf[d.tail] = v
	d.tail = (d.tail + 1) & d.mask()
	d.count++
}

// PopFront removes and returns the element at the front. ok is false if the
// deque was empty.
func (d *Deque[T]) PopFront() (v T, ok bool) {
	if d.count == 0 {
		return v, false
	}
	v = d.buf[d.head]
	var zero T
	d.buf[d.head] = zero
	d.head = (d.head + 1) & d.mask()
	d.count--
	d.shrinkIfSparse()
	return v, true
}

// PopBack removes and returns the element at the back. ok is false if the
// deque was empty.
func (d *Deque[T]) PopBack() (v T, ok bool) {
	if d.count == 0 {
		return v, false
	}
	d.tail = (d.tail - 1) & d.mask()
	v = d.buf[d.tail]
	var zero T
	d.buf[d.tail] = zero
	d.count--
	d.shrinkIfSparse()
	return v, true
}

// Clear empties the deque, dropping references to every stored element.
func (d *Deque[T]) Clear() {
	var zero T
	for d.count > 0 {
		d.buf[d.head] = zero
		d.head = (d.head + 1) & d.mask()
		d.count--
	}
	d.head, d.tail = 0, 0
}

// growIfFull doubles capacity once head would meet tail on the next push.
func (d *Deque[T]) growIfFull() {
	if d.count+1 < len(d.buf) {
		return
	}
	d.resize(len(d.buf) * 2)
}

// shrinkIfSparse shrinks the backing array by a factor of four once usage
// drops to at most 1/8th of capacity, never below minCapacity.
func (d *Deque[T]) shrinkIfSparse() {
	cap := len(d.buf)
	if cap <= minCapacity {
		return
	}
	if d.count > cap/8 {
		return
	}
	newCap := cap / 4
	if newCap < minCapacity {
		newCap = minCapacity
	}
	if newCap < d.count {
		newCap = minCapacity
		for newCap < d.count {
			newCap <<= 1
		}
	}
	d.resize(newCap)
}

// resize rebuilds the backing array at the given capacity, relinearizing
// elements starting at index 0.
func (d *Deque[T]) resize(newCap int) {
	newBuf := make([]T, newCap)
	for i := 0; i < d.count; i++ {
		newBuf[i] = d.buf[(d.head+i)&d.mask()]
	}
	d.buf = newBuf
	d.head = 0
	d.tail = d.count
}
