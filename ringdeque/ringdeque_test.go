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

package ringdeque_test

import (
	"testing"

	"github.com/fenwick-labs/concur/ringdeque"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	d := ringdeque.New[int](0)
	for i := 0; i < 100; i++ {
		d.PushBack(i)
	}
	require.Equal(t, 100, d.Len())
	for i := 0; i < 100; i++ {
		v, ok := d.PopFront()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.True(t, d.Empty())
}

func TestLIFOOrder(t *testing.T) {
	d := ringdeque.New[int](0)
	for i := 0; i < 100; i++ {
		d.PushBack(i)
	}
	for i := 99; i >= 0; i-- {
		v, ok := d.PopBack()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.True(t, d.Empty())
}

func TestPushBackPopFrontStealShape(t *testing.T) {
	// A worker pushes to the back of its own queue; a thief steals from the
	// front, the opposite end.
	d := ringdeque.New[int](0)
	d.PushBack(1)
	d.PushBack(2)
	d.PushBack(3)

	v, ok := d.PopFront()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestPopFromEmpty(t *testing.T) {
	d := ringdeque.New[int](0)
	_, ok := d.PopFront()
	require.False(t, ok)
	_, ok = d.PopBack()
	require.False(t, ok)
}

func TestGrowthTable(t *testing.T) {
	cases := []struct {
		name    string
		pushes  int
		wantCap int
	}{
		{"stays at floor for tiny loads", 10, 16},
		{"doubles past floor", 17, 32},
		{"doubles again", 33, 64},
		{"exact power of two boundary", 64, 128},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ringdeque.New[int](0)
			for i := 0; i < tc.pushes; i++ {
				d.PushBack(i)
			}
			require.Equal(t, tc.wantCap, d.Cap())
		})
	}
}

func TestShrinksButNeverBelowFloor(t *testing.T) {
	d := ringdeque.New[int](0)
	for i := 0; i < 200; i++ {
		d.PushBack(i)
	}
	bigCap := d.Cap()
	require.Greater(t, bigCap, 16)

	for i := 0; i < 199; i++ {
		_, ok := d.PopFront()
		require.True(t, ok)
	}
	require.Equal(t, 1, d.Len())
	require.GreaterOrEqual(t, d.Cap(), 16)
	require.Less(t, d.Cap(), bigCap)
}

func TestClear(t *testing.T) {
	d := ringdeque.New[int](0)
	for i := 0; i < 10; i++ {
		d.PushBack(i)
	}
	d.Clear()
	require.True(t, d.Empty())
	require.Equal(t, 0, d.Len())

	d.PushBack(42)
	v, ok := d.PopFront()
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestWrapAroundKeepsOrder(t *testing.T) {
	d := ringdeque.New[int](0)
	// Fill and drain repeatedly to force head/tail to wrap around the ring
	// multiple times before any resize would occur.
	for round := 0; round < 5; round++ {
		for i := 0; i < 8; i++ {
			d.PushBack(round*8 + i)
		}
		for i := 0; i < 8; i++ {
			v, ok := d.PopFront()
			require.True(t, ok)
			require.Equal(t, round*8+i, v)
		}
	}
}
