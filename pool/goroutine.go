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

package pool

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Go has no public goroutine-local storage, which a worker would otherwise
// use to let a task scheduled from inside it find "which worker am I"
// without a lookup. selfWorkers fills that gap: Worker.run registers its
// goroutine id for the lifetime of its loop, letting Pool.Enqueue recognize
// a self-enqueue fast path and skip the idle-stack/round-robin selection
// for it.
var (
	selfWorkersMu sync.RWMutex
	selfWorkers   = make(map[uint64]*Worker)
)

// goroutineID parses the numeric id out of the current goroutine's stack
// trace header ("goroutine 123 [running]:"). It is called from
// Pool.Enqueue (via lookupSelf) and once at the start and end of each
// Worker.run (via selfRegister/selfUnregister), never from a worker's hot
// task-invocation loop, so the cost of formatting a small stack trace stays
// off the per-task path.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}

func selfRegister(w *Worker) {
	selfWorkersMu.Lock()
	selfWorkers[goroutineID()] = w
	selfWorkersMu.Unlock()
}

func selfUnregister(w *Worker) {
	id := goroutineID()
	selfWorkersMu.Lock()
	if selfWorkers[id] == w {
		delete(selfWorkers, id)
	}
	selfWorkersMu.Unlock()
}

// lookupSelf returns the Worker whose goroutine is calling in, if any,
// restricted to workers belonging to pool p.
func lookupSelf(p *Pool) *Worker {
	selfWorkersMu.RLock()
	w, ok := selfWorkers[goroutineID()]
	selfWorkersMu.RUnlock()
	if !ok || w.pool != p {
		return nil
	}
	return w
}
