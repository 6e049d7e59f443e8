// Package docsync keeps host documents and their engine buffers in step and
// exposes per-document completion locks for in-flight synchronization.
package docsync

import (
	"sync"
)

// DocumentID identifies a document on both sides of the bridge.
type DocumentID string

// closedCh is returned by Wait when nothing is in flight.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type pendingLock struct {
	done chan struct{}
	refs int
}

// Locks tracks in-flight synchronizations per document. Documents never wait
// on each other.
type Locks struct {
	mu      sync.Mutex
	pending map[DocumentID]*pendingLock
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{
		pending: make(map[DocumentID]*pendingLock),
	}
}

// Acquire marks a synchronization of doc as in flight. Overlapping acquires
// share one completion signal, which fires when the last release runs.
// Release is safe to call more than once and must be called on every path,
// including failures, so waiters are never stranded.
func (l *Locks) Acquire(doc DocumentID) (release func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pending[doc]
	if !ok {
		p = &pendingLock{done: make(chan struct{})}
		l.pending[doc] = p
	}
	p.refs++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			p.refs--
			if p.refs == 0 {
				close(p.done)
				if l.pending[doc] == p {
					delete(l.pending, doc)
				}
			}
		})
	}
}

// Has reports whether a synchronization of doc is in flight.
func (l *Locks) Has(doc DocumentID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[doc]
	return ok
}

// Wait returns a channel closed when the in-flight synchronization of doc
// completes. If none is in flight the channel is already closed.
func (l *Locks) Wait(doc DocumentID) <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pending[doc]; ok {
		return p.done
	}
	return closedCh
}
