// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package routing

import (
	"context"
	"sync"
)

// sequencer hands out per-key tickets. A ticket holder runs only after every
// earlier holder of the same key has released, so work for one sensor runs
// in the order tickets were taken while other sensors proceed in parallel.
type sequencer struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	tail chan struct{}
	refs int
}

type ticket struct {
	s    *sequencer
	key  string
	prev <-chan struct{}
	mine chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{lanes: make(map[string]*lane)}
}

// take enqueues a ticket for key. It never blocks.
func (s *sequencer) take(key string) *ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[key]
	if !ok {
		l = &lane{}
		s.lanes[key] = l
	}
	t := &ticket{s: s, key: key, prev: l.tail, mine: make(chan struct{})}
	l.tail = t.mine
	l.refs++
	return t
}

// wait blocks until the ticket is at the head of its lane. On cancellation
// the ticket is released once its predecessor finishes, so later tickets
// keep their order.
func (t *ticket) wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		go func() {
			<-t.prev
			t.release()
		}()
		return ctx.Err()
	}
}

// release lets the next ticket of the lane run. Call exactly once, and only
// after a successful wait.
func (t *ticket) release() {
	close(t.mine)

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if l := t.s.lanes[t.key]; l != nil {
		l.refs--
		if l.refs == 0 {
			delete(t.s.lanes, t.key)
		}
	}
}

// pending reports how many lanes are active.
func (s *sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}
