// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"context"
	"sync"
	"time"
)

// CommandQueue is an unbounded FIFO of serialized commands.
//
// Any number of goroutines may Push; exactly one goroutine may Pop. Close
// discards pending items and wakes the consumer.
type CommandQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool

	signal chan struct{} // capacity 1, nudges the consumer after Push
	done   chan struct{}
}

// NewCommandQueue creates an empty open queue
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends a line. It never blocks and returns false once the queue is closed.
func (q *CommandQueue) Push(line string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, line)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest line, waiting at most timeout for one to arrive.
// It returns ErrQueueTimeout when nothing arrived in time and ErrQueueClosed
// after Close, even if the wait started earlier.
func (q *CommandQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if line, ok, err := q.tryPop(); ok || err != nil {
			return line, err
		}

		select {
		case <-q.signal:
		case <-q.done:
			return "", ErrQueueClosed
		case <-timer.C:
			return "", ErrQueueTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (q *CommandQueue) tryPop() (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", false, ErrQueueClosed
	}
	if len(q.items) == 0 {
		return "", false, nil
	}
	line := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return line, true, nil
}

// Close discards every pending line and returns how many were dropped.
// Closing twice is a no-op that returns 0.
func (q *CommandQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	dropped := len(q.items)
	q.items = nil
	q.closed = true
	close(q.done)
	return dropped
}

// Done is closed once Close has been called
func (q *CommandQueue) Done() <-chan struct{} {
	return q.done
}

// Closed reports whether Close has been called
func (q *CommandQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of pending lines
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
