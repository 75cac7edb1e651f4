// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package signalhub implements the single broadcast point for frames
// and telemetry so multiple subscribers (writers, streamers, preview,
// UI) share one upstream source without the producer knowing how many
// consumers exist (spec.md §4.13, C15). It is a fan-out registry, not
// a transforming pub/sub broker: values pass through unchanged.
package signalhub

import "sync"

// Hub broadcasts values of type T to any number of subscribers. Each
// subscriber gets its own buffered channel so one slow consumer cannot
// stall another; when a subscriber's channel is full, the oldest
// pending value is dropped and counted rather than blocking the
// broadcaster, mirroring the teacher's WebServer.cond single-consumer
// broadcast generalized to N independent channel consumers
// (cmd/lepton/server.go).
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[int]*subscription[T]
	next int
}

type subscription[T any] struct {
	ch      chan T
	dropped int
}

// New returns an empty Hub.
func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]*subscription[T])}
}

// Subscription is a live registration; call Unsubscribe to detach.
type Subscription[T any] struct {
	hub *Hub[T]
	id  int
	ch  chan T
}

// Subscribe attaches a new subscriber with the given per-subscriber
// buffer depth and returns its channel alongside a handle to detach.
func (h *Hub[T]) Subscribe(depth int) *Subscription[T] {
	if depth < 1 {
		depth = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	sub := &subscription[T]{ch: make(chan T, depth)}
	h.subs[id] = sub
	return &Subscription[T]{hub: h, id: id, ch: sub.ch}
}

// C returns the subscriber's receive channel.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Unsubscribe detaches this subscriber; its channel is closed so a
// ranging consumer exits cleanly.
func (s *Subscription[T]) Unsubscribe() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if sub, ok := s.hub.subs[s.id]; ok {
		close(sub.ch)
		delete(s.hub.subs, s.id)
	}
}

// Dropped returns how many values were dropped for this subscriber
// because its channel was full.
func (s *Subscription[T]) Dropped() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if sub, ok := s.hub.subs[s.id]; ok {
		return sub.dropped
	}
	return 0
}

// Publish delivers v to every current subscriber, non-blocking: a full
// subscriber channel has its oldest pending value dropped to make room.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- v:
		default:
			select {
			case <-sub.ch:
				sub.dropped++
			default:
			}
			select {
			case sub.ch <- v:
			default:
				sub.dropped++
			}
		}
	}
}

// SubscriberCount reports the number of currently attached subscribers.
func (h *Hub[T]) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
