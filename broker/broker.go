// Topic-based Event Broker
//
// Copyright (c) 2024, 2025  Quy Nguyen
//
// This file is part of the DeepRL Connect-4 agent platform.
//
// This program is free software: you can redistribute it and/or
// modify it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public
// License, version 3, along with this program. If not, see
// <http://www.gnu.org/licenses/>

package broker

import (
	"sync"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
)

// BufferSize is the per-subscriber event buffer.  A subscriber that
// falls further behind loses its oldest events and is told to resync.
const BufferSize = 64

// Subscriber is one spectator connection's view of a topic
type Subscriber struct {
	topic  string
	ch     chan c4.Event
	lagged bool // a resync marker is pending; guarded by the broker
	closed bool
}

// Events is the stream to pump to the client.  The channel is closed
// on unsubscribe and on broker shutdown.
func (s *Subscriber) Events() <-chan c4.Event { return s.ch }

// Topic returns the topic this subscriber listens on
func (s *Subscriber) Topic() string { return s.topic }

// Broker fans events out to topic subscribers.  Publishing never
// blocks: delivery happens through per-subscriber buffers, and the
// only critical section is the subscriber bookkeeping itself.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[*Subscriber]struct{}
}

func New() *Broker {
	return &Broker{topics: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe attaches a new subscriber to TOPIC.  The INITIAL events,
// if any, are placed into the buffer before anything published later
// can arrive.
func (b *Broker) Subscribe(topic string, initial ...c4.Event) *Subscriber {
	sub := &Subscriber{
		topic: topic,
		ch:    make(chan c4.Event, BufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	if subs == nil {
		subs = make(map[*Subscriber]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}

	for _, ev := range initial {
		b.push(sub, ev)
	}
	return sub
}

// Unsubscribe detaches SUB and closes its event channel
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop(sub)
}

func (b *Broker) drop(sub *Subscriber) {
	if sub.closed {
		return
	}
	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	sub.closed = true
	close(sub.ch)
}

// Publish delivers EV to every subscriber of TOPIC without blocking
func (b *Broker) Publish(topic string, ev c4.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[topic] {
		b.push(sub, ev)
	}
}

// push enqueues EV, dropping the oldest unread event on overflow.  A
// subscriber that loses an event gets a single resync marker telling
// it to fetch a fresh snapshot; further markers are withheld until
// the pump acknowledges the first one.
func (b *Broker) push(sub *Subscriber, ev c4.Event) {
	if sub.closed {
		return
	}
	for {
		select {
		case sub.ch <- ev:
			return
		default:
		}

		// Buffer full: discard the oldest entry.  If that entry
		// was the pending resync marker, a new one is enqueued
		// below so the subscriber still learns of the loss.
		select {
		case old := <-sub.ch:
			if old.Kind == c4.EvResync {
				sub.lagged = false
			}
		default:
		}

		if !sub.lagged {
			sub.lagged = true
			select {
			case sub.ch <- c4.Event{Kind: c4.EvResync}:
			default:
				// Raced with another drain; retry the
				// whole enqueue
				sub.lagged = false
			}
		}
	}
}

// Resynced acknowledges a delivered resync marker, re-arming the
// overflow notification for SUB
func (b *Broker) Resynced(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.lagged = false
}

// Count returns the number of subscribers on TOPIC
func (b *Broker) Count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (*Broker) String() string { return "Event Broker" }

// Start is part of the Manager interface; the broker is passive
func (*Broker) Start() {}

// Shutdown closes every subscriber stream
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.topics {
		for sub := range subs {
			sub.closed = true
			close(sub.ch)
		}
	}
	b.topics = make(map[string]map[*Subscriber]struct{})
}
