// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package realtime delivers server-pushed events to in-process subscribers.
//
// A Bus fans events out to handlers registered per event name. Every
// registration returns a Token, and removal is by that token only, so a
// subscriber can never remove somebody else's handler. Sources (Redis
// pub/sub, websocket) decode transport frames and Publish onto the bus.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// Token identifies one subscription. The zero Token is never issued.
type Token uint64

// Handler receives the raw JSON payload of an event.
type Handler func(payload json.RawMessage)

// Source feeds a Bus until ctx is cancelled or the transport fails.
// Ready is closed once the source is receiving; events published on the
// server before that are not seen.
type Source interface {
	Run(ctx context.Context) error
	Ready() <-chan struct{}
}

// readySignal closes its channel once.
type readySignal struct {
	once sync.Once
	ch   chan struct{}
}

func newReadySignal() *readySignal {
	return &readySignal{ch: make(chan struct{})}
}

func (r *readySignal) mark() {
	r.once.Do(func() { close(r.ch) })
}

type subscription struct {
	event   string
	handler Handler
}

// Bus is a typed, token-addressed event fan-out. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	next   Token
	subs   map[Token]subscription
	byName map[string][]Token // registration order per event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[Token]subscription),
		byName: make(map[string][]Token),
	}
}

// Subscribe registers h for event and returns its token.
func (b *Bus) Subscribe(event string, h Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	tok := b.next
	b.subs[tok] = subscription{event: event, handler: h}
	b.byName[event] = append(b.byName[event], tok)
	return tok
}

// Unsubscribe removes the subscription. It reports whether tok was live.
func (b *Bus) Unsubscribe(tok Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[tok]
	if !ok {
		return false
	}
	delete(b.subs, tok)

	toks := b.byName[sub.event]
	for i, t := range toks {
		if t == tok {
			toks = append(toks[:i], toks[i+1:]...)
			break
		}
	}
	if len(toks) == 0 {
		delete(b.byName, sub.event)
	} else {
		b.byName[sub.event] = toks
	}
	return true
}

// Publish delivers payload to every handler of event and returns how many
// handlers were called. Handlers run on the caller's goroutine, outside the
// bus lock, so they may Subscribe or Unsubscribe.
func (b *Bus) Publish(event string, payload json.RawMessage) int {
	b.mu.RLock()
	toks := b.byName[event]
	handlers := make([]Handler, 0, len(toks))
	for _, tok := range toks {
		handlers = append(handlers, b.subs[tok].handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return len(handlers)
}

// Subscribers returns the number of live subscriptions for event.
func (b *Bus) Subscribers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byName[event])
}
