// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToSubscribersOfEvent(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe("excel_import_progress", func(p json.RawMessage) { got = append(got, "a:"+string(p)) })
	bus.Subscribe("excel_import_progress", func(p json.RawMessage) { got = append(got, "b:"+string(p)) })
	bus.Subscribe("other", func(p json.RawMessage) { got = append(got, "other") })

	n := bus.Publish("excel_import_progress", json.RawMessage(`1`))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a:1", "b:1"}, got)
}

func TestBusUnsubscribeByToken(t *testing.T) {
	bus := NewBus()

	calls := map[string]int{}
	stale := bus.Subscribe("ev", func(json.RawMessage) { calls["stale"]++ })
	bus.Subscribe("ev", func(json.RawMessage) { calls["fresh"]++ })

	assert.True(t, bus.Unsubscribe(stale))
	assert.False(t, bus.Unsubscribe(stale), "second unsubscribe is a no-op")
	assert.False(t, bus.Unsubscribe(Token(999)))

	bus.Publish("ev", nil)

	assert.Equal(t, 0, calls["stale"])
	assert.Equal(t, 1, calls["fresh"])
	assert.Equal(t, 1, bus.Subscribers("ev"))
}

func TestBusHandlerMayUnsubscribeItself(t *testing.T) {
	bus := NewBus()

	var tok Token
	calls := 0
	tok = bus.Subscribe("ev", func(json.RawMessage) {
		calls++
		bus.Unsubscribe(tok)
	})

	bus.Publish("ev", nil)
	bus.Publish("ev", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Subscribers("ev"))
}

func TestBusTokensAreUnique(t *testing.T) {
	bus := NewBus()
	seen := map[Token]bool{}
	for i := 0; i < 100; i++ {
		tok := bus.Subscribe("ev", func(json.RawMessage) {})
		assert.NotZero(t, tok)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}
