// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Frame is one websocket text message: an event name and its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebsocketSource reads Frames from a websocket relay and publishes them onto a Bus.
type WebsocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	bus    *Bus
	log    logrus.FieldLogger
	ready  *readySignal
}

// NewWebsocketSource creates a source for wsURL (ws:// or wss://).
// header is sent on the handshake, typically carrying Authorization.
func NewWebsocketSource(wsURL string, header http.Header, bus *Bus, log logrus.FieldLogger) *WebsocketSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebsocketSource{
		url:    wsURL,
		header: header,
		dialer: websocket.DefaultDialer,
		bus:    bus,
		log:    log.WithField("source", "websocket"),
		ready:  newReadySignal(),
	}
}

// Ready is closed once the relay handshake succeeds.
func (s *WebsocketSource) Ready() <-chan struct{} { return s.ready.ch }

// Run dials the relay and blocks until ctx is cancelled or the connection drops.
func (s *WebsocketSource) Run(ctx context.Context) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (HTTP %d)", s.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()
	s.ready.mark()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("relay closed: %w", err)
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			s.log.WithField("bytes", len(data)).Warn("dropping malformed realtime frame")
			continue
		}
		s.bus.Publish(f.Event, f.Data)
	}
}
