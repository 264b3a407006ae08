// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultRedisChannel is the pub/sub channel Frappe publishes realtime events on.
const DefaultRedisChannel = "events"

// envelope is what frappe.publish_realtime writes to Redis.
type envelope struct {
	Event     string          `json:"event"`
	Message   json.RawMessage `json:"message"`
	Room      string          `json:"room"`
	Namespace string          `json:"namespace"`
}

// RedisSource subscribes to the site's realtime Redis channel and publishes
// matching envelopes onto a Bus.
type RedisSource struct {
	client    *redis.Client
	channel   string
	room      string // only envelopes for this room ("" = any)
	namespace string // only envelopes for this site ("" = any)
	bus       *Bus
	log       logrus.FieldLogger
	ready     *readySignal
}

// RedisOption configures a RedisSource.
type RedisOption func(*RedisSource)

// WithRoom restricts delivery to one room, e.g. "user:ops@example.com".
func WithRoom(room string) RedisOption {
	return func(s *RedisSource) { s.room = room }
}

// WithNamespace restricts delivery to one site namespace.
func WithNamespace(ns string) RedisOption {
	return func(s *RedisSource) { s.namespace = ns }
}

// WithChannel overrides the pub/sub channel name.
func WithChannel(ch string) RedisOption {
	return func(s *RedisSource) { s.channel = ch }
}

// NewRedisSource connects to redisURL (redis://host:port/db).
func NewRedisSource(redisURL string, bus *Bus, log logrus.FieldLogger, opts ...RedisOption) (*RedisSource, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &RedisSource{
		client:  redis.NewClient(opt),
		channel: DefaultRedisChannel,
		bus:     bus,
		log:     log.WithField("source", "redis"),
		ready:   newReadySignal(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run blocks, relaying messages until ctx is cancelled.
func (s *RedisSource) Run(ctx context.Context) error {
	defer s.client.Close()

	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so connection errors surface here.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.log.WithField("channel", s.channel).Debug("realtime subscription ready")
	s.ready.mark()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis channel %s closed", s.channel)
			}
			s.dispatch([]byte(msg.Payload))
		}
	}
}

func (s *RedisSource) dispatch(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		s.log.WithError(err).Warn("dropping undecodable realtime message")
		return
	}
	if s.room != "" && env.Room != "" && env.Room != s.room {
		return
	}
	if s.namespace != "" && env.Namespace != "" && env.Namespace != s.namespace {
		return
	}
	s.bus.Publish(env.Event, env.Message)
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope has no event name")
	}
	return &env, nil
}

// Ready is closed once the channel subscription is confirmed.
func (s *RedisSource) Ready() <-chan struct{} { return s.ready.ch }

// Ping checks that the Redis server answers. It does not subscribe.
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool of a source that was never Run.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
