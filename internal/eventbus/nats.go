/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors the in-process event stream onto NATS so
// other nodes and external executors can follow scheduler state without
// polling the HTTP API.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skuld/internal/events"
)

// SubjectPrefix is the NATS subject root; the event type is appended, so
// consumers can subscribe to "skuld.events.>" or a single type.
const SubjectPrefix = "skuld.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL    string
	NodeID string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// envelope is the wire form of one mirrored event.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	RequestID uuid.UUID        `json:"request_id"`
	At        time.Time        `json:"at"`
	Payload   events.Payload   `json:"payload"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // for consumer deduplication
}

// Mirror forwards every event published on the in-process bus to NATS.
type Mirror struct {
	conn   *nats.Conn
	logger zerolog.Logger
	nodeID string

	tap  events.Subscriber
	bus  *events.Bus
	done chan struct{}
	wg   sync.WaitGroup
}

// NewMirror connects to NATS and starts forwarding from bus. The mirror
// holds a tap on the bus until Close.
func NewMirror(cfg NATSConfig, bus *events.Bus, logger zerolog.Logger) (*Mirror, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = generateNodeID()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	m := &Mirror{
		conn:   conn,
		logger: logger.With().Str("component", "eventbus").Logger(),
		nodeID: cfg.NodeID,
		tap:    bus.Tap(),
		bus:    bus,
		done:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.forward()

	m.logger.Info().Str("url", cfg.URL).Str("node_id", m.nodeID).Msg("NATS event mirror started")
	return m, nil
}

func (m *Mirror) forward() {
	defer m.wg.Done()
	for {
		select {
		case evt, ok := <-m.tap:
			if !ok {
				return
			}
			m.publish(evt)
		case <-m.done:
			return
		}
	}
}

func (m *Mirror) publish(evt events.Event) {
	data, err := json.Marshal(envelope{
		EventType: evt.Type,
		RequestID: evt.RequestID,
		At:        evt.At,
		Payload:   evt.Payload,
		NodeID:    m.nodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		m.logger.Error().Err(err).Str("type", string(evt.Type)).Msg("failed to marshal event envelope")
		return
	}

	subject := SubjectPrefix + string(evt.Type)
	if err := m.conn.Publish(subject, data); err != nil {
		m.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}

// Close stops forwarding, releases the bus tap, and drains the NATS
// connection.
func (m *Mirror) Close() error {
	close(m.done)
	m.wg.Wait()
	m.bus.Untap(m.tap)
	if err := m.conn.Drain(); err != nil {
		m.conn.Close()
		return err
	}
	return nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "skuld"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
