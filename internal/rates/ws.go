package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// WebSocket rate feed — every text frame carries one complete snapshot
// document. The socket only delivers snapshots; each one still produces
// an independent, immutable graph downstream.
// ---------------------------------------------------------------------------

// WSSource consumes rate snapshots pushed over a websocket.
type WSSource struct {
	url string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

// NewWSSource creates a websocket feed client for the given endpoint.
func NewWSSource(url string) *WSSource {
	return &WSSource{url: url}
}

// Connect dials the feed endpoint.
func (s *WSSource) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("rates: ws connect %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	log.Info().Str("url", s.url).Msg("rates: connected to ws feed")
	return nil
}

// Disconnect closes the feed socket.
func (s *WSSource) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.connected = false
	}
	return nil
}

// Connected reports whether the socket is up.
func (s *WSSource) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Snapshots returns a channel of parsed snapshots. The channel closes
// when the context is cancelled or the socket breaks; frames that fail
// to parse are logged and skipped rather than tearing the feed down.
func (s *WSSource) Snapshots(ctx context.Context) (<-chan Snapshot, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("rates: ws feed not connected")
	}

	ch := make(chan Snapshot, 16)
	go func() {
		defer close(ch)
		for {
			if ctx.Err() != nil {
				return
			}
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("rates: ws read error")
				}
				return
			}

			snap, err := ParseDocument(msg)
			if err != nil {
				log.Warn().Err(err).Msg("rates: dropping malformed ws frame")
				continue
			}

			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
