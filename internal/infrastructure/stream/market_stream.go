package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 20 * time.Second
)

// ErrReconnectRequested is returned by a venue decoder when the exchange
// asks the client to move to a fresh connection.
var ErrReconnectRequested = errors.New("venue requested reconnect")

type MarketStream struct {
	venue  Venue
	logger *slog.Logger
	dialer *websocket.Dialer

	conn *websocket.Conn
	mu   sync.Mutex

	reconnectDelay time.Duration
	pingInterval   time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewMarketStream(venue Venue, logger *slog.Logger) *MarketStream {
	return &MarketStream{
		venue:          venue,
		logger:         logger.With("component", "market_stream", "venue", venue.Name()),
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		stopChan:       make(chan struct{}),
	}
}

// Subscribe starts the connection loop. The returned channel is closed once
// ctx is done or Close is called. Ticks are never dropped: a slow consumer
// applies back-pressure to the socket reader.
func (s *MarketStream) Subscribe(ctx context.Context) (<-chan domain.PriceUpdateEvent, error) {
	out := make(chan domain.PriceUpdateEvent)

	go func() {
		defer close(out)
		s.maintainConnection(ctx, out)
	}()

	return out, nil
}

// Close stops the stream. The live connection is torn down by its listener.
func (s *MarketStream) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}

func (s *MarketStream) maintainConnection(ctx context.Context, out chan<- domain.PriceUpdateEvent) {
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		err := s.connectAndListen(ctx, out)
		if s.stopped(ctx) {
			return
		}
		if err != nil {
			s.logger.Error("Connection lost or failed", "err", err)
		}

		s.logger.Info("Reconnecting", "delay", s.reconnectDelay)
		select {
		case <-time.After(s.reconnectDelay):
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *MarketStream) stopped(ctx context.Context) bool {
	select {
	case <-s.stopChan:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *MarketStream) connectAndListen(ctx context.Context, out chan<- domain.PriceUpdateEvent) error {
	s.logger.Info("Connecting to price stream", "url", s.venue.URL())

	conn, _, err := s.dialer.DialContext(ctx, s.venue.URL(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.venue.Name(), err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	for _, req := range s.venue.SubscribeMessages() {
		if err := s.writeJSON(req); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	s.logger.Info("Subscribed")

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.heartbeat(listenCtx)

	// unblock ReadMessage when the caller goes away
	go func() {
		select {
		case <-listenCtx.Done():
		case <-s.stopChan:
		}
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		event, ok, err := s.venue.Decode(message)
		if errors.Is(err, ErrReconnectRequested) {
			return err
		}
		if err != nil {
			s.logger.Warn("Skipping undecodable frame", "err", err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- event:
		case <-listenCtx.Done():
			return listenCtx.Err()
		case <-s.stopChan:
			return nil
		}
	}
}

func (s *MarketStream) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	return s.conn.WriteJSON(v)
}

func (s *MarketStream) heartbeat(ctx context.Context) {
	msg := s.venue.Heartbeat()
	if msg == nil {
		return
	}

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeJSON(msg); err != nil {
				s.logger.Error("Ping failed", "err", err)
			}
		}
	}
}
