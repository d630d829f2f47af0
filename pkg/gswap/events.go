package gswap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/sirupsen/logrus"
)

var ErrSocketClosed = errors.New("gswap: event socket closed")

const (
	pingInterval     = 30 * time.Second
	handshakeTimeout = 10 * time.Second

	// The bundler broadcasts every transaction, so unclaimed events are kept
	// only briefly and in bounded number.
	earlyEventTTL  = 60 * time.Second
	maxEarlyEvents = 256
)

type heldEvent struct {
	event      TransactionEvent
	receivedAt time.Time
}

// TransactionEvent is the bundler's notification for a submitted transaction.
type TransactionEvent struct {
	TransactionID string            `json:"transactionId"`
	Status        models.SwapStatus `json:"status"`
	Data          any               `json:"data,omitempty"`
}

// EventSocket follows bundler transaction updates so swaps can wait for a
// terminal status. Events that arrive before anyone waits are held until
// claimed.
type EventSocket struct {
	url    string
	logger *logrus.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu        sync.Mutex
	connected bool
	waiters   map[string]chan TransactionEvent
	early     map[string]heldEvent
	closed    chan struct{}

	earlyTTL time.Duration
	maxEarly int
	now      func() time.Time
}

func NewEventSocket(url string, logger *logrus.Logger) *EventSocket {
	return &EventSocket{
		url:      url,
		logger:   logger,
		waiters:  make(map[string]chan TransactionEvent),
		early:    make(map[string]heldEvent),
		earlyTTL: earlyEventTTL,
		maxEarly: maxEarlyEvents,
		now:      time.Now,
	}
}

// Connect dials the socket unless it is already up. It may be called again
// after a disconnect.
func (s *EventSocket) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("gswap: connect event socket: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.closed = make(chan struct{})

	go s.readLoop(conn, s.closed)
	go s.keepAlive(conn, s.closed)

	s.logger.WithField("url", s.url).Info("Connected to bundler event socket")
	return nil
}

func (s *EventSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Wait blocks until txID reaches PROCESSED or FAILED, the socket drops, or ctx
// is done.
func (s *EventSocket) Wait(ctx context.Context, txID string) (TransactionEvent, error) {
	s.mu.Lock()
	if held, ok := s.early[txID]; ok {
		delete(s.early, txID)
		s.mu.Unlock()
		return held.event, nil
	}
	if !s.connected {
		s.mu.Unlock()
		return TransactionEvent{}, ErrSocketClosed
	}
	ch := make(chan TransactionEvent, 1)
	s.waiters[txID] = ch
	closed := s.closed
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.waiters, txID)
		s.mu.Unlock()
	}()

	select {
	case ev := <-ch:
		return ev, nil
	case <-closed:
		return TransactionEvent{}, ErrSocketClosed
	case <-ctx.Done():
		return TransactionEvent{}, ctx.Err()
	}
}

func (s *EventSocket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.handleDisconnect(conn)
	return nil
}

func (s *EventSocket) readLoop(conn *websocket.Conn, closed chan struct{}) {
	for {
		var ev TransactionEvent
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-closed:
			default:
				s.logger.WithError(err).Warn("Bundler event socket read failed")
			}
			s.handleDisconnect(conn)
			return
		}
		if ev.TransactionID == "" || !ev.Status.Terminal() {
			continue
		}
		s.dispatch(ev)
	}
}

func (s *EventSocket) dispatch(ev TransactionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.waiters[ev.TransactionID]; ok {
		ch <- ev
		delete(s.waiters, ev.TransactionID)
		return
	}
	now := s.now()
	s.pruneEarly(now)
	s.early[ev.TransactionID] = heldEvent{event: ev, receivedAt: now}
}

// pruneEarly drops expired events and, if the buffer is still full, the
// oldest one. Callers hold s.mu.
func (s *EventSocket) pruneEarly(now time.Time) {
	var oldestID string
	var oldest time.Time
	for id, held := range s.early {
		if now.Sub(held.receivedAt) >= s.earlyTTL {
			delete(s.early, id)
			continue
		}
		if oldestID == "" || held.receivedAt.Before(oldest) {
			oldestID, oldest = id, held.receivedAt
		}
	}
	if len(s.early) >= s.maxEarly && oldestID != "" {
		delete(s.early, oldestID)
	}
}

func (s *EventSocket) keepAlive(conn *websocket.Conn, closed chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.WithError(err).Warn("Failed to ping bundler event socket")
				s.handleDisconnect(conn)
				return
			}
		}
	}
}

func (s *EventSocket) handleDisconnect(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != conn || !s.connected {
		return
	}
	s.connected = false
	close(s.closed)
	conn.Close()
}
