// Package ws carries sync sessions over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/fanout"
	"github.com/zegl/eligo/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Inbound is a client action: {"type": "items.create", "requestId": "r1",
// "payload": {"id": "I1", "fields": {...}, "time": 1700000000000}}.
type Inbound struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId,omitempty"`
	Payload   InboundPayload `json:"payload"`
}

type InboundPayload struct {
	ID     string       `json:"id"`
	Fields model.Fields `json:"fields,omitempty"`
	Time   int64        `json:"time,omitempty"`
}

// Frame is any server-to-client message that is not an entity event.
type Frame struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     *FrameError `json:"error,omitempty"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Frame types.
const (
	TypeAuth  = "auth"
	TypeAck   = "ack"
	TypeError = "error"
)

// ErrClosed is returned by streaming calls on a stopped session.
var ErrClosed = errors.New("session closed")

// Session is one websocket connection. Writes go through a bounded queue
// drained by WritePump. Live frames never block: a session whose queue
// overflows is closed and the client recovers through catch-up on reconnect.
// Catch-up frames wait for room instead.
type Session struct {
	id   string
	user string
	conn *websocket.Conn
	log  zerolog.Logger

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	streams  int      // open catch-up streams
	flushing bool     // held frames are being moved to out
	held     [][]byte // live events sent while a stream is open
}

var _ fanout.Streamer = (*Session)(nil)

func NewSession(conn *websocket.Conn, userID string, buffer int, log zerolog.Logger) *Session {
	if buffer <= 0 {
		buffer = 256
	}
	id := ulid.Make().String()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Session{
		id:   id,
		user: userID,
		conn: conn,
		log:  log.With().Str("session", id).Str("user", userID).Logger(),
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.user }

// Send queues a live event without blocking. While a catch-up stream is
// open the event is held and goes out after the stream.
func (s *Session) Send(ev fanout.Event) bool {
	b, ok := s.encode(ev)
	if !ok {
		return false
	}
	s.mu.Lock()
	if s.streams > 0 || s.flushing {
		if len(s.held) >= cap(s.out) {
			s.mu.Unlock()
			s.overflow()
			return false
		}
		s.held = append(s.held, b)
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	return s.push(b)
}

// Write queues any JSON frame without blocking.
func (s *Session) Write(v interface{}) bool {
	b, ok := s.encode(v)
	if !ok {
		return false
	}
	return s.push(b)
}

// BeginCatchUp opens a catch-up stream. Calls nest.
func (s *Session) BeginCatchUp() {
	s.mu.Lock()
	s.streams++
	s.mu.Unlock()
}

// Stream queues a catch-up event, waiting for WritePump to make room. The
// session is closed when ctx ends first, since the client now holds a partial
// catch-up.
func (s *Session) Stream(ctx context.Context, ev fanout.Event) error {
	b, ok := s.encode(ev)
	if !ok {
		return errors.New("encode catch-up event")
	}
	return s.enqueue(ctx, b)
}

// EndCatchUp closes a stream opened by BeginCatchUp. The last one to close
// flushes the held live events in order.
func (s *Session) EndCatchUp(ctx context.Context) error {
	s.mu.Lock()
	if s.streams > 0 {
		s.streams--
	}
	if s.streams > 0 || s.flushing {
		s.mu.Unlock()
		return nil
	}
	s.flushing = true
	for len(s.held) > 0 {
		batch := s.held
		s.held = nil
		s.mu.Unlock()
		for _, b := range batch {
			if err := s.enqueue(ctx, b); err != nil {
				s.mu.Lock()
				s.flushing = false
				s.held = nil
				s.mu.Unlock()
				return err
			}
		}
		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
	return nil
}

func (s *Session) encode(v interface{}) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("encode frame")
		return nil, false
	}
	return b, true
}

func (s *Session) push(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- b:
		return true
	case <-s.done:
		return false
	default:
		s.overflow()
		return false
	}
}

func (s *Session) enqueue(ctx context.Context, b []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.out <- b:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

func (s *Session) overflow() {
	s.log.Warn().Int("buffer", cap(s.out)).Msg("slow consumer, closing session")
	s.Close()
}

// Close stops the session. Queued frames are discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the session stops.
func (s *Session) Done() <-chan struct{} { return s.done }

// ReadInbound blocks for the next client action.
func (s *Session) ReadInbound(in *Inbound) error {
	return s.conn.ReadJSON(in)
}

// WritePump writes queued frames and keeps the connection alive until the
// session closes, then closes the connection.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case b := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
