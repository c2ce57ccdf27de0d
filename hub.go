package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session is one connected client, TCP or WebSocket
type Session struct {
	ID      string
	addr    string
	conn    Conn
	send    chan string
	limiter *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

func (s *Session) String() string {
	if s.addr == "" {
		return s.ID
	}
	return s.ID + "@" + s.addr
}

// closed reports whether the session has been shut down
func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Hub owns the live sessions and their outbound queues.
// Nothing writes to a socket except the per-session writer goroutine.
type Hub struct {
	clients   map[*Session]struct{}
	mu        sync.RWMutex
	wg        sync.WaitGroup
	sendQueue int
	rateLimit rate.Limit
	rateBurst int
}

func newHub(cfg AppConfig) *Hub {
	return &Hub{
		clients:   make(map[*Session]struct{}),
		sendQueue: cfg.SendQueue,
		rateLimit: rate.Limit(cfg.RateLimit),
		rateBurst: cfg.RateBurst,
	}
}

// newSession registers a session for conn. conn may be nil in tests.
func (h *Hub) newSession(conn Conn) *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	s := &Session{
		ID:      id.String(),
		conn:    conn,
		send:    make(chan string, h.sendQueue),
		limiter: rate.NewLimiter(h.rateLimit, h.rateBurst),
		done:    make(chan struct{}),
	}
	if conn != nil {
		s.addr = conn.RemoteAddr()
	}

	h.mu.Lock()
	h.clients[s] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	DebugLog("hub.newSession", "Session %s registered. Total: %d", s, total)
	return s
}

// serve starts the writer goroutine of s
func (h *Hub) serve(s *Session) {
	h.wg.Add(1)
	go h.writePump(s)
}

func (h *Hub) writePump(s *Session) {
	defer h.wg.Done()
	for {
		select {
		case line := <-s.send:
			if err := s.conn.WriteLine(line); err != nil {
				DebugLog("hub.writePump", "Write to %s failed: %v", s, err)
				h.closeSession(s)
				return
			}
		case <-s.done:
			return
		}
	}
}

// send queues one frame for s. A full queue closes the session instead of blocking.
func (h *Hub) send(s *Session, t MsgType, payload string) {
	if s.closed() {
		return
	}
	line := encodeMessage(t, payload)
	LogWireMessage("OUT", s.ID, line)

	select {
	case s.send <- line:
	default:
		zap.L().Warn("Send queue full, closing session", zap.Stringer("session", s))
		h.closeSession(s)
	}
}

// broadcast queues one frame for every recipient except one
func (h *Hub) broadcast(recipients []*Session, t MsgType, payload string, except *Session) {
	for _, s := range recipients {
		if s != except {
			h.send(s, t, payload)
		}
	}
}

// closeSession stops the writer and closes the socket; the reader then unwinds
func (h *Hub) closeSession(s *Session) {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// unregister forgets s and closes it
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	delete(h.clients, s)
	total := len(h.clients)
	h.mu.Unlock()
	h.closeSession(s)
	DebugLog("hub.unregister", "Session %s removed. Total: %d", s, total)
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every session and waits for the writer goroutines,
// or returns context.DeadlineExceeded after timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.clients))
	for s := range h.clients {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		h.closeSession(s)
	}
	zap.L().Info("Closed client connections", zap.Int("count", len(sessions)))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		zap.L().Warn("Hub shutdown timeout reached, some writers may still be running")
		return context.DeadlineExceeded
	}
}
