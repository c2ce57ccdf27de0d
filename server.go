package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts TCP connections and, optionally, WebSocket connections for the same game
type Server struct {
	game     *Game
	cfg      AppConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server

	conns   sync.WaitGroup
	closing atomic.Bool
}

func newServer(cfg AppConfig, game *Game) *Server {
	srv := &Server{game: game, cfg: cfg}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.WSOrigins),
	}
	return srv
}

// originChecker allows the listed origins ("*" for any). An empty list keeps
// gorilla's same-origin default. Requests without an Origin header are not from a browser.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			a = strings.TrimRight(strings.TrimSpace(a), "/")
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// serveConn runs one connection's read loop until it fails, then deregisters it
func (g *Game) serveConn(conn Conn) {
	s := g.hub.newSession(conn)
	g.hub.serve(s)
	g.connect(s)
	defer g.disconnect(s)

	for {
		line, err := conn.ReadLine()
		if errors.Is(err, errLineTooLong) {
			DebugLog("serveConn", "Dropped oversized line from %s", s)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed() {
				DebugLog("serveConn", "Read from %s failed: %v", s, err)
			}
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !s.limiter.Allow() {
			g.hub.send(s, MsgState, "Slow down")
			continue
		}
		g.handleLine(s, line)
	}
}

// ServeTCP accepts until the listener is closed
func (srv *Server) ServeTCP(ln net.Listener) error {
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	for {
		c, err := ln.Accept()
		if err != nil {
			if srv.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}

		srv.conns.Add(1)
		go func() {
			defer srv.conns.Done()
			srv.game.serveConn(newTCPConn(c, srv.cfg.MaxLineBytes, srv.cfg.WriteTimeout))
		}()
	}
}

func (srv *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWebSocket)
	mux.HandleFunc("/healthz", srv.handleHealth)
	return mux
}

// ListenAndServeWS runs the WebSocket bridge until Shutdown
func (srv *Server) ListenAndServeWS(addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.mu.Lock()
	srv.httpSrv = httpSrv
	srv.mu.Unlock()

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if srv.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	c, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	srv.conns.Add(1)
	defer srv.conns.Done()
	srv.game.serveConn(newWSConn(c, srv.cfg.MaxLineBytes, srv.cfg.WriteTimeout))
}

type healthResponse struct {
	Status string `json:"status"`
	RegistryStatus
	Sessions int `json:"sessions"`
}

func (srv *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		RegistryStatus: srv.game.reg.Status(),
		Sessions:       srv.game.hub.count(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logError("handleHealth: encode", err)
	}
}

// Shutdown stops accepting, closes every session and waits for the
// connection goroutines and pending stories, up to timeout.
func (srv *Server) Shutdown(timeout time.Duration) error {
	srv.closing.Store(true)

	srv.mu.Lock()
	ln, httpSrv := srv.listener, srv.httpSrv
	srv.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := srv.game.hub.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		srv.conns.Wait()
		srv.game.stories.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		errs = append(errs, context.DeadlineExceeded)
	}
	return errors.Join(errs...)
}
