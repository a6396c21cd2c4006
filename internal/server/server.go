// Package server exposes decision Results to operators over a websocket and
// a few JSON endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"canaswarm-vision-go/internal/config"
)

// Options wires the server to the rest of the process. Every field is
// optional.
type Options struct {
	// Status returns the payload of /status.
	Status func() map[string]any
	// Snapshot answers a websocket snapshot_request; nil means nothing to send.
	Snapshot func() any
	// Config returns the payload of /config and the websocket hello.
	Config func() map[string]any
	// Metrics serves /metrics.
	Metrics http.Handler
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	opts     Options
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

func New(cfg config.AppConfig, opts Options) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		cfg:     cfg,
		opts:    opts,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	return mux
}

// Run serves until ctx is done, broadcasting every value received on
// messages to all websocket clients.
func Run(ctx context.Context, cfg config.AppConfig, messages <-chan any, opts Options) error {
	srv := New(cfg, opts)
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.Broadcast(ctx, messages)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	_ = s.writeJSON(conn, writeMu, s.configPayload())

	s.mu.Lock()
	s.clients[conn] = writeMu
	s.mu.Unlock()

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var request struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &request); err != nil {
				continue
			}
			if request.Type != "snapshot_request" || s.opts.Snapshot == nil {
				continue
			}
			if snapshot := s.opts.Snapshot(); snapshot != nil {
				_ = s.writeJSON(conn, writeMu, snapshot)
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) configPayload() map[string]any {
	payload := map[string]any{
		"type":     "config",
		"port":     s.cfg.Port,
		"endpoint": s.cfg.Endpoint,
		"debug":    s.cfg.Debug,
	}
	if s.opts.Config != nil {
		for k, v := range s.opts.Config() {
			payload[k] = v
		}
	}
	return payload
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.opts.Status != nil {
		payload = s.opts.Status()
	}
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		metrics["ws_clients"] = s.clientCount()
	} else {
		payload["ws_clients"] = s.clientCount()
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Broadcast fans messages out to every connected client until messages is
// closed or ctx is done. Clients whose write fails are dropped.
func (s *Server) Broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				continue
			}
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
