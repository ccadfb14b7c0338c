// Package live broadcasts profiling ticks from an in-progress run over a
// websocket so a dashboard can watch a program execute in real time. It
// is entirely optional: internal/interp.Options.Tick is nil, and this
// package unused, for every run the CLI doesn't ask to stream.
//
// Grounded on the teacher's internal/network websocket_server.go
// (WebSocketBroadcast, client bookkeeping under a RWMutex), narrowed from
// a generic multi-server/multi-client module to a single broadcaster per
// run and generalized from string messages to JSON-encoded profiling
// ticks.
package live

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"bf/internal/interp"
)

// Tick is the JSON shape sent to every connected client.
type Tick struct {
	RunID   string `json:"run_id"`
	Step    int64  `json:"step"`
	Pointer int    `json:"pointer"`
	Cell    int64  `json:"cell"`
}

// Session broadcasts ticks for one run to every currently connected
// client. Sends never block the run: a client too slow to keep up has
// its tick dropped rather than stalling the interpreter loop.
type Session struct {
	runID    string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Tick
}

// NewSession creates a broadcaster for one run.
func NewSession(runID string) *Session {
	return &Session{
		runID:   runID,
		clients: make(map[*websocket.Conn]chan Tick),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler upgrades incoming requests to websocket connections and
// registers them to receive ticks until the client disconnects.
func (s *Session) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade failed: %v", err)
		return
	}
	ch := make(chan Tick, 32)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	go s.writeLoop(conn, ch)
	go s.readLoop(conn, ch)
}

func (s *Session) writeLoop(conn *websocket.Conn, ch chan Tick) {
	for t := range ch {
		if err := conn.WriteJSON(t); err != nil {
			s.drop(conn)
			return
		}
	}
}

// readLoop exists only to notice the client going away; this protocol is
// push-only.
func (s *Session) readLoop(conn *websocket.Conn, ch chan Tick) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(conn)
			return
		}
	}
}

func (s *Session) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if ch, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		close(ch)
	}
	s.mu.Unlock()
	conn.Close()
}

// Broadcast fans a snapshot out to every connected client, dropping the
// tick for any client whose buffer is full instead of blocking.
func (s *Session) Broadcast(snap interp.Snapshot) {
	t := Tick{RunID: s.runID, Step: snap.Step, Pointer: snap.Pointer, Cell: snap.Cell}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.clients {
		select {
		case ch <- t:
		default:
		}
	}
}

// Tick adapts Broadcast to the interp.Options.Tick signature.
func (s *Session) Tick(snap interp.Snapshot) {
	s.Broadcast(snap)
}

// Close disconnects every client.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		close(ch)
		conn.Close()
		delete(s.clients, conn)
	}
}

// MarshalTick is exposed for callers (tests, alternate transports) that
// want the wire format without a live connection.
func MarshalTick(t Tick) ([]byte, error) {
	return json.Marshal(t)
}
