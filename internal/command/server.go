// internal/command/server.go

// Package command exposes the external control surface: a WebSocket feed of
// target-position commands for the cyclic loop and an HTTP snapshot of the
// device registry. The command feed is latest-wins with capacity one, so a
// slow real-time consumer only ever sees the newest target.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tamzrod/ecat-master/internal/registry"
)

// Config is the server's runtime surface.
type Config struct {
	Listen string
}

// Server owns the listener and the single-producer target feed.
type Server struct {
	cfg Config
	reg *registry.Registry
	log *zap.Logger

	upgrader websocket.Upgrader
	targets  chan int32
}

// New builds a server. The target feed is created here so it can be wired
// into the cyclic loop before Run starts.
func New(cfg Config, reg *registry.Registry, log *zap.Logger) *Server {
	return &Server{
		cfg: cfg,
		reg: reg,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		targets: make(chan int32, 1),
	}
}

// Targets is the latest-wins command feed consumed by the cyclic loop.
func (s *Server) Targets() <-chan int32 {
	return s.targets
}

// Handler returns the HTTP surface, also used directly by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.log.Info("command server listening", zap.String("addr", s.cfg.Listen))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// publish replaces any pending target so the consumer always reads the
// newest value.
func (s *Server) publish(v int32) {
	for {
		select {
		case s.targets <- v:
			return
		default:
		}
		select {
		case <-s.targets:
		default:
		}
	}
}

type commandRequest struct {
	TargetPosition *int32 `json:"target_position"`
}

type commandReply struct {
	Result         string `json:"result"`
	TargetPosition int32  `json:"target_position,omitempty"`
	Error          string `json:"error,omitempty"`
}

// handleCommand upgrades to WebSocket and feeds decoded targets into the
// command channel until the client disconnects.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.log.Info("command client connected", zap.String("remote", r.RemoteAddr))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("command read failed", zap.Error(err))
			}
			return
		}

		var req commandRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			conn.WriteJSON(commandReply{Result: "error", Error: "malformed command"})
			continue
		}
		if req.TargetPosition == nil {
			conn.WriteJSON(commandReply{Result: "error", Error: "target_position required"})
			continue
		}

		s.publish(*req.TargetPosition)
		conn.WriteJSON(commandReply{Result: "ok", TargetPosition: *req.TargetPosition})
	}
}

type deviceStatus struct {
	Ordinal      int    `json:"ordinal"`
	Name         string `json:"name"`
	State        string `json:"state"`
	ALStatusCode string `json:"al_status_code"`
	Lost         bool   `json:"lost"`
	StatusWord   string `json:"status_word"`
	Position     int32  `json:"position"`
	Velocity     int32  `json:"velocity"`
	Torque       int16  `json:"torque"`
}

type statusReply struct {
	Operational bool           `json:"operational"`
	ExpectedWKC int            `json:"expected_wkc"`
	LastWKC     int            `json:"last_wkc"`
	Devices     []deviceStatus `json:"devices"`
}

// handleStatus serves a JSON snapshot of the registry.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reply := statusReply{
		Operational: s.reg.Operational(),
		ExpectedWKC: s.reg.ExpectedWKC(),
		LastWKC:     s.reg.LastWKC(),
		Devices:     []deviceStatus{},
	}
	for _, v := range s.reg.Snapshot() {
		reply.Devices = append(reply.Devices, deviceStatus{
			Ordinal:      v.Ordinal,
			Name:         v.Name,
			State:        v.State.String(),
			ALStatusCode: fmt.Sprintf("0x%04x", v.ALStatusCode),
			Lost:         v.Lost,
			StatusWord:   fmt.Sprintf("0x%04x", v.Status.StatusWord),
			Position:     v.Status.ActualPosition,
			Velocity:     v.Status.ActualVelocity,
			Torque:       v.Status.ActualTorque,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}
