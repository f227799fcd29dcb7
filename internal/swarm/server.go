package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ehrlich-b/tradewarden/internal/logger"
)

// Server is the swarm control plane: REST for control and telemetry, a
// websocket for the live record stream.
type Server struct {
	mgr *Manager

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(mgr *Manager) *Server {
	return &Server{mgr: mgr}
}

// Handler builds the route table. Split out so tests can mount it on an
// httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /swarm/status", s.handleStatus)
	mux.HandleFunc("POST /swarm/clear", s.handleClear)
	mux.HandleFunc("POST /swarm/spawn", s.handleSpawn)
	mux.HandleFunc("GET /swarm/timeseries/summary", s.handleTimeseries)
	mux.HandleFunc("GET /swarm/events", s.handleEvents)

	mux.HandleFunc("POST /bots/{id}/assume", s.handleAssume)
	mux.HandleFunc("POST /bots/{id}/hijack/begin", s.handleHijackBegin)
	mux.HandleFunc("POST /bots/{id}/hijack/heartbeat", s.handleHijackHeartbeat)
	mux.HandleFunc("POST /bots/{id}/hijack/release", s.handleHijackRelease)
	mux.HandleFunc("POST /bots/{id}/hijack/read", s.handleHijackRead)
	mux.HandleFunc("POST /bots/{id}/hijack/send", s.handleHijackSend)
	return mux
}

// Start listens and serves until Close.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("swarm listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Info("swarm control plane listening", "addr", addr)
	err = http.Serve(ln, s.Handler())
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close stops the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bots": s.mgr.Statuses()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mgr.Clear()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var composition map[string]int
	if err := json.NewDecoder(r.Body).Decode(&composition); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(composition) == 0 {
		writeError(w, http.StatusBadRequest, "empty composition")
		return
	}
	ids, err := s.mgr.Spawn(composition)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	window := 15
	if q := r.URL.Query().Get("window_minutes"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad window_minutes")
			return
		}
		window = n
	}
	sum := s.mgr.Telemetry().Summarize(time.Duration(window) * time.Minute)
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAssume(w http.ResponseWriter, r *http.Request) {
	view, err := s.mgr.Assume(r.PathValue("id"))
	if err != nil {
		writeLeaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type hijackRequest struct {
	Owner  string `json:"owner"`
	LeaseS int    `json:"lease_s,omitempty"`
	Keys   string `json:"keys,omitempty"`
}

func decodeHijack(w http.ResponseWriter, r *http.Request) (hijackRequest, bool) {
	var req hijackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return req, false
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleHijackBegin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHijack(w, r)
	if !ok {
		return
	}
	lease, err := s.mgr.HijackBegin(r.PathValue("id"), req.Owner,
		time.Duration(req.LeaseS)*time.Second)
	if err != nil {
		writeLeaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

func (s *Server) handleHijackHeartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHijack(w, r)
	if !ok {
		return
	}
	lease, err := s.mgr.Leases().Heartbeat(r.PathValue("id"), req.Owner)
	if err != nil {
		writeLeaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

func (s *Server) handleHijackRelease(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHijack(w, r)
	if !ok {
		return
	}
	if err := s.mgr.Leases().Release(r.PathValue("id"), req.Owner); err != nil {
		writeLeaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHijackRead(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHijack(w, r)
	if !ok {
		return
	}
	screen, err := s.mgr.HijackRead(r.PathValue("id"), req.Owner)
	if err != nil {
		writeLeaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"screen": screen})
}

func (s *Server) handleHijackSend(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHijack(w, r)
	if !ok {
		return
	}
	if req.Keys == "" {
		writeError(w, http.StatusBadRequest, "keys is required")
		return
	}
	if err := s.mgr.HijackSend(r.PathValue("id"), req.Owner, req.Keys); err != nil {
		writeLeaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleEvents streams the swarm record feed as JSON websocket messages.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Warn("events websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.mgr.Recorder().Subscribe()
	defer cancel()

	ctx := r.Context()
	// drain client frames so pings and closes are processed
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "recorder closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeLeaseError maps manager errors onto status codes: lease conflicts are
// 409, unknown bots 404, disconnected bots 503.
func writeLeaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLeaseDenied), errors.Is(err, ErrLeaseExpired), errors.Is(err, ErrLeaseHeld):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownBot):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBotNotConnected):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
