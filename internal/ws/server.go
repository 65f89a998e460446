package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/plate-spinner/plate-spinner/internal/ingest"
	"github.com/plate-spinner/plate-spinner/internal/monitor"
	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/store"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxEventBytes = 1 << 20
	shutdownDelay = 200 * time.Millisecond
)

// Store is the subset of *store.Store the HTTP handlers need.
type Store interface {
	ListSessions() ([]*session.Session, error)
	Get(sessionID string) (*session.Session, error)
	RegisterPlaceholder(projectPath string, now time.Time) (string, error)
	MarkStopped(projectPath string, now time.Time) ([]string, error)
	Delete(sessionID string) error
}

type EventHandler interface {
	Handle(ctx context.Context, ev *session.HookEvent, payload []byte) (ingest.Result, error)
}

type HealthReporter interface {
	Health() monitor.HealthSnapshot
}

// Banner persists whether the user dismissed the setup banner.
type Banner interface {
	Dismissed() bool
	Dismiss() error
}

type Options struct {
	Store       Store
	Broadcaster *Broadcaster
	Events      EventHandler
	Reconciler  HealthReporter
	Banner      Banner
	Version     string

	APIKeyConfigured func() bool
	HooksInstalled   func() bool
	// Shutdown is invoked shortly after POST /shutdown has been answered.
	Shutdown func()
}

type Server struct {
	opts Options
	now  func() time.Time
}

func NewServer(opts Options) *Server {
	if opts.APIKeyConfigured == nil {
		opts.APIKeyConfigured = func() bool { return false }
	}
	if opts.HooksInstalled == nil {
		opts.HooksInstalled = func() bool { return false }
	}
	return &Server{opts: opts, now: time.Now}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /events", s.handleEvent)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	mux.HandleFunc("POST /sessions/register", s.handleRegister)
	mux.HandleFunc("POST /sessions/stopped", s.handleStopped)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /banner/dismiss", s.handleDismissBanner)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
}

// Handler returns the full route table wrapped in the standard headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func ok(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.opts.Version})
}

type statusResponse struct {
	Status           string                  `json:"status"`
	Version          string                  `json:"version"`
	APIKeyConfigured bool                    `json:"api_key_configured"`
	HooksInstalled   bool                    `json:"hooks_installed"`
	BannerDismissed  bool                    `json:"banner_dismissed"`
	Subscribers      int                     `json:"subscribers"`
	Reconciler       *monitor.HealthSnapshot `json:"reconciler,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:           "ok",
		Version:          s.opts.Version,
		APIKeyConfigured: s.opts.APIKeyConfigured(),
		HooksInstalled:   s.opts.HooksInstalled(),
	}
	if s.opts.Banner != nil {
		resp.BannerDismissed = s.opts.Banner.Dismissed()
	}
	if s.opts.Broadcaster != nil {
		resp.Subscribers = s.opts.Broadcaster.SubscriberCount()
	}
	if s.opts.Reconciler != nil {
		h := s.opts.Reconciler.Health()
		resp.Reconciler = &h
		if h.Status != monitor.HealthOK {
			resp.Status = h.Status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvent acknowledges every well-formed event. Persistence problems are
// logged by the ingestion handler and never reported back to the hook.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var ev session.HookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if _, err := s.opts.Events.Handle(r.Context(), &ev, payload); err != nil {
		if errors.Is(err, ingest.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("event %s for %s: %v", ev.EventType, ev.SessionID, err)
	}
	ok(w)
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions, err := s.opts.Store.ListSessions()
	if err != nil {
		log.Printf("list sessions: %v", err)
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.opts.Store.Get(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func decodeProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req projectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return "", false
	}
	if req.ProjectPath == "" {
		http.Error(w, "project_path is required", http.StatusBadRequest)
		return "", false
	}
	return req.ProjectPath, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	path, valid := decodeProject(w, r)
	if !valid {
		return
	}
	id, err := s.opts.Store.RegisterPlaceholder(path, s.now())
	if err != nil {
		log.Printf("register %s: %v", path, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Status: "ok", PlaceholderID: id})
}

func (s *Server) handleStopped(w http.ResponseWriter, r *http.Request) {
	path, valid := decodeProject(w, r)
	if !valid {
		return
	}
	ids, err := s.opts.Store.MarkStopped(path, s.now())
	if err != nil {
		log.Printf("mark stopped %s: %v", path, err)
	}
	writeJSON(w, http.StatusOK, stoppedResponse{Status: "ok", Count: len(ids)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.opts.Store.Delete(id); err != nil {
		log.Printf("delete %s: %v", id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ok(w)
}

func (s *Server) handleDismissBanner(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Banner == nil {
		ok(w)
		return
	}
	if err := s.opts.Banner.Dismiss(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ok(w)
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	ok(w)
	if s.opts.Shutdown == nil {
		return
	}
	log.Println("Shutdown requested")
	go func() {
		time.Sleep(shutdownDelay)
		s.opts.Shutdown()
	}()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	sub := s.opts.Broadcaster.Subscribe()
	go writePump(conn, sub)

	go func() {
		defer func() {
			s.opts.Broadcaster.Unsubscribe(sub)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		readPump(conn)
	}()
}

// writePump forwards sub's messages to conn until the subscription ends or a
// write fails. It owns all writes on conn.
func writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, open := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards viewer input and returns once the connection is gone.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// checkOrigin admits non-browser clients and pages served from loopback.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}

	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

// NewHTTPServer builds the daemon's listener on host:port.
func NewHTTPServer(host string, port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ListenAndServe serves until srv is shut down. A graceful shutdown is not
// an error.
func ListenAndServe(srv *http.Server) error {
	log.Printf("Server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
