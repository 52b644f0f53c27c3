package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/framepoll/internal/buffer"
	"github.com/bryanchriswhite/framepoll/internal/config"
	"github.com/bryanchriswhite/framepoll/internal/logger"
	"github.com/bryanchriswhite/framepoll/internal/output"
	"github.com/bryanchriswhite/framepoll/internal/producer"
	"github.com/bryanchriswhite/framepoll/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server represents the HTTP streaming server
type Server struct {
	router    *mux.Router
	cfg       *config.Config
	configMgr *config.Manager
	ring      *buffer.Ring
	sessions  *session.Table
	producer  *producer.Producer
	preview   *output.MJPEGOutput
	upgrader  websocket.Upgrader

	requestCount  atomic.Uint64
	lastRequestAt atomic.Int64
}

// Stats is the live server state served over /api/stats and its websocket
type Stats struct {
	Requests       uint64     `json:"requests"`
	LastRequestAt  *time.Time `json:"last_request_at,omitempty"`
	Sessions       int        `json:"sessions"`
	FramesProduced uint64     `json:"frames_produced"`
	BufferedFrames int        `json:"buffered_frames"`
	Degraded       bool       `json:"degraded"`
}

// NewServer creates a new streaming server. The preview output may be nil.
func NewServer(configMgr *config.Manager, ring *buffer.Ring, sessions *session.Table, prod *producer.Producer, preview *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		cfg:       configMgr.Get(),
		configMgr: configMgr,
		ring:      ring,
		sessions:  sessions,
		producer:  prod,
		preview:   preview,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local configuration front-ends only
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	// Polling protocol
	s.router.HandleFunc("/", s.handlePoll).Methods("POST")
	s.router.HandleFunc("/", s.handleHealth).Methods("GET")

	// Configuration front-end API
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/stream", s.handleStatsStream)

	if s.preview != nil {
		s.router.HandleFunc("/preview", s.preview.GetHTTPHandler()).Methods("GET")
	}
}

// Handler returns the root http.Handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().
		Str("addr", addr).
		Msg("Server listening")
	return http.ListenAndServe(addr, s.router)
}

// handleHealth serves the liveness acknowledgment. It performs no frame
// delivery and does not touch the session table.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "running",
		"resolution": s.cfg.Resolution(),
		"fps":        s.cfg.FPS,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.configMgr.Get())
}

// handleUpdateConfig validates and persists a new configuration. It takes
// effect on the next server start.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "saved, effective on restart"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshotStats())
}

// handleStatsStream pushes the stats record over a websocket once per second,
// for the configuration front-end's status display
func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(s.snapshotStats()); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.snapshotStats()); err != nil {
			return
		}
	}
}

func (s *Server) snapshotStats() Stats {
	stats := Stats{
		Requests:       s.requestCount.Load(),
		Sessions:       s.sessions.Len(),
		BufferedFrames: s.ring.Len(),
	}
	if s.producer != nil {
		stats.FramesProduced = s.producer.FramesProduced()
		stats.Degraded = s.producer.Degraded()
	}
	if last := s.lastRequestAt.Load(); last != 0 {
		t := time.Unix(0, last)
		stats.LastRequestAt = &t
	}
	return stats
}
