// Package server exposes the recognition feed over HTTP and WebSocket
package server

import (
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/hanlens/hanlens/internal/errors"
	"github.com/hanlens/hanlens/internal/pipeline"
	"github.com/hanlens/hanlens/internal/trace"
)

// Feed is the slice of the pipeline the server publishes.
type Feed interface {
	Latest() (pipeline.Snapshot, bool)
	Region() image.Rectangle
	SetRegion(region image.Rectangle) (image.Rectangle, error)
	History(limit int) []pipeline.Record
	Subscribe() <-chan pipeline.Snapshot
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type SnapshotMessage struct {
	Type     string            `json:"type"`
	Snapshot pipeline.Snapshot `json:"snapshot"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

// RegionPayload is the wire shape of the capture region.
type RegionPayload struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func regionPayload(r image.Rectangle) RegionPayload {
	return RegionPayload{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (p RegionPayload) rect() image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height)
}

// HistoryResponse lists recent recognitions, newest first.
type HistoryResponse struct {
	History []pipeline.Record `json:"history"`
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	feed  Feed
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server and starts broadcasting snapshots to connected
// WebSocket clients.
func New(feed Feed) *Server {
	s := &Server{
		feed:  feed,
		conns: make(map[*websocket.Conn]struct{}),
	}

	go s.broadcastSnapshots()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/region", s.handleRegionGet)
	mux.HandleFunc("POST /api/region", s.handleRegionSet)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Feed clients only listen. The read loop exists to notice the close.
	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket closed", "error", err)
			return
		}
	}
}

func (s *Server) broadcastSnapshots() {
	for snap := range s.feed.Subscribe() {
		msg := SnapshotMessage{Type: "snapshot", Snapshot: snap}

		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				_ = wsjson.Write(context.Background(), c, msg)
			}(conn)
		}
		s.mu.RUnlock()
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.feed.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no recognition yet")
		return
	}
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleRegionGet(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(regionPayload(s.feed.Region()))
}

func (s *Server) handleRegionSet(w http.ResponseWriter, r *http.Request) {
	var payload RegionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid region payload")
		return
	}

	applied, err := s.feed.SetRegion(payload.rect())
	if err != nil {
		trace.Logger(r.Context()).Warn("region rejected", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	json.NewEncoder(w).Encode(regionPayload(applied))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	json.NewEncoder(w).Encode(HistoryResponse{History: s.feed.History(limit)})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorMessage{Error: msg})
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
