package trailsync

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// StatusView is the JSON form of Status served on /status and /status/ws.
type StatusView struct {
	State              string     `json:"state"`
	SessionID          string     `json:"session_id,omitempty"`
	LocalSession       bool       `json:"local_session"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	DurationSeconds    float64    `json:"duration_seconds"`
	PointsCollected    int64      `json:"points_collected"`
	PointsSynced       int64      `json:"points_synced"`
	Buffered           int        `json:"buffered"`
	LastSyncAt         *time.Time `json:"last_sync_at,omitempty"`
	SyncErrors         int        `json:"sync_errors"`
	SyncState          string     `json:"sync_state"`
	Online             bool       `json:"online"`
	LocationError      string     `json:"location_error,omitempty"`
	MotionAvailable    bool       `json:"motion_available"`
	Activity           string     `json:"activity,omitempty"`
	ActivityConfidence float64    `json:"activity_confidence,omitempty"`
}

// NewStatusView converts a Status snapshot for display.
func NewStatusView(s Status) StatusView {
	return StatusView{
		State:              s.State.String(),
		SessionID:          s.SessionID,
		LocalSession:       s.LocalSession,
		StartedAt:          lo.EmptyableToPtr(s.StartedAt),
		DurationSeconds:    s.Duration.Seconds(),
		PointsCollected:    s.PointsCollected,
		PointsSynced:       s.PointsSynced,
		Buffered:           s.Buffered,
		LastSyncAt:         lo.EmptyableToPtr(s.LastSyncAt),
		SyncErrors:         s.SyncErrors,
		SyncState:          string(s.SyncState),
		Online:             s.Online,
		LocationError:      s.LocationError,
		MotionAvailable:    s.MotionAvailable,
		Activity:           s.Activity,
		ActivityConfidence: s.ActivityConfidence,
	}
}

// statusHub fans status frames out to websocket subscribers. Slow clients miss frames.
type statusHub struct {
	mu      sync.RWMutex
	clients map[*statusClient]struct{}
}

type statusClient struct {
	send chan []byte
}

func newStatusHub() *statusHub {
	return &statusHub{clients: map[*statusClient]struct{}{}}
}

func (h *statusHub) register() *statusClient {
	c := &statusClient{send: make(chan []byte, 8)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return c
}

func (h *statusHub) unregister(c *statusClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *statusHub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (h *statusHub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll ends every stream; hijacked connections outlive http.Server.Shutdown.
func (h *statusHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (r *Recorder) statusJSON() ([]byte, error) {
	return json.Marshal(NewStatusView(r.Status()))
}

func (r *Recorder) serveStatus(w http.ResponseWriter, _ *http.Request) {
	payload, err := r.statusJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// serveStatusStream pushes one status frame on connect and then one per gauge tick.
func (r *Recorder) serveStatusStream(w http.ResponseWriter, req *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: r.originAllowed}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	if payload, err := r.statusJSON(); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			return
		}
	}
	client := r.hub.register()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer conn.Close()
		for msg := range client.send {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				r.logger.Debug("status stream write failed", zap.Error(err))
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	r.hub.unregister(client)
	<-done
}

func (r *Recorder) publishStatus() {
	if r.hub.len() == 0 {
		return
	}
	payload, err := r.statusJSON()
	if err != nil {
		r.logger.Warn("encode status", zap.Error(err))
		return
	}
	r.hub.broadcast(payload)
}

// originAllowed applies metrics.cors_origins to websocket upgrades. Requests without an
// Origin header (non-browser clients) and same-host pages are always accepted.
func (r *Recorder) originAllowed(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, req.Host) {
		return true
	}
	origins := r.cfg.Metrics.CORSOrigins
	return slices.Contains(origins, "*") || slices.Contains(origins, origin)
}

func (r *Recorder) withCORS(h http.Handler) http.Handler {
	if len(r.cfg.Metrics.CORSOrigins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: r.cfg.Metrics.CORSOrigins,
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
	}).Handler(h)
}
