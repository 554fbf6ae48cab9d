package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/aryo/wabridge/internal/observability"
	"github.com/aryo/wabridge/pkg/connection"
)

// SnapshotFunc returns the connection manager's current externally visible
// state, used to bring late-joining observers up to date on attach.
type SnapshotFunc func() connection.Snapshot

// Config holds gateway server configuration.
type Config struct {
	Port      int
	Host      string
	AssetsDir string // static browser UI files; empty disables asset serving
	Snapshot  SnapshotFunc
	Logger    zerolog.Logger
}

// Server is the observer-facing push gateway: it upgrades browser clients
// to WebSocket, replays the current status on attach, and fans connection
// and message events out to every attached observer.
type Server struct {
	port      int
	host      string
	assetsDir string
	snapshot  SnapshotFunc

	server      *http.Server
	upgrader    websocket.Upgrader
	clients     *ClientRegistry
	broadcaster *EventBroadcaster
	logger      zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Snapshot == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}

	clients := NewClientRegistry()
	broadcaster := NewEventBroadcaster(clients, cfg.Logger)

	return &Server{
		port:        cfg.Port,
		host:        cfg.Host,
		assetsDir:   cfg.AssetsDir,
		snapshot:    cfg.Snapshot,
		clients:     clients,
		broadcaster: broadcaster,
		logger:      cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The gateway serves a local operator UI.
				return true
			},
		},
	}, nil
}

// Start starts the gateway server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.assetsDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.assetsDir)))
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown gateway server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// Broadcast implements connection.Broadcaster.
func (s *Server) Broadcast(event string, data any) {
	s.broadcaster.Broadcast(event, data)
}

// ObserverCount returns the number of attached observers.
func (s *Server) ObserverCount() int {
	return s.clients.Count()
}

// handleWebSocket attaches one observer channel.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:          clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		IPAddress:   r.RemoteAddr,
	}

	s.clients.Add(client)
	observability.ObserverAttached()

	s.logger.Info().
		Str("client_id", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Observer attached")

	s.sendAttachSnapshot(client)

	go s.handleClient(client)
}

// sendAttachSnapshot converges a late-joining observer to current state:
// the best-known status, plus either a hide-artifact signal when the
// session is already open or the latest artifact when one is shown.
func (s *Server) sendAttachSnapshot(client *Client) {
	snap := s.snapshot()

	status := snap.Status
	if status == "" {
		status = connection.StatusInitializing
	}
	if err := s.broadcaster.SendTo(client, connection.EventStatus, status); err != nil {
		s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to send attach status")
		return
	}

	switch {
	case snap.Open():
		if err := s.broadcaster.SendTo(client, connection.EventQR, nil); err != nil {
			s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to send attach artifact state")
		}
	case snap.Artifact != "":
		if err := s.broadcaster.SendTo(client, connection.EventQR, snap.Artifact); err != nil {
			s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to send attach artifact")
		}
	}
}

// handleClient drains the observer's inbound stream until it detaches.
// Inbound frames are discarded: the push channel carries no commands today.
func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		observability.ObserverDetached()
		s.logger.Info().Str("client_id", client.ID).Msg("Observer detached")
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("client_id", client.ID).Msg("Observer channel error")
			}
			return
		}
	}
}
