package connection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aryo/wabridge/internal/observability"
	"github.com/aryo/wabridge/pkg/wa"
)

// Observer-facing event kinds pushed through the Broadcaster.
const (
	EventQR            = "qr"
	EventStatus        = "status"
	EventNewMessage    = "new_message"
	EventPairingFailed = "pairing_failed"
)

// Status strings broadcast to observers on lifecycle transitions.
const (
	StatusInitializing = "Initializing..."
	StatusScanQR       = "Scan the QR code"
	StatusConnected    = "Connected & online"
	StatusReconnecting = "Connection lost. Reconnecting..."
	StatusLoggedOut    = "Logged out. Delete the credential store to link this device again."

	StatusPairingFailed = "Pairing failed. Check the configured phone number and restart."
)

// Internal events produced by the pairing goroutine. They flow through the
// same session channel as client events so snapshot transitions and
// broadcasts stay serialized.
type pairingCodeIssued struct {
	code string
}

type pairingExhausted struct{}

// Broadcaster pushes an event to every currently attached observer.
// Delivery is best-effort.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// ClientFactory builds a fresh messaging client with freshly loaded
// credentials. Called once per session creation attempt.
type ClientFactory func(ctx context.Context) (wa.Client, error)

// PersistFunc persists a credential mutation signaled by the client.
type PersistFunc func(ctx context.Context) error

// AutoReplyConfig configures the automated reply stub. Disabled by default;
// when enabled, an inbound "ping" is answered with "Pong!".
type AutoReplyConfig struct {
	Enabled bool
}

// Config holds connection manager configuration.
type Config struct {
	// ReconnectBackoff separates session creation attempts. Must be
	// positive: a zero delay would spin a tight reconnect loop.
	ReconnectBackoff time.Duration

	Factory     ClientFactory
	Broadcaster Broadcaster
	Dispatcher  *Dispatcher
	Persist     PersistFunc // optional
	AutoReply   AutoReplyConfig
	Logger      zerolog.Logger
}

// Manager owns the single live messaging client and drives the bootstrap
// and reconnect state machine. All client events for a session are
// serialized through one channel consumed by Run, so handlers never execute
// concurrently.
type Manager struct {
	backoff   time.Duration
	factory   ClientFactory
	broadcast Broadcaster
	dispatch  *Dispatcher
	persist   PersistFunc
	autoReply AutoReplyConfig
	log       zerolog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// eventBuffer sizes the per-session event channel. Events beyond it are
// dropped rather than blocking the client's delivery goroutine.
const eventBuffer = 128

// NewManager creates a connection manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if cfg.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("bootstrap dispatcher is required")
	}
	if cfg.ReconnectBackoff < 0 {
		return nil, fmt.Errorf("reconnect backoff must be positive")
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 2 * time.Second
	}

	return &Manager{
		backoff:   cfg.ReconnectBackoff,
		factory:   cfg.Factory,
		broadcast: cfg.Broadcaster,
		dispatch:  cfg.Dispatcher,
		persist:   cfg.Persist,
		autoReply: cfg.AutoReply,
		log:       cfg.Logger,
		snap: Snapshot{
			State:  StateInitializing,
			Status: StatusInitializing,
		},
	}, nil
}

// Snapshot returns the current externally visible state. A late-joining
// observer converges from this alone.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Run drives the session lifecycle until the context is cancelled or the
// user logs the device out. Transient closes feed back into a new session
// creation after the configured backoff; only the logout sentinel ends the
// loop.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		client, err := m.factory(ctx)
		if err != nil {
			observability.RecordReconnectAttempt("error")
			m.log.Error().Err(err).Msg("Failed to create session")
			if !sleepCtx(ctx, m.backoff) {
				return nil
			}
			continue
		}
		observability.RecordReconnectAttempt("started")

		reason, err := m.runSession(ctx, client)
		if err != nil {
			// Context cancelled mid-session; the client is already
			// disconnected by runSession.
			return nil
		}

		observability.RecordSessionClose(reason.String())
		if !reason.Retryable() {
			m.transition(StateClosedTerminal, StatusLoggedOut, "")
			m.send(EventStatus, StatusLoggedOut)
			m.log.Warn().
				Str("reason", reason.String()).
				Msg("Session terminated by logout; manual relink required")
			return nil
		}

		m.transition(StateClosedRetryable, StatusReconnecting, "")
		m.send(EventStatus, StatusReconnecting)
		m.log.Info().
			Str("reason", reason.String()).
			Dur("backoff", m.backoff).
			Msg("Session lost, reconnecting")

		if !sleepCtx(ctx, m.backoff) {
			return nil
		}
	}
}

// runSession registers handlers on a fresh client, connects it, and
// processes its events until the connection closes or the context is
// cancelled. The handler is always removed before returning so a discarded
// session leaks nothing into the next one.
func (m *Manager) runSession(ctx context.Context, client wa.Client) (wa.CloseReason, error) {
	events := make(chan any, eventBuffer)
	push := func(evt any) {
		select {
		case events <- evt:
		default:
			m.log.Warn().Msg("Session event dropped, event buffer full")
		}
	}
	handlerID := client.AddEventHandler(push)
	defer client.RemoveEventHandler(handlerID)
	defer client.Disconnect()

	m.transition(StateInitializing, StatusInitializing, "")

	if m.dispatch.Mode() == ModePairing && !client.Registered() {
		go func() {
			code, err := m.dispatch.RunPairing(ctx, client)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				push(pairingExhausted{})
				return
			}
			push(pairingCodeIssued{code: code})
		}()
	}

	if err := client.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		m.log.Error().Err(err).Msg("Session handshake failed")
		return wa.CloseConnectionLost, nil
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case evt := <-events:
			switch e := evt.(type) {
			case wa.ConnectionUpdate:
				if e.QRCode != "" {
					m.handleQR(e.QRCode)
				}
				switch e.State {
				case wa.ConnStateOpen:
					m.handleOpen()
				case wa.ConnStateClosed:
					return e.ReasonCode, nil
				}
			case wa.CredentialsUpdate:
				m.persistCredentials(ctx)
			case wa.MessageBatch:
				m.handleBatch(ctx, client, e)
			case pairingCodeIssued:
				m.handlePairingCode(e.code)
			case pairingExhausted:
				m.handlePairingFailure()
			}
		}
	}
}

// handleQR broadcasts a fresh bootstrap artifact. Each emission supersedes
// the previous one; observers treat the latest qr event as authoritative.
// Only one artifact kind is active per bootstrap attempt: in pairing mode
// QR payloads are dropped.
func (m *Manager) handleQR(code string) {
	if m.dispatch.Mode() != ModeQR {
		return
	}

	uri, err := m.dispatch.ArtifactFromQR(code)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to render QR artifact")
		return
	}

	observability.RecordQREmission()
	m.transition(StateAwaitingCredential, StatusScanQR, uri)
	m.send(EventQR, uri)
	m.send(EventStatus, StatusScanQR)
	m.log.Info().Msg("QR artifact issued")
}

// handlePairingCode surfaces an issued pairing code: the session is now
// awaiting the credential, and late-joining observers converge on the code
// from the snapshot.
func (m *Manager) handlePairingCode(code string) {
	status := fmt.Sprintf("Pairing code: %s", code)
	m.transition(StateAwaitingCredential, status, "")
	m.send(EventStatus, status)
	m.log.Info().Msg("Pairing code surfaced")
}

// handlePairingFailure surfaces pairing exhaustion instead of failing
// silently. The operator must fix the number and restart.
func (m *Manager) handlePairingFailure() {
	m.transition(StateInitializing, StatusPairingFailed, "")
	m.send(EventPairingFailed, map[string]any{
		"phoneNumber": m.dispatch.phoneNumber,
		"attempts":    m.dispatch.maxAttempts,
	})
	m.send(EventStatus, StatusPairingFailed)
}

func (m *Manager) handleOpen() {
	m.transition(StateOpen, StatusConnected, "")
	m.send(EventQR, nil)
	m.send(EventStatus, StatusConnected)
	m.log.Info().Msg("Session open")
}

// persistCredentials saves a credential mutation. Fire-and-forget: the
// event loop is never blocked and errors are only logged.
func (m *Manager) persistCredentials(ctx context.Context) {
	if m.persist == nil {
		return
	}
	go func() {
		if err := m.persist(ctx); err != nil {
			m.log.Error().Err(err).Msg("Failed to persist credentials")
		}
	}()
}

// handleBatch projects every inbound message in a batch and forwards the
// projections to observers.
func (m *Manager) handleBatch(ctx context.Context, client wa.Client, batch wa.MessageBatch) {
	for _, raw := range batch.Messages {
		msg, ok := Project(raw)
		if !ok {
			if raw.FromMe {
				observability.RecordInboundMessage("skipped_self")
			} else {
				observability.RecordInboundMessage("skipped_empty")
			}
			continue
		}
		observability.RecordInboundMessage("projected")

		m.log.Info().
			Str("push_name", msg.PushName).
			Str("remote_jid", msg.RemoteJID).
			Msg("New message")
		m.send(EventNewMessage, msg)

		if m.autoReply.Enabled && strings.EqualFold(msg.Text, "ping") {
			if err := client.SendText(ctx, msg.RemoteJID, "Pong!"); err != nil {
				m.log.Error().Err(err).Str("remote_jid", msg.RemoteJID).Msg("Auto-reply failed")
			}
		}
	}
}

func (m *Manager) send(event string, data any) {
	observability.RecordBroadcast(event)
	m.broadcast.Broadcast(event, data)
}

func (m *Manager) transition(state State, status string, artifact string) {
	m.mu.Lock()
	m.snap = Snapshot{State: state, Status: status, Artifact: artifact}
	m.mu.Unlock()
	observability.SetConnectionState(string(state))
}
