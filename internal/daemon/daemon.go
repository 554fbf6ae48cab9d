package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aryo/wabridge/internal/config"
	"github.com/aryo/wabridge/internal/logger"
	"github.com/aryo/wabridge/internal/observability"
	"github.com/aryo/wabridge/pkg/connection"
	"github.com/aryo/wabridge/pkg/gateway"
	"github.com/aryo/wabridge/pkg/wa"
	"go.mau.fi/whatsmeow/store"
)

// Daemon wires the credential store, connection manager and observer
// gateway together and owns their lifecycles.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store         *wa.Store
	manager       *connection.Manager
	gatewayServer *gateway.Server
	lifecycle     *LifecycleManager

	deviceMu sync.Mutex
	device   *store.Device

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a new daemon instance.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initialize(); err != nil {
		cancel()
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) initialize() error {
	zlog := d.logger.GetZerolog()

	credStore, err := wa.NewStore(d.ctx, d.config.StorePath, zlog.With().Str("component", "store").Logger())
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	d.store = credStore
	d.logger.Info().Str("path", d.config.StorePath).Msg("Credential store opened")

	gatewayServer, err := gateway.NewServer(gateway.Config{
		Port:      d.config.Gateway.Port,
		Host:      d.config.Gateway.Host,
		AssetsDir: d.config.Gateway.AssetsDir,
		Snapshot:  d.managerSnapshot,
		Logger:    zlog.With().Str("component", "gateway").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.gatewayServer = gatewayServer
	d.logger.Info().Int("port", d.config.Gateway.Port).Msg("Gateway server initialized")

	var terminal io.Writer
	if d.config.Bootstrap.PrintQRInTerminal {
		terminal = os.Stdout
	}

	dispatcher, err := connection.NewDispatcher(connection.DispatcherConfig{
		Mode:         connection.Mode(d.config.Bootstrap.Mode),
		PhoneNumber:  d.config.Bootstrap.PhoneNumber,
		SettleDelay:  time.Duration(d.config.Bootstrap.SettleDelaySeconds) * time.Second,
		MaxAttempts:  d.config.Bootstrap.MaxAttempts,
		RetryBackoff: time.Duration(d.config.Bootstrap.RetryBackoffSeconds) * time.Second,
		Terminal:     terminal,
		Logger:       zlog.With().Str("component", "bootstrap").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap dispatcher: %w", err)
	}

	manager, err := connection.NewManager(connection.Config{
		ReconnectBackoff: time.Duration(d.config.Session.ReconnectBackoffSeconds) * time.Second,
		Factory:          d.createClient,
		Broadcaster:      gatewayServer,
		Dispatcher:       dispatcher,
		Persist:          d.persistCredentials,
		AutoReply:        connection.AutoReplyConfig{Enabled: d.config.AutoReply.Enabled},
		Logger:           zlog.With().Str("component", "connection").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}
	d.manager = manager
	d.logger.Info().Str("mode", d.config.Bootstrap.Mode).Msg("Connection manager initialized")

	return nil
}

// createClient is the session factory: it reloads credentials from the
// store and builds a fresh messaging client around them.
func (d *Daemon) createClient(ctx context.Context) (wa.Client, error) {
	device, err := d.store.Device(ctx)
	if err != nil {
		return nil, err
	}

	d.deviceMu.Lock()
	d.device = device
	d.deviceMu.Unlock()

	return wa.NewMeowClient(device, d.logger.GetZerolog()), nil
}

// persistCredentials saves the live session's credential state.
func (d *Daemon) persistCredentials(ctx context.Context) error {
	d.deviceMu.Lock()
	device := d.device
	d.deviceMu.Unlock()

	return d.store.Save(ctx, device)
}

func (d *Daemon) managerSnapshot() connection.Snapshot {
	if d.manager == nil {
		return connection.Snapshot{
			State:  connection.StateInitializing,
			Status: connection.StatusInitializing,
		}
	}
	return d.manager.Snapshot()
}

// Start starts the daemon service.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting wabridge daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	d.logger.Info().Msg("Gateway server started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.manager.Run(d.ctx); err != nil {
			d.logger.Error().Err(err).Msg("Connection manager exited with error")
		}
	}()

	d.logger.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops the daemon service gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping wabridge daemon")

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info().Msg("Connection manager stopped")
	case <-time.After(10 * time.Second):
		d.logger.Warn().Msg("Timeout waiting for connection manager to stop")
	}

	if err := d.gatewayServer.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop gateway server")
	}

	if err := d.store.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close credential store")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Status returns the daemon status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Connection = d.managerSnapshot()
		status.Observers = d.gatewayServer.ObserverCount()
	}

	return status
}

// Wait blocks until a termination signal arrives, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration.
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// Status represents daemon status.
type Status struct {
	Running    bool
	Uptime     time.Duration
	StartTime  time.Time
	Connection connection.Snapshot
	Observers  int
}
