package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
)

// Store persists session credentials in a local sqlite database. The
// serialization format and the credential schema are owned by whatsmeow;
// this wrapper only decides where the database lives and exposes the two
// operations the connection manager needs: load on session creation and
// save on credential mutation.
type Store struct {
	container *sqlstore.Container
	log       zerolog.Logger
}

// NewStore opens (or creates) the credential database at the given path.
func NewStore(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("credential store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create credential store directory: %w", err)
	}

	address := fmt.Sprintf("file:%s?_foreign_keys=on", path)
	container, err := sqlstore.New(ctx, "sqlite3", address, NewWALogger(log.With().Str("component", "sqlstore").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	return &Store{
		container: container,
		log:       log,
	}, nil
}

// Device loads the stored device identity, creating a fresh unregistered one
// when the store is empty. Called once per session creation.
func (s *Store) Device(ctx context.Context) (*store.Device, error) {
	device, err := s.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device from credential store: %w", err)
	}
	return device, nil
}

// Save persists a credential mutation. Fire-and-forget from the caller's
// perspective: errors are returned for logging, never treated as fatal.
func (s *Store) Save(ctx context.Context, device *store.Device) error {
	if device == nil {
		return nil
	}
	if err := device.Save(ctx); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.container.Close()
}
