package connection

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/aryo/wabridge/internal/observability"
	"github.com/aryo/wabridge/pkg/wa"
)

// Mode selects which bootstrap flow runs for an unregistered session.
// Switching modes requires a restart; there is no runtime toggle.
type Mode string

const (
	ModeQR      Mode = "qr"
	ModePairing Mode = "pairing"
)

// ParseMode parses a configured bootstrap mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeQR, ModePairing:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid bootstrap mode %q (must be %q or %q)", s, ModeQR, ModePairing)
	}
}

// DispatcherConfig holds bootstrap dispatcher configuration.
type DispatcherConfig struct {
	Mode        Mode
	PhoneNumber string // required in pairing mode, E.164 digits without the plus

	// SettleDelay is how long to wait after session creation before
	// requesting a pairing code. The handshake has to progress far enough
	// to accept the request.
	SettleDelay time.Duration
	// MaxAttempts bounds pairing code requests per session.
	MaxAttempts int
	// RetryBackoff separates pairing attempts.
	RetryBackoff time.Duration

	// Terminal receives a glyph rendering of each QR payload for operator
	// convenience. Nil disables terminal rendering.
	Terminal io.Writer

	Logger zerolog.Logger
}

// Dispatcher runs the bootstrap flow for a session: QR artifact encoding in
// QR mode, pairing code requests in pairing mode. One flow runs per session.
type Dispatcher struct {
	mode         Mode
	phoneNumber  string
	settleDelay  time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	terminal     io.Writer
	log          zerolog.Logger
}

// NewDispatcher creates a bootstrap dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeQR
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Mode == ModePairing {
		if err := ValidatePhoneNumber(cfg.PhoneNumber); err != nil {
			return nil, err
		}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 6 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}

	return &Dispatcher{
		mode:         cfg.Mode,
		phoneNumber:  cfg.PhoneNumber,
		settleDelay:  cfg.SettleDelay,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		terminal:     cfg.Terminal,
		log:          cfg.Logger,
	}, nil
}

// Mode returns the configured bootstrap mode.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// ArtifactFromQR renders a fresh QR payload: glyphs to the configured
// terminal writer, and a PNG data URI for observers.
func (d *Dispatcher) ArtifactFromQR(code string) (string, error) {
	if d.terminal != nil {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, d.terminal)
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR artifact: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// RunPairing requests a pairing code for the configured phone number after
// the settle delay, retrying a bounded number of times. It returns the
// issued code, or an error once the attempts are exhausted or the context
// ends; the manager turns the outcome into state transitions and broadcasts.
func (d *Dispatcher) RunPairing(ctx context.Context, client wa.Client) (string, error) {
	if !sleepCtx(ctx, d.settleDelay) {
		return "", ctx.Err()
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		code, err := client.PairPhone(ctx, d.phoneNumber)
		if err == nil {
			observability.RecordPairingAttempt("success")
			d.log.Info().
				Str("phone_number", d.phoneNumber).
				Str("code", code).
				Msg("Pairing code issued")
			return code, nil
		}
		lastErr = err

		observability.RecordPairingAttempt("error")
		d.log.Error().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", d.maxAttempts).
			Str("phone_number", d.phoneNumber).
			Msg("Pairing code request failed")

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < d.maxAttempts && !sleepCtx(ctx, d.retryBackoff) {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("pairing failed after %d attempts: %w", d.maxAttempts, lastErr)
}

// ValidatePhoneNumber checks a pairing target: digits only, international
// format without the leading plus.
func ValidatePhoneNumber(number string) error {
	if len(number) < 8 || len(number) > 15 {
		return fmt.Errorf("invalid phone number %q: must be 8-15 digits", number)
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid phone number %q: digits only, without the leading plus", number)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
