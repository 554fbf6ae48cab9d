package connection

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("qr")
	require.NoError(t, err)
	assert.Equal(t, ModeQR, mode)

	mode, err = ParseMode("pairing")
	require.NoError(t, err)
	assert.Equal(t, ModePairing, mode)

	_, err = ParseMode("sms")
	assert.ErrorContains(t, err, "invalid bootstrap mode")
}

func TestValidatePhoneNumber(t *testing.T) {
	assert.NoError(t, ValidatePhoneNumber("919876543210"))
	assert.NoError(t, ValidatePhoneNumber("62812345"))

	assert.Error(t, ValidatePhoneNumber(""))
	assert.Error(t, ValidatePhoneNumber("1234567"))                  // too short
	assert.Error(t, ValidatePhoneNumber("1234567890123456"))         // too long
	assert.Error(t, ValidatePhoneNumber("+919876543210"))            // leading plus
	assert.Error(t, ValidatePhoneNumber("91 98765 43210"))           // spaces
	assert.Error(t, ValidatePhoneNumber("ninehundredmillion"))       // letters
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{Mode: ModePairing})
	assert.ErrorContains(t, err, "phone number")

	_, err = NewDispatcher(DispatcherConfig{Mode: "sms"})
	assert.ErrorContains(t, err, "invalid bootstrap mode")

	d, err := NewDispatcher(DispatcherConfig{})
	require.NoError(t, err)
	assert.Equal(t, ModeQR, d.Mode())
}

func TestArtifactFromQR(t *testing.T) {
	var terminal bytes.Buffer
	d, err := NewDispatcher(DispatcherConfig{
		Mode:     ModeQR,
		Terminal: &terminal,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	uri, err := d.ArtifactFromQR("2@abcdefgh,ijklmnop,qrstuvwx")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	// Glyph rendering went to the terminal writer.
	assert.NotZero(t, terminal.Len())
}

func TestRunPairingReturnsCode(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{
		Mode:         ModePairing,
		PhoneNumber:  "919876543210",
		SettleDelay:  5 * time.Millisecond,
		MaxAttempts:  3,
		RetryBackoff: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	client := newFakeClient()
	client.pairCode = "ABCD-1234"

	code, err := d.RunPairing(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", code)

	// Exactly one request, with the configured number.
	assert.Equal(t, []string{"919876543210"}, client.pairCalls)
}

func TestRunPairingRetriesThenFails(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{
		Mode:         ModePairing,
		PhoneNumber:  "919876543210",
		SettleDelay:  time.Millisecond,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	client := newFakeClient()
	client.pairErr = fmt.Errorf("rate-limited")

	_, err = d.RunPairing(context.Background(), client)
	require.ErrorContains(t, err, "after 3 attempts")
	assert.ErrorContains(t, err, "rate-limited")

	assert.Len(t, client.pairCalls, 3)
}

func TestRunPairingRespectsCancellation(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{
		Mode:        ModePairing,
		PhoneNumber: "919876543210",
		SettleDelay: time.Hour,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newFakeClient()
	_, err = d.RunPairing(ctx, client)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.pairCalls)
}
