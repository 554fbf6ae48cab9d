package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	EnsureRegistered()

	SetConnectionState("open")
	RecordReconnectAttempt("started")
	RecordSessionClose("connection-lost")
	RecordQREmission()
	RecordPairingAttempt("success")
	RecordInboundMessage("projected")
	RecordBroadcast("status")
	ObserverAttached()
	ObserverDetached()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	output := string(body)
	assert.Contains(t, output, `connection_state{state="open"} 1`)
	assert.Contains(t, output, "reconnect_attempts_total")
	assert.Contains(t, output, "session_closes_total")
	assert.Contains(t, output, "qr_emissions_total")
	assert.Contains(t, output, "pairing_attempts_total")
	assert.Contains(t, output, "inbound_messages_total")
	assert.Contains(t, output, "broadcasts_total")
	assert.Contains(t, output, "observers_connected 0")
}

func TestSetConnectionStateIsExclusive(t *testing.T) {
	SetConnectionState("initializing")
	SetConnectionState("open")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, req)

	output := rec.Body.String()
	assert.Contains(t, output, `connection_state{state="open"} 1`)
	assert.NotContains(t, output, `connection_state{state="initializing"}`)
}
