package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBroadcaster_BroadcastAssignsEnvelope(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "observer-1", Conn: serverConn})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast("status", "Connected & online")

	var event EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&event))

	assert.Equal(t, "event", event.Type)
	assert.Equal(t, "status", event.Event)
	assert.Equal(t, "Connected & online", event.Data)
	assert.NotZero(t, event.Seq)
	assert.NotZero(t, event.Timestamp)
}

func TestEventBroadcaster_SequenceIsMonotonic(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "observer-1", Conn: serverConn})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast("qr", "data:image/png;base64,AAAA")
	broadcaster.Broadcast("qr", nil)
	broadcaster.Broadcast("status", "Connected & online")

	var prev int64
	for i := 0; i < 3; i++ {
		var event EventMessage
		require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, clientConn.ReadJSON(&event))
		assert.Greater(t, event.Seq, prev)
		prev = event.Seq
	}
}

func TestEventBroadcaster_FansOutToAllObservers(t *testing.T) {
	serverConn1, clientConn1, cleanup1 := websocketConnPair(t)
	defer cleanup1()
	serverConn2, clientConn2, cleanup2 := websocketConnPair(t)
	defer cleanup2()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "observer-1", Conn: serverConn1})
	registry.Add(&Client{ID: "observer-2", Conn: serverConn2})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast("new_message", map[string]any{
		"remoteJid": "628123@s.whatsapp.net",
		"pushName":  "Alice",
		"text":      "ping",
	})

	for _, clientConn := range []*websocket.Conn{clientConn1, clientConn2} {
		var event EventMessage
		require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, clientConn.ReadJSON(&event))
		assert.Equal(t, "new_message", event.Event)

		data, ok := event.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Alice", data["pushName"])
		assert.Equal(t, "ping", data["text"])
	}
}

func TestEventBroadcaster_SurvivesDetachedObserver(t *testing.T) {
	serverConn1, clientConn1, cleanup1 := websocketConnPair(t)
	defer cleanup1()
	serverConn2, clientConn2, cleanup2 := websocketConnPair(t)
	defer cleanup2()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "observer-1", Conn: serverConn1})
	registry.Add(&Client{ID: "observer-2", Conn: serverConn2})

	// Drop the first observer out from under the broadcaster.
	require.NoError(t, serverConn1.Close())
	clientConn1.Close()

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast("status", "still here")

	var event EventMessage
	require.NoError(t, clientConn2.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn2.ReadJSON(&event))
	assert.Equal(t, "still here", event.Data)
}

func TestClientRegistry(t *testing.T) {
	registry := NewClientRegistry()
	assert.Zero(t, registry.Count())

	registry.Add(&Client{ID: "a"})
	registry.Add(&Client{ID: "b"})
	assert.Equal(t, 2, registry.Count())
	assert.Len(t, registry.GetAll(), 2)

	registry.Remove("a")
	assert.Equal(t, 1, registry.Count())
	registry.Remove("missing")
	assert.Equal(t, 1, registry.Count())
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		clientConn.Close()
		if serverConn != nil {
			serverConn.Close()
		}
		srv.Close()
	}
	return serverConn, clientConn, cleanup
}
