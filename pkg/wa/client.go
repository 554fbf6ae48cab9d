package wa

import "context"

// EventHandler receives client events. Handlers for one client are invoked
// sequentially in emission order.
type EventHandler func(evt any)

// Client is the handle to the external messaging service consumed by the
// connection manager. Exactly one live Client exists per process; the
// manager discards it and builds a new one on every reconnect.
//
// Events delivered to registered handlers are ConnectionUpdate,
// CredentialsUpdate and MessageBatch values.
type Client interface {
	// AddEventHandler registers a handler and returns an id for removal.
	AddEventHandler(h EventHandler) uint32
	// RemoveEventHandler unregisters a handler. It reports whether the
	// handler was registered.
	RemoveEventHandler(id uint32) bool

	// Connect starts the session handshake. For an unregistered client it
	// also begins emitting QR bootstrap payloads via ConnectionUpdate.
	Connect(ctx context.Context) error
	// Disconnect tears the network connection down without logging out.
	Disconnect()

	// Registered reports whether stored credentials are already linked to a
	// device, i.e. whether bootstrap can be skipped.
	Registered() bool

	// PairPhone requests a phone pairing code bound to the given number.
	// The connection must have progressed far enough to accept the request.
	PairPhone(ctx context.Context, number string) (string, error)

	// SendText sends a plain text message to the given chat JID.
	SendText(ctx context.Context, jid string, text string) error
}
