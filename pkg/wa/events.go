package wa

// ConnState is the lifecycle state reported by the messaging client.
type ConnState string

const (
	ConnStateConnecting ConnState = "connecting"
	ConnStateOpen       ConnState = "open"
	ConnStateClosed     ConnState = "closed"
)

// CloseReason is the status code attached to a connection close. The values
// match the status codes WhatsApp sends on stream errors; 401 is the one
// reason that means the user unlinked the device and the session cannot be
// recovered without relinking.
type CloseReason int

const (
	CloseUnknown         CloseReason = 0
	CloseLoggedOut       CloseReason = 401
	CloseConnectionLost  CloseReason = 408
	CloseStreamReplaced  CloseReason = 440
	CloseRestartRequired CloseReason = 515
)

// Retryable reports whether a new session may be established automatically
// after a close with this reason.
func (r CloseReason) Retryable() bool {
	return r != CloseLoggedOut
}

func (r CloseReason) String() string {
	switch r {
	case CloseLoggedOut:
		return "logged-out"
	case CloseConnectionLost:
		return "connection-lost"
	case CloseStreamReplaced:
		return "stream-replaced"
	case CloseRestartRequired:
		return "restart-required"
	default:
		return "unknown"
	}
}

// ConnectionUpdate is emitted whenever the client's lifecycle changes or a
// fresh QR bootstrap payload is issued. QRCode is set independently of State:
// a new payload supersedes any previously issued one.
type ConnectionUpdate struct {
	State      ConnState
	ReasonCode CloseReason // valid only when State is ConnStateClosed
	QRCode     string      // raw QR payload, empty when no fresh artifact
}

// CredentialsUpdate is emitted when the client mutated its stored
// authentication state and the mutation should be persisted.
type CredentialsUpdate struct{}

// RawMessage is the client-level view of one inbound message, carrying just
// the fields the projection needs.
type RawMessage struct {
	FromMe       bool
	RemoteJID    string
	PushName     string
	Conversation string
	ExtendedText string
	HasContent   bool
}

// MessageBatch groups inbound messages delivered together by the client.
type MessageBatch struct {
	Messages []RawMessage
}
