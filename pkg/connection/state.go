package connection

// State is the lifecycle state of the managed session.
type State string

const (
	// StateInitializing covers session creation through handshake.
	StateInitializing State = "initializing"
	// StateAwaitingCredential means a bootstrap artifact (QR or pairing
	// code) has been issued and the operator must act on it.
	StateAwaitingCredential State = "awaiting-credential"
	// StateOpen means the session is authenticated and live.
	StateOpen State = "open"
	// StateClosedRetryable means the session was lost and a reconnect is
	// pending.
	StateClosedRetryable State = "closed-retryable"
	// StateClosedTerminal means the user unlinked the device. The manager
	// takes no further action; the operator must clear the credential store
	// and restart.
	StateClosedTerminal State = "closed-terminal"
)

// States lists every state, in lifecycle order. Used for metrics.
func States() []State {
	return []State{
		StateInitializing,
		StateAwaitingCredential,
		StateOpen,
		StateClosedRetryable,
		StateClosedTerminal,
	}
}

// Snapshot is the manager's externally visible state, synthesized for
// observers that attach between transitions.
type Snapshot struct {
	State    State
	Status   string
	Artifact string // latest QR data URI, empty when no artifact is shown
}

// Open reports whether the session is currently authenticated and live.
func (s Snapshot) Open() bool {
	return s.State == StateOpen
}
