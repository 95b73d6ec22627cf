package pop3

// ConnState is the connection's position in the POP3 state machine.
type ConnState int

const (
	// StateDisconnected is the initial state and the state after any
	// transport failure or explicit disconnect.
	StateDisconnected ConnState = iota
	// StateConnected means the greeting has been read but the session
	// is not yet authenticated.
	StateConnected
	// StateTransaction means the session authenticated successfully and
	// may read/delete messages.
	StateTransaction
	// StateClosing means QUIT has been sent and a final response is
	// pending before the transport is torn down.
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateTransaction:
		return "transaction"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
