package pop3

import "fmt"

// Client-side state-violation sentinels. These are returned without any
// wire traffic: the Facade checks state before touching the transport.
var (
	ErrNotConnected         = stateError("not connected")
	ErrNotAuthenticated     = stateError("not authenticated")
	ErrAlreadyConnected     = stateError("already connected")
	ErrAlreadyAuthenticated = stateError("already authenticated")
	ErrCancelled            = stateError("operation cancelled")
)

// stateError is a tiny named-string error type so that the sentinels above
// each compare distinctly under errors.Is while still printing a readable
// message.
type stateError string

func (e stateError) Error() string { return string(e) }

// IoError wraps a transport-level failure: a read, write, or timeout on
// the underlying connection. The session is always closed before an
// IoError is returned to the caller.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("pop3: i/o error during %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// ProtocolError means the server sent a response the client could not
// parse, or sent it out of the sequence the protocol allows. The session
// is always closed before a ProtocolError is returned.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "pop3: protocol error: " + e.Msg }

// CommandError carries a server -ERR response to one specific command.
// The session remains usable after a CommandError.
type CommandError struct {
	Verb string
	Text string
	Code string // optional bracketed response code, e.g. "IN-USE"
}

func (e *CommandError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pop3: %s: -ERR [%s] %s", e.Verb, e.Code, e.Text)
	}
	return fmt.Sprintf("pop3: %s: -ERR %s", e.Verb, e.Text)
}

// AuthFailure means the server rejected credentials or a SASL exchange.
// The session remains Connected and a subsequent Authenticate call is
// permitted.
type AuthFailure struct {
	Mechanism string
	Text      string
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("pop3: authentication failed (%s): %s", e.Mechanism, e.Text)
}

// NotSupported means the requested feature was absent from the
// negotiated capability set (including a failed UIDL probe).
type NotSupported struct {
	Feature string
}

func (e *NotSupported) Error() string {
	return "pop3: not supported: " + e.Feature
}
