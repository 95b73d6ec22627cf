package pop3

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/emersion/go-sasl"
)

// Mechanism is the trait a SASL driver must satisfy for the Engine to
// run an AUTH exchange against it, per §4.G. It wraps an
// github.com/emersion/go-sasl client so every mechanism that library
// ships (PLAIN, LOGIN, OAuthBearer/XOAUTH2-style, EXTERNAL, ...) is
// usable here without a bespoke adapter per mechanism.
type Mechanism interface {
	// Name is the SASL mechanism name as advertised in CAPA SASL.
	Name() string
	// Start returns the initial response, if this mechanism supports
	// sending one inline with the AUTH command.
	Start() (ir []byte, err error)
	// Next computes the response to a server challenge.
	Next(challenge []byte) (response []byte, err error)
}

// saslMechanism adapts a go-sasl Client to Mechanism.
type saslMechanism struct {
	name   string
	client sasl.Client
}

func (m *saslMechanism) Name() string { return m.name }

func (m *saslMechanism) Start() ([]byte, error) {
	_, ir, err := m.client.Start()
	return ir, err
}

func (m *saslMechanism) Next(challenge []byte) ([]byte, error) {
	return m.client.Next(challenge)
}

// NewPlainMechanism builds the PLAIN mechanism (RFC 4616) via go-sasl.
func NewPlainMechanism(identity, username, password string) Mechanism {
	return &saslMechanism{name: "PLAIN", client: sasl.NewPlainClient(identity, username, password)}
}

// NewLoginMechanism builds the (non-standard but widely deployed) LOGIN
// mechanism via go-sasl.
func NewLoginMechanism(username, password string) Mechanism {
	return &saslMechanism{name: "LOGIN", client: sasl.NewLoginClient(username, password)}
}

// NewXOAUTH2Mechanism builds the XOAUTH2 mechanism, used by Gmail and
// Microsoft 365 IMAP/POP3/SMTP, via go-sasl's OAuthBearer client. Per
// RFC, a server rejecting the bearer token responds with a JSON error
// object as a SASL continuation; the client must answer with an empty
// response to complete the failed exchange, which go-sasl's OAuthBearer
// client does for us.
func NewXOAUTH2Mechanism(username, token string) Mechanism {
	return &saslMechanism{
		name: "XOAUTH2",
		client: sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: username,
			Token:    token,
		}),
	}
}

// authenticateSASL runs the AUTH mechanism exchange described in §4.G
// and scenario S7: AUTH <mech>[ <ir>], then a line-by-line base64
// challenge/response loop until the server returns +OK or -ERR. AUTH
// is never groupable with other commands (§4.D), so this drives the
// wire directly rather than going through Flush/Command: each
// continuation's content depends on the previous line the server sent,
// which doesn't fit the fixed-shape one-shot Command.Handle model.
func (e *Engine) authenticateSASL(ctx context.Context, mech Mechanism) error {
	if !e.caps.Has(CapSasl) || !e.caps.AuthMechanisms[mech.Name()] {
		return &NotSupported{Feature: "AUTH " + mech.Name()}
	}

	ir, err := mech.Start()
	if err != nil {
		return &AuthFailure{Mechanism: mech.Name(), Text: err.Error()}
	}

	raw := "AUTH " + mech.Name()
	if ir != nil {
		raw += " " + base64.StdEncoding.EncodeToString(ir)
	}
	raw += "\r\n"

	if e.logger != nil {
		e.logger.LogClient([]byte("AUTH " + mech.Name()))
	}
	if err := e.writeDeadlined(ctx, []byte(raw)); err != nil {
		e.fail()
		return err
	}

	line, err := e.readLineDeadlined(ctx)
	if err != nil {
		e.fail()
		return err
	}
	if e.logger != nil {
		e.logger.LogServer(line)
	}
	kind, text := parseAuthLine(string(line))

	for kind == authContinue {
		challenge, decodeErr := base64.StdEncoding.DecodeString(text)
		if decodeErr != nil {
			e.fail()
			return &ProtocolError{Msg: "malformed SASL continuation: " + text}
		}
		resp, nextErr := mech.Next(challenge)
		if nextErr != nil {
			return &AuthFailure{Mechanism: mech.Name(), Text: nextErr.Error()}
		}

		respRaw := base64.StdEncoding.EncodeToString(resp) + "\r\n"
		if e.logger != nil {
			e.logger.LogClient([]byte(redactedToken))
		}
		if err := e.writeDeadlined(ctx, []byte(respRaw)); err != nil {
			e.fail()
			return err
		}

		respLine, err := e.readLineDeadlined(ctx)
		if err != nil {
			e.fail()
			return err
		}
		if e.logger != nil {
			e.logger.LogServer(respLine)
		}
		kind, text = parseAuthLine(string(respLine))
	}

	switch kind {
	case authOK:
		return nil
	case authErr:
		return &AuthFailure{Mechanism: mech.Name(), Text: text}
	default:
		e.fail()
		return &ProtocolError{Msg: "malformed response during AUTH: " + text}
	}
}

// authLineKind distinguishes the three shapes a line in a SASL
// exchange can take: a terminal success, a terminal failure, or a
// bare "+ " continuation request carrying a base64 challenge.
type authLineKind int

const (
	authMalformed authLineKind = iota
	authOK
	authErr
	authContinue
)

func parseAuthLine(line string) (authLineKind, string) {
	switch {
	case strings.HasPrefix(line, "+OK"):
		return authOK, strings.TrimPrefix(strings.TrimPrefix(line, "+OK"), " ")
	case strings.HasPrefix(line, "-ERR"):
		return authErr, strings.TrimPrefix(strings.TrimPrefix(line, "-ERR"), " ")
	case strings.HasPrefix(line, "+ "):
		return authContinue, strings.TrimPrefix(line, "+ ")
	case line == "+":
		return authContinue, ""
	default:
		return authMalformed, ""
	}
}
