package pop3

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/ziembor/gomailtesttool/internal/metrics"
)

// DefaultTimeout is the per-I/O-primitive timeout applied when a
// session does not configure one explicitly, per §5.
const DefaultTimeout = 120 * time.Second

// Engine owns the transport, the connection state, and the capability
// set for exactly one POP3 session. It is the only component that ever
// writes to or reads from the wire. It has no knowledge of 0-based vs
// 1-based message indexing or of which operation is in progress; that
// is the Facade's job (component F).
type Engine struct {
	conn    net.Conn
	lr      *LineReader
	host    string
	state   ConnState
	caps    *CapabilitySet
	logger  *Logger
	metrics metrics.Collector
	timeout time.Duration

	tlsActive     bool
	apopTimestamp []byte
}

// NewEngine wraps an already-connected transport. conn must be freshly
// dialed; the greeting has not been read yet. logger and mc may be nil.
func NewEngine(conn net.Conn, host string, logger *Logger, mc metrics.Collector) *Engine {
	if mc == nil {
		mc = metrics.NoopCollector{}
	}
	_, isTLS := conn.(*tls.Conn)
	return &Engine{
		conn:      conn,
		lr:        NewLineReader(conn),
		host:      host,
		state:     StateDisconnected,
		caps:      NewCapabilitySet(),
		logger:    logger,
		metrics:   mc,
		timeout:   DefaultTimeout,
		tlsActive: isTLS,
	}
}

// SetTimeout overrides the default per-I/O timeout.
func (e *Engine) SetTimeout(d time.Duration) { e.timeout = d }

// State returns the engine's current connection state.
func (e *Engine) State() ConnState { return e.state }

// Capabilities returns the engine's current capability set. Callers
// must not mutate it.
func (e *Engine) Capabilities() *CapabilitySet { return e.caps }

// TLSActive reports whether the transport is currently TLS (either
// dialed directly into TLS or upgraded via STLS).
func (e *Engine) TLSActive() bool { return e.tlsActive }

// Handshake reads the server greeting and, on success, issues the
// initial CAPA per §4.E.
func (e *Engine) Handshake(ctx context.Context) error {
	line, err := e.readLineDeadlined(ctx)
	if err != nil {
		e.fail()
		return err
	}
	ok, text := parseStatusLine(string(line))
	if ok == nil {
		e.fail()
		return &ProtocolError{Msg: "malformed greeting: " + string(line)}
	}
	if !*ok {
		e.fail()
		return &ProtocolError{Msg: "server rejected connection: " + text}
	}
	e.apopTimestamp = extractApopTimestamp(text)
	e.state = StateConnected
	return e.RefreshCapabilities(ctx)
}

// RefreshCapabilities issues CAPA and replaces the capability set
// wholesale with the result, per the resolved open question. On a CAPA
// failure the set falls back to User-only, matching §4.C.
func (e *Engine) RefreshCapabilities(ctx context.Context) error {
	var lines [][]byte
	cmd := &Command{
		Verb: "CAPA",
		Raw:  []byte("CAPA\r\n"),
		Handle: func(lr *LineReader, ok bool, text string) error {
			if !ok {
				return nil
			}
			return readMultilineInto(lr, &lines)
		},
	}
	if err := e.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	var fresh *CapabilitySet
	if cmd.Status == StatusOk {
		fresh = ParseCapabilities(lines)
	} else {
		fresh = userOnlyFallback()
	}
	fresh.ApopTimestamp = e.apopTimestamp
	e.caps.Replace(fresh)
	return nil
}

// StartTLS upgrades the transport via STLS and re-issues CAPA, per
// §4.E. upgrade defaults to DefaultStartTLS when nil.
func (e *Engine) StartTLS(ctx context.Context, cfg *tls.Config, upgrade StartTLSFunc) error {
	if e.tlsActive {
		return &NotSupported{Feature: "STLS (TLS already active)"}
	}
	if !e.caps.Has(CapStls) {
		return &NotSupported{Feature: "STLS"}
	}
	if upgrade == nil {
		upgrade = DefaultStartTLS
	}

	cmd := &Command{
		Verb: "STLS",
		Raw:  []byte("STLS\r\n"),
		Handle: func(lr *LineReader, ok bool, text string) error {
			return nil
		},
	}
	if err := e.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		return cmd.Err
	}

	newConn, err := upgrade(ctx, e.conn, e.host, cfg)
	if err != nil {
		e.fail()
		return &IoError{Op: "starttls", Err: err}
	}
	e.conn = newConn
	e.lr = NewLineReader(newConn)
	e.tlsActive = true

	return e.RefreshCapabilities(ctx)
}

// Flush writes one or more commands to the wire, grouping groupable
// commands into pipelined writes per §4.D, and dispatches each
// command's response to its Handle function in FIFO order. A
// transport or protocol failure aborts the whole call and disconnects
// the session; a per-command -ERR does not.
func (e *Engine) Flush(ctx context.Context, cmds []*Command) error {
	if len(cmds) == 0 {
		return nil
	}
	for _, group := range splitGroups(cmds) {
		if err := e.flushGroup(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) flushGroup(ctx context.Context, group []*Command) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}

	var raw []byte
	for _, c := range group {
		c.Status = StatusActive
		raw = append(raw, c.Raw...)
		if e.logger != nil {
			for _, l := range splitCRLFLines(c.Raw) {
				e.logger.LogClient(l)
			}
		}
	}

	if err := e.writeDeadlined(ctx, raw); err != nil {
		e.fail()
		return err
	}
	e.metrics.CommandsFlushed(len(group))

	for _, c := range group {
		line, err := e.readLineDeadlined(ctx)
		if err != nil {
			e.fail()
			return err
		}
		if e.logger != nil {
			e.logger.LogServer(line)
		}
		okPtr, text := parseStatusLine(string(line))
		if okPtr == nil {
			e.fail()
			return &ProtocolError{Msg: "malformed response to " + c.Verb + ": " + string(line)}
		}
		ok := *okPtr

		var handleErr error
		if c.Handle != nil {
			handleErr = c.Handle(e.lr, ok, text)
		}
		if handleErr != nil {
			e.fail()
			return handleErr
		}

		if ok {
			c.Status = StatusOk
		} else {
			c.Status = StatusErr
			c.Err = &CommandError{Verb: c.Verb, Text: text}
		}
	}
	return nil
}

// fail marks the session fatally broken and releases the transport,
// per the failure semantics in §4 ("Transport error... session is
// closed") and the cancellation rule in §4.E.
func (e *Engine) fail() {
	if e.state == StateDisconnected {
		return
	}
	e.state = StateDisconnected
	_ = e.conn.Close()
}

// Close tears down the transport without sending QUIT.
func (e *Engine) Close() error {
	e.state = StateDisconnected
	return e.conn.Close()
}

func (e *Engine) writeDeadlined(ctx context.Context, b []byte) error {
	stop := watchCancellation(ctx, e.conn)
	defer stop()
	if e.timeout > 0 {
		_ = e.conn.SetWriteDeadline(time.Now().Add(e.timeout))
	}
	_, err := e.conn.Write(b)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return &IoError{Op: "write", Err: err}
	}
	return nil
}

func (e *Engine) readLineDeadlined(ctx context.Context) ([]byte, error) {
	stop := watchCancellation(ctx, e.conn)
	defer stop()
	if e.timeout > 0 {
		_ = e.conn.SetReadDeadline(time.Now().Add(e.timeout))
	}
	line, err := e.lr.ReadLine()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, err
	}
	return line, nil
}

// parseStatusLine splits a status line into (ok, text). It returns a
// nil ok pointer for a line that is neither +OK nor -ERR. Bare "+ "
// SASL continuation lines (RFC 5034) are a distinct third case, not
// representable by a boolean, and are handled separately by
// parseAuthLine in the AUTH continuation loop.
func parseStatusLine(line string) (ok *bool, text string) {
	t, f := true, false
	switch {
	case strings.HasPrefix(line, "+OK"):
		text = strings.TrimPrefix(strings.TrimPrefix(line, "+OK"), " ")
		return &t, text
	case strings.HasPrefix(line, "-ERR"):
		text = strings.TrimPrefix(strings.TrimPrefix(line, "-ERR"), " ")
		return &f, text
	default:
		return nil, ""
	}
}

// extractApopTimestamp finds a "<...@...>" token in the greeting text,
// captured as raw bytes exactly as they appeared (§9: do not normalize
// whitespace).
func extractApopTimestamp(greeting string) []byte {
	for start := strings.IndexByte(greeting, '<'); start >= 0; {
		rel := strings.IndexByte(greeting[start:], '>')
		if rel < 0 {
			return nil
		}
		end := start + rel
		token := greeting[start : end+1]
		if strings.IndexByte(token, '@') > 0 {
			return []byte(token)
		}
		next := strings.IndexByte(greeting[end+1:], '<')
		if next < 0 {
			return nil
		}
		start = end + 1 + next
	}
	return nil
}

// readMultilineInto reads a multi-line payload's lines (already past
// the status line) into *lines, unstuffing dots and stopping at the
// sentinel.
func readMultilineInto(lr *LineReader, lines *[][]byte) error {
	for {
		line, err := lr.ReadLine()
		if err != nil {
			return err
		}
		if string(line) == "." {
			return nil
		}
		if len(line) > 0 && line[0] == '.' {
			line = line[1:]
		}
		*lines = append(*lines, line)
	}
}

// splitCRLFLines breaks a possibly multi-command raw buffer back into
// individual CRLF-terminated lines for logging purposes, so that a
// pipelined group's log shows one "C:" entry per command line instead
// of one entry for the whole write.
func splitCRLFLines(raw []byte) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i+1 < len(raw); i++ {
		if raw[i] == '\r' && raw[i+1] == '\n' {
			out = append(out, raw[start:i])
			start = i + 2
			i++
		}
	}
	if start < len(raw) {
		out = append(out, raw[start:])
	}
	return out
}
