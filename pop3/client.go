package pop3

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/ziembor/gomailtesttool/internal/metrics"
)

// MessageInfo is one entry of a LIST or UIDL response.
type MessageInfo struct {
	Number int
	Size   int
	Uid    string
}

// Client is the Facade described in §4.F: it enforces state
// preconditions and builds the pipelined Command groups the Engine
// executes. Every exported method either returns a client-side state
// error without touching the network, or performs exactly the wire
// exchange its name implies. Single-message operations (GetMessage,
// GetMessageHeaders, DeleteMessage, GetMessageUid) take the 1-based
// message number used on the wire directly. The bulk RETR entry points
// (GetMessages, GetStreams) instead take 0-based mailbox positions, so
// callers can drive them straight off a Go slice index.
type Client struct {
	eng     *Engine
	host    string
	port    int
	options ConnectOptions

	logger  *Logger
	metrics metrics.Collector

	// OnConnected and OnDisconnected are invoked synchronously, on the
	// calling goroutine, immediately after the corresponding transition.
	// Either may be nil.
	OnConnected    func(ConnectedEvent)
	OnDisconnected func(DisconnectedEvent)
}

// NewClient constructs an unconnected Client. out receives a
// human-readable transcript of the session if non-nil; sl receives
// structured slog records if non-nil; mc receives metrics if non-nil.
func NewClient(out io.Writer, sl *slog.Logger, mc metrics.Collector) *Client {
	return &Client{
		logger:  NewLogger(out, sl, mc),
		metrics: mc,
	}
}

// State returns the current connection state, or StateDisconnected if
// Connect has never succeeded.
func (c *Client) State() ConnState {
	if c.eng == nil {
		return StateDisconnected
	}
	return c.eng.State()
}

// Capabilities returns the most recently negotiated capability set, or
// an empty set before the first successful Connect.
func (c *Client) Capabilities() *CapabilitySet {
	if c.eng == nil {
		return NewCapabilitySet()
	}
	return c.eng.Capabilities()
}

// TLSActive reports whether the current transport is TLS, either from
// an implicit-TLS Connect or a successful STLS upgrade.
func (c *Client) TLSActive() bool {
	return c.eng != nil && c.eng.TLSActive()
}

// Connect dials host:port, performs the greeting/CAPA handshake, and
// applies the TLS strategy selected by options (see ComputeDefaults for
// how a zero port and OptionsAuto resolve). tlsCfg is used for both the
// implicit-TLS dial and a STLS upgrade; nil selects sane defaults.
func (c *Client) Connect(ctx context.Context, host string, port int, options ConnectOptions, tlsCfg *tls.Config) error {
	if c.eng != nil && c.eng.State() != StateDisconnected {
		return ErrAlreadyConnected
	}

	_, resolvedPort, wantStartTLS := ComputeDefaults(port, options)
	isSslOnConnect := options == OptionsSslOnConnect || (options == OptionsAuto && resolvedPort == 995)

	var conn net.Conn
	var err error
	if isSslOnConnect {
		conn, err = DefaultConnectTLS(ctx, host, resolvedPort, tlsCfg)
	} else {
		conn, err = DefaultConnect(ctx, host, resolvedPort)
	}
	if err != nil {
		return &IoError{Op: "connect", Err: err}
	}

	eng := NewEngine(conn, host, c.logger, c.metrics)
	c.eng = eng

	if err := eng.Handshake(ctx); err != nil {
		return err
	}

	if wantStartTLS && !isSslOnConnect {
		err := eng.StartTLS(ctx, tlsCfg, nil)
		if err != nil {
			if options == OptionsStartTls {
				c.disconnectInternal(host, resolvedPort, options, false)
				return err
			}
			// OptionsStartTlsWhenAvailable / OptionsAuto: proceed in
			// plaintext if the server didn't offer Stls at all.
			if _, notSupported := err.(*NotSupported); !notSupported {
				c.disconnectInternal(host, resolvedPort, options, false)
				return err
			}
		}
	}

	c.host, c.port, c.options = host, resolvedPort, options
	if c.OnConnected != nil {
		c.OnConnected(ConnectedEvent{Host: host, Port: resolvedPort, Options: options})
	}
	return nil
}

// AuthMethod selects how Authenticate proves identity.
type AuthMethod int

const (
	// AuthAuto tries, in order, APOP (if advertised and a greeting
	// timestamp was captured), then SASL PLAIN (if advertised), then
	// plain USER/PASS, matching §4.F's stated preference order.
	AuthAuto AuthMethod = iota
	AuthUserPass
	AuthApop
	AuthSasl
)

// Authenticate transitions Connected -> Transaction. For AuthSasl, pass
// a pre-built Mechanism via AuthenticateWith instead; this entry point
// covers USER/PASS, APOP, and the automatic preference order.
func (c *Client) Authenticate(ctx context.Context, method AuthMethod, username, password string) error {
	if c.eng == nil || c.eng.State() == StateDisconnected {
		return ErrNotConnected
	}
	if c.eng.State() != StateConnected {
		return ErrAlreadyAuthenticated
	}

	caps := c.eng.Capabilities()
	switch method {
	case AuthApop:
		return c.authApop(ctx, username, password)
	case AuthUserPass:
		return c.authUserPass(ctx, username, password)
	case AuthSasl:
		return c.AuthenticateWith(ctx, NewPlainMechanism("", username, password))
	default: // AuthAuto
		if caps.Has(CapApop) && len(caps.ApopTimestamp) > 0 {
			return c.authApop(ctx, username, password)
		}
		if caps.Has(CapSasl) && caps.AuthMechanisms["PLAIN"] {
			return c.AuthenticateWith(ctx, NewPlainMechanism("", username, password))
		}
		return c.authUserPass(ctx, username, password)
	}
}

// AuthenticateWith runs a specific SASL mechanism, for XOAUTH2 or any
// other mechanism a caller builds directly.
func (c *Client) AuthenticateWith(ctx context.Context, mech Mechanism) error {
	if c.eng == nil || c.eng.State() == StateDisconnected {
		return ErrNotConnected
	}
	if c.eng.State() != StateConnected {
		return ErrAlreadyAuthenticated
	}
	if err := c.eng.authenticateSASL(ctx, mech); err != nil {
		c.metricsOrNoop().AuthAttempt(mech.Name(), false)
		return err
	}
	c.metricsOrNoop().AuthAttempt(mech.Name(), true)
	c.eng.state = StateTransaction
	return nil
}

func (c *Client) authUserPass(ctx context.Context, username, password string) error {
	user := cmdUSER(username)
	if err := c.eng.Flush(ctx, []*Command{user}); err != nil {
		return err
	}
	if user.Status != StatusOk {
		return &AuthFailure{Mechanism: "USER", Text: user.Err.Error()}
	}

	pass := cmdPASS(password)
	if err := c.eng.Flush(ctx, []*Command{pass}); err != nil {
		return err
	}
	if pass.Status != StatusOk {
		c.metricsOrNoop().AuthAttempt("USER", false)
		return &AuthFailure{Mechanism: "PASS", Text: pass.Err.Error()}
	}

	c.metricsOrNoop().AuthAttempt("USER", true)
	c.eng.state = StateTransaction
	return nil
}

func (c *Client) authApop(ctx context.Context, username, password string) error {
	ts := c.eng.Capabilities().ApopTimestamp
	if len(ts) == 0 {
		return &NotSupported{Feature: "APOP (no greeting timestamp)"}
	}
	sum := md5.Sum(append(append([]byte{}, ts...), []byte(password)...))
	digest := hex.EncodeToString(sum[:])

	cmd := cmdAPOP(username, digest)
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		c.metricsOrNoop().AuthAttempt("APOP", false)
		return &AuthFailure{Mechanism: "APOP", Text: cmd.Err.Error()}
	}
	c.metricsOrNoop().AuthAttempt("APOP", true)
	c.eng.state = StateTransaction
	return nil
}

func (c *Client) metricsOrNoop() metrics.Collector {
	if c.metrics == nil {
		return metrics.NoopCollector{}
	}
	return c.metrics
}

// EnableUtf8 is always rejected: per the resolved open question, this
// client never attempts post-authentication UTF8 negotiation, since
// RFC 6856 requires it before USER/PASS/APOP and the capability set is
// never re-read mid-transaction to discover it changed.
func (c *Client) EnableUtf8(ctx context.Context) error {
	if c.eng == nil || c.eng.State() == StateDisconnected {
		return ErrNotConnected
	}
	if c.eng.State() == StateTransaction {
		return ErrAlreadyAuthenticated
	}
	if !c.eng.Capabilities().Has(CapUtf8) {
		return &NotSupported{Feature: "UTF8"}
	}
	cmd := cmdUTF8()
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		return cmd.Err
	}
	return nil
}

// NoOp sends NOOP, usable in either Connected or Transaction state to
// keep an idle connection alive.
func (c *Client) NoOp(ctx context.Context) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	cmd := cmdNOOP()
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		return cmd.Err
	}
	return nil
}

// GetMessageCount returns the mailbox's message count via STAT.
func (c *Client) GetMessageCount(ctx context.Context) (int, error) {
	if err := c.requireTransaction(); err != nil {
		return 0, err
	}
	var count, size int
	cmd := &Command{
		Verb: "STAT",
		Raw:  []byte("STAT\r\n"),
		Handle: func(lr *LineReader, ok bool, text string) error {
			if ok {
				_, err := fmt.Sscanf(text, "%d %d", &count, &size)
				return err
			}
			return nil
		},
	}
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return 0, err
	}
	if cmd.Status != StatusOk {
		return 0, cmd.Err
	}
	return count, nil
}

// GetMessageSizes returns the size of every message via LIST with no
// argument.
func (c *Client) GetMessageSizes(ctx context.Context) ([]MessageInfo, error) {
	if err := c.requireTransaction(); err != nil {
		return nil, err
	}
	var infos []MessageInfo
	cmd := &Command{
		Verb: "LIST",
		Raw:  []byte("LIST\r\n"),
		Handle: func(lr *LineReader, ok bool, text string) error {
			if !ok {
				return nil
			}
			var lines [][]byte
			if err := readMultilineInto(lr, &lines); err != nil {
				return err
			}
			for _, l := range lines {
				var num, size int
				if _, err := fmt.Sscanf(string(l), "%d %d", &num, &size); err == nil {
					infos = append(infos, MessageInfo{Number: num, Size: size})
				}
			}
			return nil
		},
	}
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return nil, err
	}
	if cmd.Status != StatusOk {
		return nil, cmd.Err
	}
	return infos, nil
}

// GetMessageSize returns the size of a single message via LIST n.
func (c *Client) GetMessageSize(ctx context.Context, num int) (int, error) {
	if err := c.requireTransaction(); err != nil {
		return 0, err
	}
	var size int
	cmd := cmdLIST(num)
	cmd.Handle = func(lr *LineReader, ok bool, text string) error {
		if ok {
			var got int
			_, err := fmt.Sscanf(text, "%d %d", &got, &size)
			return err
		}
		return nil
	}
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return 0, err
	}
	if cmd.Status != StatusOk {
		return 0, cmd.Err
	}
	return size, nil
}

// GetMessageUids returns the UIDL string of every message. If the
// server did not advertise Uidl, a single-message probe ("UIDL 1") is
// attempted first per §4.C; a failed probe returns NotSupported.
func (c *Client) GetMessageUids(ctx context.Context) ([]MessageInfo, error) {
	if err := c.requireTransaction(); err != nil {
		return nil, err
	}
	if !c.eng.Capabilities().Has(CapUidl) {
		if err := c.probeUidl(ctx); err != nil {
			return nil, err
		}
	}

	var infos []MessageInfo
	cmd := &Command{
		Verb: "UIDL",
		Raw:  []byte("UIDL\r\n"),
		Handle: func(lr *LineReader, ok bool, text string) error {
			if !ok {
				return nil
			}
			var lines [][]byte
			if err := readMultilineInto(lr, &lines); err != nil {
				return err
			}
			for _, l := range lines {
				var num int
				var uid string
				if _, err := fmt.Sscanf(string(l), "%d %s", &num, &uid); err == nil {
					infos = append(infos, MessageInfo{Number: num, Uid: uid})
				}
			}
			return nil
		},
	}
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return nil, err
	}
	if cmd.Status != StatusOk {
		return nil, cmd.Err
	}
	return infos, nil
}

// GetMessageUid returns the UIDL string of a single message via
// UIDL n, probing for Uidl support the same way GetMessageUids does.
func (c *Client) GetMessageUid(ctx context.Context, num int) (string, error) {
	if err := c.requireTransaction(); err != nil {
		return "", err
	}
	if !c.eng.Capabilities().Has(CapUidl) {
		if err := c.probeUidl(ctx); err != nil {
			return "", err
		}
	}
	var uid string
	cmd := cmdUIDL(num)
	cmd.Handle = func(lr *LineReader, ok bool, text string) error {
		if ok {
			var got int
			_, err := fmt.Sscanf(text, "%d %s", &got, &uid)
			return err
		}
		return nil
	}
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return "", err
	}
	if cmd.Status != StatusOk {
		return "", cmd.Err
	}
	return uid, nil
}

func (c *Client) probeUidl(ctx context.Context) error {
	cmd := cmdUIDL(1)
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		return &NotSupported{Feature: "UIDL"}
	}
	c.eng.Capabilities().AddUidlProbeSuccess()
	return nil
}

// GetMessage retrieves the full message body via RETR, as a stream
// rather than a slurped buffer so a large message does not need to fit
// in memory at once.
func (c *Client) GetMessage(ctx context.Context, num int) (io.Reader, error) {
	return c.retrieve(ctx, cmdRETR(num))
}

// GetMessageHeaders retrieves the headers and the first n body lines
// via TOP.
func (c *Client) GetMessageHeaders(ctx context.Context, num, lines int) (io.Reader, error) {
	if err := c.requireTransaction(); err != nil {
		return nil, err
	}
	if !c.eng.Capabilities().Has(CapTop) {
		return nil, &NotSupported{Feature: "TOP"}
	}
	return c.retrieve(ctx, cmdTOP(num, lines))
}

// retrieve flushes a RETR or TOP command and fully drains its
// multi-line payload into memory before returning. The payload must be
// consumed before Flush returns so that Command.Handle's FIFO
// contract holds for whatever command is flushed next on this
// connection; a caller wanting true streaming would need its own
// dedicated connection per in-flight retrieval, which this Facade does
// not offer.
func (c *Client) retrieve(ctx context.Context, cmd *Command) (io.Reader, error) {
	if err := c.requireTransaction(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	cmd.Handle = func(lr *LineReader, ok bool, text string) error {
		if !ok {
			return nil
		}
		_, err := io.Copy(&buf, lr.OpenPayloadStream())
		return err
	}
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return nil, err
	}
	if cmd.Status != StatusOk {
		return nil, cmd.Err
	}
	return &buf, nil
}

// GetMessages retrieves several message bodies via RETR, pipelined
// into a single wire write when the server advertises Pipelining, per
// §4.D: one write carrying every RETR line, followed by N multi-line
// payloads consumed in order. positions are 0-based offsets into the
// mailbox, translated to the 1-based message numbers RETR expects on
// the wire, so this bulk entry point can be driven directly off Go
// slice indices. Result order matches input order; duplicates in
// positions are preserved; an empty slice returns nil without touching
// the wire.
func (c *Client) GetMessages(ctx context.Context, positions []int) ([]io.Reader, error) {
	return c.retrieveBulk(ctx, positions, cmdRETR)
}

// GetStreams is GetMessages under the name §4.F's bulk operation table
// gives the payload-stream form of RETR. The Engine dispatches a
// pipelined group's responses strictly in FIFO order (§4.D), so there
// is no concurrent streaming to offer beyond what GetMessages already
// does; the two share an implementation.
func (c *Client) GetStreams(ctx context.Context, positions []int) ([]io.Reader, error) {
	return c.retrieveBulk(ctx, positions, cmdRETR)
}

// retrieveBulk flushes one command per position as a single pipelined
// group and fully drains each multi-line payload into its own buffer
// before Flush returns, for the same FIFO reason retrieve drains a
// lone command's payload immediately.
func (c *Client) retrieveBulk(ctx context.Context, positions []int, build func(int) *Command) ([]io.Reader, error) {
	if err := c.requireTransaction(); err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	cmds := make([]*Command, len(positions))
	bufs := make([]bytes.Buffer, len(positions))
	for i, pos := range positions {
		cmd := build(pos + 1)
		buf := &bufs[i]
		cmd.Handle = func(lr *LineReader, ok bool, text string) error {
			if !ok {
				return nil
			}
			_, err := io.Copy(buf, lr.OpenPayloadStream())
			return err
		}
		cmds[i] = cmd
	}
	if err := c.eng.Flush(ctx, cmds); err != nil {
		return nil, err
	}
	readers := make([]io.Reader, len(cmds))
	for i, cmd := range cmds {
		if cmd.Status != StatusOk {
			return nil, cmd.Err
		}
		readers[i] = &bufs[i]
	}
	return readers, nil
}

// DeleteMessage marks one message for deletion.
func (c *Client) DeleteMessage(ctx context.Context, num int) error {
	if err := c.requireTransaction(); err != nil {
		return err
	}
	cmd := cmdDELE(num)
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		return cmd.Err
	}
	return nil
}

// DeleteMessages marks several messages for deletion, pipelined into a
// single wire write when the server advertises Pipelining, per §4.D.
func (c *Client) DeleteMessages(ctx context.Context, nums []int) error {
	if err := c.requireTransaction(); err != nil {
		return err
	}
	cmds := make([]*Command, len(nums))
	for i, n := range nums {
		cmds[i] = cmdDELE(n)
	}
	if err := c.eng.Flush(ctx, cmds); err != nil {
		return err
	}
	for _, cmd := range cmds {
		if cmd.Status != StatusOk {
			return cmd.Err
		}
	}
	return nil
}

// Reset undoes any DELE marks in the current session via RSET.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.requireTransaction(); err != nil {
		return err
	}
	cmd := cmdRSET()
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		return cmd.Err
	}
	return nil
}

// GetLanguages lists the server's supported languages via LANG with no
// argument (RFC 6856).
func (c *Client) GetLanguages(ctx context.Context) ([]string, error) {
	if err := c.requireConnectedOrTransaction(); err != nil {
		return nil, err
	}
	if !c.eng.Capabilities().Has(CapLang) {
		return nil, &NotSupported{Feature: "LANG"}
	}
	var langs []string
	cmd := cmdLANG("")
	cmd.Handle = func(lr *LineReader, ok bool, text string) error {
		if !ok {
			return nil
		}
		var lines [][]byte
		if err := readMultilineInto(lr, &lines); err != nil {
			return err
		}
		for _, l := range lines {
			langs = append(langs, string(l))
		}
		return nil
	}
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return nil, err
	}
	if cmd.Status != StatusOk {
		return nil, cmd.Err
	}
	return langs, nil
}

// SetLanguage selects a language via LANG <code>.
func (c *Client) SetLanguage(ctx context.Context, code string) error {
	if err := c.requireConnectedOrTransaction(); err != nil {
		return err
	}
	if !c.eng.Capabilities().Has(CapLang) {
		return &NotSupported{Feature: "LANG"}
	}
	cmd := cmdLANG(code)
	if err := c.eng.Flush(ctx, []*Command{cmd}); err != nil {
		return err
	}
	if cmd.Status != StatusOk {
		return cmd.Err
	}
	return nil
}

// Disconnect sends QUIT and closes the transport, firing
// OnDisconnected with IsRequested true.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.eng == nil || c.eng.State() == StateDisconnected {
		return ErrNotConnected
	}
	cmd := cmdQUIT()
	_ = c.eng.Flush(ctx, []*Command{cmd})
	c.disconnectInternal(c.host, c.port, c.options, true)
	return nil
}

func (c *Client) disconnectInternal(host string, port int, options ConnectOptions, requested bool) {
	if c.eng != nil {
		_ = c.eng.Close()
	}
	if c.OnDisconnected != nil {
		c.OnDisconnected(DisconnectedEvent{Host: host, Port: port, Options: options, IsRequested: requested})
	}
}

func (c *Client) requireConnected() error {
	if c.eng == nil || c.eng.State() == StateDisconnected {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) requireTransaction() error {
	if c.eng == nil || c.eng.State() == StateDisconnected {
		return ErrNotConnected
	}
	if c.eng.State() != StateTransaction {
		return ErrNotAuthenticated
	}
	return nil
}

func (c *Client) requireConnectedOrTransaction() error {
	if c.eng == nil || c.eng.State() == StateDisconnected {
		return ErrNotConnected
	}
	return nil
}
