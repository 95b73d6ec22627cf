// Package metrics defines the observability surface the POP3 engine
// reports through, independent of whether anything is actually
// scraping it.
package metrics

// Collector receives counters from one or more live POP3 sessions. All
// methods must be safe for concurrent use: a process may run several
// sessions (and therefore several Engines) against the same Collector.
type Collector interface {
	// CommandsFlushed records that n commands were written in a single
	// flush (n == 1 for an unpipelined command).
	CommandsFlushed(n int)
	// BytesWritten and BytesRead record wire traffic, before and after
	// TLS, in octets.
	BytesWritten(n int)
	BytesRead(n int)
	// AuthAttempt records one authentication attempt for the given
	// mechanism name ("USER", "APOP", or a SASL mechanism name) and
	// whether it succeeded.
	AuthAttempt(mechanism string, success bool)
}

// NoopCollector discards everything. It is the default when a caller
// does not wire in a real Collector.
type NoopCollector struct{}

func (NoopCollector) CommandsFlushed(int)          {}
func (NoopCollector) BytesWritten(int)             {}
func (NoopCollector) BytesRead(int)                {}
func (NoopCollector) AuthAttempt(string, bool)     {}

var _ Collector = NoopCollector{}
