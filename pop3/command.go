package pop3

// CommandStatus tracks a Command through its lifecycle in the pipeline.
type CommandStatus int

const (
	StatusQueued CommandStatus = iota
	StatusActive
	StatusOk
	StatusErr
	StatusProtocolError
)

// maxPipelineGroup bounds how many commands may be concatenated into a
// single wire write, per §4.D.
const maxPipelineGroup = 100

// Command is one enqueued POP3 request: its raw wire bytes, whether its
// arguments (and any continuation lines) are secret, a handler that
// consumes exactly this command's response from the shared LineReader,
// and the outcome of running it.
//
// Handle is called with the status line already split into ok/text by
// the Engine; it is responsible for reading any additional multi-line
// payload this particular command's response carries (CAPA, LIST,
// UIDL, RETR, TOP) by calling back into the LineReader it is given.
type Command struct {
	Verb   string
	Raw    []byte
	Secret bool
	Status CommandStatus

	// Handle processes this command's response. ok and text are the
	// parsed status line; lr is positioned immediately after the
	// status line so Handle may read further lines for a multi-line
	// response. Handle must always fully consume its own response,
	// even when ok is false, so that FIFO ordering is preserved for
	// the next command in a pipelined group.
	Handle func(lr *LineReader, ok bool, text string) error

	Err error
}

// Groupable reports whether this command may be batched with other
// groupable commands in one pipelined flush. USER/PASS and AUTH
// continuations are never groupable, matching §4.D.
func (c *Command) Groupable() bool {
	switch c.Verb {
	case "RETR", "TOP", "DELE", "LIST", "UIDL", "NOOP":
		return true
	default:
		return false
	}
}

// splitGroups partitions cmds into flush-sized, groupable batches. A
// non-groupable command is always flushed alone.
func splitGroups(cmds []*Command) [][]*Command {
	var groups [][]*Command
	var current []*Command
	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
	}
	for _, c := range cmds {
		if !c.Groupable() {
			flush()
			groups = append(groups, []*Command{c})
			continue
		}
		current = append(current, c)
		if len(current) >= maxPipelineGroup {
			flush()
		}
	}
	flush()
	return groups
}
