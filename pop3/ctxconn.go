package pop3

import (
	"context"
	"net"
)

// watchCancellation arranges for conn to be closed the moment ctx is
// done, so that a blocking Read or Write inside the Engine returns
// promptly instead of waiting out the full I/O timeout. The returned
// stop function must be called once the operation completes normally,
// to release the watch without closing the connection.
//
// context.AfterFunc (Go 1.21+) fires its function either immediately,
// if ctx is already done, or exactly once when it becomes done; calling
// the returned stop function before that point prevents it from ever
// firing. This is the same close-on-cancel shape used to bound blocking
// I/O around a context deadline in network clients generally; it is
// implemented here directly against net.Conn and context.AfterFunc
// rather than through any third-party watcher type.
func watchCancellation(ctx context.Context, conn net.Conn) (stop func()) {
	return context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
}
