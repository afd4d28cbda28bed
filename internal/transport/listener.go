// Package transport owns turret's unix-socket listeners and the
// per-connection framed read/write loops built on internal/wire
// (spec.md §4.1, §4.8 "Socket listeners").
package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"
)

// Listener wraps a single unix-socket listener and its accept loop,
// mirroring the listen/clean-stale-socket/ctx-shutdown shape turret's
// other local listeners share.
type Listener struct {
	socketPath string
	ln         net.Listener
}

// Listen removes any stale socket file at socketPath and binds a fresh
// unix listener.
func Listen(socketPath string) (*Listener, error) {
	os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: listen unix %s: %w", socketPath, err)
	}
	return &Listener{socketPath: socketPath, ln: ln}, nil
}

// Close stops accepting new connections. Serve's own goroutine closes
// l.ln on ctx cancellation too; Close exists for callers (Engage's error
// paths, Disengage) that need to stop a listener without a context.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts connections until ctx is cancelled or the listener fails,
// invoking handle for each accepted connection in its own goroutine.
func (l *Listener) Serve(ctx context.Context, handle func(net.Conn)) error {
	defer os.Remove(l.socketPath)

	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("transport: accept on %s: %w", l.socketPath, err)
			}
		}
		go handle(conn)
	}
}

// dialTimeout bounds how long a test dialer waits for the listener to
// come up.
const dialTimeout = 2 * time.Second
