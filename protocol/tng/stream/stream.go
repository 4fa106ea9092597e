// Package stream implements the TNG command session framing: a persistent,
// ordered byte stream carrying carriage-return-terminated commands and
// semicolon-terminated responses.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol/tng/shared"
)

// Transport frames one device's command session.  It owns the underlying
// socket exclusively; no other component may read or write it directly.
// Transport does not serialize callers, that is the session owner's job.
type Transport struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	trace   io.Writer

	mu      sync.Mutex
	closed  bool
	suspect bool
}

// Dial opens a stream socket to the device with a bounded connection
// timeout.  The luminaire firmware enforces a single client per session
// slot and refuses further connections, so a refused dial maps to
// common.ErrAlreadyConnected; every other dial failure maps to
// common.ErrConnectFailed.
func Dial(ctx context.Context, address string, port int, config *common.Config) (*Transport, error) {
	dialer := net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, `tcp`, net.JoinHostPort(address, fmt.Sprintf(`%d`, port)))
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf(`dialing %s:%d: %w`, address, port, common.ErrAlreadyConnected)
		}
		return nil, fmt.Errorf(`dialing %s:%d: %v: %w`, address, port, err, common.ErrConnectFailed)
	}
	return New(conn, config.CommandTimeout), nil
}

// New wraps an established connection.  Tests inject synthetic connections
// here.
func New(conn net.Conn, timeout time.Duration) *Transport {
	return &Transport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}
}

// SetTrace mirrors every exchange to w for diagnostics.  Tracing does not
// alter protocol behaviour.
func (t *Transport) SetTrace(w io.Writer) {
	t.mu.Lock()
	t.trace = w
	t.mu.Unlock()
}

// Send writes the command with its terminator, then reads bytes until the
// response terminator is observed, returning the raw response including the
// terminator.  If the deadline passes without a terminator the transport is
// marked suspect and returns common.ErrResponseTimeout.  The session owner
// decides whether to retry on the same stream or tear it down; Suspect
// reports which faults have been seen.
func (t *Transport) Send(command string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writeLocked(command); err != nil {
		return ``, err
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return ``, err
	}
	response, err := t.reader.ReadString(shared.ResponseTerminator)
	if err != nil {
		t.suspect = true
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return ``, fmt.Errorf(`awaiting response to %q: %w`, command, common.ErrResponseTimeout)
		}
		return ``, fmt.Errorf(`reading response to %q: %w`, command, err)
	}
	if t.trace != nil {
		fmt.Fprintf(t.trace, "< %s\n", response)
	}
	return response, nil
}

// SendNoWait writes the command without waiting for a response.  Used for
// commands known to not reply meaningfully, such as reset.
func (t *Transport) SendNoWait(command string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked(command)
}

func (t *Transport) writeLocked(command string) error {
	if t.closed {
		return common.ErrClosed
	}
	if t.trace != nil {
		fmt.Fprintf(t.trace, "> %s\n", command)
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return err
	}
	if _, err := t.conn.Write(append([]byte(command), shared.CommandTerminator)); err != nil {
		t.suspect = true
		return fmt.Errorf(`writing %q: %w`, command, err)
	}
	return nil
}

// Suspect reports whether the session hit a framing or timeout fault.  A
// suspect transport may hold residual bytes: a response that arrives after
// its deadline stays buffered and would be read as the answer to the next
// command.  Retrying is therefore only safe when the retried command is the
// one that timed out, which is how the session layer uses it.
func (t *Transport) Suspect() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspect
}

// Close releases the socket.  It is idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
