package common

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectFailed is returned when the stream socket to a luminaire
	// cannot be opened within the configured connection timeout
	ErrConnectFailed = errors.New(`connection failed`)
	// ErrAlreadyConnected is returned when the luminaire refuses the
	// connection because another application holds its session slot
	ErrAlreadyConnected = errors.New(`device session already held by another client`)
	// ErrResponseTimeout is returned when no response terminator arrives
	// within the command timeout.  The session should be treated as lost
	// rather than retried blindly
	ErrResponseTimeout = errors.New(`timed out waiting for response terminator`)
	// ErrNoReply is the expected, non-fatal result of a datagram receive
	// that saw no traffic before its deadline
	ErrNoReply = errors.New(`no datagram reply`)
	// ErrNotFound is returned on lookups for devices that are not known
	ErrNotFound = errors.New(`not found`)
	// ErrDuplicate is returned when adding a device that is already known
	ErrDuplicate = errors.New(`duplicate`)
	// ErrClosed is returned on operations against a closed resource
	ErrClosed = errors.New(`closed`)
	// ErrNotConnected is returned when a command is issued on a device
	// that has no live session
	ErrNotConnected = errors.New(`not connected`)
	// ErrUnsupported is returned for operations the device's command
	// dialect does not provide
	ErrUnsupported = errors.New(`unsupported by this device`)
)

// CommandError is returned for a well-formed exchange that carried a non-zero
// status code.  The raw device status is preserved so that callers needing
// vendor-specific codes are not blocked by the decoded taxonomy.
type CommandError struct {
	Command string
	Status  int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf(`command %q failed with status %d`, e.Command, e.Status)
}

// TransferError is returned when a file transfer job fails as a whole: a
// block exhausted its retry budget, the remote storage was full, or the
// remote name was invalid.  Partial remote or local files are not valid and
// must be discarded by the caller.
type TransferError struct {
	Filename string
	Block    int
	Reason   string
	Status   int
}

func (e *TransferError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf(`transfer of %q failed at block %d: %s (status %d)`, e.Filename, e.Block, e.Reason, e.Status)
	}
	return fmt.Sprintf(`transfer of %q failed: %s (status %d)`, e.Filename, e.Reason, e.Status)
}
