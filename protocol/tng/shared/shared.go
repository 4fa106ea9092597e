// Package shared provides wire-level constants common to the TNG protocol
// packages.
package shared

// Command and response framing.  Commands are ASCII text terminated by a
// carriage return; responses are ASCII text terminated by a semicolon, with
// the final line before the terminator carrying a numeric status code.
const (
	CommandTerminator  = '\r'
	ResponseTerminator = ';'
)

// Status is a luminaire command status code.  Zero means success; the small
// set of codes below has fixed meaning, and all other non-zero values are
// generic errors whose value is preserved for the caller.
type Status int

const (
	// StatusOK indicates the command succeeded
	StatusOK Status = 0
	// StatusEndOfFile is returned by a read past the end of an open file
	StatusEndOfFile Status = 1
	// StatusFileNotFound is returned when opening a file that does not
	// exist in onboard storage
	StatusFileNotFound Status = 2
	// StatusNoResponse is the locally-assigned status when a response
	// carried no parseable status code
	StatusNoResponse Status = 11
	// StatusInvalidLRC indicates a file-transfer block failed its
	// checksum and should be retransmitted
	StatusInvalidLRC Status = 42
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return `ok`
	case StatusEndOfFile:
		return `end of file`
	case StatusFileNotFound:
		return `file not found`
	case StatusNoResponse:
		return `no response from device`
	case StatusInvalidLRC:
		return `invalid LRC`
	default:
		return `device error`
	}
}
