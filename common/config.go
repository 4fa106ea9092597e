package common

import "time"

// Defaults used by DefaultConfig.  The port numbers are fixed by the
// luminaire firmware; changing them by configuration message is possible but
// breaks compatibility with older applications.
const (
	DefaultCommandPort    = 57007
	DefaultDisconnectPort = 57011
	DefaultDatagramPort   = 57000

	DefaultConnectTimeout   = 10 * time.Second
	DefaultCommandTimeout   = 5 * time.Second
	DefaultProbeTimeout     = 500 * time.Millisecond
	DefaultDiscoveryTimeout = 30 * time.Second

	DefaultCommandRetries = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultBlockRetries   = 10

	DefaultScanHostMin = 2
	DefaultScanHostMax = 253
	DefaultScanWorkers = 64

	// DefaultTimeout bounds client-level lookups and subscription writes
	DefaultTimeout = 2 * time.Second
	// DefaultRetryInterval paces client-level lookup retries
	DefaultRetryInterval = 500 * time.Millisecond

	// BlockSize is the fixed file-transfer block size in bytes
	BlockSize = 512
	// MaxDatagramSize bounds datagram payloads to stay under typical link
	// MTUs
	MaxDatagramSize = 1400
)

// DefaultSubnets lists the class C prefixes historically used for luminaire
// networks, in the order they are scanned.
var DefaultSubnets = []string{
	`192.168.0.`, `192.168.1.`, `192.168.2.`, `192.168.3.`,
	`192.168.4.`, `192.168.5.`, `192.168.6.`, `192.168.7.`,
	`192.168.8.`, `192.168.9.`, `192.168.10.`, `192.168.11.`,
}

// Config carries every tunable the protocol components need.  A single value
// is passed to each component at construction rather than scattering
// constants or process-wide state.
type Config struct {
	// CommandPort is the stream (command/response) port on the luminaire
	CommandPort int
	// DisconnectPort is the port used for disconnect requests
	DisconnectPort int
	// DatagramPort is the connectionless query/discovery port
	DatagramPort int

	// ConnectTimeout bounds opening the stream socket
	ConnectTimeout time.Duration
	// CommandTimeout bounds waiting for a single response terminator
	CommandTimeout time.Duration
	// ProbeTimeout bounds one discovery probe's wait for a reply
	ProbeTimeout time.Duration
	// DiscoveryTimeout bounds the wall-clock spent scanning one subnet
	DiscoveryTimeout time.Duration

	// CommandRetries is the retry budget for idempotent commands that hit
	// a timeout or transport error
	CommandRetries int
	// RetryDelay is the backoff between command retries
	RetryDelay time.Duration
	// BlockRetries is the per-block retry budget during file transfer
	BlockRetries int

	// Subnets lists candidate network prefixes scanned during discovery,
	// e.g. "192.168.2."
	Subnets []string
	// ScanHostMin and ScanHostMax bound the host octet range probed on
	// each candidate subnet, inclusive
	ScanHostMin int
	ScanHostMax int
	// ScanWorkers bounds concurrent discovery probes to avoid socket
	// exhaustion on large candidate spaces
	ScanWorkers int
}

// DefaultConfig returns a Config populated with the firmware defaults.
func DefaultConfig() *Config {
	return &Config{
		CommandPort:      DefaultCommandPort,
		DisconnectPort:   DefaultDisconnectPort,
		DatagramPort:     DefaultDatagramPort,
		ConnectTimeout:   DefaultConnectTimeout,
		CommandTimeout:   DefaultCommandTimeout,
		ProbeTimeout:     DefaultProbeTimeout,
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		CommandRetries:   DefaultCommandRetries,
		RetryDelay:       DefaultRetryDelay,
		BlockRetries:     DefaultBlockRetries,
		Subnets:          append([]string(nil), DefaultSubnets...),
		ScanHostMin:      DefaultScanHostMin,
		ScanHostMax:      DefaultScanHostMax,
		ScanWorkers:      DefaultScanWorkers,
	}
}
