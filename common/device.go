package common

import "context"

// LuminaireType identifies the product family of a luminaire.
type LuminaireType uint8

const (
	// TypeUnknown is reported before the device type has been read
	TypeUnknown LuminaireType = iota
	// TypeOcta is the eight-board full-featured luminaire
	TypeOcta
	// TypePenta is the five-board full-featured luminaire
	TypePenta
	// TypeLightReplicator is the legacy product generation
	TypeLightReplicator
)

func (t LuminaireType) String() string {
	switch t {
	case TypeOcta:
		return `Octa`
	case TypePenta:
		return `Penta`
	case TypeLightReplicator:
		return `LightReplicator`
	default:
		return `Unknown`
	}
}

// Capability partitions luminaire types into the two command dialects.
// Components branch on Capability rather than on type identity.
type Capability uint8

const (
	// FullFeatured devices support the complete command set, including
	// temperature/uptime/LRC queries and checksum-verified file transfer
	FullFeatured Capability = iota
	// Legacy devices use the PWM/AM drive encoding and best-effort file
	// transfer without block checksums
	Legacy
)

// Capability maps a luminaire type onto its command dialect.  Unknown
// devices are treated as full-featured until identified.
func (t LuminaireType) Capability() Capability {
	switch t {
	case TypeLightReplicator:
		return Legacy
	default:
		return FullFeatured
	}
}

// ConnectionState tracks the session lifecycle of one device.
type ConnectionState uint8

const (
	// Disconnected devices have no live session
	Disconnected ConnectionState = iota
	// Connecting devices have a dial in flight
	Connecting
	// Connected devices hold a live command session
	Connected
	// ConnectionError devices had a session that failed; the next use
	// must fail fast rather than hang
	ConnectionError
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return `connecting`
	case Connected:
		return `connected`
	case ConnectionError:
		return `error`
	default:
		return `disconnected`
	}
}

// Device represents one discovered or directly-addressed luminaire.  The
// identity fields are immutable once populated from a successful discovery
// or identity query; only session state and cached telemetry mutate.
type Device interface {
	// Serial returns the luminaire serial number, which is stable across
	// reboots and DHCP address changes
	Serial() string
	// Address returns the device's current network address
	Address() string
	// Type returns the product family, TypeUnknown until identified
	Type() LuminaireType
	// State returns the current session state
	State() ConnectionState
	// Connect upgrades the device into a live session and populates its
	// identity fields.  A device never holds two live sessions at once.
	Connect(ctx context.Context) error
	// Disconnect sends a best-effort polite close and releases the
	// session.  It always succeeds locally and is safe to repeat.
	Disconnect() error

	// Device is a SubscriptionTarget
	SubscriptionTarget
}

// Luminaire is the full command surface of a connected device.  All
// operations require a live session and serialize on it: the protocol is
// strictly request/response with no pipelining.
type Luminaire interface {
	Device

	// FirmwareVersion returns the firmware version cached at connect
	FirmwareVersion() string
	// ElectronicSerial returns the electronic serial number cached at
	// connect
	ElectronicSerial() string
	// MAC returns the hardware address cached at connect
	MAC() string
	// LastStatus returns the raw status code of the most recent exchange
	LastStatus() int

	// Temperature reads the board temperature in degrees Celsius.
	// Unsupported on legacy devices.
	Temperature() (float64, error)
	// Uptime reads the time since the device last booted.  Unsupported
	// on legacy devices.
	Uptime() (string, error)
	// ChannelMap reads the device's channel wiring map
	ChannelMap() (string, error)
	// Directory lists the files held in onboard storage
	Directory() ([]string, error)
	// UsedBlocks reports the number of storage blocks in use
	UsedBlocks() (int, error)
	// FileLRC returns the device-computed checksum for a stored file.
	// Unsupported on legacy devices.
	FileLRC(filename string) (uint32, error)

	// DriveLevels reads the normalized [0,1] intensity of every channel
	DriveLevels() ([]float64, error)
	// SetDriveLevels writes the normalized intensity of every channel
	SetDriveLevels(levels []float64) error
	// SetDriveLevel writes one channel's normalized intensity
	SetDriveLevel(channel int, level float64) error
	// Dark turns all channels off
	Dark() error
	// Reset reboots the device.  No response is read; the session is
	// implicitly lost.
	Reset() error

	// Play starts script playback.  With paused set, the script is
	// loaded but waits for Resume.
	Play(filename string, paused bool) error
	// Pause suspends script playback
	Pause() error
	// Resume continues paused playback
	Resume() error
	// Stop ends script playback
	Stop() error

	// Upload transfers a local file into the device's onboard storage.
	// With idle set the device is left idle after the final block rather
	// than executing the uploaded script.  On failure the remote partial
	// file is invalid and should be deleted by the caller.
	Upload(ctx context.Context, localPath, remoteName string, idle bool) error
	// Download transfers a remote file to a local path.  Local output is
	// discarded on unrecoverable block failure.
	Download(ctx context.Context, remoteName, localPath string) error
}
