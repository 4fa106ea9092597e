package common

// EventNewDevice is emitted by a Client when it discovers a new Device
type EventNewDevice struct {
	Device Device
}

// EventExpiredDevice is emitted by a Client when a Device is no longer known
type EventExpiredDevice struct {
	Device Device
}

// EventUpdateConnectionState is emitted by a Device when its session state
// changes
type EventUpdateConnectionState struct {
	State ConnectionState
}

// EventUpdateLevels is emitted by a Device when its drive levels are updated
type EventUpdateLevels struct {
	Levels []float64
}

// EventTransferProgress is emitted by a Device after each successfully
// acknowledged file-transfer block
type EventTransferProgress struct {
	Filename string
	Block    int
	Blocks   int
}
