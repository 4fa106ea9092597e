package common

import "context"

// Protocol defines the interface between the Client and a protocol
// implementation
type Protocol interface {
	SubscriptionTarget
	// SetClient sets the client on the protocol for bi-directional
	// communication
	SetClient(client Client)
	// Discover initiates device discovery across the configured candidate
	// subnets.  This is called immediately when the client connects to
	// the protocol, and again on the discovery interval.  Cancelling the
	// context aborts the scan between probes.
	Discover(ctx context.Context) error
	// ConnectToAddress creates a device for a known address, bypassing
	// discovery, and upgrades it to a live session
	ConnectToAddress(ctx context.Context, address string) (Device, error)
	// Close closes the protocol driver, no further communication with the
	// protocol is possible
	Close() error
}
