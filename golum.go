// Package golum provides a client for Telelumen networked luminaires.
//
// A Client discovers luminaires on the configured subnets and tracks them
// by serial number.  Each device upgrades on demand into a live command
// session exposing drive-level control, script playback, telemetry queries
// and file transfer.  Subscriptions deliver asynchronous events such as
// device arrival, expiry and connection state changes.
package golum

import (
	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol"
)

// VERSION of the golum library
const VERSION = `1.0.0`

// NewClient returns a Client attached to the supplied protocol driver, with
// nil selecting the TNG driver and its default configuration.  Discovery
// starts immediately in the background; use the lookup methods, which wait
// up to the client timeout, or subscribe for device arrival events.
func NewClient(p common.Protocol) (*Client, error) {
	if p == nil {
		p = protocol.NewTNG(nil)
	}
	timeout := common.DefaultTimeout
	retryInterval := common.DefaultRetryInterval
	c := &Client{
		protocol:      p,
		timeout:       &timeout,
		retryInterval: &retryInterval,
		devices:       make(map[string]common.Device),
		subscriptions: make(map[string]*common.Subscription),
		quitChan:      make(chan struct{}),
	}
	p.SetClient(c)
	go c.discover()
	return c, nil
}

// SetLogger allows assigning a custom levelled logger to the library.  The
// default logger discards all log messages.
func SetLogger(logger common.Logger) {
	common.SetLogger(logger)
}

var _ common.Client = new(Client)
