package golum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/telelumen/golum/common"
)

// Client provides a simple interface for discovering and controlling
// luminaires.  Devices are tracked by serial number; lookups wait up to the
// client timeout for discovery to report a match before giving up.
type Client struct {
	protocol      common.Protocol
	timeout       *time.Duration
	retryInterval *time.Duration

	devices       map[string]common.Device
	subscriptions map[string]*common.Subscription

	discoveryInterval time.Duration
	discoveryQuit     chan struct{}
	quitChan          chan struct{}

	sync.RWMutex
}

// discover runs one discovery pass, aborting if the client closes mid-scan
func (c *Client) discover() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.quitChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := c.protocol.Discover(ctx); err != nil && ctx.Err() == nil {
		common.Log.Warnf(`discovery pass failed: %v`, err)
	}
}

// SetDiscoveryInterval re-runs discovery every interval until the client is
// closed, picking up devices that arrive, move or disappear after the
// initial scan.  A zero interval stops periodic discovery.
func (c *Client) SetDiscoveryInterval(interval time.Duration) error {
	select {
	case <-c.quitChan:
		return common.ErrClosed
	default:
	}

	c.Lock()
	if c.discoveryQuit != nil {
		close(c.discoveryQuit)
		c.discoveryQuit = nil
	}
	c.discoveryInterval = interval
	if interval == 0 {
		c.Unlock()
		return nil
	}
	quit := make(chan struct{})
	c.discoveryQuit = quit
	c.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-c.quitChan:
				return
			case <-ticker.C:
				c.discover()
			}
		}
	}()

	return nil
}

// GetDiscoveryInterval returns the currently configured discovery interval
func (c *Client) GetDiscoveryInterval() time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.discoveryInterval
}

// SetTimeout sets the time that lookup operations wait before returning
// common.ErrNotFound
func (c *Client) SetTimeout(timeout time.Duration) {
	c.Lock()
	c.timeout = &timeout
	c.Unlock()
}

// GetTimeout returns the currently configured timeout
func (c *Client) GetTimeout() *time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.timeout
}

// SetRetryInterval sets the pace at which lookup operations re-check for a
// match.  Intervals at or beyond the timeout are clamped to half of it.
func (c *Client) SetRetryInterval(interval time.Duration) {
	c.Lock()
	defer c.Unlock()
	if interval >= *c.timeout {
		interval = *c.timeout / 2
	}
	c.retryInterval = &interval
}

// GetRetryInterval returns the currently configured retry interval
func (c *Client) GetRetryInterval() *time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.retryInterval
}

// GetDevices returns the currently known devices.  If none are known yet it
// waits, re-checking on the retry interval, until at least one device is
// found or the timeout expires.
func (c *Client) GetDevices() ([]common.Device, error) {
	devices := c.snapshot()
	if len(devices) > 0 {
		return devices, nil
	}

	err := c.await(func() bool {
		devices = c.snapshot()
		return len(devices) > 0
	})
	return devices, err
}

// GetDeviceBySerial looks up a device by its serial number, waiting up to
// the client timeout for discovery to find it
func (c *Client) GetDeviceBySerial(serial string) (common.Device, error) {
	var found common.Device
	err := c.await(func() bool {
		c.RLock()
		defer c.RUnlock()
		found = c.devices[serial]
		return found != nil
	})
	return found, err
}

// GetDeviceByAddress looks up a device by its network address, waiting up
// to the client timeout for discovery to find it
func (c *Client) GetDeviceByAddress(address string) (common.Device, error) {
	var found common.Device
	err := c.await(func() bool {
		c.RLock()
		defer c.RUnlock()
		for _, dev := range c.devices {
			if dev.Address() == address {
				found = dev
				return true
			}
		}
		return false
	})
	return found, err
}

// GetLuminaireBySerial looks up a device by serial and returns its full
// command surface
func (c *Client) GetLuminaireBySerial(serial string) (common.Luminaire, error) {
	dev, err := c.GetDeviceBySerial(serial)
	if err != nil {
		return nil, err
	}
	lum, ok := dev.(common.Luminaire)
	if !ok {
		return nil, fmt.Errorf(`device %v does not offer the luminaire command surface`, serial)
	}
	return lum, nil
}

// ConnectToAddress creates a device for a known address, bypassing
// discovery, and upgrades it to a live session
func (c *Client) ConnectToAddress(ctx context.Context, address string) (common.Luminaire, error) {
	dev, err := c.protocol.ConnectToAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	lum, ok := dev.(common.Luminaire)
	if !ok {
		return nil, fmt.Errorf(`device at %v does not offer the luminaire command surface`, address)
	}
	return lum, nil
}

// await re-checks check on the retry interval until it reports true or the
// client timeout expires
func (c *Client) await(check func() bool) error {
	if check() {
		return nil
	}

	c.RLock()
	timeout, interval := *c.timeout, *c.retryInterval
	c.RUnlock()

	deadline := time.After(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quitChan:
			return common.ErrClosed
		case <-deadline:
			return common.ErrNotFound
		case <-ticker.C:
			if check() {
				return nil
			}
		}
	}
}

func (c *Client) snapshot() []common.Device {
	c.RLock()
	defer c.RUnlock()
	devices := make([]common.Device, 0, len(c.devices))
	for _, dev := range c.devices {
		devices = append(devices, dev)
	}
	return devices
}

// AddDevice adds a device to the client's registry, keyed by serial.
// Called by the protocol as discovery reports devices.
func (c *Client) AddDevice(dev common.Device) error {
	serial := dev.Serial()

	c.Lock()
	if _, ok := c.devices[serial]; ok {
		c.Unlock()
		return common.ErrDuplicate
	}
	c.devices[serial] = dev
	c.Unlock()

	return c.publish(common.EventNewDevice{Device: dev})
}

// RemoveDeviceBySerial removes a device from the client's registry.  Called
// by the protocol when a device expires.
func (c *Client) RemoveDeviceBySerial(serial string) error {
	c.Lock()
	dev, ok := c.devices[serial]
	if !ok {
		c.Unlock()
		return common.ErrNotFound
	}
	delete(c.devices, serial)
	c.Unlock()

	return c.publish(common.EventExpiredDevice{Device: dev})
}

// publish an event to subscribers
func (c *Client) publish(event interface{}) error {
	c.RLock()
	subscriptions := make([]*common.Subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subscriptions = append(subscriptions, sub)
	}
	c.RUnlock()

	for _, sub := range subscriptions {
		if err := sub.Write(event); err != nil {
			return err
		}
	}

	return nil
}

// NewSubscription returns a new *common.Subscription for receiving events
// from this client
func (c *Client) NewSubscription() (*common.Subscription, error) {
	select {
	case <-c.quitChan:
		return nil, common.ErrClosed
	default:
	}
	sub := common.NewSubscription(c)
	c.Lock()
	c.subscriptions[sub.ID()] = sub
	c.Unlock()
	return sub, nil
}

// CloseSubscription closes and removes a subscription from this client
func (c *Client) CloseSubscription(sub *common.Subscription) error {
	c.RLock()
	_, ok := c.subscriptions[sub.ID()]
	c.RUnlock()
	if !ok {
		return common.ErrNotFound
	}
	c.Lock()
	delete(c.subscriptions, sub.ID())
	c.Unlock()
	return nil
}

// Close signs off from the protocol and closes all subscriptions.  It may
// only be called once.
func (c *Client) Close() error {
	select {
	case <-c.quitChan:
		return common.ErrClosed
	default:
		close(c.quitChan)
	}

	c.Lock()
	subscriptions := c.subscriptions
	c.subscriptions = make(map[string]*common.Subscription)
	c.devices = make(map[string]common.Device)
	c.Unlock()

	for _, sub := range subscriptions {
		sub.Close()
	}

	return c.protocol.Close()
}
