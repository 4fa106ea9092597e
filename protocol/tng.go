package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol/tng/device"
	"github.com/telelumen/golum/protocol/tng/packet"
	"github.com/telelumen/golum/protocol/tng/shared"
)

// Luminaires do not announce themselves; discovery actively probes every
// candidate address with a serial-number query datagram and treats any
// well-formed reply as a device.  A device that has not answered a probe in
// this many consecutive discovery passes, and holds no session, is expired.
const expiryPasses = 3

// TNG implements the common.Protocol interface for the luminaire command
// protocol
type TNG struct {
	client common.Client
	config *common.Config

	// devices are keyed by serial, the only identity stable across
	// address changes
	devices       map[string]*device.Luminaire
	subscriptions map[string]*common.Subscription
	quitChan      chan struct{}

	sync.RWMutex
}

var _ common.Protocol = new(TNG)

// NewTNG returns a protocol driver using the supplied configuration, or the
// defaults when nil
func NewTNG(config *common.Config) *TNG {
	if config == nil {
		config = common.DefaultConfig()
	}
	return &TNG{
		config:        config,
		devices:       make(map[string]*device.Luminaire),
		subscriptions: make(map[string]*common.Subscription),
		quitChan:      make(chan struct{}),
	}
}

// SetClient sets the client on the protocol for bi-directional communication
func (p *TNG) SetClient(client common.Client) {
	p.Lock()
	p.client = client
	p.Unlock()
}

// Discover probes every candidate address on the configured subnets in
// parallel, bounded by the worker limit.  Each subnet gets its own
// wall-clock budget so one quiet network cannot starve the others.
// Cancelling the context aborts the scan between probes.
func (p *TNG) Discover(ctx context.Context) error {
	select {
	case <-p.quitChan:
		return common.ErrClosed
	default:
	}

	if len(p.config.Subnets) == 0 {
		return fmt.Errorf(`no candidate subnets configured`)
	}

	found := make(map[string]bool)
	var foundMu sync.Mutex

	for _, subnet := range p.config.Subnets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.scanSubnet(ctx, subnet, func(serial, address string) {
			foundMu.Lock()
			found[serial] = true
			foundMu.Unlock()
			p.addDevice(serial, address)
		}); err != nil {
			return err
		}
	}

	p.expireDevices(found)
	return nil
}

// scanSubnet fans probe workers out over the subnet's host range.  Probe
// failures are expected in bulk, only the reply path reports devices.
func (p *TNG) scanSubnet(ctx context.Context, subnet string, report func(serial, address string)) error {
	subnetCtx, cancel := context.WithTimeout(ctx, p.config.DiscoveryTimeout)
	defer cancel()

	group, groupCtx := errgroup.WithContext(subnetCtx)
	group.SetLimit(p.config.ScanWorkers)

	for host := p.config.ScanHostMin; host <= p.config.ScanHostMax; host++ {
		address := subnet + strconv.Itoa(host)
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return nil
			}
			serial, err := p.probe(address)
			if err != nil {
				if !errors.Is(err, common.ErrNoReply) {
					common.Log.Debugf(`probing %v: %v`, address, err)
				}
				return nil
			}
			report(serial, address)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	// A subnet running out its clock is not an error, the scan simply
	// moves on with whatever answered in time.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// probe sends one serial-number query datagram and waits briefly for the
// reply.  Each worker owns its own socket, so replies cannot cross between
// probes; the echoed sequence tag guards against stale datagrams.
func (p *TNG) probe(address string) (string, error) {
	channel, err := packet.NewChannel()
	if err != nil {
		return ``, err
	}
	defer channel.Close()

	addr := &net.UDPAddr{IP: net.ParseIP(address), Port: p.config.DatagramPort}
	if addr.IP == nil {
		return ``, fmt.Errorf(`bad probe address %q`, address)
	}

	pkt := packet.New(`NS`)
	if err := channel.SendTo(addr, pkt); err != nil {
		return ``, err
	}

	deadline := time.Now().Add(p.config.ProbeTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ``, common.ErrNoReply
		}
		reply, from, err := channel.Receive(remaining)
		if err != nil {
			return ``, err
		}
		if reply.Seq != pkt.Seq || from.IP.String() != address {
			common.Log.Debugf(`discarding mismatched reply from %v`, from)
			continue
		}
		serial := parseProbeReply(string(reply.Payload))
		if serial == `` {
			return ``, fmt.Errorf(`reply from %v carried no serial`, from)
		}
		return serial, nil
	}
}

// parseProbeReply extracts the serial from a probe reply payload, which
// carries the same framing as a stream response.  Only the final line is
// the status code; serials are frequently all-numeric themselves, so lines
// are never filtered on content.
func parseProbeReply(payload string) string {
	payload = strings.TrimSuffix(strings.TrimSpace(payload), string(shared.ResponseTerminator))
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
	// Drop the trailing status line when present
	if len(lines) > 1 {
		if _, err := strconv.Atoi(strings.TrimSpace(lines[len(lines)-1])); err == nil {
			lines = lines[:len(lines)-1]
		}
	}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != `` {
			return line
		}
	}
	return ``
}

// addDevice records a discovered device, deduplicating by serial.  A known
// serial answering from a new address has been re-leased by DHCP; its
// record moves rather than duplicating.
func (p *TNG) addDevice(serial, address string) {
	p.Lock()
	client := p.client
	known, ok := p.devices[serial]
	if ok && (known.Address() == address || known.State() == common.Connected) {
		known.SetSeen()
		p.Unlock()
		return
	}
	dev := device.New(address, serial, p.config)
	p.devices[serial] = dev
	p.Unlock()

	if ok {
		common.Log.Infof(`device %v moved from %v to %v`, serial, known.Address(), address)
		if client != nil {
			client.RemoveDeviceBySerial(serial)
		}
		known.Close()
	} else {
		common.Log.Infof(`discovered device %v at %v`, serial, address)
	}
	if client != nil {
		if err := client.AddDevice(dev); err != nil && !errors.Is(err, common.ErrDuplicate) {
			common.Log.Warnf(`adding device %v: %v`, serial, err)
		}
	}
	p.publish(common.EventNewDevice{Device: dev})
}

// publish an event to subscribers
func (p *TNG) publish(event interface{}) error {
	p.RLock()
	subscriptions := make([]*common.Subscription, 0, len(p.subscriptions))
	for _, sub := range p.subscriptions {
		subscriptions = append(subscriptions, sub)
	}
	p.RUnlock()

	for _, sub := range subscriptions {
		if err := sub.Write(event); err != nil {
			return err
		}
	}

	return nil
}

// expireDevices drops devices that missed too many consecutive passes.
// Devices holding a session never expire, an active session is better
// evidence of liveness than a probe reply.
func (p *TNG) expireDevices(found map[string]bool) {
	horizon := time.Duration(expiryPasses) * p.config.DiscoveryTimeout

	p.Lock()
	var expired []*device.Luminaire
	for serial, dev := range p.devices {
		if found[serial] || dev.State() == common.Connected {
			continue
		}
		if time.Since(dev.Seen()) > horizon {
			delete(p.devices, serial)
			expired = append(expired, dev)
		}
	}
	client := p.client
	p.Unlock()

	for _, dev := range expired {
		common.Log.Infof(`expiring device %v, last seen %v`, dev.Serial(), dev.Seen())
		if client != nil {
			client.RemoveDeviceBySerial(dev.Serial())
		}
		p.publish(common.EventExpiredDevice{Device: dev})
		dev.Close()
	}
}

// ConnectToAddress creates a device for a known address, bypassing
// discovery, and upgrades it to a live session.  If the device refuses
// because a stale session holds its slot, a release request is sent and the
// dial retried once.
func (p *TNG) ConnectToAddress(ctx context.Context, address string) (common.Device, error) {
	select {
	case <-p.quitChan:
		return nil, common.ErrClosed
	default:
	}

	dev := p.deviceByAddress(address)
	if dev == nil {
		dev = device.New(address, ``, p.config)
	}

	err := dev.Connect(ctx)
	if errors.Is(err, common.ErrAlreadyConnected) && dev.State() != common.Connected {
		common.Log.Infof(`session slot on %v is held, requesting release`, address)
		if relErr := p.RequestRelease(ctx, address); relErr != nil {
			return nil, err
		}
		err = dev.Connect(ctx)
	}
	if err != nil {
		return nil, err
	}

	p.Lock()
	p.devices[dev.Serial()] = dev
	client := p.client
	p.Unlock()

	if client != nil {
		if err := client.AddDevice(dev); err != nil && !errors.Is(err, common.ErrDuplicate) {
			common.Log.Warnf(`adding device %v: %v`, dev.Serial(), err)
		}
	}
	return dev, nil
}

// RequestRelease asks the device to free its command session slot, used
// when a crashed application left a session dangling.  Opening and closing
// the release port is the whole request.
func (p *TNG) RequestRelease(ctx context.Context, address string) error {
	dialer := net.Dialer{Timeout: p.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, `tcp`, net.JoinHostPort(address, strconv.Itoa(p.config.DisconnectPort)))
	if err != nil {
		return fmt.Errorf(`requesting session release from %v: %w`, address, err)
	}
	return conn.Close()
}

func (p *TNG) deviceByAddress(address string) *device.Luminaire {
	p.RLock()
	defer p.RUnlock()
	for _, dev := range p.devices {
		if dev.Address() == address {
			return dev
		}
	}
	return nil
}

// NewSubscription returns a new *common.Subscription for receiving events
// from this protocol
func (p *TNG) NewSubscription() (*common.Subscription, error) {
	select {
	case <-p.quitChan:
		return nil, common.ErrClosed
	default:
	}
	sub := common.NewSubscription(p)
	p.Lock()
	p.subscriptions[sub.ID()] = sub
	p.Unlock()
	return sub, nil
}

// CloseSubscription closes and removes a subscription from this protocol
func (p *TNG) CloseSubscription(sub *common.Subscription) error {
	p.RLock()
	_, ok := p.subscriptions[sub.ID()]
	p.RUnlock()
	if !ok {
		return common.ErrNotFound
	}
	p.Lock()
	delete(p.subscriptions, sub.ID())
	p.Unlock()
	return nil
}

// Close closes the protocol driver: all device sessions are released and no
// further communication is possible
func (p *TNG) Close() error {
	select {
	case <-p.quitChan:
		return common.ErrClosed
	default:
		close(p.quitChan)
	}

	p.Lock()
	devices := p.devices
	p.devices = make(map[string]*device.Luminaire)
	subscriptions := p.subscriptions
	p.subscriptions = make(map[string]*common.Subscription)
	p.Unlock()

	for _, dev := range devices {
		dev.Close()
	}
	for _, sub := range subscriptions {
		sub.Close()
	}
	return nil
}
