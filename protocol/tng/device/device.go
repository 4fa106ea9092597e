// Package device implements the luminaire session: connection lifecycle,
// identity population, serialized command execution and the higher-level
// operations layered on it.
package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol/tng/shared"
	"github.com/telelumen/golum/protocol/tng/stream"
)

// Luminaire is one known device, discovered or directly addressed.  Identity
// fields are written once, during discovery and connect, and never mutate
// afterwards; session state and cached telemetry are guarded by the embedded
// lock.  Command exchanges additionally serialize on cmdMu: the protocol is
// strictly request/response, one outstanding command per session.
type Luminaire struct {
	address          string
	serial           string
	electronicSerial string
	mac              string
	firmware         string
	lumType          common.LuminaireType

	config     *common.Config
	state      common.ConnectionState
	lastStatus shared.Status
	transport  *stream.Transport
	seen       time.Time

	subscriptions map[string]*common.Subscription
	quitChan      chan struct{}

	cmdMu sync.Mutex
	sync.RWMutex
}

var _ common.Luminaire = new(Luminaire)

// New returns a Luminaire for the supplied address.  The serial, when known
// from a discovery reply, seeds the electronic serial and is validated
// against the device's own answer at connect time.
func New(address, serial string, config *common.Config) *Luminaire {
	return &Luminaire{
		address:          address,
		electronicSerial: serial,
		config:           config,
		seen:             time.Now(),
		subscriptions:    make(map[string]*common.Subscription),
		quitChan:         make(chan struct{}),
	}
}

// Serial returns the luminaire serial number.  Until the device has been
// connected and identified, the electronic serial from discovery stands in,
// as the two are equal on legacy devices anyway.
func (l *Luminaire) Serial() string {
	l.RLock()
	defer l.RUnlock()
	if l.serial != `` {
		return l.serial
	}
	return l.electronicSerial
}

// Address returns the device's current network address
func (l *Luminaire) Address() string {
	l.RLock()
	defer l.RUnlock()
	return l.address
}

// Type returns the product family, TypeUnknown until identified
func (l *Luminaire) Type() common.LuminaireType {
	l.RLock()
	defer l.RUnlock()
	return l.lumType
}

// State returns the current session state
func (l *Luminaire) State() common.ConnectionState {
	l.RLock()
	defer l.RUnlock()
	return l.state
}

// FirmwareVersion returns the firmware version cached at connect
func (l *Luminaire) FirmwareVersion() string {
	l.RLock()
	defer l.RUnlock()
	return l.firmware
}

// ElectronicSerial returns the electronic serial number cached at connect
func (l *Luminaire) ElectronicSerial() string {
	l.RLock()
	defer l.RUnlock()
	return l.electronicSerial
}

// MAC returns the hardware address cached at connect
func (l *Luminaire) MAC() string {
	l.RLock()
	defer l.RUnlock()
	return l.mac
}

// LastStatus returns the raw status code of the most recent exchange
func (l *Luminaire) LastStatus() int {
	l.RLock()
	defer l.RUnlock()
	return int(l.lastStatus)
}

// Seen returns the time of the last successful contact with the device
func (l *Luminaire) Seen() time.Time {
	l.RLock()
	defer l.RUnlock()
	return l.seen
}

// SetSeen updates the last-contact time
func (l *Luminaire) SetSeen() {
	l.Lock()
	l.seen = time.Now()
	l.Unlock()
}

// Connect dials the device's command port and upgrades it into a live
// session, then queries the identity fields.  A device never holds two live
// sessions at once; connecting an already-connected device is an error.
func (l *Luminaire) Connect(ctx context.Context) error {
	l.Lock()
	switch l.state {
	case common.Connected, common.Connecting:
		l.Unlock()
		return fmt.Errorf(`device %s: %w`, l.address, common.ErrAlreadyConnected)
	}
	l.state = common.Connecting
	address := l.address
	l.Unlock()
	l.publish(common.EventUpdateConnectionState{State: common.Connecting})

	transport, err := stream.Dial(ctx, address, l.config.CommandPort, l.config)
	if err != nil {
		l.Lock()
		l.state = common.ConnectionError
		l.Unlock()
		l.publish(common.EventUpdateConnectionState{State: common.ConnectionError})
		return err
	}

	l.Lock()
	l.transport = transport
	l.Unlock()

	if err := l.populateIdentity(); err != nil {
		transport.Close()
		l.Lock()
		l.transport = nil
		l.state = common.ConnectionError
		l.Unlock()
		l.publish(common.EventUpdateConnectionState{State: common.ConnectionError})
		return err
	}

	l.Lock()
	l.state = common.Connected
	l.seen = time.Now()
	l.Unlock()
	l.publish(common.EventUpdateConnectionState{State: common.Connected})
	common.Log.Infof(`connected to %v (%v) at %v`, l.Serial(), l.Type(), address)

	return nil
}

// populateIdentity reads the identity fields immediately after dialing.
// The order matters: the ID probe decides the dialect, and legacy devices
// answer GETSERNO with garbage, so their electronic serial doubles as the
// luminaire serial.
func (l *Luminaire) populateIdentity() error {
	firmware, err := l.query(`VER`)
	if err != nil {
		return fmt.Errorf(`reading firmware version: %w`, err)
	}

	electronic, err := l.query(`NS`)
	if err != nil {
		return fmt.Errorf(`reading electronic serial: %w`, err)
	}
	electronic = strings.TrimSpace(electronic)

	l.RLock()
	expected := l.electronicSerial
	l.RUnlock()
	if expected != `` && electronic != expected {
		return fmt.Errorf(`device at %s reports serial %q, discovery saw %q`, l.Address(), electronic, expected)
	}

	lumType := l.detectType()

	serial := electronic
	if lumType.Capability() == common.FullFeatured {
		serial, err = l.query(`GETSERNO`)
		if err != nil {
			return fmt.Errorf(`reading serial number: %w`, err)
		}
		serial = strings.TrimSpace(serial)
	}

	var mac string
	if body, err := l.query(`GETIP`); err == nil {
		if fields := strings.Fields(body); len(fields) > 0 {
			mac = fields[len(fields)-1]
		}
	}

	l.Lock()
	l.firmware = strings.TrimSpace(firmware)
	l.electronicSerial = electronic
	l.serial = serial
	l.lumType = lumType
	l.mac = mac
	l.Unlock()

	return nil
}

// detectType probes the ID command.  Legacy Light Replicators do not
// implement ID and answer with their analog telemetry dump instead, which is
// recognizable by its millivolt and milliamp readings.
func (l *Luminaire) detectType() common.LuminaireType {
	// The body survives a non-zero status; legacy firmware flags the ID
	// command as an error while still dumping its telemetry.
	body, err := l.query(`ID`)
	if err != nil {
		var cmdErr *common.CommandError
		if !errors.As(err, &cmdErr) {
			return common.TypeUnknown
		}
	}
	if strings.Contains(body, `mV`) && strings.Contains(body, `mA`) {
		return common.TypeLightReplicator
	}
	name, _, _ := strings.Cut(body, `:`)
	switch {
	case strings.Contains(name, `Octa`):
		return common.TypeOcta
	case strings.Contains(name, `Penta`):
		return common.TypePenta
	}
	return common.TypeUnknown
}

// Disconnect releases the session.  The firmware notices the stream close
// and frees its session slot; there is no on-wire goodbye.  Disconnect
// always succeeds locally and is safe to repeat.
func (l *Luminaire) Disconnect() error {
	l.Lock()
	transport := l.transport
	l.transport = nil
	wasConnected := l.state == common.Connected || l.state == common.Connecting
	l.state = common.Disconnected
	l.Unlock()

	if transport != nil {
		transport.Close()
	}
	if wasConnected {
		l.publish(common.EventUpdateConnectionState{State: common.Disconnected})
	}
	return nil
}

// capability reports the command dialect for the identified type
func (l *Luminaire) capability() common.Capability {
	return l.Type().Capability()
}

// transportRef returns the live transport, or nil when the session is not
// usable.  ConnectionError sessions fail fast here rather than redialing.
func (l *Luminaire) transportRef() *stream.Transport {
	l.RLock()
	defer l.RUnlock()
	switch l.state {
	case common.Connected, common.Connecting:
		return l.transport
	}
	return nil
}

// parseResponse splits a raw framed response into its body and the numeric
// status carried on the final line.  A response whose last line does not
// parse as an integer is assigned StatusNoResponse, preserving the body for
// the caller.
func parseResponse(raw string) (string, shared.Status) {
	raw = strings.TrimSuffix(raw, string(shared.ResponseTerminator))
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	statusLine := strings.TrimSpace(lines[len(lines)-1])
	code, err := strconv.Atoi(statusLine)
	if err != nil {
		return raw, shared.StatusNoResponse
	}
	return strings.Join(lines[:len(lines)-1], "\n"), shared.Status(code)
}

// query runs an idempotent command and returns its body, mapping non-zero
// statuses to a CommandError
func (l *Luminaire) query(command string) (string, error) {
	body, _, err := l.do(command, true)
	return body, err
}

// do executes one command/response exchange.  Exchanges serialize on cmdMu;
// file transfers hold the same lock across their whole job via doLocked.
//
// Idempotent commands that hit a timeout or transport fault are retried up
// to the configured budget with a fixed delay between attempts.  Commands
// that completed with a non-zero status are never retried: the device saw
// them, re-execution is the caller's call.  Exhausting the budget tears the
// session down so that later use fails fast instead of hanging.
func (l *Luminaire) do(command string, idempotent bool) (string, shared.Status, error) {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()
	return l.doLocked(command, idempotent)
}

func (l *Luminaire) doLocked(command string, idempotent bool) (string, shared.Status, error) {
	transport := l.transportRef()
	if transport == nil {
		return ``, shared.StatusNoResponse, common.ErrNotConnected
	}

	attempts := 1
	if idempotent && l.config.CommandRetries > 1 {
		attempts = l.config.CommandRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			common.Log.Debugf(`retrying %q on %v, attempt %d of %d`, command, l.Address(), attempt+1, attempts)
			time.Sleep(l.config.RetryDelay)
		}

		raw, err := transport.Send(command)
		if err != nil {
			lastErr = err
			if errors.Is(err, common.ErrClosed) {
				break
			}
			continue
		}

		body, status := parseResponse(raw)
		l.Lock()
		l.lastStatus = status
		l.seen = time.Now()
		l.Unlock()
		if status != shared.StatusOK {
			return body, status, &common.CommandError{Command: command, Status: int(status)}
		}
		return body, status, nil
	}

	l.fail()
	return ``, shared.StatusNoResponse, lastErr
}

// fail tears down a session that can no longer be trusted
func (l *Luminaire) fail() {
	l.Lock()
	transport := l.transport
	l.transport = nil
	changed := l.state != common.ConnectionError
	l.state = common.ConnectionError
	l.Unlock()

	if transport != nil {
		transport.Close()
	}
	if changed {
		common.Log.Warnf(`session with %v lost`, l.Address())
		l.publish(common.EventUpdateConnectionState{State: common.ConnectionError})
	}
}

// publish an event to subscribers
func (l *Luminaire) publish(event interface{}) error {
	l.RLock()
	subscriptions := make([]*common.Subscription, 0, len(l.subscriptions))
	for _, sub := range l.subscriptions {
		subscriptions = append(subscriptions, sub)
	}
	l.RUnlock()

	for _, sub := range subscriptions {
		if err := sub.Write(event); err != nil {
			return err
		}
	}

	return nil
}

// NewSubscription returns a new *common.Subscription for receiving events
// from this device
func (l *Luminaire) NewSubscription() (*common.Subscription, error) {
	select {
	case <-l.quitChan:
		return nil, common.ErrClosed
	default:
	}
	sub := common.NewSubscription(l)
	l.Lock()
	l.subscriptions[sub.ID()] = sub
	l.Unlock()
	return sub, nil
}

// CloseSubscription closes and removes a subscription from this device
func (l *Luminaire) CloseSubscription(sub *common.Subscription) error {
	l.RLock()
	_, ok := l.subscriptions[sub.ID()]
	l.RUnlock()
	if !ok {
		return common.ErrNotFound
	}
	l.Lock()
	delete(l.subscriptions, sub.ID())
	l.Unlock()
	return nil
}

// Close terminates the device: the session is released and all
// subscriptions are closed
func (l *Luminaire) Close() error {
	select {
	case <-l.quitChan:
		return common.ErrClosed
	default:
		close(l.quitChan)
	}
	l.Disconnect()
	l.Lock()
	subscriptions := l.subscriptions
	l.subscriptions = make(map[string]*common.Subscription)
	l.Unlock()
	for _, sub := range subscriptions {
		sub.Close()
	}
	return nil
}
