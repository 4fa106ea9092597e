package common

import "time"

// Client defines the interface required by protocols
type Client interface {
	AddDevice(Device) error
	RemoveDeviceBySerial(string) error
	GetTimeout() *time.Duration
	GetRetryInterval() *time.Duration
}
