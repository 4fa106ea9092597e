package mocks

import "time"

import "github.com/telelumen/golum/common"
import "github.com/stretchr/testify/mock"

type Client struct {
	mock.Mock
}

// AddDevice provides a mock function with given fields: dev
func (_m *Client) AddDevice(dev common.Device) error {
	ret := _m.Called(dev)

	var r0 error
	if rf, ok := ret.Get(0).(func(common.Device) error); ok {
		r0 = rf(dev)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// RemoveDeviceBySerial provides a mock function with given fields: serial
func (_m *Client) RemoveDeviceBySerial(serial string) error {
	ret := _m.Called(serial)

	var r0 error
	if rf, ok := ret.Get(0).(func(string) error); ok {
		r0 = rf(serial)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// GetTimeout provides a mock function with given fields:
func (_m *Client) GetTimeout() *time.Duration {
	ret := _m.Called()

	var r0 *time.Duration
	if rf, ok := ret.Get(0).(func() *time.Duration); ok {
		r0 = rf()
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*time.Duration)
	}

	return r0
}

// GetRetryInterval provides a mock function with given fields:
func (_m *Client) GetRetryInterval() *time.Duration {
	ret := _m.Called()

	var r0 *time.Duration
	if rf, ok := ret.Get(0).(func() *time.Duration); ok {
		r0 = rf()
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*time.Duration)
	}

	return r0
}
