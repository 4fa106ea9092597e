package mocks

import "context"

import "github.com/telelumen/golum/common"
import "github.com/stretchr/testify/mock"

type Protocol struct {
	SubscriptionTarget
	mock.Mock
}

// SetClient provides a mock function with given fields: client
func (_m *Protocol) SetClient(client common.Client) {
	_m.Called(client)
}

// Discover provides a mock function with given fields: ctx
func (_m *Protocol) Discover(ctx context.Context) error {
	ret := _m.Called(ctx)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ConnectToAddress provides a mock function with given fields: ctx, address
func (_m *Protocol) ConnectToAddress(ctx context.Context, address string) (common.Device, error) {
	ret := _m.Called(ctx, address)

	var r0 common.Device
	if rf, ok := ret.Get(0).(func(context.Context, string) common.Device); ok {
		r0 = rf(ctx, address)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(common.Device)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, address)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Close provides a mock function with given fields:
func (_m *Protocol) Close() error {
	ret := _m.Called()

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
