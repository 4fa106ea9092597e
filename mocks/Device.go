package mocks

import "context"

import "github.com/telelumen/golum/common"
import "github.com/stretchr/testify/mock"

type Device struct {
	SubscriptionTarget
	mock.Mock
}

// Serial provides a mock function with given fields:
func (_m *Device) Serial() string {
	ret := _m.Called()

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Address provides a mock function with given fields:
func (_m *Device) Address() string {
	ret := _m.Called()

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Type provides a mock function with given fields:
func (_m *Device) Type() common.LuminaireType {
	ret := _m.Called()

	var r0 common.LuminaireType
	if rf, ok := ret.Get(0).(func() common.LuminaireType); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(common.LuminaireType)
	}

	return r0
}

// State provides a mock function with given fields:
func (_m *Device) State() common.ConnectionState {
	ret := _m.Called()

	var r0 common.ConnectionState
	if rf, ok := ret.Get(0).(func() common.ConnectionState); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(common.ConnectionState)
	}

	return r0
}

// Connect provides a mock function with given fields: ctx
func (_m *Device) Connect(ctx context.Context) error {
	ret := _m.Called(ctx)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Disconnect provides a mock function with given fields:
func (_m *Device) Disconnect() error {
	ret := _m.Called()

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
