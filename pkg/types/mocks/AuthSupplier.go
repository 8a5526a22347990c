package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nicholas-fedor/regauth/pkg/types"
)

// AuthSupplier is a mock type for the AuthSupplier type.
type AuthSupplier struct {
	mock.Mock
}

// AuthFor provides a mock function with given fields: ctx, imageName.
func (_m *AuthSupplier) AuthFor(ctx context.Context, imageName string) (*types.RegistryAuth, error) {
	ret := _m.Called(ctx, imageName)

	var result0 *types.RegistryAuth
	if rf, ok := ret.Get(0).(func(context.Context, string) *types.RegistryAuth); ok {
		result0 = rf(ctx, imageName)
	} else if ret.Get(0) != nil {
		result0 = ret.Get(0).(*types.RegistryAuth)
	}

	var result1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		result1 = rf(ctx, imageName)
	} else {
		result1 = ret.Error(1)
	}

	return result0, result1
}

// AuthForSwarm provides a mock function with given fields: ctx.
func (_m *AuthSupplier) AuthForSwarm(ctx context.Context) (*types.RegistryAuth, error) {
	ret := _m.Called(ctx)

	var result0 *types.RegistryAuth
	if rf, ok := ret.Get(0).(func(context.Context) *types.RegistryAuth); ok {
		result0 = rf(ctx)
	} else if ret.Get(0) != nil {
		result0 = ret.Get(0).(*types.RegistryAuth)
	}

	var result1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		result1 = rf(ctx)
	} else {
		result1 = ret.Error(1)
	}

	return result0, result1
}

// AuthForBuild provides a mock function with given fields: ctx.
func (_m *AuthSupplier) AuthForBuild(ctx context.Context) (types.RegistryConfigs, error) {
	ret := _m.Called(ctx)

	var result0 types.RegistryConfigs
	if rf, ok := ret.Get(0).(func(context.Context) types.RegistryConfigs); ok {
		result0 = rf(ctx)
	} else if ret.Get(0) != nil {
		result0 = ret.Get(0).(types.RegistryConfigs)
	}

	var result1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		result1 = rf(ctx)
	} else {
		result1 = ret.Error(1)
	}

	return result0, result1
}

// NewAuthSupplier creates a new instance of AuthSupplier and registers a
// cleanup asserting the expectations.
func NewAuthSupplier(t interface {
	mock.TestingT
	Cleanup(fn func())
},
) *AuthSupplier {
	supplier := &AuthSupplier{}
	supplier.Mock.Test(t)

	t.Cleanup(func() { supplier.AssertExpectations(t) })

	return supplier
}
