package auth

import (
	"context"

	"github.com/nicholas-fedor/regauth/pkg/types"
)

// FixedSupplier returns the same caller-supplied credentials for every request.
type FixedSupplier struct {
	auth    *types.RegistryAuth
	configs types.RegistryConfigs
}

// NewFixedSupplier wraps auth (may be nil) and configs (nil means empty).
// Both are copied so later changes by the caller have no effect.
func NewFixedSupplier(auth *types.RegistryAuth, configs types.RegistryConfigs) *FixedSupplier {
	supplier := &FixedSupplier{configs: types.NewRegistryConfigs().Merge(configs)}

	if auth != nil {
		copied := *auth
		supplier.auth = &copied
	}

	return supplier
}

// AuthFor returns the fixed credential regardless of imageName.
func (s *FixedSupplier) AuthFor(_ context.Context, _ string) (*types.RegistryAuth, error) {
	return s.copyAuth(), nil
}

// AuthForSwarm returns the fixed credential.
func (s *FixedSupplier) AuthForSwarm(_ context.Context) (*types.RegistryAuth, error) {
	return s.copyAuth(), nil
}

// AuthForBuild returns a copy of the fixed set.
func (s *FixedSupplier) AuthForBuild(_ context.Context) (types.RegistryConfigs, error) {
	return types.NewRegistryConfigs().Merge(s.configs), nil
}

func (s *FixedSupplier) copyAuth() *types.RegistryAuth {
	if s.auth == nil {
		return nil
	}

	copied := *s.auth

	return &copied
}
