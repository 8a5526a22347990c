package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/metrics"
	"github.com/nicholas-fedor/regauth/pkg/registry/imageref"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// TokenSupplier serves a RefreshingToken for a fixed set of registry hosts.
// Images on other hosts never trigger a refresh.
type TokenSupplier struct {
	token      *RefreshingToken
	registries []string
}

// NewTokenSupplier returns a supplier using token for the given hosts.
func NewTokenSupplier(token *RefreshingToken, registries ...string) *TokenSupplier {
	return &TokenSupplier{
		token:      token,
		registries: slices.Clone(registries),
	}
}

// Registries returns the hosts served by the supplier.
func (s *TokenSupplier) Registries() []string {
	return slices.Clone(s.registries)
}

// Matches reports whether host is served by the supplier.
func (s *TokenSupplier) Matches(host string) bool {
	host = imageref.Host(host)

	return slices.ContainsFunc(s.registries, func(registry string) bool {
		return strings.EqualFold(registry, host)
	})
}

// AuthFor returns the provider token for images on a served host. A refresh
// failure is returned.
func (s *TokenSupplier) AuthFor(ctx context.Context, imageName string) (*types.RegistryAuth, error) {
	ref := imageref.Parse(imageName)
	if !s.Matches(ref.RegistryName()) {
		metrics.Default().RecordLookup(s.token.Provider(), metrics.ResultAbsent)

		return nil, nil
	}

	token, err := s.token.Get(ctx)
	if err != nil {
		metrics.Default().RecordLookup(s.token.Provider(), metrics.ResultError)

		return nil, err
	}

	metrics.Default().RecordLookup(s.token.Provider(), metrics.ResultFound)

	auth := token.Auth.ForServer(ref.RegistryName())

	return &auth, nil
}

// AuthForSwarm returns the provider token, or nothing when the refresh fails.
func (s *TokenSupplier) AuthForSwarm(ctx context.Context) (*types.RegistryAuth, error) {
	token, err := s.token.Get(ctx)
	if err != nil {
		logrus.WithError(err).WithField("provider", s.token.Provider()).Warn("Unable to refresh token for swarm")

		return nil, nil
	}

	auth := token.Auth

	return &auth, nil
}

// AuthForBuild returns the provider token keyed by every served host, or an
// empty set when the refresh fails.
func (s *TokenSupplier) AuthForBuild(ctx context.Context) (types.RegistryConfigs, error) {
	configs := types.NewRegistryConfigs()

	token, err := s.token.Get(ctx)
	if err != nil {
		logrus.WithError(err).WithField("provider", s.token.Provider()).Warn("Unable to refresh token for build")

		return configs, nil
	}

	for _, registry := range s.registries {
		configs[registry] = token.Auth.ForServer(registry)
	}

	return configs, nil
}
