// Package keychain exposes an AuthSupplier as a go-containerregistry keychain.
package keychain

import (
	"context"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/registry/imageref"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// Keychain resolves registry authenticators through an AuthSupplier.
type Keychain struct {
	supplier types.AuthSupplier
}

var (
	_ authn.Keychain        = (*Keychain)(nil)
	_ authn.ContextKeychain = (*Keychain)(nil)
)

// New returns a keychain backed by supplier.
func New(supplier types.AuthSupplier) *Keychain {
	return &Keychain{supplier: supplier}
}

// Resolve implements authn.Keychain.
func (k *Keychain) Resolve(target authn.Resource) (authn.Authenticator, error) {
	return k.ResolveContext(context.Background(), target)
}

// ResolveContext returns an authenticator for target. Targets without a
// credential resolve to anonymous access.
func (k *Keychain) ResolveContext(ctx context.Context, target authn.Resource) (authn.Authenticator, error) {
	image := imageName(target)

	// Hosts without a dot, colon or "localhost" parse as Docker Hub images.
	parsed := imageref.Parse(image).RegistryName()
	if !sameRegistry(parsed, target.RegistryStr()) {
		logrus.WithFields(logrus.Fields{
			"registry": target.RegistryStr(),
			"parsed":   parsed,
		}).Debug("Registry cannot be expressed as an image name, using anonymous access")

		return authn.Anonymous, nil
	}

	auth, err := k.supplier.AuthFor(ctx, image)
	if err != nil {
		return nil, err
	}

	if auth == nil {
		logrus.WithField("registry", target.RegistryStr()).Debug("No credentials, using anonymous access")

		return authn.Anonymous, nil
	}

	return authn.FromConfig(authn.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		IdentityToken: auth.IdentityToken,
	}), nil
}

// imageName turns a registry or repository resource into a name whose
// registry part is explicit.
func imageName(target authn.Resource) string {
	registry := target.RegistryStr()

	name := target.String()
	if strings.HasPrefix(name, registry+"/") {
		return name
	}

	return registry + "/"
}

func sameRegistry(a, b string) bool {
	if imageref.IsDockerHub(a) && imageref.IsDockerHub(b) {
		return true
	}

	return strings.EqualFold(a, b)
}
