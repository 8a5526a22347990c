package types

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// errInvalidBasicAuth indicates an "auth" field that is not base64 of "user:pass".
var errInvalidBasicAuth = errors.New("invalid basic auth value")

// RegistryAuth holds the credential presented to a single registry.
//
// Either Username and Password or IdentityToken is meaningful. Values are
// treated as immutable once constructed: helpers return modified copies.
type RegistryAuth struct {
	ServerAddress string // Registry the credential belongs to, as keyed by its source.
	Username      string // Registry username.
	Password      string // Registry token or password.
	IdentityToken string // Long-lived token used instead of a username/password pair.
	Email         string // Legacy email field, passed through untouched.
}

// FromBasicAuth decodes a base64 "user:pass" value as stored in the "auth"
// field of a Docker config entry. The password may be empty.
func FromBasicAuth(encoded string) (RegistryAuth, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return RegistryAuth{}, fmt.Errorf("%w: %w", errInvalidBasicAuth, err)
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return RegistryAuth{}, fmt.Errorf("%w: expected user:pass", errInvalidBasicAuth)
	}

	return RegistryAuth{Username: username, Password: password}, nil
}

// BasicAuth returns the base64 "user:pass" form of the credential, or an empty
// string when no username is set.
func (a RegistryAuth) BasicAuth() string {
	if a.Username == "" {
		return ""
	}

	return base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
}

// ForServer returns a copy of the credential bound to the given server address.
func (a RegistryAuth) ForServer(serverAddress string) RegistryAuth {
	a.ServerAddress = serverAddress

	return a
}

// IsEmpty reports whether the credential carries no secret material.
func (a RegistryAuth) IsEmpty() bool {
	return a.Username == "" && a.Password == "" && a.IdentityToken == ""
}

// RegistryConfigs maps a server address (exact match, scheme included when
// present) to the credential for that registry.
type RegistryConfigs map[string]RegistryAuth

// NewRegistryConfigs returns an empty, non-nil set.
func NewRegistryConfigs() RegistryConfigs {
	return RegistryConfigs{}
}

// Merge returns a new set holding the entries of c overwritten by those of other.
// Neither input is modified.
func (c RegistryConfigs) Merge(other RegistryConfigs) RegistryConfigs {
	merged := make(RegistryConfigs, len(c)+len(other))

	for address, auth := range c {
		merged[address] = auth
	}

	for address, auth := range other {
		merged[address] = auth
	}

	return merged
}

// Addresses returns the server addresses present in the set.
func (c RegistryConfigs) Addresses() []string {
	addresses := make([]string, 0, len(c))
	for address := range c {
		addresses = append(addresses, address)
	}

	return addresses
}
