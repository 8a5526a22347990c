package registry

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	dockerRegistry "github.com/docker/docker/api/types/registry"

	"github.com/nicholas-fedor/regauth/pkg/types"
)

const (
	// AuthHeader carries the credential for a single pull or push.
	AuthHeader = dockerRegistry.AuthHeader
	// ConfigHeader carries the per-registry credentials for a build.
	ConfigHeader = "X-Registry-Config"
)

// Errors for encoding and decoding header values.
var (
	// errFailedEncodeAuth indicates a failure to encode a credential.
	errFailedEncodeAuth = errors.New("failed to encode registry auth")
	// errFailedDecodeAuth indicates a header value that is not a valid encoded credential.
	errFailedDecodeAuth = errors.New("failed to decode registry auth")
	// errFailedMarshalConfig indicates a failure to marshal build credentials to JSON.
	errFailedMarshalConfig = errors.New("failed to marshal registry config to JSON")
	// errFailedDecodeConfig indicates a header value that is not a valid encoded credential set.
	errFailedDecodeConfig = errors.New("failed to decode registry config")
)

// ToAuthConfig converts a credential to the Engine API type.
func ToAuthConfig(auth types.RegistryAuth) dockerRegistry.AuthConfig {
	return dockerRegistry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		Auth:          auth.BasicAuth(),
		Email:         auth.Email,
		ServerAddress: auth.ServerAddress,
		IdentityToken: auth.IdentityToken,
	}
}

// FromAuthConfig converts an Engine API credential. A basic-auth "auth" value
// fills in the username and password when they are not set.
func FromAuthConfig(config dockerRegistry.AuthConfig) types.RegistryAuth {
	auth := types.RegistryAuth{
		ServerAddress: config.ServerAddress,
		Username:      config.Username,
		Password:      config.Password,
		IdentityToken: config.IdentityToken,
		Email:         config.Email,
	}

	if config.Auth != "" && auth.Username == "" && auth.Password == "" {
		if decoded, err := types.FromBasicAuth(config.Auth); err == nil {
			auth.Username = decoded.Username
			auth.Password = decoded.Password
		}
	}

	if auth.IdentityToken == "" && config.RegistryToken != "" {
		auth.IdentityToken = config.RegistryToken
	}

	return auth
}

// EncodeAuth returns the X-Registry-Auth value for auth. A nil credential
// encodes to the empty string, meaning anonymous access.
func EncodeAuth(auth *types.RegistryAuth) (string, error) {
	if auth == nil {
		return "", nil
	}

	encoded, err := dockerRegistry.EncodeAuthConfig(ToAuthConfig(*auth))
	if err != nil {
		logrus.WithError(err).WithField("username", auth.Username).Debug("Failed to encode auth config")

		return "", fmt.Errorf("%w: %w", errFailedEncodeAuth, err)
	}

	logrus.WithFields(logrus.Fields{
		"username": auth.Username,
		"server":   auth.ServerAddress,
	}).Debug("Encoded auth config")

	return encoded, nil
}

// DecodeAuth parses an X-Registry-Auth value. The empty string decodes to nil.
func DecodeAuth(encoded string) (*types.RegistryAuth, error) {
	if encoded == "" {
		return nil, nil //nolint:nilnil // Anonymous access
	}

	config, err := dockerRegistry.DecodeAuthConfig(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedDecodeAuth, err)
	}

	auth := FromAuthConfig(*config)

	return &auth, nil
}

// EncodeRegistryConfig returns the X-Registry-Config value for configs: the
// JSON object of credentials keyed by server address, base64url encoded.
func EncodeRegistryConfig(configs types.RegistryConfigs) (string, error) {
	wire := make(map[string]dockerRegistry.AuthConfig, len(configs))
	for address, auth := range configs {
		wire[address] = ToAuthConfig(auth)
	}

	buf, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedMarshalConfig, err)
	}

	logrus.WithField("registries", len(wire)).Debug("Encoded registry config")

	return base64.URLEncoding.EncodeToString(buf), nil
}

// DecodeRegistryConfig parses an X-Registry-Config value. The empty string
// decodes to an empty set.
func DecodeRegistryConfig(encoded string) (types.RegistryConfigs, error) {
	configs := types.NewRegistryConfigs()
	if encoded == "" {
		return configs, nil
	}

	buf, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedDecodeConfig, err)
	}

	var wire map[string]dockerRegistry.AuthConfig
	if err := json.Unmarshal(buf, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedDecodeConfig, err)
	}

	for address, config := range wire {
		configs[address] = FromAuthConfig(config)
	}

	return configs, nil
}
