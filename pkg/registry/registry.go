package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/api/types/image"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/types"
)

// Errors for registry operations.
var (
	// errFailedGetAuth indicates a failure to retrieve authentication credentials for an image.
	errFailedGetAuth = errors.New("failed to get authentication credentials")
	// errFailedGetBuildAuth indicates a failure to retrieve credentials for a build.
	errFailedGetBuildAuth = errors.New("failed to get build credentials")
)

// EncodedAuth returns the X-Registry-Auth value for pulling imageName, or the
// empty string when the supplier has no credential for it.
func EncodedAuth(ctx context.Context, supplier types.AuthSupplier, imageName string) (string, error) {
	fields := logrus.Fields{
		"image": imageName,
	}

	logrus.WithFields(fields).Debug("Attempting to retrieve auth credentials")

	auth, err := supplier.AuthFor(ctx, imageName)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Failed to get authentication credentials")

		return "", fmt.Errorf("%w: %w", errFailedGetAuth, err)
	}

	if auth == nil {
		logrus.WithFields(fields).Debug("No authentication credentials found")

		return "", nil
	}

	logrus.WithFields(fields).WithFields(logrus.Fields{
		"username": auth.Username,
		"server":   auth.ServerAddress,
	}).Debug("Retrieved authentication credentials")

	// Log the password only in trace mode
	if logrus.GetLevel() == logrus.TraceLevel {
		logrus.WithFields(fields).WithField("password", auth.Password).Trace("Using credentials")
	}

	return EncodeAuth(auth)
}

// EncodedSwarmAuth returns the X-Registry-Auth value for swarm operations, or
// the empty string when no supplier has one.
func EncodedSwarmAuth(ctx context.Context, supplier types.AuthSupplier) (string, error) {
	auth, err := supplier.AuthForSwarm(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedGetAuth, err)
	}

	return EncodeAuth(auth)
}

// EncodedBuildConfig returns the X-Registry-Config value for a build.
func EncodedBuildConfig(ctx context.Context, supplier types.AuthSupplier) (string, error) {
	configs, err := supplier.AuthForBuild(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedGetBuildAuth, err)
	}

	return EncodeRegistryConfig(configs)
}

// PullOptions creates a struct with all options needed for pulling imageName.
// It configures a privilege function for handling authentication retries.
func PullOptions(ctx context.Context, supplier types.AuthSupplier, imageName string) (image.PullOptions, error) {
	fields := logrus.Fields{
		"image": imageName,
	}

	logrus.WithFields(fields).Debug("Retrieving pull options")

	auth, err := EncodedAuth(ctx, supplier, imageName)
	if err != nil {
		return image.PullOptions{}, err
	}

	if auth == "" {
		return image.PullOptions{}, nil
	}

	logrus.WithFields(fields).Debug("Configured pull options")

	return image.PullOptions{
		RegistryAuth:  auth,
		PrivilegeFunc: DefaultAuthHandler,
	}, nil
}

// DefaultAuthHandler is a privilege function called when initial authentication fails.
// It logs the rejection and returns an empty string to retry the request without authentication,
// as retrying with the same credentials used in AuthConfig is unlikely to succeed.
func DefaultAuthHandler(_ context.Context) (string, error) {
	logrus.Debug("Authentication rejected, retrying without credentials")

	return "", nil
}
