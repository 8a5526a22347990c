package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/metrics"
	"github.com/nicholas-fedor/regauth/pkg/registry/credhelper"
	"github.com/nicholas-fedor/regauth/pkg/registry/dockerconfig"
	"github.com/nicholas-fedor/regauth/pkg/registry/imageref"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// SourceDockerConfig labels lookups served by a FileSupplier.
const SourceDockerConfig = "docker-config"

// errConfigLookup indicates a config file lookup failed for a reason other than a missing file.
var errConfigLookup = errors.New("failed to look up credentials in config file")

// FileSupplier resolves credentials from a Docker config file. The file is
// read again on every call, so out-of-band edits are picked up.
type FileSupplier struct {
	path   string
	reader *dockerconfig.Reader
}

// NewFileSupplier returns a supplier for the config file at path.
func NewFileSupplier(path string, bridge credhelper.Bridge) *FileSupplier {
	return &FileSupplier{
		path:   path,
		reader: dockerconfig.NewReader(bridge),
	}
}

// NewDefaultFileSupplier returns a supplier for the default config file location.
func NewDefaultFileSupplier(bridge credhelper.Bridge) (*FileSupplier, error) {
	path, err := dockerconfig.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConfigNotFound, err)
	}

	return NewFileSupplier(path, bridge), nil
}

// Path returns the config file location.
func (s *FileSupplier) Path() string {
	return s.path
}

// AuthFor resolves by the image's registry URL, retrying with the bare registry
// name when the matched entry is malformed. Malformed entries and a missing
// file yield no credential; I/O and helper failures are returned.
func (s *FileSupplier) AuthFor(ctx context.Context, imageName string) (*types.RegistryAuth, error) {
	ref := imageref.Parse(imageName)
	fields := logrus.Fields{
		"image":       imageName,
		"registry":    ref.RegistryName(),
		"config_file": s.path,
	}

	config, err := s.reader.Read(s.path)
	if err != nil {
		if errors.Is(err, types.ErrConfigNotFound) {
			logrus.WithFields(fields).Debug("Config file not found, no credentials")
			metrics.Default().RecordLookup(SourceDockerConfig, metrics.ResultAbsent)

			return nil, nil
		}

		metrics.Default().RecordLookup(SourceDockerConfig, metrics.ResultError)

		return nil, fmt.Errorf("%w: %w", errConfigLookup, err)
	}

	auth, err := s.reader.Resolve(ctx, config, ref.RegistryURL())
	if errors.Is(err, types.ErrMalformedEntry) {
		logrus.WithError(err).WithFields(fields).Debug("Malformed entry for registry URL, retrying with registry name")

		auth, err = s.reader.Resolve(ctx, config, ref.RegistryName())
		if errors.Is(err, types.ErrMalformedEntry) {
			logrus.WithError(err).WithFields(fields).Warn("Ignoring malformed credentials for registry")
			metrics.Default().RecordLookup(SourceDockerConfig, metrics.ResultAbsent)

			return nil, nil
		}
	}

	if err != nil {
		metrics.Default().RecordLookup(SourceDockerConfig, metrics.ResultError)

		return nil, fmt.Errorf("%w: %w", errConfigLookup, err)
	}

	if auth == nil {
		metrics.Default().RecordLookup(SourceDockerConfig, metrics.ResultAbsent)

		return nil, nil
	}

	logrus.WithFields(fields).WithField("username", auth.Username).Debug("Loaded credentials from config file")
	metrics.Default().RecordLookup(SourceDockerConfig, metrics.ResultFound)

	return auth, nil
}

// AuthForSwarm returns no credential: single-host file entries do not apply
// to swarm-wide configuration.
func (s *FileSupplier) AuthForSwarm(_ context.Context) (*types.RegistryAuth, error) {
	return nil, nil
}

// AuthForBuild returns every registry the file can enumerate, or an empty set
// when the file does not exist.
func (s *FileSupplier) AuthForBuild(ctx context.Context) (types.RegistryConfigs, error) {
	config, err := s.reader.Read(s.path)
	if err != nil {
		if errors.Is(err, types.ErrConfigNotFound) {
			logrus.WithField("config_file", s.path).Debug("Config file not found, no build credentials")

			return types.NewRegistryConfigs(), nil
		}

		return nil, fmt.Errorf("%w: %w", errConfigLookup, err)
	}

	configs, err := s.reader.ResolveAll(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfigLookup, err)
	}

	logrus.WithFields(logrus.Fields{
		"config_file": s.path,
		"registries":  len(configs),
	}).Debug("Loaded build credentials from config file")

	return configs, nil
}
