package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/internal/flags"
	"github.com/nicholas-fedor/regauth/pkg/registry/auth"
	"github.com/nicholas-fedor/regauth/pkg/registry/auth/ecr"
	"github.com/nicholas-fedor/regauth/pkg/registry/auth/gcr"
	"github.com/nicholas-fedor/regauth/pkg/registry/credhelper"
	"github.com/nicholas-fedor/regauth/pkg/registry/imageref"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// Source names reported in the startup message.
const (
	sourceStatic = "static"
	sourceGCR    = gcr.Provider
	sourceECR    = ecr.Provider
)

var (
	// errDockerConfigSource indicates the Docker config location could not be determined.
	errDockerConfigSource = errors.New("failed to configure docker config source")
	// errGCRSource indicates the Google credentials could not be loaded.
	errGCRSource = errors.New("failed to configure GCR source")
	// errECRSource indicates the AWS configuration or account lookup failed.
	errECRSource = errors.New("failed to configure ECR source")
)

// detectGCE reports whether regauth runs on Google Compute Engine.
var detectGCE = gcr.DetectDefault

// newSupplier assembles the composite supplier from the configured sources.
//
// Sources are ordered static, docker config, GCR, ECR; the first to hold a
// credential for a registry wins. The returned names follow the same order.
func newSupplier(ctx context.Context, opts flags.CredentialOptions) (types.AuthSupplier, []string, error) {
	var (
		suppliers []types.AuthSupplier
		sources   []string
	)

	if opts.StaticConfigured {
		suppliers = append(suppliers, staticSupplier(opts))
		sources = append(sources, sourceStatic)
	}

	if !opts.NoDockerConfig {
		file, err := fileSupplier(opts)
		if err != nil {
			return nil, nil, err
		}

		suppliers = append(suppliers, file)
		sources = append(sources, auth.SourceDockerConfig)
	}

	google, err := gcrSupplier(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	if google != nil {
		suppliers = append(suppliers, google)
		sources = append(sources, sourceGCR)
	}

	if opts.ECR {
		cfg, err := ecr.LoadConfig(ctx, opts.ECRRegion, opts.ECRAccessKeyID, opts.ECRSecretKey)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errECRSource, err)
		}

		aws, err := ecr.New(ctx, cfg, auth.WithMinFreshness(opts.MinFreshness))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errECRSource, err)
		}

		suppliers = append(suppliers, aws)
		sources = append(sources, sourceECR)
	}

	return auth.NewCompositeSupplier(suppliers...), sources, nil
}

// staticSupplier serves the --username/--password pair for every registry.
// For builds it is keyed by --server-address, Docker Hub when unset.
func staticSupplier(opts flags.CredentialOptions) *auth.FixedSupplier {
	server := opts.ServerAddress
	if server == "" {
		server = imageref.DefaultRegistryURL
	}

	credential := types.RegistryAuth{
		ServerAddress: server,
		Username:      opts.Username,
		Password:      opts.Password,
	}

	return auth.NewFixedSupplier(&credential, types.RegistryConfigs{server: credential})
}

func fileSupplier(opts flags.CredentialOptions) (*auth.FileSupplier, error) {
	bridge := credhelper.NewExecBridge(credhelper.WithPrefix(opts.HelperPrefix))

	if opts.DockerConfig != "" {
		return auth.NewFileSupplier(opts.DockerConfig, bridge), nil
	}

	file, err := auth.NewDefaultFileSupplier(bridge)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDockerConfigSource, err)
	}

	return file, nil
}

// gcrSupplier returns nil when Google credentials are neither requested nor
// available from the GCE metadata server.
func gcrSupplier(ctx context.Context, opts flags.CredentialOptions) (*auth.TokenSupplier, error) {
	gcrOpts := []gcr.Option{
		gcr.WithAdditionalRegistries(opts.GCRRegistries...),
		gcr.WithMinFreshness(opts.MinFreshness),
	}

	var (
		supplier *auth.TokenSupplier
		err      error
	)

	switch {
	case opts.GCRKeyFile != "":
		supplier, err = gcr.NewFromKeyFile(ctx, opts.GCRKeyFile, gcrOpts...)
	case opts.GCR:
		supplier, err = gcr.NewFromDefault(ctx, gcrOpts...)
	default:
		project, onGCE := detectGCE(ctx)
		if !onGCE {
			return nil, nil //nolint:nilnil // Not on GCE and not requested
		}

		logrus.WithField("project", project).Debug("Running on GCE, using metadata server credentials")

		supplier, err = gcr.NewFromDefault(ctx, gcrOpts...)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", errGCRSource, err)
	}

	return supplier, nil
}
