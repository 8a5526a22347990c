// Package gcr supplies OAuth2 access tokens for Google Container Registry and
// Artifact Registry hosts.
package gcr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nicholas-fedor/regauth/pkg/registry/auth"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

const (
	// Provider labels logs and metrics for this supplier.
	Provider = "gcr"
	// Username is the fixed user name registries expect alongside an access token.
	Username = "oauth2accesstoken"
	// Scope is the OAuth2 scope requested for registry access.
	Scope = "https://www.googleapis.com/auth/cloud-platform"
	// ServerAddress is reported for swarm credentials.
	ServerAddress = "https://gcr.io"
)

// KnownRegistries are the Container Registry hosts served by default.
var KnownRegistries = []string{
	"gcr.io",
	"us.gcr.io",
	"eu.gcr.io",
	"asia.gcr.io",
	"marketplace.gcr.io",
	"staging-k8s.gcr.io",
}

var (
	errLoadCredentials = errors.New("failed to load Google credentials")
	errReadKeyFile     = errors.New("failed to read Google key file")
	errObtainToken     = errors.New("failed to obtain Google access token")
	errEmptyToken      = errors.New("token source returned an empty access token")
)

type options struct {
	registries   []string
	minFreshness time.Duration
	refresh      []auth.RefreshOption
}

func newOptions(opts []Option) options {
	o := options{
		registries:   slices.Clone(KnownRegistries),
		minFreshness: auth.DefaultMinFreshness,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func (o options) credentialsParams() google.CredentialsParams {
	return google.CredentialsParams{
		Scopes:            []string{Scope},
		EarlyTokenRefresh: o.minFreshness,
	}
}

// Option configures a supplier.
type Option func(*options)

// WithAdditionalRegistries serves extra hosts, such as Artifact Registry
// "<region>-docker.pkg.dev" domains.
func WithAdditionalRegistries(hosts ...string) Option {
	return func(o *options) {
		for _, host := range hosts {
			if host != "" && !slices.Contains(o.registries, host) {
				o.registries = append(o.registries, host)
			}
		}
	}
}

// WithMinFreshness sets the remaining lifetime below which a token is
// replaced, both in the supplier's cache and in the Google token source
// behind it.
func WithMinFreshness(d time.Duration) Option {
	return func(o *options) {
		if d < 0 {
			return
		}

		o.minFreshness = d
		o.refresh = append(o.refresh, auth.WithMinFreshness(d))
	}
}

// WithRefreshOptions passes options to the underlying token cache.
func WithRefreshOptions(opts ...auth.RefreshOption) Option {
	return func(o *options) {
		o.refresh = append(o.refresh, opts...)
	}
}

// NewFromJSON builds a supplier from a service account key. The key is parsed
// immediately so a bad key fails construction; no token is fetched yet.
func NewFromJSON(ctx context.Context, keyJSON []byte, opts ...Option) (*auth.TokenSupplier, error) {
	o := newOptions(opts)

	source, err := sourceFromJSON(ctx, keyJSON, o)
	if err != nil {
		return nil, err
	}

	return newSupplier(source, o), nil
}

// NewFromKeyFile reads a service account key from path and calls NewFromJSON.
func NewFromKeyFile(ctx context.Context, path string, opts ...Option) (*auth.TokenSupplier, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errReadKeyFile, path, err)
	}

	return NewFromJSON(ctx, keyJSON, opts...)
}

// NewFromDefault builds a supplier from Application Default Credentials,
// which includes the metadata server when running on Google Cloud.
func NewFromDefault(ctx context.Context, opts ...Option) (*auth.TokenSupplier, error) {
	o := newOptions(opts)

	creds, err := google.FindDefaultCredentialsWithParams(ctx, o.credentialsParams())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errLoadCredentials, err)
	}

	logrus.WithField("project", creds.ProjectID).Debug("Using Google default credentials")

	source := creds.TokenSource
	if len(creds.JSON) > 0 {
		if source, err = sourceFromJSON(ctx, creds.JSON, o); err != nil {
			return nil, err
		}
	}

	return newSupplier(source, o), nil
}

// NewFromTokenSource builds a supplier around any token source.
func NewFromTokenSource(source oauth2.TokenSource, opts ...Option) *auth.TokenSupplier {
	return newSupplier(source, newOptions(opts))
}

func newSupplier(source oauth2.TokenSource, o options) *auth.TokenSupplier {
	token := auth.NewRefreshingToken(Provider, refreshFrom(source), o.refresh...)

	return auth.NewTokenSupplier(token, o.registries...)
}

// sourceFromJSON returns a token source for a credentials file. Early refresh
// only reaches the token cache of service account keys; the cache Google
// builds for other key types keeps its own window.
func sourceFromJSON(ctx context.Context, keyJSON []byte, o options) (oauth2.TokenSource, error) {
	if config, err := google.JWTConfigFromJSON(keyJSON, Scope); err == nil {
		return oauth2.ReuseTokenSourceWithExpiry(nil, config.TokenSource(ctx), o.minFreshness), nil
	}

	creds, err := google.CredentialsFromJSONWithParams(ctx, keyJSON, o.credentialsParams())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errLoadCredentials, err)
	}

	return creds.TokenSource, nil
}

func refreshFrom(source oauth2.TokenSource) auth.RefreshFunc {
	return func(ctx context.Context) (auth.Token, error) {
		if err := ctx.Err(); err != nil {
			return auth.Token{}, err
		}

		token, err := source.Token()
		if err != nil {
			return auth.Token{}, fmt.Errorf("%w: %w", errObtainToken, err)
		}

		if token.AccessToken == "" {
			return auth.Token{}, errEmptyToken
		}

		return auth.Token{
			Auth: types.RegistryAuth{
				ServerAddress: ServerAddress,
				Username:      Username,
				Password:      token.AccessToken,
			},
			Expiry: token.Expiry,
		}, nil
	}
}

// DetectDefault reports whether the process runs on Google Cloud, where
// default credentials are available from the metadata server. The project ID
// is returned when it can be read.
func DetectDefault(ctx context.Context) (string, bool) {
	if !metadata.OnGCE() {
		return "", false
	}

	project, err := metadata.ProjectIDWithContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Unable to read project ID from metadata server")
	}

	return project, true
}
