package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/nicholas-fedor/regauth/pkg/metrics"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// DefaultMinFreshness is the remaining lifetime below which a cached token is replaced.
const DefaultMinFreshness = time.Minute

// Token is a short-lived credential issued by a cloud provider.
type Token struct {
	Auth types.RegistryAuth
	// Expiry is the moment the token stops being valid. Zero means it never expires.
	Expiry time.Time
}

// RefreshFunc obtains a new token from a provider.
type RefreshFunc func(ctx context.Context) (Token, error)

// RefreshingToken caches a provider token and refreshes it when it is close
// to expiry. Refreshes are serialized: concurrent callers that find the token
// stale wait for a single refresh.
type RefreshingToken struct {
	provider     string
	refresh      RefreshFunc
	clock        clock.PassiveClock
	minFreshness time.Duration

	mu    sync.Mutex
	token *Token
}

// RefreshOption configures a RefreshingToken.
type RefreshOption func(*RefreshingToken)

// WithClock sets the time source used for expiry checks.
func WithClock(c clock.PassiveClock) RefreshOption {
	return func(r *RefreshingToken) {
		r.clock = c
	}
}

// WithMinFreshness sets the minimum remaining lifetime of a cached token.
func WithMinFreshness(d time.Duration) RefreshOption {
	return func(r *RefreshingToken) {
		if d >= 0 {
			r.minFreshness = d
		}
	}
}

// NewRefreshingToken returns an empty cache for provider. No refresh happens
// until the first Get.
func NewRefreshingToken(provider string, refresh RefreshFunc, opts ...RefreshOption) *RefreshingToken {
	r := &RefreshingToken{
		provider:     provider,
		refresh:      refresh,
		clock:        clock.RealClock{},
		minFreshness: DefaultMinFreshness,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Provider returns the provider name used in logs and metrics.
func (r *RefreshingToken) Provider() string {
	return r.provider
}

// Get returns the cached token, refreshing it first when NeedsRefresh says so.
// A failed refresh leaves the previous token cached and returns an error
// wrapping ErrProviderRefresh.
func (r *RefreshingToken) Get(ctx context.Context) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !NeedsRefresh(r.token, r.clock.Now(), r.minFreshness) {
		return *r.token, nil
	}

	logrus.WithField("provider", r.provider).Debug("Refreshing registry token")

	token, err := r.refresh(ctx)
	if err != nil {
		metrics.Default().RecordTokenRefresh(r.provider, metrics.ResultError)

		return Token{}, fmt.Errorf("%w: %s: %w", types.ErrProviderRefresh, r.provider, err)
	}

	metrics.Default().RecordTokenRefresh(r.provider, metrics.ResultFound)

	fields := logrus.Fields{"provider": r.provider}
	if !token.Expiry.IsZero() {
		fields["expires"] = token.Expiry.Format(time.RFC3339)
	}

	logrus.WithFields(fields).Debug("Refreshed registry token")
	logrus.WithFields(fields).WithField("token", token.Auth.Password).Trace("Refreshed token value")

	r.token = &token

	return token, nil
}

// NeedsRefresh reports whether token must be replaced at now. A missing token
// always needs a refresh, a token without expiry never does, and otherwise
// the token is stale once its remaining lifetime is at most minFreshness.
func NeedsRefresh(token *Token, now time.Time, minFreshness time.Duration) bool {
	if token == nil {
		return true
	}

	if token.Expiry.IsZero() {
		return false
	}

	return token.Expiry.Sub(now) <= minFreshness
}
