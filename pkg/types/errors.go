package types

import "errors"

// Error categories shared by all credential sources. Concrete errors wrap one
// of these so callers can branch with errors.Is.
var (
	// ErrConfigNotFound indicates the credentials file does not exist.
	ErrConfigNotFound = errors.New("credentials file not found")
	// ErrMalformedEntry indicates a registry entry that cannot be decoded.
	ErrMalformedEntry = errors.New("malformed registry entry")
	// ErrHelperFailure indicates the external credential helper could not be run or failed.
	ErrHelperFailure = errors.New("external credential helper failed")
	// ErrProviderRefresh indicates a cloud provider token could not be refreshed.
	ErrProviderRefresh = errors.New("could not refresh credentials")
)
