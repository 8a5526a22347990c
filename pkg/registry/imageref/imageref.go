// Package imageref parses image references into the registry name and URL used
// for credential lookups.
package imageref

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// Docker Hub identities. The URL form is how older config files key the
// default registry and must match the reader's aliasing.
const (
	DefaultRegistryDomain = "docker.io"
	DefaultRegistryHost   = "index.docker.io"
	DefaultRegistryURL    = "https://index.docker.io/v1/"
	DockerHubMirrorHost   = "registry-1.docker.io"
)

// ImageRef is a parsed image reference of the form
// [registry[:port]/]repository[:tag|@digest].
type ImageRef struct {
	raw          string
	registryName string
	registryURL  string
	repository   string
	tag          string
	digest       string
}

// Parse splits a raw image string. It never fails: strings that do not name a
// registry belong to Docker Hub. References accepted by the distribution
// grammar take their tag and digest from it; anything else is split by hand.
func Parse(raw string) ImageRef {
	ref := ImageRef{
		raw:          raw,
		registryName: DefaultRegistryDomain,
		registryURL:  DefaultRegistryURL,
	}

	remainder := raw
	if host, rest, found := strings.Cut(raw, "/"); found && isRegistry(host) {
		ref.registryName = host
		ref.registryURL = RegistryURL(host)
		remainder = rest
	}

	if parsed, err := reference.Parse(raw); err == nil {
		if named, ok := parsed.(reference.Named); ok {
			ref.repository = named.Name()
			if remainder != raw {
				ref.repository = strings.TrimPrefix(ref.repository, ref.registryName+"/")
			}

			if tagged, ok := named.(reference.Tagged); ok {
				ref.tag = tagged.Tag()
			}

			if digested, ok := named.(reference.Digested); ok {
				ref.digest = digested.Digest().String()
			}

			return ref
		}
	}

	if name, digest, found := strings.Cut(remainder, "@"); found {
		ref.digest = digest
		remainder = name
	}

	if i := strings.LastIndexByte(remainder, ':'); i >= 0 && !strings.Contains(remainder[i+1:], "/") {
		ref.tag = remainder[i+1:]
		remainder = remainder[:i]
	}

	ref.repository = remainder

	return ref
}

// isRegistry applies the standard registry-vs-namespace heuristic to the first path segment.
func isRegistry(segment string) bool {
	return strings.ContainsAny(segment, ".:") || segment == "localhost"
}

// RegistryURL returns the URL form of a registry host as stored by older
// config files. Docker Hub aliases map to DefaultRegistryURL.
func RegistryURL(host string) string {
	if IsDockerHub(host) {
		return DefaultRegistryURL
	}

	if strings.Contains(host, "://") {
		return host
	}

	return "https://" + host
}

// IsDockerHub reports whether host names the default public registry.
func IsDockerHub(host string) bool {
	switch strings.ToLower(StripScheme(host)) {
	case DefaultRegistryDomain, DefaultRegistryHost, DockerHubMirrorHost, "index.docker.io/v1", "index.docker.io/v1/":
		return true
	default:
		return false
	}
}

// StripScheme removes a leading http:// or https:// from an address.
func StripScheme(address string) string {
	if _, rest, found := strings.Cut(address, "://"); found {
		return rest
	}

	return address
}

// Host returns the host[:port] part of an address, dropping scheme and path.
func Host(address string) string {
	host, _, _ := strings.Cut(StripScheme(address), "/")

	return host
}

// RegistryName returns the bare host[:port] of the registry.
func (r ImageRef) RegistryName() string { return r.registryName }

// RegistryURL returns the registry with an inferred scheme.
func (r ImageRef) RegistryURL() string { return r.registryURL }

// Repository returns the repository path without registry, tag or digest.
func (r ImageRef) Repository() string { return r.repository }

// Tag returns the tag, or an empty string.
func (r ImageRef) Tag() string { return r.tag }

// Digest returns the digest, or an empty string.
func (r ImageRef) Digest() string { return r.digest }

// String returns the raw reference as given to Parse.
func (r ImageRef) String() string { return r.raw }

// Named returns the reference normalized by the distribution grammar.
// Unlike Parse it rejects references that the registry API would refuse.
func (r ImageRef) Named() (reference.Named, error) {
	named, err := reference.ParseNormalizedNamed(r.raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image reference: %w", err)
	}

	return named, nil
}
