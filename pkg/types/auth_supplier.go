package types

import "context"

// AuthSupplier resolves registry credentials for image, build and swarm operations.
//
// All methods may be called repeatedly, concurrently and in any order. A nil
// *RegistryAuth with a nil error means no credential is available.
type AuthSupplier interface {
	// AuthFor returns the credential for pulling or pushing imageName.
	AuthFor(ctx context.Context, imageName string) (*RegistryAuth, error)
	// AuthForSwarm returns the credential used for swarm-wide configuration.
	// Provider failures degrade to a nil credential.
	AuthForSwarm(ctx context.Context) (*RegistryAuth, error)
	// AuthForBuild returns credentials for every registry a build may touch.
	// On success the result is never nil; an empty set means no credentials are available.
	AuthForBuild(ctx context.Context) (RegistryConfigs, error)
}
