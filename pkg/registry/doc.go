// Package registry resolves the credentials presented to Docker-compatible
// registries and encodes them for the Engine API.
//
// Key components:
//   - auth: Credential suppliers (config file, fixed, cloud tokens, composite).
//   - credhelper: Bridge to docker-credential-* helper processes.
//   - dockerconfig: Reader for the Docker client config file.
//   - imageref: Image reference parsing and registry address normalization.
//   - keychain: Adapter for go-containerregistry clients.
//   - registry: X-Registry-Auth and X-Registry-Config values and pull options.
//
// Usage example:
//
//	opts, err := registry.PullOptions(ctx, supplier, "docker.io/library/alpine")
//	if err != nil {
//	    logrus.WithError(err).Error("Failed to get pull options")
//	}
//	reader, err := client.ImagePull(ctx, "docker.io/library/alpine", opts)
//
// Secrets are only ever logged at trace level.
package registry
