// Package types defines the core credential values and interfaces shared by regauth.
//
// Key components:
//   - RegistryAuth: A single registry credential (username/password or identity token).
//   - RegistryConfigs: Server address to credential mapping, as sent in X-Registry-Config.
//   - AuthSupplier: Interface implemented by every credential source.
//   - ErrConfigNotFound, ErrMalformedEntry, ErrHelperFailure, ErrProviderRefresh: error taxonomy.
//
// Usage example:
//
//	var supplier types.AuthSupplier = auth.NewFileSupplier(path, bridge)
//	creds, err := supplier.AuthFor(ctx, "ghcr.io/org/app:1.2")
//	if err == nil && creds != nil {
//	    logrus.WithField("server", creds.ServerAddress).Debug("Resolved credentials")
//	}
package types
