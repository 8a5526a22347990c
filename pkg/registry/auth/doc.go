// Package auth provides the registry credential suppliers.
//
// Key components:
//   - FileSupplier: Re-reads a Docker config file on every call.
//   - FixedSupplier: Returns credentials given at construction.
//   - CompositeSupplier: Chains suppliers in precedence order.
//   - RefreshingToken and TokenSupplier: The cached, mutex-guarded token
//     refresh shared by the cloud provider suppliers in the gcr and ecr packages.
//
// Usage example:
//
//	bridge := credhelper.NewExecBridge()
//	supplier := auth.NewCompositeSupplier(
//	    auth.NewFixedSupplier(staticAuth, nil),
//	    auth.NewFileSupplier(path, bridge),
//	)
//	configs, err := supplier.AuthForBuild(ctx)
package auth
