package auth

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/types"
)

// CompositeSupplier chains suppliers. The order given at construction is the
// precedence, highest first.
type CompositeSupplier struct {
	suppliers []types.AuthSupplier
}

// NewCompositeSupplier returns a supplier trying suppliers in the given order.
func NewCompositeSupplier(suppliers ...types.AuthSupplier) *CompositeSupplier {
	return &CompositeSupplier{suppliers: append([]types.AuthSupplier(nil), suppliers...)}
}

// AuthFor returns the first credential found. Errors are returned as soon as
// a supplier fails.
func (c *CompositeSupplier) AuthFor(ctx context.Context, imageName string) (*types.RegistryAuth, error) {
	for _, supplier := range c.suppliers {
		auth, err := supplier.AuthFor(ctx, imageName)
		if err != nil {
			return nil, err
		}

		if auth != nil {
			return auth, nil
		}
	}

	return nil, nil
}

// AuthForSwarm returns the first credential found. A failing supplier is
// logged and skipped.
func (c *CompositeSupplier) AuthForSwarm(ctx context.Context) (*types.RegistryAuth, error) {
	for _, supplier := range c.suppliers {
		auth, err := supplier.AuthForSwarm(ctx)
		if err != nil {
			logrus.WithError(err).Warn("Skipping credential source for swarm")

			continue
		}

		if auth != nil {
			return auth, nil
		}
	}

	return nil, nil
}

// AuthForBuild merges the sets of all suppliers. Suppliers are applied in
// reverse order so that for an address returned by several of them the
// earliest-configured supplier wins. Every failing supplier is reported.
func (c *CompositeSupplier) AuthForBuild(ctx context.Context) (types.RegistryConfigs, error) {
	merged := types.NewRegistryConfigs()

	var errs *multierror.Error

	for i := len(c.suppliers) - 1; i >= 0; i-- {
		configs, err := c.suppliers[i].AuthForBuild(ctx)
		if err != nil {
			errs = multierror.Append(errs, err)

			continue
		}

		merged = merged.Merge(configs)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return merged, nil
}
