package keychain_test

import (
	"context"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/nicholas-fedor/regauth/pkg/registry/keychain"
	"github.com/nicholas-fedor/regauth/pkg/types"
	"github.com/nicholas-fedor/regauth/pkg/types/mocks"
)

var _ = ginkgo.Describe("Keychain", func() {
	var supplier *mocks.AuthSupplier

	ginkgo.BeforeEach(func() {
		supplier = mocks.NewAuthSupplier(ginkgo.GinkgoT())
	})

	ginkgo.It("returns the supplier credential for a repository", func() {
		supplier.On("AuthFor", mock.Anything, "gcr.io/project/app").
			Return(&types.RegistryAuth{Username: "oauth2accesstoken", Password: "tok"}, nil)

		ref, err := name.ParseReference("gcr.io/project/app:1")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		authenticator, err := keychain.New(supplier).Resolve(ref.Context())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		config, err := authenticator.Authorization()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(config.Username).To(gomega.Equal("oauth2accesstoken"))
		gomega.Expect(config.Password).To(gomega.Equal("tok"))
	})

	ginkgo.It("resolves a bare registry", func() {
		supplier.On("AuthFor", mock.Anything, "quay.io/").
			Return(&types.RegistryAuth{IdentityToken: "refresh"}, nil)

		registry, err := name.NewRegistry("quay.io")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		authenticator, err := keychain.New(supplier).ResolveContext(context.Background(), registry)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		config, err := authenticator.Authorization()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(config.IdentityToken).To(gomega.Equal("refresh"))
	})

	ginkgo.It("does not hand Docker Hub credentials to a dotless host", func() {
		registry, err := name.NewRegistry("intranet")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		authenticator, err := keychain.New(supplier).Resolve(registry)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(authenticator).To(gomega.Equal(authn.Anonymous))
		supplier.AssertNotCalled(ginkgo.GinkgoT(), "AuthFor", mock.Anything, mock.Anything)
	})

	ginkgo.It("resolves the default registry through Docker Hub", func() {
		supplier.On("AuthFor", mock.Anything, "index.docker.io/").
			Return(&types.RegistryAuth{Username: "hub", Password: "secret"}, nil)

		registry, err := name.NewRegistry(name.DefaultRegistry)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		authenticator, err := keychain.New(supplier).Resolve(registry)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		config, err := authenticator.Authorization()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(config.Username).To(gomega.Equal("hub"))
	})

	ginkgo.It("falls back to anonymous access", func() {
		supplier.On("AuthFor", mock.Anything, mock.Anything).Return(nil, nil)

		ref, err := name.ParseReference("ubuntu")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		authenticator, err := keychain.New(supplier).Resolve(ref.Context())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(authenticator).To(gomega.Equal(authn.Anonymous))
	})

	ginkgo.It("propagates supplier errors", func() {
		supplier.On("AuthFor", mock.Anything, mock.Anything).Return(nil, types.ErrProviderRefresh)

		ref, err := name.ParseReference("gcr.io/project/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		_, err = keychain.New(supplier).Resolve(ref.Context())
		gomega.Expect(err).To(gomega.MatchError(types.ErrProviderRefresh))
	})
})
