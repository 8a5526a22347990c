package registry_test

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	dockerRegistry "github.com/docker/docker/api/types/registry"

	"github.com/nicholas-fedor/regauth/pkg/registry"
	"github.com/nicholas-fedor/regauth/pkg/types"
	"github.com/nicholas-fedor/regauth/pkg/types/mocks"
)

var _ = ginkgo.Describe("Registry", func() {
	var (
		ctx      context.Context
		supplier *mocks.AuthSupplier
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		supplier = mocks.NewAuthSupplier(ginkgo.GinkgoT())
	})

	ginkgo.Describe("PullOptions", func() {
		ginkgo.When("the supplier has a credential", func() {
			ginkgo.It("should encode it and retry anonymously on rejection", func() {
				supplier.On("AuthFor", mock.Anything, "ghcr.io/org/app:1").
					Return(&types.RegistryAuth{ServerAddress: "ghcr.io", Username: "octocat", Password: "ghp"}, nil)

				opts, err := registry.PullOptions(ctx, supplier, "ghcr.io/org/app:1")
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(opts.PrivilegeFunc).NotTo(gomega.BeNil())

				decoded, err := dockerRegistry.DecodeAuthConfig(opts.RegistryAuth)
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(decoded.Username).To(gomega.Equal("octocat"))
				gomega.Expect(decoded.Password).To(gomega.Equal("ghp"))
				gomega.Expect(decoded.ServerAddress).To(gomega.Equal("ghcr.io"))

				retry, err := opts.PrivilegeFunc(ctx)
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(retry).To(gomega.BeEmpty())
			})
		})

		ginkgo.When("the supplier has nothing", func() {
			ginkgo.It("should return empty options", func() {
				supplier.On("AuthFor", mock.Anything, "alpine").Return(nil, nil)

				opts, err := registry.PullOptions(ctx, supplier, "alpine")
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(opts.RegistryAuth).To(gomega.BeEmpty())
				gomega.Expect(opts.PrivilegeFunc).To(gomega.BeNil())
			})
		})

		ginkgo.When("the supplier fails", func() {
			ginkgo.It("should return the error", func() {
				supplier.On("AuthFor", mock.Anything, "gcr.io/p/app").Return(nil, types.ErrProviderRefresh)

				_, err := registry.PullOptions(ctx, supplier, "gcr.io/p/app")
				gomega.Expect(err).To(gomega.MatchError(types.ErrProviderRefresh))
			})
		})
	})

	ginkgo.Describe("EncodedSwarmAuth", func() {
		ginkgo.It("should encode the swarm credential", func() {
			supplier.On("AuthForSwarm", mock.Anything).Return(&types.RegistryAuth{Username: "swarm", Password: "pw"}, nil)

			encoded, err := registry.EncodedSwarmAuth(ctx, supplier)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			decoded, err := registry.DecodeAuth(encoded)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(decoded.Username).To(gomega.Equal("swarm"))
		})

		ginkgo.It("should be empty without a credential", func() {
			supplier.On("AuthForSwarm", mock.Anything).Return(nil, nil)

			encoded, err := registry.EncodedSwarmAuth(ctx, supplier)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(encoded).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("EncodedBuildConfig", func() {
		ginkgo.It("should encode every registry", func() {
			supplier.On("AuthForBuild", mock.Anything).Return(types.RegistryConfigs{
				"quay.io": {ServerAddress: "quay.io", Username: "robot", Password: "pw"},
				"gcr.io":  {ServerAddress: "gcr.io", Username: "oauth2accesstoken", Password: "tok"},
			}, nil)

			encoded, err := registry.EncodedBuildConfig(ctx, supplier)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			configs, err := registry.DecodeRegistryConfig(encoded)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(configs.Addresses()).To(gomega.ConsistOf("quay.io", "gcr.io"))
		})

		ginkgo.It("should propagate supplier errors", func() {
			failure := errors.New("helper crashed")
			supplier.On("AuthForBuild", mock.Anything).Return(nil, failure)

			_, err := registry.EncodedBuildConfig(ctx, supplier)
			gomega.Expect(err).To(gomega.MatchError(failure))
		})
	})
})

var _ = ginkgo.Describe("Header encoding", func() {
	ginkgo.It("should name the Engine API headers", func() {
		gomega.Expect(registry.AuthHeader).To(gomega.Equal("X-Registry-Auth"))
		gomega.Expect(registry.ConfigHeader).To(gomega.Equal("X-Registry-Config"))
	})

	ginkgo.It("should round-trip a credential through X-Registry-Auth", func() {
		auth := &types.RegistryAuth{
			ServerAddress: "https://index.docker.io/v1/",
			Username:      "dockerman",
			Password:      "sw4gy0lo",
			Email:         "dockerman@example.com",
		}

		encoded, err := registry.EncodeAuth(auth)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		decoded, err := registry.DecodeAuth(encoded)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(decoded).To(gomega.Equal(auth))
	})

	ginkgo.It("should encode nil as anonymous", func() {
		encoded, err := registry.EncodeAuth(nil)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(encoded).To(gomega.BeEmpty())

		decoded, err := registry.DecodeAuth("")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(decoded).To(gomega.BeNil())
	})

	ginkgo.It("should use the identity token field names of the Engine API", func() {
		encoded, err := registry.EncodeAuth(&types.RegistryAuth{ServerAddress: "registry.example.com", IdentityToken: "refresh"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		raw, err := base64.URLEncoding.DecodeString(encoded)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(raw)).To(gomega.MatchJSON(`{"serveraddress":"registry.example.com","identitytoken":"refresh"}`))
	})

	ginkgo.It("should carry the basic auth value alongside the username and password", func() {
		encoded, err := registry.EncodeAuth(&types.RegistryAuth{ServerAddress: "quay.io", Username: "user", Password: "pass"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		raw, err := base64.URLEncoding.DecodeString(encoded)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(raw)).To(gomega.MatchJSON(
			`{"serveraddress":"quay.io","username":"user","password":"pass","auth":"dXNlcjpwYXNz"}`,
		))
	})

	ginkgo.It("should round-trip a credential set through X-Registry-Config", func() {
		in := types.RegistryConfigs{
			"quay.io": {
				ServerAddress: "quay.io",
				Username:      "robot",
				Password:      "token",
				Email:         "robot@example.com",
			},
			"registry.example.com": {
				ServerAddress: "registry.example.com",
				IdentityToken: "refresh",
			},
		}

		encoded, err := registry.EncodeRegistryConfig(in)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		out, err := registry.DecodeRegistryConfig(encoded)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out).To(gomega.Equal(in))
	})

	ginkgo.It("should fill in the username and password from a basic auth value", func() {
		auth := registry.FromAuthConfig(dockerRegistry.AuthConfig{Auth: "dXNlcjpwYXNz"})
		gomega.Expect(auth.Username).To(gomega.Equal("user"))
		gomega.Expect(auth.Password).To(gomega.Equal("pass"))
	})

	ginkgo.It("should reject a garbled X-Registry-Auth value", func() {
		_, err := registry.DecodeAuth("not-base64!")
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	ginkgo.It("should encode an empty build set as an empty object", func() {
		encoded, err := registry.EncodeRegistryConfig(types.NewRegistryConfigs())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(encoded).To(gomega.Equal(base64.URLEncoding.EncodeToString([]byte("{}"))))

		configs, err := registry.DecodeRegistryConfig("")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(configs).To(gomega.BeEmpty())
	})

	ginkgo.It("should reject a garbled X-Registry-Config value", func() {
		_, err := registry.DecodeRegistryConfig(base64.URLEncoding.EncodeToString([]byte("[1,2]")))
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})
