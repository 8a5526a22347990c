package gcr_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/oauth2"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/nicholas-fedor/regauth/pkg/registry/auth"
	"github.com/nicholas-fedor/regauth/pkg/registry/auth/gcr"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// countingSource issues numbered tokens that expire after lifetime.
type countingSource struct {
	clock    *clocktesting.FakePassiveClock
	lifetime time.Duration
	err      error
	calls    atomic.Int32
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}

	token := &oauth2.Token{AccessToken: "token-" + string(rune('0'+n))}
	if s.lifetime > 0 {
		token.Expiry = s.clock.Now().Add(s.lifetime)
	}

	return token, nil
}

// serviceAccountKey returns a service account key file whose token endpoint
// is tokenURL.
func serviceAccountKey(tokenURL string) []byte {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	der, err := x509.MarshalPKCS8PrivateKey(key)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	keyJSON, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "project",
		"private_key_id": "key-1",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   "puller@project.iam.gserviceaccount.com",
		"token_uri":      tokenURL,
	})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	return keyJSON
}

// tokenEndpoint serves numbered access tokens that live for lifetime.
func tokenEndpoint(lifetime time.Duration, issued *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := issued.Add(1)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"key-token-%d","token_type":"Bearer","expires_in":%d}`,
			n, int(lifetime.Seconds()))
	}))
}

var _ = ginkgo.Describe("GCR supplier", func() {
	var (
		ctx    context.Context
		clock  *clocktesting.FakePassiveClock
		source *countingSource
		start  time.Time
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		clock = clocktesting.NewFakePassiveClock(start)
		source = &countingSource{clock: clock, lifetime: time.Hour}
	})

	newSupplier := func(opts ...gcr.Option) *auth.TokenSupplier {
		opts = append(opts, gcr.WithRefreshOptions(auth.WithClock(clock)))

		return gcr.NewFromTokenSource(source, opts...)
	}

	ginkgo.It("does not fetch a token at construction", func() {
		newSupplier()
		gomega.Expect(source.calls.Load()).To(gomega.BeEquivalentTo(0))
	})

	ginkgo.DescribeTable("serves Container Registry hosts",
		func(image string, served bool) {
			result, err := newSupplier().AuthFor(ctx, image)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			if !served {
				gomega.Expect(result).To(gomega.BeNil())
				gomega.Expect(source.calls.Load()).To(gomega.BeEquivalentTo(0))

				return
			}

			gomega.Expect(result.Username).To(gomega.Equal(gcr.Username))
			gomega.Expect(result.Password).To(gomega.Equal("token-1"))
		},
		ginkgo.Entry("gcr.io", "gcr.io/project/app:1", true),
		ginkgo.Entry("regional", "eu.gcr.io/project/app", true),
		ginkgo.Entry("marketplace", "marketplace.gcr.io/google/ubuntu", true),
		ginkgo.Entry("Docker Hub", "ubuntu", false),
		ginkgo.Entry("other registry", "quay.io/project/app", false),
		ginkgo.Entry("Artifact Registry without opt-in", "europe-docker.pkg.dev/project/repo/app", false),
	)

	ginkgo.It("serves additional registries", func() {
		supplier := newSupplier(gcr.WithAdditionalRegistries("europe-docker.pkg.dev"))

		result, err := supplier.AuthFor(ctx, "europe-docker.pkg.dev/project/repo/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(result.ServerAddress).To(gomega.Equal("europe-docker.pkg.dev"))
		gomega.Expect(supplier.Registries()).To(gomega.ContainElement("gcr.io"))
	})

	ginkgo.It("reuses the token until it nears expiry", func() {
		supplier := newSupplier()

		_, err := supplier.AuthFor(ctx, "gcr.io/project/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		clock.SetTime(start.Add(30 * time.Minute))

		result, err := supplier.AuthFor(ctx, "us.gcr.io/project/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(result.Password).To(gomega.Equal("token-1"))

		clock.SetTime(start.Add(59*time.Minute + 30*time.Second))

		result, err = supplier.AuthFor(ctx, "gcr.io/project/app")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(result.Password).To(gomega.Equal("token-2"))
	})

	ginkgo.It("returns token source failures for matching images", func() {
		source.err = errors.New("invalid_grant")

		_, err := newSupplier().AuthFor(ctx, "gcr.io/project/app")
		gomega.Expect(err).To(gomega.MatchError(types.ErrProviderRefresh))
		gomega.Expect(err).To(gomega.MatchError(source.err))
	})

	ginkgo.It("keys build credentials by every known host", func() {
		configs, err := newSupplier().AuthForBuild(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(configs.Addresses()).To(gomega.ConsistOf(gcr.KnownRegistries))
	})

	ginkgo.It("reports the canonical server address for swarm", func() {
		result, err := newSupplier().AuthForSwarm(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(result.ServerAddress).To(gomega.Equal(gcr.ServerAddress))
	})

	ginkgo.Describe("NewFromJSON", func() {
		ginkgo.It("rejects an unparseable key", func() {
			_, err := gcr.NewFromJSON(ctx, []byte(`{not json`))
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("service account keys", func() {
		var issued atomic.Int32

		ginkgo.BeforeEach(func() {
			issued.Store(0)
		})

		ginkgo.It("fetches a new token once the cached one is inside the freshness window", func() {
			server := tokenEndpoint(30*time.Second, &issued)
			ginkgo.DeferCleanup(server.Close)

			supplier, err := gcr.NewFromJSON(ctx, serviceAccountKey(server.URL), gcr.WithMinFreshness(time.Minute))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(issued.Load()).To(gomega.BeEquivalentTo(0))

			for i := 1; i <= 3; i++ {
				result, err := supplier.AuthFor(ctx, "gcr.io/project/app")
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(result.Password).To(gomega.Equal(fmt.Sprintf("key-token-%d", i)))
			}

			gomega.Expect(issued.Load()).To(gomega.BeEquivalentTo(3))
		})

		ginkgo.It("reuses a token that is still fresh", func() {
			server := tokenEndpoint(time.Hour, &issued)
			ginkgo.DeferCleanup(server.Close)

			supplier, err := gcr.NewFromJSON(ctx, serviceAccountKey(server.URL), gcr.WithMinFreshness(time.Minute))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			for range 3 {
				result, err := supplier.AuthFor(ctx, "gcr.io/project/app")
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(result.Password).To(gomega.Equal("key-token-1"))
			}

			gomega.Expect(issued.Load()).To(gomega.BeEquivalentTo(1))
		})
	})

	ginkgo.Describe("NewFromKeyFile", func() {
		ginkgo.It("fails for a missing file", func() {
			_, err := gcr.NewFromKeyFile(ctx, filepath.Join(ginkgo.GinkgoT().TempDir(), "missing.json"))
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})
})
