package auth_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/nicholas-fedor/regauth/pkg/registry/auth"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

var _ = ginkgo.Describe("NeedsRefresh", func() {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ginkgo.DescribeTable("decides from the remaining lifetime",
		func(token *auth.Token, minFreshness time.Duration, expected bool) {
			gomega.Expect(auth.NeedsRefresh(token, now, minFreshness)).To(gomega.Equal(expected))
		},
		ginkgo.Entry("no token", nil, time.Minute, true),
		ginkgo.Entry("no expiry", &auth.Token{}, time.Minute, false),
		ginkgo.Entry("plenty of time left", &auth.Token{Expiry: now.Add(time.Hour)}, time.Minute, false),
		ginkgo.Entry("exactly at the threshold", &auth.Token{Expiry: now.Add(time.Minute)}, time.Minute, true),
		ginkgo.Entry("inside the threshold", &auth.Token{Expiry: now.Add(30 * time.Second)}, time.Minute, true),
		ginkgo.Entry("already expired", &auth.Token{Expiry: now.Add(-time.Second)}, time.Minute, true),
		ginkgo.Entry("zero threshold before expiry", &auth.Token{Expiry: now.Add(time.Second)}, time.Duration(0), false),
	)
})

var _ = ginkgo.Describe("RefreshingToken", func() {
	var (
		ctx   context.Context
		clock *clocktesting.FakePassiveClock
		calls atomic.Int32
		start time.Time
	)

	issue := func(lifetime time.Duration) auth.RefreshFunc {
		return func(context.Context) (auth.Token, error) {
			n := calls.Add(1)

			return auth.Token{
				Auth:   types.RegistryAuth{Username: "oauth2accesstoken", Password: string(rune('a' + n - 1))},
				Expiry: clock.Now().Add(lifetime),
			}, nil
		}
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		clock = clocktesting.NewFakePassiveClock(start)
		calls.Store(0)
	})

	ginkgo.It("does not refresh before the first use", func() {
		auth.NewRefreshingToken("test", issue(time.Hour), auth.WithClock(clock))
		gomega.Expect(calls.Load()).To(gomega.BeEquivalentTo(0))
	})

	ginkgo.It("reuses a fresh token and refreshes it near expiry", func() {
		token := auth.NewRefreshingToken("test", issue(time.Hour), auth.WithClock(clock))

		first, err := token.Get(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(first.Auth.Password).To(gomega.Equal("a"))

		clock.SetTime(start.Add(58 * time.Minute))

		second, err := token.Get(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(second.Auth.Password).To(gomega.Equal("a"))
		gomega.Expect(calls.Load()).To(gomega.BeEquivalentTo(1))

		clock.SetTime(start.Add(59*time.Minute + 30*time.Second))

		third, err := token.Get(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(third.Auth.Password).To(gomega.Equal("b"))
		gomega.Expect(calls.Load()).To(gomega.BeEquivalentTo(2))
	})

	ginkgo.It("honours a custom minimum freshness", func() {
		token := auth.NewRefreshingToken("test", issue(time.Hour),
			auth.WithClock(clock), auth.WithMinFreshness(10*time.Minute))

		_, err := token.Get(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		clock.SetTime(start.Add(51 * time.Minute))

		_, err = token.Get(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(calls.Load()).To(gomega.BeEquivalentTo(2))
	})

	ginkgo.It("never refreshes a token without expiry", func() {
		token := auth.NewRefreshingToken("test", func(context.Context) (auth.Token, error) {
			calls.Add(1)

			return auth.Token{Auth: types.RegistryAuth{Username: "static"}}, nil
		}, auth.WithClock(clock))

		for range 3 {
			clock.SetTime(clock.Now().Add(24 * time.Hour))

			_, err := token.Get(ctx)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		}

		gomega.Expect(calls.Load()).To(gomega.BeEquivalentTo(1))
	})

	ginkgo.It("wraps refresh failures and retries on the next call", func() {
		failure := errors.New("metadata server unavailable")
		fail := true

		token := auth.NewRefreshingToken("test", func(context.Context) (auth.Token, error) {
			calls.Add(1)
			if fail {
				return auth.Token{}, failure
			}

			return auth.Token{Auth: types.RegistryAuth{Username: "ok"}}, nil
		}, auth.WithClock(clock))

		_, err := token.Get(ctx)
		gomega.Expect(err).To(gomega.MatchError(types.ErrProviderRefresh))
		gomega.Expect(err).To(gomega.MatchError(failure))

		fail = false

		result, err := token.Get(ctx)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(result.Auth.Username).To(gomega.Equal("ok"))
		gomega.Expect(calls.Load()).To(gomega.BeEquivalentTo(2))
	})

	ginkgo.It("refreshes once for concurrent callers of a stale token", func() {
		token := auth.NewRefreshingToken("test", func(context.Context) (auth.Token, error) {
			calls.Add(1)
			time.Sleep(10 * time.Millisecond)

			return auth.Token{
				Auth:   types.RegistryAuth{Username: "shared"},
				Expiry: clock.Now().Add(time.Hour),
			}, nil
		}, auth.WithClock(clock))

		var group errgroup.Group

		for range 16 {
			group.Go(func() error {
				result, err := token.Get(ctx)
				if err != nil {
					return err
				}

				if result.Auth.Username != "shared" {
					return errors.New("unexpected token")
				}

				return nil
			})
		}

		gomega.Expect(group.Wait()).To(gomega.Succeed())
		gomega.Expect(calls.Load()).To(gomega.BeEquivalentTo(1))
	})
})
