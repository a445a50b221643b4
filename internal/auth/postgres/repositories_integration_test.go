// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

//go:build integration

package postgres_test

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/recipebox/recipebox/internal/auth"
	"github.com/recipebox/recipebox/internal/auth/postgres"
)

func newAccount(username, email string) *auth.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.Account{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: "digest",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

var _ = Describe("AccountRepository", func() {
	var repo *postgres.AccountRepository

	BeforeEach(func() {
		repo = postgres.NewAccountRepository(pool)
		_, err := pool.Exec(suiteCtx, `TRUNCATE accounts CASCADE`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips a full profile", func() {
		dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
		phone := "+15551234567"
		account := newAccount("chef_anna", "anna@example.com")
		account.Phone = &phone
		account.DateOfBirth = &dob
		account.FoodPreferences = []string{"vegan", "soup"}
		account.CookingLevel = "advanced"
		Expect(repo.Create(suiteCtx, account)).To(Succeed())

		got, err := repo.FindByEmail(suiteCtx, "ANNA@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(account.ID))
		Expect(*got.Phone).To(Equal(phone))
		Expect(got.DateOfBirth.Format(auth.DateOfBirthLayout)).To(Equal("1990-05-17"))
		Expect(got.FoodPreferences).To(Equal([]string{"vegan", "soup"}))
	})

	DescribeTable("reports the colliding field",
		func(mutate func(a *auth.Account), field string) {
			phone := "+15550000000"
			first := newAccount("first_user", "first@example.com")
			first.Phone = &phone
			Expect(repo.Create(suiteCtx, first)).To(Succeed())

			second := newAccount("second_user", "second@example.com")
			mutate(second)
			err := repo.Create(suiteCtx, second)
			Expect(err).To(HaveOccurred())

			got, ok := auth.IsDuplicateField(err)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(field))
		},
		Entry("email, ignoring case", func(a *auth.Account) { a.Email = "FIRST@example.com" }, auth.FieldEmail),
		Entry("username, ignoring case", func(a *auth.Account) { a.Username = "First_User" }, auth.FieldUsername),
		Entry("phone", func(a *auth.Account) { p := "+15550000000"; a.Phone = &p }, auth.FieldPhone),
	)

	It("lets exactly one of many concurrent registrations with the same email win", func() {
		const racers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			dupes     int
		)
		for i := range racers {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				account := newAccount("racer_"+strings.Repeat("x", i+1), "race@example.com")
				err := repo.Create(suiteCtx, account)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
					return
				}
				if field, ok := auth.IsDuplicateField(err); ok && field == auth.FieldEmail {
					dupes++
				}
			}(i)
		}
		wg.Wait()

		Expect(successes).To(Equal(1))
		Expect(dupes).To(Equal(racers - 1))
	})

	It("counts failed logins atomically and restarts after an expired lock", func() {
		account := newAccount("lock_me", "lock@example.com")
		Expect(repo.Create(suiteCtx, account)).To(Succeed())
		now := time.Now().UTC().Truncate(time.Microsecond)

		const racers = 10
		var wg sync.WaitGroup
		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := repo.IncrementFailedLogins(suiteCtx, account.ID, now)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		got, err := repo.FindByID(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedAttempts).To(Equal(racers))

		until := now.Add(15 * time.Minute)
		Expect(repo.LockUntil(suiteCtx, account.ID, until)).To(Succeed())
		got, err = repo.FindByID(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.LockedUntil.Equal(until)).To(BeTrue())

		n, err := repo.IncrementFailedLogins(suiteCtx, account.ID, until.Add(time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		got, err = repo.FindByID(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.LockedUntil).To(BeNil())

		Expect(repo.ClearFailedLogins(suiteCtx, account.ID)).To(Succeed())
		Expect(repo.UpdatePassword(suiteCtx, account.ID, "new-digest")).To(Succeed())
		got, err = repo.FindByID(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedAttempts).To(BeZero())
		Expect(got.PasswordHash).To(Equal("new-digest"))
	})
})

var _ = Describe("ResetChallengeRepository", func() {
	var (
		repo     *postgres.ResetChallengeRepository
		accounts *postgres.AccountRepository
		account  *auth.Account
		now      time.Time
	)

	BeforeEach(func() {
		_, err := pool.Exec(suiteCtx, `TRUNCATE accounts CASCADE`)
		Expect(err).NotTo(HaveOccurred())

		account = newAccount("reset_me", "reset@example.com")
		accounts = postgres.NewAccountRepository(pool)
		Expect(accounts.Create(suiteCtx, account)).To(Succeed())
		repo = postgres.NewResetChallengeRepository(pool)
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	It("keeps one challenge per account and resets attempts on overwrite", func() {
		first, err := auth.NewResetChallenge(account.ID, "hash-1", now, 15*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Upsert(suiteCtx, first)).To(Succeed())
		_, err = repo.IncrementAttempts(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())

		second, err := auth.NewResetChallenge(account.ID, "hash-2", now, 15*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Upsert(suiteCtx, second)).To(Succeed())

		got, err := repo.Get(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CodeHash).To(Equal("hash-2"))
		Expect(got.Attempts).To(BeZero())
	})

	It("redeems a code exactly once under concurrency", func() {
		challenge, err := auth.NewResetChallenge(account.ID, "hash-1", now, 15*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Upsert(suiteCtx, challenge)).To(Succeed())

		const racers = 6
		results := make(chan bool, racers)
		var wg sync.WaitGroup
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				ok, err := repo.Redeem(suiteCtx, account.ID, "hash-1", now, "new-digest")
				Expect(err).NotTo(HaveOccurred())
				results <- ok
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for ok := range results {
			if ok {
				wins++
			}
		}
		Expect(wins).To(Equal(1))

		got, err := accounts.FindByID(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("new-digest"))
	})

	It("keeps the password when the code does not match", func() {
		challenge, err := auth.NewResetChallenge(account.ID, "hash-1", now, 15*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Upsert(suiteCtx, challenge)).To(Succeed())

		ok, err := repo.Redeem(suiteCtx, account.ID, "hash-2", now, "new-digest")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		got, err := accounts.FindByID(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal(account.PasswordHash))
		_, err = repo.Get(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("refuses to consume an expired code and sweeps it", func() {
		challenge, err := auth.NewResetChallenge(account.ID, "hash-1", now.Add(-time.Hour), 15*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Upsert(suiteCtx, challenge)).To(Succeed())

		ok, err := repo.Redeem(suiteCtx, account.ID, "hash-1", now, "new-digest")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		n, err := repo.DeleteExpired(suiteCtx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})
})

var _ = Describe("SessionRepository", func() {
	It("tracks, revokes and sweeps sessions", func() {
		_, err := pool.Exec(suiteCtx, `TRUNCATE accounts CASCADE`)
		Expect(err).NotTo(HaveOccurred())
		account := newAccount("session_owner", "sessions@example.com")
		Expect(postgres.NewAccountRepository(pool).Create(suiteCtx, account)).To(Succeed())

		repo := postgres.NewSessionRepository(pool)
		now := time.Now().UTC().Truncate(time.Second)
		persist := func(token string, expiresAt time.Time) {
			Expect(repo.Persist(suiteCtx, &auth.Session{
				ID:        ulid.Make(),
				AccountID: account.ID,
				TokenHash: auth.HashToken(token),
				IssuedAt:  now.Add(-time.Hour),
				ExpiresAt: expiresAt,
			})).To(Succeed())
		}
		persist("live-1", now.Add(time.Hour))
		persist("live-2", now.Add(time.Hour))
		persist("stale", now.Add(-time.Minute))

		owner, err := repo.IsActive(suiteCtx, "live-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(owner).To(Equal(account.ID))

		_, err = repo.IsActive(suiteCtx, "stale")
		Expect(err).To(MatchError(auth.ErrTokenExpired))

		Expect(repo.Invalidate(suiteCtx, "live-1")).To(Succeed())
		_, err = repo.IsActive(suiteCtx, "live-1")
		Expect(err).To(MatchError(auth.ErrTokenInvalid))

		swept, err := repo.DeleteExpired(suiteCtx)
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(Equal(int64(1)))

		revoked, err := repo.InvalidateAll(suiteCtx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(revoked).To(Equal(int64(1)))
	})
})
