// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

//go:build integration

package api_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/recipebox/recipebox/internal/auth"
)

var _ = Describe("Account flows", func() {
	Describe("register then login", func() {
		It("issues a session on both calls for the same account", func() {
			reg := register("alice", "alice@example.com", "pw1")
			Expect(reg.str("token")).NotTo(BeEmpty())
			Expect(reg.str("accountId")).NotTo(BeEmpty())

			login := post("/api/users/login", map[string]any{"email": "Alice@Example.com", "password": "pw1"})
			Expect(login.status).To(Equal(http.StatusOK))
			Expect(login.str("accountId")).To(Equal(reg.str("accountId")))
			Expect(login.str("token")).NotTo(Equal(reg.str("token")))
		})

		It("returns the profile for a bearer token", func() {
			reg := register("alice", "alice@example.com", "pw1")

			me := call(http.MethodGet, "/api/users/me", reg.str("token"), nil)
			Expect(me.status).To(Equal(http.StatusOK))
			Expect(me.str("username")).To(Equal("alice"))
			Expect(me.str("email")).To(Equal("alice@example.com"))
			Expect(me.body).NotTo(HaveKey("password_hash"))
		})
	})

	Describe("duplicate registration", func() {
		It("rejects a second account with the same email", func() {
			register("alice", "alice@example.com", "pw1")

			dup := post("/api/users/register", map[string]any{
				"username": "alice2",
				"email":    "ALICE@example.com",
				"password": "pw2",
			})
			Expect(dup.status).To(Equal(http.StatusConflict))
			Expect(dup.str("code")).To(Equal(auth.CodeDuplicateField))
			Expect(dup.str("field")).To(Equal("email"))

			var count int
			Expect(pool.QueryRow(suiteCtx, "SELECT count(*) FROM accounts").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(1))
		})

		It("rejects a taken phone number under its API name", func() {
			post("/api/users/register", map[string]any{
				"username": "alice", "email": "alice@example.com", "password": "pw1", "phone_number": "+1 555 123 4567",
			})
			dup := post("/api/users/register", map[string]any{
				"username": "bob", "email": "bob@example.com", "password": "pw1", "phone_number": "+15551234567",
			})
			Expect(dup.status).To(Equal(http.StatusConflict))
			Expect(dup.str("field")).To(Equal("phone_number"))
		})
	})

	Describe("login failures", func() {
		BeforeEach(func() {
			register("alice", "alice@example.com", "pw1")
		})

		It("distinguishes a wrong password from an unknown account", func() {
			wrong := post("/api/users/login", map[string]any{"email": "alice@example.com", "password": "nope"})
			Expect(wrong.status).To(Equal(http.StatusUnauthorized))
			Expect(wrong.str("code")).To(Equal(auth.CodeIncorrectPassword))

			unknown := post("/api/users/login", map[string]any{"email": "ghost@example.com", "password": "pw1"})
			Expect(unknown.status).To(Equal(http.StatusNotFound))
			Expect(unknown.str("code")).To(Equal(auth.CodeAccountNotFound))
		})

		It("rejects bodies that fail the request schema", func() {
			resp := post("/api/users/login", map[string]any{"email": "alice@example.com", "password": "pw1", "admin": true})
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.str("code")).To(Equal(auth.CodeValidation))
		})
	})

	Describe("password reset", func() {
		It("replaces the password with a single-use code", func() {
			reg := register("alice", "alice@example.com", "pw1")

			req := post("/api/users/password-reset/request", map[string]any{"email": "alice@example.com"})
			Expect(req.status).To(Equal(http.StatusAccepted))
			Expect(outbox.String()).To(ContainSubstring("To: alice@example.com"))
			Expect(outbox.String()).To(ContainSubstring(resetCode))

			verify := post("/api/users/password-reset/verify", map[string]any{"email": "alice@example.com", "code": resetCode})
			Expect(verify.status).To(Equal(http.StatusOK))
			Expect(verify.body).To(HaveKeyWithValue("ok", true))

			done := post("/api/users/password-reset/complete", map[string]any{
				"email": "alice@example.com", "code": resetCode, "new_password": "pw-new",
			})
			Expect(done.status).To(Equal(http.StatusOK))
			Expect(done.str("token")).NotTo(BeEmpty())

			again := post("/api/users/password-reset/complete", map[string]any{
				"email": "alice@example.com", "code": resetCode, "new_password": "pw-other",
			})
			Expect(again.status).To(Equal(http.StatusBadRequest))
			Expect(again.str("code")).To(Equal(auth.CodeInvalidResetCode))

			old := post("/api/users/login", map[string]any{"email": "alice@example.com", "password": "pw1"})
			Expect(old.str("code")).To(Equal(auth.CodeIncorrectPassword))
			fresh := post("/api/users/login", map[string]any{"email": "alice@example.com", "password": "pw-new"})
			Expect(fresh.status).To(Equal(http.StatusOK))

			stale := call(http.MethodGet, "/api/users/me", reg.str("token"), nil)
			Expect(stale.status).To(Equal(http.StatusUnauthorized))
		})

		It("answers the same way for an unknown email", func() {
			resp := post("/api/users/password-reset/request", map[string]any{"email": "ghost@example.com"})
			Expect(resp.status).To(Equal(http.StatusAccepted))
			Expect(outbox.String()).To(BeEmpty())
		})
	})

	Describe("sessions", func() {
		It("revokes a single session on logout", func() {
			reg := register("alice", "alice@example.com", "pw1")

			out := call(http.MethodPost, "/api/users/logout", reg.str("token"), nil)
			Expect(out.status).To(Equal(http.StatusNoContent))

			me := call(http.MethodGet, "/api/users/me", reg.str("token"), nil)
			Expect(me.status).To(Equal(http.StatusUnauthorized))
		})

		It("revokes every session on logout-all", func() {
			reg := register("alice", "alice@example.com", "pw1")
			other := post("/api/users/login", map[string]any{"email": "alice@example.com", "password": "pw1"})

			all := call(http.MethodPost, "/api/users/logout-all", reg.str("token"), nil)
			Expect(all.status).To(Equal(http.StatusOK))
			Expect(all.body).To(HaveKeyWithValue("revoked", BeNumerically("==", 2)))

			me := call(http.MethodGet, "/api/users/me", other.str("token"), nil)
			Expect(me.status).To(Equal(http.StatusUnauthorized))
		})

		It("sweeps sessions whose expiry has passed", func() {
			register("alice", "alice@example.com", "pw1")
			_, err := pool.Exec(suiteCtx, "UPDATE sessions SET expires_at = now() - interval '1 minute'")
			Expect(err).NotTo(HaveOccurred())

			sessions, challenges, err := orchestrator.Sweep(suiteCtx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(Equal(int64(1)))
			Expect(challenges).To(BeZero())
		})
	})
})
