// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

//go:build integration

package auth_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/kyonggi-board/authcore/internal/auth"
)

var client = auth.ClientInfo{UserAgent: "ginkgo", IPAddress: "203.0.113.7"}

var _ = Describe("Signup and session lifecycle", func() {
	BeforeEach(func() {
		env.reset()
	})

	// signup runs the OTP flow through registration and returns the identity.
	signup := func(email, displayName string) *auth.Identity {
		_, err := env.App.Service.RequestOtp(env.ctx, email)
		Expect(err).NotTo(HaveOccurred())
		code := env.mailedCode(email)
		Expect(env.App.Service.VerifyOtp(env.ctx, email, code)).To(Succeed())

		identity, err := env.App.Service.RegisterWithOtp(env.ctx, auth.RegisterRequest{
			Email:           email,
			Code:            code,
			Password:        "password123",
			PasswordConfirm: "password123",
			DisplayName:     displayName,
		})
		Expect(err).NotTo(HaveOccurred())
		return identity
	}

	Describe("a new student", func() {
		It("signs up, logs in and rotates the refresh token", func() {
			const email = "u@kyonggi.ac.kr"

			receipt, err := env.App.Service.RequestOtp(env.ctx, email)
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Email).To(Equal(email))

			code := env.mailedCode(email)
			Expect(code).To(MatchRegexp(`^[0-9]{6}$`))

			Expect(env.App.Service.VerifyOtp(env.ctx, email, code)).To(Succeed())

			identity, err := env.App.Service.RegisterWithOtp(env.ctx, auth.RegisterRequest{
				Email:           email,
				Code:            code,
				Password:        "password123",
				PasswordConfirm: "password123",
				DisplayName:     "student_u",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.Email).To(Equal(email))
			Expect(identity.Role).To(Equal(auth.RoleUser))
			Expect(env.challengeCount(email)).To(BeZero())

			tokens, err := env.App.Service.Login(env.ctx, email, "password123", false, client)
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens.IdentityID).To(Equal(identity.ID))

			principal, err := env.App.Service.Authenticate(env.ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(principal.IdentityID).To(Equal(identity.ID))

			me, err := env.App.Service.Me(env.ctx, principal)
			Expect(err).NotTo(HaveOccurred())
			Expect(me.DisplayName).To(Equal("student_u"))

			refreshed, err := env.App.Service.Refresh(env.ctx, tokens.RefreshToken, client)
			Expect(err).NotTo(HaveOccurred())
			Expect(refreshed.RefreshToken).NotTo(Equal(tokens.RefreshToken))

			_, err = env.App.Service.Refresh(env.ctx, tokens.RefreshToken, client)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeRefreshReused))

			count, err := env.Reuse.Count(env.ctx, identity.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("Login", func() {
		It("rejects unknown email and wrong password alike", func() {
			signup("login@kyonggi.ac.kr", "login_user")

			_, err := env.App.Service.Login(env.ctx, "login@kyonggi.ac.kr", "wrong12345", false, client)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidCredentials))

			_, err = env.App.Service.Login(env.ctx, "nobody@kyonggi.ac.kr", "password123", false, client)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidCredentials))
		})

		It("issues longer sessions with remember-me", func() {
			signup("remember@kyonggi.ac.kr", "remember_me")

			short, err := env.App.Service.Login(env.ctx, "remember@kyonggi.ac.kr", "password123", false, client)
			Expect(err).NotTo(HaveOccurred())
			long, err := env.App.Service.Login(env.ctx, "remember@kyonggi.ac.kr", "password123", true, client)
			Expect(err).NotTo(HaveOccurred())

			Expect(long.RefreshExpiresAt).To(BeTemporally(">", short.RefreshExpiresAt))
			Expect(long.RememberMe).To(BeTrue())
		})
	})

	Describe("Logout", func() {
		It("revokes the refresh token", func() {
			signup("logout@kyonggi.ac.kr", "logout_user")

			tokens, err := env.App.Service.Login(env.ctx, "logout@kyonggi.ac.kr", "password123", false, client)
			Expect(err).NotTo(HaveOccurred())

			env.App.Service.Logout(env.ctx, tokens.RefreshToken)

			_, err = env.App.Service.Refresh(env.ctx, tokens.RefreshToken, client)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeRefreshRevoked))
		})

		It("ignores unknown tokens", func() {
			env.App.Service.Logout(env.ctx, "never-issued")
			env.App.Service.Logout(env.ctx, "")
		})
	})

	Describe("RegisterWithOtp", func() {
		It("refuses an email that was never verified", func() {
			const email = "unverified@kyonggi.ac.kr"
			_, err := env.App.Service.RequestOtp(env.ctx, email)
			Expect(err).NotTo(HaveOccurred())
			code := env.mailedCode(email)

			_, err = env.App.Service.RegisterWithOtp(env.ctx, auth.RegisterRequest{
				Email:           email,
				Code:            code,
				Password:        "password123",
				PasswordConfirm: "password123",
				DisplayName:     "unverified",
			})
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeOtpNotVerified))
			Expect(env.challengeCount(email)).To(Equal(1))
		})

		It("rejects a taken display name and keeps the challenge", func() {
			signup("first@kyonggi.ac.kr", "same_name")

			const email = "second@kyonggi.ac.kr"
			_, err := env.App.Service.RequestOtp(env.ctx, email)
			Expect(err).NotTo(HaveOccurred())
			code := env.mailedCode(email)
			Expect(env.App.Service.VerifyOtp(env.ctx, email, code)).To(Succeed())

			_, err = env.App.Service.RegisterWithOtp(env.ctx, auth.RegisterRequest{
				Email:           email,
				Code:            code,
				Password:        "password123",
				PasswordConfirm: "password123",
				DisplayName:     "same_name",
			})
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeDisplayNameAlreadyExists))
			Expect(env.challengeCount(email)).To(Equal(1))
		})
	})

	Describe("RequestOtp", func() {
		It("rejects other domains before storing anything", func() {
			_, err := env.App.Service.RequestOtp(env.ctx, "someone@gmail.com")
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeEmailDomainNotAllowed))
			Expect(env.challengeCount("someone@gmail.com")).To(BeZero())
		})

		It("enforces the resend cooldown", func() {
			const email = "cooldown@kyonggi.ac.kr"
			_, err := env.App.Service.RequestOtp(env.ctx, email)
			Expect(err).NotTo(HaveOccurred())

			_, err = env.App.Service.RequestOtp(env.ctx, email)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeOtpCooldown))
		})

		It("refuses a new code once the email is verified", func() {
			const email = "verified@kyonggi.ac.kr"
			_, err := env.App.Service.RequestOtp(env.ctx, email)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.App.Service.VerifyOtp(env.ctx, email, env.mailedCode(email))).To(Succeed())

			_, err = env.App.Service.RequestOtp(env.ctx, email)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeOtpAlreadyVerified))
		})
	})

	Describe("Sessions", func() {
		It("lists rotated and live sessions for the identity", func() {
			identity := signup("list@kyonggi.ac.kr", "list_user")

			tokens, err := env.App.Service.Login(env.ctx, "list@kyonggi.ac.kr", "password123", false, client)
			Expect(err).NotTo(HaveOccurred())
			_, err = env.App.Service.Refresh(env.ctx, tokens.RefreshToken, client)
			Expect(err).NotTo(HaveOccurred())

			sessions, err := env.App.Sessions.Sessions(env.ctx, identity.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(2))

			var rotated int
			for _, s := range sessions {
				if s.RevokeReason == auth.RevokeRotated {
					rotated++
				}
			}
			Expect(rotated).To(Equal(1))
		})
	})
})
