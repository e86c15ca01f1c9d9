package auth

import (
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("JWTTokenIssuer", func() {
	var (
		issuer  *JWTTokenIssuer
		account *Account
		secret  = "0123456789abcdef0123456789abcdef"
	)

	ginkgo.BeforeEach(func() {
		issuer = NewJWTTokenIssuer(secret, 7*24*time.Hour)
		account = &Account{ID: 42, Email: "editor@example.com", Name: "Editor", IsActive: true}
	})

	ginkgo.Describe("Issue", func() {
		ginkgo.It("should embed identity, role and the permission snapshot", func() {
			// When
			token, _, err := issuer.Issue(account, "editor", []string{"create_post", "edit_post"})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			claims, err := issuer.Verify(token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal(int64(42)))
			gomega.Expect(claims.Email).To(gomega.Equal("editor@example.com"))
			gomega.Expect(claims.Name).To(gomega.Equal("Editor"))
			gomega.Expect(claims.Role).To(gomega.Equal("editor"))
			gomega.Expect(claims.Permissions).To(gomega.Equal([]string{"create_post", "edit_post"}))
			gomega.Expect(claims.IssuedAt).ToNot(gomega.BeNil())
			gomega.Expect(claims.ExpiresAt).ToNot(gomega.BeNil())
		})

		ginkgo.It("should encode an empty permission set as an empty list, not null", func() {
			// When
			token, _, err := issuer.Issue(account, "", nil)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			claims, err := issuer.Verify(token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.Permissions).ToNot(gomega.BeNil())
			gomega.Expect(claims.Permissions).To(gomega.BeEmpty())
		})

		ginkgo.It("should refuse to sign with a secret shorter than the minimum", func() {
			// Given
			issuer = NewJWTTokenIssuer("too-short", time.Hour)

			// When
			token, _, err := issuer.Issue(account, "editor", nil)

			// Then
			gomega.Expect(token).To(gomega.BeEmpty())
			gomega.Expect(err).To(gomega.Equal(ErrMissingSecret))
		})

		ginkgo.It("should refuse to sign with an empty secret", func() {
			// Given
			issuer = NewJWTTokenIssuer("", time.Hour)

			// When
			token, _, err := issuer.Issue(account, "editor", nil)

			// Then
			gomega.Expect(token).To(gomega.BeEmpty())
			gomega.Expect(err).To(gomega.Equal(ErrMissingSecret))
		})
	})

	ginkgo.Describe("Verify", func() {
		ginkgo.It("should reject a malformed token", func() {
			// When
			claims, err := issuer.Verify("not.a.token")

			// Then
			gomega.Expect(claims).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.Equal(ErrInvalidToken))
		})

		ginkgo.It("should reject an empty token", func() {
			// When
			claims, err := issuer.Verify("")

			// Then
			gomega.Expect(claims).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.Equal(ErrInvalidToken))
		})

		ginkgo.It("should reject a token signed with a different secret", func() {
			// Given
			other := NewJWTTokenIssuer("ffffffffffffffffffffffffffffffff", time.Hour)
			token, _, err := other.Issue(account, "editor", nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			// When
			claims, err := issuer.Verify(token)

			// Then
			gomega.Expect(claims).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.Equal(ErrInvalidToken))
		})

		ginkgo.It("should reject a tampered token", func() {
			// Given
			token, _, err := issuer.Issue(account, "editor", nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			tampered := token[:len(token)-4] + "AAAA"

			// When
			claims, err := issuer.Verify(tampered)

			// Then
			gomega.Expect(claims).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.Equal(ErrInvalidToken))
		})

		ginkgo.It("should reject an expired token with the expiry error", func() {
			// Given a token issued in the past under a fake clock
			issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			issuer.Now = func() time.Time { return issued }
			token, _, err := issuer.Issue(account, "editor", nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			// When verified past its TTL
			issuer.Now = func() time.Time { return issued.Add(7*24*time.Hour + time.Minute) }
			claims, err := issuer.Verify(token)

			// Then
			gomega.Expect(claims).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.Equal(ErrTokenExpired))
		})

		ginkgo.It("should accept a token right up to its expiry", func() {
			// Given
			issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			issuer.Now = func() time.Time { return issued }
			token, _, err := issuer.Issue(account, "editor", nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			// When verified just before the TTL runs out
			issuer.Now = func() time.Time { return issued.Add(7*24*time.Hour - time.Second) }
			claims, err := issuer.Verify(token)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal(int64(42)))
		})

		ginkgo.It("should fail closed when no secret is configured", func() {
			// Given a token minted elsewhere
			token, _, err := issuer.Issue(account, "editor", nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			// When verified by an issuer without a secret
			bare := NewJWTTokenIssuer("", time.Hour)
			claims, err := bare.Verify(token)

			// Then
			gomega.Expect(claims).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.Equal(ErrInvalidToken))
		})
	})
})
