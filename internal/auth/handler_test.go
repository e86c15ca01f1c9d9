package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/prasetya/cms-auth/internal"
	"github.com/prasetya/cms-auth/internal/transport"
)

func newRegisteredClaims(issuedAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(7 * 24 * time.Hour)),
	}
}

// Mock ServiceAPI for testing
type mockService struct {
	loginResult   *LoginResult
	loginErr      error
	claims        map[string]*Claims
	currentUser   *internal.SessionUser
	currentErr    error
	refreshCalled bool
}

func (m *mockService) Login(ctx context.Context, dto LoginDTO, sourceAddr string) (*LoginResult, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.loginResult, nil
}

func (m *mockService) VerifyToken(tokenString string) (*Claims, error) {
	if claims, exists := m.claims[tokenString]; exists {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (m *mockService) CurrentUser(ctx context.Context, userID int64) (*internal.SessionUser, error) {
	m.refreshCalled = true
	if m.currentErr != nil {
		return nil, m.currentErr
	}
	return m.currentUser, nil
}

var _ = ginkgo.Describe("Auth Handler", func() {
	var (
		handler *Handler
		service *mockService
	)

	ginkgo.BeforeEach(func() {
		service = &mockService{claims: map[string]*Claims{}}
		handler = NewHandler(service, time.Hour)
	})

	loginRequest := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Login(rec, req)
		return rec
	}

	ginkgo.Describe("Login", func() {
		ginkgo.Context("on success", func() {
			ginkgo.BeforeEach(func() {
				service.loginResult = &LoginResult{
					Token:     "signed-token",
					ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
					User:      &Account{ID: 1, Name: "Admin", Email: "admin@example.com"},
					RoleName:  "admin",
				}
			})

			ginkgo.It("should return the token and user payload", func() {
				// When
				rec := loginRequest(`{"email":"admin@example.com","password":"pw"}`)

				// Then
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

				var resp map[string]interface{}
				gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
				gomega.Expect(resp["message"]).To(gomega.Equal("login successful"))
				gomega.Expect(resp["token"]).To(gomega.Equal("signed-token"))

				user := resp["user"].(map[string]interface{})
				gomega.Expect(user["email"]).To(gomega.Equal("admin@example.com"))
				gomega.Expect(user["role"]).To(gomega.Equal("admin"))
			})

			ginkgo.It("should set an HttpOnly Lax session cookie scoped to the site root", func() {
				// When
				rec := loginRequest(`{"email":"admin@example.com","password":"pw"}`)

				// Then
				cookies := rec.Result().Cookies()
				gomega.Expect(cookies).To(gomega.HaveLen(1))
				cookie := cookies[0]
				gomega.Expect(cookie.Name).To(gomega.Equal(transport.SessionCookieName))
				gomega.Expect(cookie.Value).To(gomega.Equal("signed-token"))
				gomega.Expect(cookie.HttpOnly).To(gomega.BeTrue())
				gomega.Expect(cookie.SameSite).To(gomega.Equal(http.SameSiteLaxMode))
				gomega.Expect(cookie.Path).To(gomega.Equal("/"))
				gomega.Expect(cookie.Secure).To(gomega.BeFalse())
			})
		})

		ginkgo.Context("on credential failure", func() {
			ginkgo.It("should return 401 with the generic message and remaining attempts", func() {
				// Given
				service.loginErr = &CredentialsError{RemainingAttempts: 3}

				// When
				rec := loginRequest(`{"email":"admin@example.com","password":"wrong"}`)

				// Then
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))

				var resp map[string]interface{}
				gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
				gomega.Expect(resp["message"]).To(gomega.Equal("Invalid email or password"))
				gomega.Expect(resp["remaining_attempts"]).To(gomega.BeEquivalentTo(3))
			})

			ginkgo.It("should not set a session cookie", func() {
				// Given
				service.loginErr = &CredentialsError{RemainingAttempts: 3}

				// When
				rec := loginRequest(`{"email":"admin@example.com","password":"wrong"}`)

				// Then
				gomega.Expect(rec.Result().Cookies()).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("on a blocked address", func() {
			ginkgo.It("should return 429 with the block expiry in the details", func() {
				// Given
				blockedUntil := time.Now().Add(10 * time.Minute)
				service.loginErr = &BlockedError{BlockedUntil: blockedUntil}

				// When
				rec := loginRequest(`{"email":"admin@example.com","password":"pw"}`)

				// Then
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusTooManyRequests))

				var resp struct {
					Error struct {
						Type    string `json:"type"`
						Code    string `json:"code"`
						Message string `json:"message"`
						Details struct {
							BlockedUntil     time.Time `json:"blocked_until"`
							RemainingMinutes int       `json:"remaining_minutes"`
						} `json:"details"`
					} `json:"error"`
				}
				gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
				gomega.Expect(resp.Error.Type).To(gomega.Equal("RATE_LIMITED"))
				gomega.Expect(resp.Error.Code).To(gomega.Equal("TOO_MANY_ATTEMPTS"))
				gomega.Expect(resp.Error.Message).To(gomega.ContainSubstring("Try again in 10 minutes"))
				gomega.Expect(resp.Error.Details.BlockedUntil).To(gomega.BeTemporally("~", blockedUntil, time.Second))
				gomega.Expect(resp.Error.Details.RemainingMinutes).To(gomega.Equal(10))
			})
		})

		ginkgo.Context("on bad input", func() {
			ginkgo.It("should return 400 for a malformed body", func() {
				rec := loginRequest(`{not json`)
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			})

			ginkgo.It("should return 400 for a validation failure", func() {
				service.loginErr = ValidationError{Msg: "email is required"}
				rec := loginRequest(`{"password":"pw"}`)
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			})
		})

		ginkgo.Context("on a missing signing secret", func() {
			ginkgo.It("should return 500 without leaking configuration detail", func() {
				// Given
				service.loginErr = ErrMissingSecret

				// When
				rec := loginRequest(`{"email":"admin@example.com","password":"pw"}`)

				// Then
				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusInternalServerError))
				gomega.Expect(rec.Body.String()).NotTo(gomega.ContainSubstring("secret value"))
			})
		})
	})

	ginkgo.Describe("Logout", func() {
		ginkgo.It("should clear the cookie and return no content", func() {
			// When
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
			rec := httptest.NewRecorder()
			handler.Logout(rec, req)

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
			cookies := rec.Result().Cookies()
			gomega.Expect(cookies).To(gomega.HaveLen(1))
			gomega.Expect(cookies[0].Value).To(gomega.BeEmpty())
			gomega.Expect(cookies[0].MaxAge).To(gomega.BeNumerically("<", 0))
		})
	})

	ginkgo.Describe("AuthMiddleware", func() {
		var (
			next     http.Handler
			seenUser *internal.SessionUser
		)

		ginkgo.BeforeEach(func() {
			seenUser = nil
			next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenUser, _ = internal.UserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
		})

		protectedRequest := func(token string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if token != "" {
				req.AddCookie(&http.Cookie{Name: transport.SessionCookieName, Value: token})
			}
			rec := httptest.NewRecorder()
			handler.AuthMiddleware(next).ServeHTTP(rec, req)
			return rec
		}

		ginkgo.It("should reject a request without a token", func() {
			rec := protectedRequest("")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should reject an invalid token", func() {
			rec := protectedRequest("forged")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should attach the session user from a fresh token snapshot", func() {
			// Given a recently issued token
			service.claims["good"] = &Claims{
				UserID:           7,
				Email:            "admin@example.com",
				Name:             "Admin",
				Role:             "admin",
				Permissions:      []string{"admin"},
				RegisteredClaims: newRegisteredClaims(time.Now().Add(-time.Minute)),
			}

			// When
			rec := protectedRequest("good")

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.refreshCalled).To(gomega.BeFalse())
			gomega.Expect(seenUser.ID).To(gomega.Equal(int64(7)))
			gomega.Expect(seenUser.Permissions).To(gomega.ConsistOf("admin"))
		})

		ginkgo.It("should re-resolve permissions when the snapshot is older than the maximum age", func() {
			// Given a token issued two hours ago against a one hour limit
			service.claims["old"] = &Claims{
				UserID:           7,
				Email:            "admin@example.com",
				Permissions:      []string{"admin", "manage_users"},
				RegisteredClaims: newRegisteredClaims(time.Now().Add(-2 * time.Hour)),
			}
			service.currentUser = &internal.SessionUser{
				ID:          7,
				Email:       "admin@example.com",
				Role:        "editor",
				Permissions: []string{"edit_post"},
			}

			// When
			rec := protectedRequest("old")

			// Then the stale snapshot is replaced, not trusted
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.refreshCalled).To(gomega.BeTrue())
			gomega.Expect(seenUser.Permissions).To(gomega.ConsistOf("edit_post"))
		})

		ginkgo.It("should reject a stale token whose account no longer exists", func() {
			// Given
			service.claims["old"] = &Claims{
				UserID:           7,
				RegisteredClaims: newRegisteredClaims(time.Now().Add(-2 * time.Hour)),
			}
			service.currentErr = ErrUserNotFound

			// When
			rec := protectedRequest("old")

			// Then
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})
})
