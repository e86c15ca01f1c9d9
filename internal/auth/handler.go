package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prasetya/cms-auth/internal"
	"github.com/prasetya/cms-auth/internal/transport"
	"github.com/prasetya/cms-auth/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI

	// SnapshotMaxAge mirrors security.permission_snapshot_max_age: tokens
	// older than this get their permissions re-resolved from the store.
	SnapshotMaxAge time.Duration
}

func NewHandler(svc ServiceAPI, snapshotMaxAge time.Duration) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler:    transport.NewBaseHandler(lg),
		Service:        svc,
		SnapshotMaxAge: snapshotMaxAge,
	}
}

type loginUserPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type loginResponse struct {
	Message string           `json:"message"`
	Token   string           `json:"token"`
	User    loginUserPayload `json:"user"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sourceAddr := transport.ClientAddr(r)

	result, err := h.Service.Login(r.Context(), dto, sourceAddr)
	if err != nil {
		h.writeLoginError(w, r, err)
		return
	}

	h.setSessionCookie(w, r, result.Token, result.ExpiresAt)
	h.WriteJSON(w, http.StatusOK, loginResponse{
		Message: "login successful",
		Token:   result.Token,
		User: loginUserPayload{
			ID:    result.User.ID,
			Name:  result.User.Name,
			Email: result.User.Email,
			Role:  result.RoleName,
		},
	})
}

func (h *Handler) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case ValidationError:
		h.WriteError(w, http.StatusBadRequest, e.Error())
	case *BlockedError:
		h.WriteAppError(w, internal.NewRateLimitedError(e.BlockedUntil, time.Now()))
	case *CredentialsError:
		h.Logger.Warn("login failed", "source_address", transport.ClientAddr(r))
		h.WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"code":               http.StatusUnauthorized,
			"message":            "Invalid email or password",
			"remaining_attempts": e.RemainingAttempts,
		})
	default:
		if err == ErrMissingSecret {
			h.WriteAppError(w, internal.ErrMissingSecret)
			return
		}
		if appErr, ok := internal.IsAppError(err); ok {
			h.Logger.Error("login failed", "error", err)
			h.WriteAppError(w, appErr)
			return
		}
		h.Logger.Error("login failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Logout clears the session cookie. There is no server-side session state to
// destroy; the token stays valid until its expiry.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated identity with its effective permission set.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":          user.ID,
		"name":        user.Name,
		"email":       user.Email,
		"role":        user.Role,
		"permissions": user.Permissions,
	})
}

// AuthMiddleware verifies the session token (cookie first, bearer header
// fallback) and attaches the session user to the request context. When the
// token's permission snapshot is older than SnapshotMaxAge the permissions
// are re-resolved from the store instead of trusted.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := transport.ExtractSessionToken(r)
		if token == "" {
			h.WriteError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		claims, err := h.Service.VerifyToken(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err)
			h.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user := &internal.SessionUser{
			ID:          claims.UserID,
			Email:       claims.Email,
			Name:        claims.Name,
			Role:        claims.Role,
			Permissions: claims.Permissions,
		}
		if claims.IssuedAt != nil {
			user.IssuedAt = claims.IssuedAt.Time
		}

		if h.snapshotStale(user.IssuedAt) {
			fresh, err := h.Service.CurrentUser(r.Context(), claims.UserID)
			if err != nil {
				h.Logger.Warn("failed to refresh permissions for session", "error", err, "user_id", claims.UserID)
				h.WriteError(w, http.StatusUnauthorized, "user not found")
				return
			}
			fresh.IssuedAt = user.IssuedAt
			user = fresh
		}

		ctx := internal.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) snapshotStale(issuedAt time.Time) bool {
	if h.SnapshotMaxAge <= 0 {
		return true
	}
	if issuedAt.IsZero() {
		return true
	}
	return time.Since(issuedAt) > h.SnapshotMaxAge
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     transport.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     transport.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
