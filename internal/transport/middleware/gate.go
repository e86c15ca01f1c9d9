package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prasetya/cms-auth/internal"
	"github.com/prasetya/cms-auth/internal/auth"
	"github.com/prasetya/cms-auth/internal/transport"
)

// SessionVerifier validates a session token and returns its claims.
type SessionVerifier interface {
	VerifyToken(tokenString string) (*auth.Claims, error)
}

// CallbackParam carries the originally requested path through the login
// redirect.
const CallbackParam = "callback"

// Gate classifies every request into one of three path classes before any
// handler runs: passthrough (no check), auth-entry (login/registration pages,
// which bounce authenticated users to the dashboard) and protected (the
// administrative area, which requires a valid session token).
//
// Verification failures of any kind, including a missing signing secret, are
// treated as "no valid token" and fail closed into the login redirect. The
// gate never renders an error page for them.
type Gate struct {
	verifier    SessionVerifier
	adminPrefix string
	loginPath   string
	authEntry   []string
	passthrough []string
	logger      *slog.Logger
}

func NewGate(verifier SessionVerifier, cfg internal.GateConfig, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier:    verifier,
		adminPrefix: cfg.AdminPrefix,
		loginPath:   cfg.LoginPath,
		authEntry:   cfg.AuthEntryPaths,
		passthrough: cfg.Passthrough,
		logger:      logger,
	}
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case g.isPassthrough(path):
			next.ServeHTTP(w, r)
		case g.isAuthEntry(path):
			g.handleAuthEntry(w, r, next)
		case strings.HasPrefix(path, g.adminPrefix):
			g.handleProtected(w, r, next)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// handleAuthEntry sends already-authenticated visitors to the dashboard
// instead of the login page.
func (g *Gate) handleAuthEntry(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if _, ok := g.validSession(r); ok {
		http.Redirect(w, r, g.adminPrefix, http.StatusFound)
		return
	}
	next.ServeHTTP(w, r)
}

func (g *Gate) handleProtected(w http.ResponseWriter, r *http.Request, next http.Handler) {
	claims, ok := g.validSession(r)
	if !ok {
		g.clearStaleCookie(w, r)
		target := g.loginPath + "?" + CallbackParam + "=" + url.QueryEscape(r.URL.Path)
		http.Redirect(w, r, target, http.StatusFound)
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
	next.ServeHTTP(w, r.WithContext(internal.ContextWithUser(r.Context(), user)))
}

func (g *Gate) validSession(r *http.Request) (*auth.Claims, bool) {
	token := transport.ExtractSessionToken(r)
	if token == "" {
		return nil, false
	}
	claims, err := g.verifier.VerifyToken(token)
	if err != nil {
		g.logger.Debug("gate rejected session token", "error", err, "path", r.URL.Path)
		return nil, false
	}
	return claims, true
}

func (g *Gate) clearStaleCookie(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(transport.SessionCookieName); err != nil {
		return
	}
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

func (g *Gate) isPassthrough(path string) bool {
	for _, p := range g.passthrough {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
		} else if path == p {
			return true
		}
	}
	return false
}

func (g *Gate) isAuthEntry(path string) bool {
	for _, p := range g.authEntry {
		if path == p {
			return true
		}
	}
	return false
}
