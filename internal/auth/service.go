package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/prasetya/cms-auth/internal"
	"github.com/prasetya/cms-auth/internal/rbac"
)

// PermissionResolver computes the effective permission set for an account.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64) (rbac.Grants, error)
}

// LoginResult is the successful outcome of a login: a signed session token
// plus the identity it was issued for.
type LoginResult struct {
	Token       string
	ExpiresAt   time.Time
	User        *Account
	RoleName    string
	Permissions []string
}

// ServiceAPI is the surface the HTTP layer and the route gate consume.
type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO, sourceAddr string) (*LoginResult, error)
	VerifyToken(tokenString string) (*Claims, error)
	CurrentUser(ctx context.Context, userID int64) (*internal.SessionUser, error)
}

// Service orchestrates the login pipeline: brute-force guard, credential
// verification, permission resolution, session issuance.
type Service struct {
	accounts AccountRepository
	resolver PermissionResolver
	guard    *Guard
	tokens   TokenIssuer
	logger   *slog.Logger
}

func NewService(accounts AccountRepository, resolver PermissionResolver, guard *Guard, tokens TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		resolver: resolver,
		guard:    guard,
		tokens:   tokens,
		logger:   logger,
	}
}

// Login authenticates the submitted credentials for a source address.
//
// The guard check runs before any account lookup. Every credential failure
// path (unknown email, missing hash, wrong password) records exactly one
// failed attempt and returns the same generic error so callers cannot tell
// the cases apart. Configuration failures after successful verification do
// not touch the attempt record.
func (s *Service) Login(ctx context.Context, dto LoginDTO, sourceAddr string) (*LoginResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	check, err := s.guard.Check(ctx, sourceAddr)
	if err != nil {
		s.logger.Error("attempt store check failed", "error", err, "source_address", sourceAddr)
		return nil, internal.NewInternalError("login temporarily unavailable", err)
	}
	if !check.Allowed {
		return nil, &BlockedError{BlockedUntil: *check.BlockedUntil}
	}

	email := dto.NormalizedEmail()

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil && err != ErrUserNotFound {
		s.logger.Error("account lookup failed", "error", err)
		return nil, internal.NewInternalError("login temporarily unavailable", err)
	}

	if account == nil || account.PasswordHash == "" || !account.IsActive {
		return nil, s.failAttempt(ctx, sourceAddr, email)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(dto.Password)); err != nil {
		return nil, s.failAttempt(ctx, sourceAddr, email)
	}

	grants, err := s.resolver.Resolve(ctx, account.ID)
	if err != nil {
		s.logger.Error("permission resolution failed at login", "error", err, "user_id", account.ID)
		return nil, internal.NewInternalError("login temporarily unavailable", err)
	}

	token, expiresAt, err := s.tokens.Issue(account, grants.RoleName, grants.Permissions)
	if err != nil {
		if err == ErrMissingSecret {
			s.logger.Error("session secret missing or too short; refusing to issue token")
			return nil, ErrMissingSecret
		}
		return nil, internal.NewInternalError("could not issue session token", err)
	}

	if err := s.guard.RecordSuccess(ctx, sourceAddr); err != nil {
		// the login itself succeeded; a stale attempt record self-heals on
		// the next block expiry
		s.logger.Warn("failed to clear attempt record", "error", err, "source_address", sourceAddr)
	}

	return &LoginResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		User:        account,
		RoleName:    grants.RoleName,
		Permissions: grants.Permissions,
	}, nil
}

// failAttempt records one failure and maps the new state to the caller-facing
// error: 429 when the failure tripped the block, generic 401 otherwise.
func (s *Service) failAttempt(ctx context.Context, sourceAddr, email string) error {
	state, err := s.guard.RecordFailure(ctx, sourceAddr, email)
	if err != nil {
		s.logger.Error("failed to record login failure", "error", err, "source_address", sourceAddr)
		return &CredentialsError{RemainingAttempts: 0}
	}
	if !state.Allowed && state.BlockedUntil != nil {
		return &BlockedError{BlockedUntil: *state.BlockedUntil}
	}
	return &CredentialsError{RemainingAttempts: state.RemainingAttempts}
}

// VerifyToken validates a session token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	return s.tokens.Verify(tokenString)
}

// CurrentUser loads the account and a fresh permission resolution, bypassing
// any token snapshot.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*internal.SessionUser, error) {
	account, err := s.accounts.GetAccountByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.IsActive {
		return nil, ErrUserNotFound
	}

	grants, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &internal.SessionUser{
		ID:          account.ID,
		Email:       account.Email,
		Name:        account.Name,
		Role:        grants.RoleName,
		Permissions: grants.Permissions,
	}, nil
}
