package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prasetya/cms-auth/internal/core/datamodel/loginattempt"
)

// Account is the credential-bearing view of a user loaded for authentication.
type Account struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	RoleID       *int64
	IsActive     bool
}

// Claims are the session token payload: identity plus the effective
// permission set at issuance time. The snapshot is not updated until the next
// login, so consumers decide per request whether it is fresh enough.
type Claims struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// AccountRepository loads accounts for credential verification.
type AccountRepository interface {
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
}

// AttemptStore is the durable per-source-address failure counter. The
// increment in RecordFailure must be atomic in the backing store so that the
// transition into the blocked state happens exactly once under concurrent
// failures from the same address.
type AttemptStore interface {
	Get(ctx context.Context, sourceAddr string) (*loginattempt.LoginAttempt, error)
	RecordFailure(ctx context.Context, sourceAddr, email string, now time.Time) (*loginattempt.LoginAttempt, error)
	Reset(ctx context.Context, sourceAddr string) error
}

// TokenIssuer mints and verifies signed session tokens.
type TokenIssuer interface {
	Issue(account *Account, roleName string, permissions []string) (token string, expiresAt time.Time, err error)
	Verify(tokenString string) (*Claims, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrMissingSecret      = errors.New("session signing secret not configured")
	ErrUserNotFound       = errors.New("user not found")
)

// BlockedError is returned when the source address is rate limited.
type BlockedError struct {
	BlockedUntil time.Time
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("source address blocked until %s", e.BlockedUntil.Format(time.RFC3339))
}

// CredentialsError wraps the generic authentication failure with the number
// of attempts left before the source address is blocked. The message is
// identical for unknown email, missing hash and wrong password.
type CredentialsError struct {
	RemainingAttempts int
}

func (e *CredentialsError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *CredentialsError) Unwrap() error {
	return ErrInvalidCredentials
}
