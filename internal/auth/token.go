package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength below this the issuer refuses to sign at all.
const MinSecretLength = 32

// JWTTokenIssuer signs session tokens with a server-held HMAC secret.
type JWTTokenIssuer struct {
	Secret []byte
	TTL    time.Duration

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewJWTTokenIssuer creates a session token issuer. TTL defaults to 7 days.
func NewJWTTokenIssuer(secret string, ttl time.Duration) *JWTTokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &JWTTokenIssuer{
		Secret: []byte(secret),
		TTL:    ttl,
		Now:    time.Now,
	}
}

// Issue signs a session token embedding identity and the permission snapshot.
func (j *JWTTokenIssuer) Issue(account *Account, roleName string, permissions []string) (string, time.Time, error) {
	if len(j.Secret) < MinSecretLength {
		return "", time.Time{}, ErrMissingSecret
	}

	now := j.Now()
	expiresAt := now.Add(j.TTL)

	if permissions == nil {
		permissions = []string{}
	}

	claims := &Claims{
		UserID:      account.ID,
		Email:       account.Email,
		Name:        account.Name,
		Role:        roleName,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// Verify validates signature, structure and expiry. Any failure collapses to
// ErrInvalidToken or ErrTokenExpired; callers must treat both as "not
// authenticated" and never surface the parse detail.
func (j *JWTTokenIssuer) Verify(tokenString string) (*Claims, error) {
	if len(j.Secret) < MinSecretLength {
		// fail closed: without a secret no token can be trusted
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return j.Now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
