package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims extends JWT registered claims with the principal kind, so a
// presented token can be routed back to the right principal store.
type Claims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"kind"`
}

// TokenIssuer signs and verifies the JWT access/refresh pairs.
//
// Both token types share claim shape and signing key; they differ only
// in lifetime. The refresh token is additionally persisted per-principal
// so that only the most recently issued one is honoured.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Default token lifetimes, used when the configured TTL is zero.
const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// NewTokenIssuer creates a TokenIssuer with the given signing secret and TTLs.
// Zero TTLs fall back to 1 hour (access) and 7 days (refresh).
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration {
	return ti.accessTTL
}

// IssueAccessToken creates a signed short-lived access token for a principal.
// Access tokens are validated by signature only (no DB hit).
func (ti *TokenIssuer) IssueAccessToken(principalID string, kind Kind) (string, error) {
	return ti.issue(principalID, kind, ti.accessTTL)
}

// IssueRefreshToken creates a signed long-lived refresh token for a principal.
// The caller must persist it as the principal's sole current refresh token.
func (ti *TokenIssuer) IssueRefreshToken(principalID string, kind Kind) (string, error) {
	return ti.issue(principalID, kind, ti.refreshTTL)
}

func (ti *TokenIssuer) issue(principalID string, kind Kind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates a JWT's signature and expiry and returns its claims.
//
// Expiry is reported as ErrTokenExpired, everything else (bad signature,
// malformed token, wrong algorithm, missing fields) as ErrTokenInvalid.
// Callers collapse both to a single external error class; the distinction
// exists for logging.
func (ti *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidKind(claims.Kind) {
		return nil, fmt.Errorf("%w: unknown principal kind", ErrTokenInvalid)
	}

	return claims, nil
}
