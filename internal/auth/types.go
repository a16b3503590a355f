package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// emailPattern is a pragmatic email shape check: something@something.tld.
// Deliverability is proven by the reset mail flow, not by the regex.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidEmail checks if an email address has a plausible shape.
func IsValidEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

// Kind identifies which principal store an identity belongs to.
// It is carried in token claims so a refresh or logout can be routed
// back to the right table.
type Kind string

const (
	// KindUser is a registered employee account.
	KindUser Kind = "user"

	// KindAdmin is the sole administrator account. Admins manage the
	// employee roster, notices, and the admin account itself.
	KindAdmin Kind = "admin"
)

// IsValidKind returns true if the kind names a known principal store.
func IsValidKind(k Kind) bool {
	return k == KindUser || k == KindAdmin
}

// User represents a registered employee account.
//
// RefreshToken holds the single currently-valid refresh token for the
// account; presenting any other token is treated as reuse. ResetTokenHash
// holds the SHA-256 of an outstanding password reset secret, if any.
// None of the credential fields ever serialise outward.
type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	FullName          string     `json:"full_name"`
	PasswordHash      string     `json:"-"` // never serialised
	Role              Kind       `json:"role"`
	RefreshToken      string     `json:"-"` // never serialised
	ResetTokenHash    string     `json:"-"` // never serialised
	ResetTokenExpires *time.Time `json:"-"` // never serialised
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Admin represents the administrator account.
// At most one row exists in the admins table at any time.
type Admin struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialised
	RefreshToken string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
}

// TokenPair is an access/refresh token pair issued at login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Sentinel errors for auth operations.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrAdminNotFound      = errors.New("admin not found")
	ErrNotProvisioned     = errors.New("employee not found in company records")
	ErrUserExists         = errors.New("username or email already registered")
	ErrAdminExists        = errors.New("admin account already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenReuse         = errors.New("refresh token is expired or used")
	ErrPasswordMismatch   = errors.New("password confirmation does not match")
	ErrResetTicketInvalid = errors.New("invalid or expired reset token")
	ErrForbidden          = errors.New("insufficient permissions")
)
