package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shivsys/noticeboard/internal/infrastructure/logging"
	"github.com/shivsys/noticeboard/internal/mail"
	"github.com/shivsys/noticeboard/internal/roster"
)

// resetTicketTTL is how long a password reset link stays valid.
const resetTicketTTL = time.Hour

// Principal is the resolved identity behind a verified access token.
// It carries only what request handlers need for authorisation decisions.
type Principal struct {
	ID       string
	Kind     Kind
	Username string
	Email    string
	FullName string
}

// IsAdmin reports whether the principal is the administrator.
func (p *Principal) IsAdmin() bool {
	return p.Kind == KindAdmin
}

// Service implements the account lifecycle: roster-gated registration,
// login for both principal kinds, refresh rotation, logout, password
// change, and the email reset flow.
type Service struct {
	users   UserRepository
	admins  AdminRepository
	roster  roster.Repository
	tokens  *TokenIssuer
	mailer  mail.Sender
	logger  *logging.Logger
	baseURL string
}

// NewService creates the auth service. baseURL is the frontend origin used
// to build password reset links.
func NewService(
	users UserRepository,
	admins AdminRepository,
	rosterRepo roster.Repository,
	tokens *TokenIssuer,
	mailer mail.Sender,
	logger *logging.Logger,
	baseURL string,
) *Service {
	return &Service{
		users:   users,
		admins:  admins,
		roster:  rosterRepo,
		tokens:  tokens,
		mailer:  mailer,
		logger:  logger.With("component", "auth"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// RegisterInput carries the fields of a self-registration request.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// Register creates an employee account, provided the email appears on the
// company roster. Input is trimmed before validation; passwords are trimmed
// too, matching the login path so the same literal value round-trips.
// The matched roster employee ID is returned for confirmation.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	fullName := strings.TrimSpace(in.FullName)
	password := strings.TrimSpace(in.Password)

	switch {
	case username == "" || email == "" || fullName == "" || password == "":
		return nil, "", fmt.Errorf("%w: all fields are required", ErrValidation)
	case !IsValidUsername(username):
		return nil, "", fmt.Errorf("%w: invalid username format", ErrValidation)
	case !IsValidEmail(email):
		return nil, "", fmt.Errorf("%w: invalid email format", ErrValidation)
	}

	rec, err := s.roster.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			return nil, "", ErrNotProvisioned
		}
		return nil, "", fmt.Errorf("checking roster: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         KindUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, rec.EmployeeID, nil
}

// Login authenticates an employee by username or email and issues a token
// pair. Unknown identifiers and wrong passwords both come back as
// ErrInvalidCredentials so the endpoint cannot be used to enumerate accounts.
func (s *Service) Login(ctx context.Context, identifier, password string) (*User, *TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	password = strings.TrimSpace(password)
	if identifier == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: identifier and password are required", ErrValidation)
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user.ID, KindUser)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return user, pair, nil
}

// AdminLogin authenticates the administrator by name and issues a token pair.
func (s *Service) AdminLogin(ctx context.Context, name, password string) (*Admin, *TokenPair, error) {
	name = strings.TrimSpace(name)
	password = strings.TrimSpace(password)
	if name == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: name and password are required", ErrValidation)
	}

	admin, err := s.admins.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("looking up admin: %w", err)
	}

	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, admin.ID, KindAdmin)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("admin logged in", "admin_id", admin.ID)
	return admin, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// token must be the principal's stored current token; the swap to the new
// token is a single compare-and-swap, so a replayed token loses the race
// and is rejected with ErrTokenReuse.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, err
	}

	next, err := s.tokens.IssueRefreshToken(claims.Subject, claims.Kind)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	switch claims.Kind {
	case KindUser:
		err = s.users.RotateRefreshToken(ctx, claims.Subject, refreshToken, next)
	case KindAdmin:
		err = s.admins.RotateRefreshToken(ctx, claims.Subject, refreshToken, next)
	default:
		return nil, ErrTokenInvalid
	}
	if err != nil {
		if errors.Is(err, ErrTokenReuse) {
			s.logger.Warn("refresh token reuse detected",
				"principal_id", claims.Subject, "kind", string(claims.Kind))
		}
		return nil, err
	}

	access, err := s.tokens.IssueAccessToken(claims.Subject, claims.Kind)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Logout clears the principal's stored refresh token. Outstanding access
// tokens stay valid until expiry; only the refresh chain is cut.
func (s *Service) Logout(ctx context.Context, principalID string, kind Kind) error {
	var err error
	switch kind {
	case KindUser:
		err = s.users.SetRefreshToken(ctx, principalID, "")
	case KindAdmin:
		err = s.admins.SetRefreshToken(ctx, principalID, "")
	default:
		return ErrTokenInvalid
	}
	if err != nil {
		return err
	}

	s.logger.Info("logged out", "principal_id", principalID, "kind", string(kind))
	return nil
}

// ChangePassword updates a logged-in user's password after verifying the
// current one. The confirmation check runs before any store access, so a
// mismatch never touches the account.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword, confirm string) error {
	oldPassword = strings.TrimSpace(oldPassword)
	newPassword = strings.TrimSpace(newPassword)
	confirm = strings.TrimSpace(confirm)

	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new passwords are required", ErrValidation)
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// ForgotPassword issues a password reset ticket and emails the reset link.
// Only a hash of the secret is stored; the link carries the raw secret.
// The ticket is persisted before the send, so a mail outage can be retried
// without reissuing.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	secret, err := GenerateResetSecret()
	if err != nil {
		return fmt.Errorf("generating reset secret: %w", err)
	}

	expires := time.Now().Add(resetTicketTTL)
	if err := s.users.SetResetTicket(ctx, user.ID, HashResetSecret(secret), expires); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", s.baseURL, secret)
	subject, body := mail.ResetMessage(user.FullName, resetURL)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return err
	}

	s.logger.Info("password reset issued", "user_id", user.ID)
	return nil
}

// ResetPassword consumes a reset ticket and sets a new password. The
// ticket is matched by hash and must be unexpired; the password update
// clears it, so a link can only be used once.
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string) error {
	newPassword = strings.TrimSpace(newPassword)
	if secret == "" || newPassword == "" {
		return fmt.Errorf("%w: token and new password are required", ErrValidation)
	}

	user, err := s.users.GetByResetTokenHash(ctx, HashResetSecret(secret), time.Now())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetTicketInvalid
		}
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.logger.Info("password reset completed", "user_id", user.ID)
	return nil
}

// AddAdmin bootstraps the administrator account. It fails with
// ErrAdminExists once an admin is in place; after that the only way to
// change the account is ReplaceSoleAdmin.
func (s *Service) AddAdmin(ctx context.Context, name, password string) (*Admin, error) {
	name = strings.TrimSpace(name)
	password = strings.TrimSpace(password)
	if name == "" || password == "" {
		return nil, fmt.Errorf("%w: name and password are required", ErrValidation)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	admin := &Admin{Name: name, PasswordHash: hash}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, err
	}

	s.logger.Info("admin created", "admin_id", admin.ID)
	return admin, nil
}

// ReplaceSoleAdmin atomically swaps the administrator account for a new
// one. The old admin's credentials and refresh token die with the row.
func (s *Service) ReplaceSoleAdmin(ctx context.Context, name, password string) (*Admin, error) {
	name = strings.TrimSpace(name)
	password = strings.TrimSpace(password)
	if name == "" || password == "" {
		return nil, fmt.Errorf("%w: name and password are required", ErrValidation)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	admin := &Admin{Name: name, PasswordHash: hash}
	if err := s.admins.ReplaceSoleAdmin(ctx, admin); err != nil {
		return nil, err
	}

	s.logger.Info("admin replaced", "admin_id", admin.ID)
	return admin, nil
}

// PrincipalByID loads the live principal behind a verified token. A token
// whose subject no longer exists (deleted user, replaced admin) resolves
// to ErrTokenInvalid, so stale tokens die with the account.
func (s *Service) PrincipalByID(ctx context.Context, id string, kind Kind) (*Principal, error) {
	switch kind {
	case KindUser:
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil, ErrTokenInvalid
			}
			return nil, err
		}
		return &Principal{
			ID:       user.ID,
			Kind:     KindUser,
			Username: user.Username,
			Email:    user.Email,
			FullName: user.FullName,
		}, nil
	case KindAdmin:
		admin, err := s.admins.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAdminNotFound) {
				return nil, ErrTokenInvalid
			}
			return nil, err
		}
		return &Principal{
			ID:       admin.ID,
			Kind:     KindAdmin,
			Username: admin.Name,
			FullName: admin.Name,
		}, nil
	default:
		return nil, ErrTokenInvalid
	}
}

// issuePair issues an access/refresh pair and persists the refresh token
// as the principal's sole current one, invalidating any previous session.
func (s *Service) issuePair(ctx context.Context, principalID string, kind Kind) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(principalID, kind)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(principalID, kind)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	switch kind {
	case KindUser:
		err = s.users.SetRefreshToken(ctx, principalID, refresh)
	case KindAdmin:
		err = s.admins.SetRefreshToken(ctx, principalID, refresh)
	default:
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
