package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdminRepository defines the interface for administrator account persistence.
//
// The admins table holds at most one row. Create enforces that invariant
// for bootstrap; ReplaceSoleAdmin swaps the row atomically.
type AdminRepository interface {
	Create(ctx context.Context, admin *Admin) error
	GetByID(ctx context.Context, id string) (*Admin, error)
	GetByName(ctx context.Context, name string) (*Admin, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	RotateRefreshToken(ctx context.Context, id, presented, next string) error
	ReplaceSoleAdmin(ctx context.Context, admin *Admin) error
	Count(ctx context.Context) (int, error)
}

const adminColumns = "id, name, password_hash, refresh_token, created_at"

// SQLiteAdminRepository implements AdminRepository using SQLite.
type SQLiteAdminRepository struct {
	db *sql.DB
}

// NewAdminRepository creates a new SQLite-backed admin repository.
func NewAdminRepository(db *sql.DB) *SQLiteAdminRepository {
	return &SQLiteAdminRepository{db: db}
}

// Create inserts the admin account, failing with ErrAdminExists if one
// already exists. The insert and the existence check run in one
// transaction so concurrent bootstraps cannot both succeed.
func (r *SQLiteAdminRepository) Create(ctx context.Context, admin *Admin) error {
	if admin.ID == "" {
		admin.ID = "adm-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	admin.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM admins").Scan(&count); err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if count > 0 {
		return ErrAdminExists
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO admins (id, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		admin.ID, admin.Name, admin.PasswordHash, now,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrAdminExists
		}
		return fmt.Errorf("creating admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing admin create: %w", err)
	}
	return nil
}

// GetByID retrieves the admin by ID.
func (r *SQLiteAdminRepository) GetByID(ctx context.Context, id string) (*Admin, error) {
	return r.getAdmin(ctx, "SELECT "+adminColumns+" FROM admins WHERE id = ?", id)
}

// GetByName retrieves the admin by name.
func (r *SQLiteAdminRepository) GetByName(ctx context.Context, name string) (*Admin, error) {
	return r.getAdmin(ctx, "SELECT "+adminColumns+" FROM admins WHERE name = ?", name)
}

// SetRefreshToken stores the admin's current refresh token.
// An empty token clears it (logout).
func (r *SQLiteAdminRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE admins SET refresh_token = ? WHERE id = ?`,
		nullString(token), id,
	)
	if err != nil {
		return fmt.Errorf("setting admin refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAdminNotFound
	}
	return nil
}

// RotateRefreshToken swaps the stored refresh token from presented to next
// in a single compare-and-swap UPDATE, mirroring the user repository.
func (r *SQLiteAdminRepository) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE admins SET refresh_token = ? WHERE id = ? AND refresh_token = ?`,
		next, id, presented,
	)
	if err != nil {
		return fmt.Errorf("rotating admin refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrTokenReuse
	}
	return nil
}

// ReplaceSoleAdmin deletes every admin row and inserts the replacement in
// one transaction. There is no observable window with zero or two admins,
// and a failed insert rolls the delete back.
func (r *SQLiteAdminRepository) ReplaceSoleAdmin(ctx context.Context, admin *Admin) error {
	if admin.ID == "" {
		admin.ID = "adm-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	admin.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM admins"); err != nil {
		return fmt.Errorf("removing previous admin: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO admins (id, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		admin.ID, admin.Name, admin.PasswordHash, now,
	); err != nil {
		return fmt.Errorf("inserting replacement admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing admin replacement: %w", err)
	}
	return nil
}

// Count returns the number of admin accounts (0 or 1).
func (r *SQLiteAdminRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM admins").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return count, nil
}

func (r *SQLiteAdminRepository) getAdmin(ctx context.Context, query string, args ...any) (*Admin, error) {
	var a Admin
	var refreshToken sql.NullString
	var createdAt string

	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&a.ID, &a.Name, &a.PasswordHash, &refreshToken, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("scanning admin: %w", err)
	}

	if refreshToken.Valid {
		a.RefreshToken = refreshToken.String
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &a, nil
}
