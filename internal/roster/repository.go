// Package roster manages the company employee roster.
//
// The roster is the provisioning gate for self-registration: an account
// can only be created for an email address that HR has already entered
// here. The auth package reads the roster; only admin endpoints mutate it.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmployeeRecord represents one roster entry.
//
// EmployeeID is the HR-facing identifier (a full UUID), distinct from
// the row ID used for API routing.
type EmployeeRecord struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sentinel errors for roster operations.
var (
	ErrNotFound = errors.New("employee record not found")
	ErrExists   = errors.New("employee email already on roster")
)

// Repository defines the interface for roster persistence.
type Repository interface {
	Create(ctx context.Context, rec *EmployeeRecord) error
	GetByID(ctx context.Context, id string) (*EmployeeRecord, error)
	FindByEmail(ctx context.Context, email string) (*EmployeeRecord, error)
	List(ctx context.Context) ([]EmployeeRecord, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const employeeColumns = "id, employee_id, full_name, email, created_at"

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new roster repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new roster entry. ID and EmployeeID are generated if
// empty. The email is stored trimmed and lowercased so the registration
// gate matches it whatever casing the employee later types.
func (r *SQLiteRepository) Create(ctx context.Context, rec *EmployeeRecord) error {
	rec.Email = strings.ToLower(strings.TrimSpace(rec.Email))
	if rec.ID == "" {
		rec.ID = "emp-" + uuid.NewString()[:8]
	}
	if rec.EmployeeID == "" {
		rec.EmployeeID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO employees (id, employee_id, full_name, email, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.EmployeeID, rec.FullName, rec.Email, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("creating employee record: %w", err)
	}

	return nil
}

// GetByID retrieves a roster entry by row ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*EmployeeRecord, error) {
	return r.getEmployee(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
}

// FindByEmail retrieves a roster entry by email address. This is the
// registration gate lookup; the argument is normalised the same way
// Create normalises stored emails, so matching is case-insensitive.
func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (*EmployeeRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getEmployee(ctx, "SELECT "+employeeColumns+" FROM employees WHERE email = ?", email)
}

// List returns all roster entries ordered by creation date.
func (r *SQLiteRepository) List(ctx context.Context) ([]EmployeeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+employeeColumns+" FROM employees ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing employees: %w", err)
	}
	defer rows.Close()

	var records []EmployeeRecord
	for rows.Next() {
		var rec EmployeeRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.FullName, &rec.Email, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning employee record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating employees: %w", err)
	}

	if records == nil {
		records = []EmployeeRecord{}
	}
	return records, nil
}

// Delete removes a roster entry by row ID. Existing accounts are not
// affected; removal only blocks future registrations.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting employee record: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of roster entries.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM employees").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting employees: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) getEmployee(ctx context.Context, query string, args ...any) (*EmployeeRecord, error) {
	var rec EmployeeRecord
	var createdAt string

	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&rec.ID, &rec.EmployeeID, &rec.FullName, &rec.Email, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning employee record: %w", err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &rec, nil
}
