// Package notice manages the company notice board entries.
//
// Notices are posted by the admin and read by authenticated staff.
// Attachments are stored as a JSON array of URLs in a single column.
package notice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category classifies a notice for filtering on the board.
type Category string

// Notice categories.
const (
	CategoryGeneral   Category = "General"
	CategoryImportant Category = "Important"
	CategoryUrgent    Category = "Urgent"
	CategoryEvent     Category = "Event"
)

// ValidCategories is the set of accepted notice categories.
var ValidCategories = []Category{CategoryGeneral, CategoryImportant, CategoryUrgent, CategoryEvent}

// IsValidCategory returns true if the category is one of the accepted values.
func IsValidCategory(c Category) bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// RecentWindow is how far back ListRecent looks.
const RecentWindow = 7 * 24 * time.Hour

// Notice represents a single board entry.
type Notice struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    Category  `json:"category"`
	Attachments []string  `json:"attachments"`
	PostedBy    string    `json:"posted_by"`
	IsActive    bool      `json:"is_active"`
	DatePosted  time.Time `json:"date_posted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Sentinel errors for notice operations.
var (
	ErrNotFound        = errors.New("notice not found")
	ErrInvalidCategory = errors.New("invalid notice category")
)

// Repository defines the interface for notice persistence.
type Repository interface {
	Create(ctx context.Context, n *Notice) error
	GetByID(ctx context.Context, id string) (*Notice, error)
	ListActive(ctx context.Context) ([]Notice, error)
	ListRecent(ctx context.Context, since time.Time) ([]Notice, error)
	ListByCategory(ctx context.Context, category Category) ([]Notice, error)
	Update(ctx context.Context, n *Notice) error
	Delete(ctx context.Context, id string) error
}

const noticeColumns = "id, title, content, category, attachments, posted_by, is_active, date_posted, created_at, updated_at"

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new notice repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new notice. The ID is generated if empty and the
// category defaults to General.
func (r *SQLiteRepository) Create(ctx context.Context, n *Notice) error {
	if n.ID == "" {
		n.ID = "ntc-" + uuid.NewString()[:8]
	}
	if n.Category == "" {
		n.Category = CategoryGeneral
	}
	if !IsValidCategory(n.Category) {
		return ErrInvalidCategory
	}

	attachments, err := marshalAttachments(n.Attachments)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)
	if n.DatePosted.IsZero() {
		n.DatePosted = now
	}
	n.CreatedAt = now
	n.UpdatedAt = now
	n.IsActive = true

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO notices (id, title, content, category, attachments, posted_by, is_active, date_posted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		n.ID, n.Title, n.Content, string(n.Category), attachments, n.PostedBy,
		n.DatePosted.UTC().Format(time.RFC3339), nowStr, nowStr,
	)
	if err != nil {
		return fmt.Errorf("creating notice: %w", err)
	}

	return nil
}

// GetByID retrieves a notice by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Notice, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+noticeColumns+" FROM notices WHERE id = ?", id)
	return scanNoticeFrom(row)
}

// ListActive returns all active notices, newest first.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Notice, error) {
	return r.listNotices(ctx,
		"SELECT "+noticeColumns+" FROM notices WHERE is_active = 1 ORDER BY date_posted DESC")
}

// ListRecent returns active notices posted at or after the given time,
// newest first.
func (r *SQLiteRepository) ListRecent(ctx context.Context, since time.Time) ([]Notice, error) {
	return r.listNotices(ctx,
		"SELECT "+noticeColumns+" FROM notices WHERE is_active = 1 AND date_posted >= ? ORDER BY date_posted DESC",
		since.UTC().Format(time.RFC3339))
}

// ListByCategory returns active notices of the given category, newest first.
func (r *SQLiteRepository) ListByCategory(ctx context.Context, category Category) ([]Notice, error) {
	if !IsValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	return r.listNotices(ctx,
		"SELECT "+noticeColumns+" FROM notices WHERE is_active = 1 AND category = ? ORDER BY date_posted DESC",
		string(category))
}

// Update modifies a notice's mutable fields (title, content, category,
// attachments, is_active).
func (r *SQLiteRepository) Update(ctx context.Context, n *Notice) error {
	if !IsValidCategory(n.Category) {
		return ErrInvalidCategory
	}

	attachments, err := marshalAttachments(n.Attachments)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	n.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE notices SET title = ?, content = ?, category = ?, attachments = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, string(n.Category), attachments, boolToInt(n.IsActive), now, n.ID,
	)
	if err != nil {
		return fmt.Errorf("updating notice: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a notice by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting notice: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) listNotices(ctx context.Context, query string, args ...any) ([]Notice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notices: %w", err)
	}
	defer rows.Close()

	var notices []Notice
	for rows.Next() {
		n, err := scanNoticeFrom(rows)
		if err != nil {
			return nil, err
		}
		notices = append(notices, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notices: %w", err)
	}

	if notices == nil {
		notices = []Notice{}
	}
	return notices, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanNoticeFrom(s scanner) (*Notice, error) {
	var n Notice
	var category, attachments string
	var isActive int
	var datePosted, createdAt, updatedAt string

	err := s.Scan(&n.ID, &n.Title, &n.Content, &category, &attachments,
		&n.PostedBy, &isActive, &datePosted, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning notice: %w", err)
	}

	n.Category = Category(category)
	n.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(attachments), &n.Attachments); err != nil {
		return nil, fmt.Errorf("parsing notice attachments: %w", err)
	}
	if n.Attachments == nil {
		n.Attachments = []string{}
	}

	n.DatePosted, _ = time.Parse(time.RFC3339, datePosted) //nolint:errcheck // format is controlled
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)   //nolint:errcheck // format is controlled
	n.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)   //nolint:errcheck // format is controlled

	return &n, nil
}

func marshalAttachments(attachments []string) (string, error) {
	if attachments == nil {
		attachments = []string{}
	}
	b, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("marshalling attachments: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
