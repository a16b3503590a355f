package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the audit_logs table.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			actor_id TEXT,
			actor_kind TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE INDEX idx_audit_logs_created_at ON audit_logs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating audit_logs table: %v", err)
	}

	return db
}

func TestRepository_CreateAndList(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	entry := &AuditLog{
		Action:     "create",
		EntityType: "notice",
		EntityID:   "ntc-abc12345",
		ActorID:    "adm-abc12345",
		ActorKind:  "admin",
		Source:     "api",
		Details:    map[string]any{"title": "Fire drill"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(entry.ID, "aud-") {
		t.Errorf("generated ID should have aud- prefix, got %q", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on create")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("List().Total = %d, want 1", result.Total)
	}

	got := result.Logs[0]
	if got.ActorID != "adm-abc12345" || got.ActorKind != "admin" {
		t.Errorf("actor = %q/%q, want adm-abc12345/admin", got.ActorID, got.ActorKind)
	}
	if got.Details["title"] != "Fire drill" {
		t.Errorf("Details[title] = %v, want Fire drill", got.Details["title"])
	}
}

func TestRepository_Create_AnonymousEvent(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Failed logins have no actor and no details.
	entry := &AuditLog{Action: "login_failed", EntityType: "user", Source: "api"}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := result.Logs[0]
	if got.ActorID != "" || got.ActorKind != "" || got.EntityID != "" {
		t.Errorf("anonymous entry should have empty actor and entity ID, got %+v", got)
	}
	if got.Details != nil {
		t.Errorf("Details = %v, want nil", got.Details)
	}
}

func TestRepository_List_Filters(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	entries := []*AuditLog{
		{Action: "create", EntityType: "notice", EntityID: "ntc-1", ActorID: "adm-1", ActorKind: "admin", Source: "api"},
		{Action: "update", EntityType: "notice", EntityID: "ntc-1", ActorID: "adm-1", ActorKind: "admin", Source: "api"},
		{Action: "login", EntityType: "user", EntityID: "usr-1", ActorID: "usr-1", ActorKind: "user", Source: "api"},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 3},
		{"by action", Filter{Action: "create"}, 1},
		{"by entity type", Filter{EntityType: "notice"}, 2},
		{"by entity id", Filter{EntityID: "ntc-1"}, 2},
		{"by actor", Filter{ActorID: "usr-1"}, 1},
		{"combined", Filter{EntityType: "notice", Action: "update"}, 1},
		{"no match", Filter{Action: "delete"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("List().Total = %d, want %d", result.Total, tt.want)
			}
			if len(result.Logs) != tt.want {
				t.Errorf("len(Logs) = %d, want %d", len(result.Logs), tt.want)
			}
		})
	}
}

func TestRepository_List_Pagination(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		entry := &AuditLog{
			Action:     "create",
			EntityType: "notice",
			EntityID:   fmt.Sprintf("ntc-%d", i),
			Source:     "api",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Logs) != 2 {
		t.Fatalf("len(Logs) = %d, want 2", len(result.Logs))
	}
	// Newest first.
	if result.Logs[0].EntityID != "ntc-4" {
		t.Errorf("Logs[0].EntityID = %q, want ntc-4", result.Logs[0].EntityID)
	}

	page2, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List(offset 2) error = %v", err)
	}
	if len(page2.Logs) != 2 {
		t.Fatalf("len(page2.Logs) = %d, want 2", len(page2.Logs))
	}
	if page2.Logs[0].EntityID != "ntc-2" {
		t.Errorf("page2.Logs[0].EntityID = %q, want ntc-2", page2.Logs[0].EntityID)
	}
}

func TestRepository_List_LimitClamping(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	result, err := repo.List(ctx, Filter{Limit: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 50 {
		t.Errorf("default Limit = %d, want 50", result.Limit)
	}

	result, err = repo.List(ctx, Filter{Limit: 5000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("clamped Limit = %d, want 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("clamped Offset = %d, want 0", result.Offset)
	}
}

func TestRepository_List_Empty(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Logs == nil {
		t.Error("Logs should be an empty slice, not nil")
	}
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}
}
