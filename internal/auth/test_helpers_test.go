package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shivsys/noticeboard/internal/infrastructure/logging"
	"github.com/shivsys/noticeboard/internal/roster"
)

// testDB creates a temporary SQLite database with the account schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
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

	migrationSQL := `
		CREATE TABLE employees (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			refresh_token TEXT,
			reset_token_hash TEXT,
			reset_token_expires TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE INDEX idx_users_email ON users(email);
		CREATE INDEX idx_users_reset_token ON users(reset_token_hash);

		CREATE TABLE admins (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			refresh_token TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying account schema: %v", err)
	}

	return db
}

// testPassword is the password used by all seeded accounts.
const testPassword = "test-password"

// seedTestUser inserts a user account and returns it.
func seedTestUser(t *testing.T, db *sql.DB, username, email string) *User {
	t.Helper()

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewUserRepository(db)
	user := &User{
		Username:     username,
		Email:        email,
		FullName:     "Test " + username,
		PasswordHash: hash,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// seedTestAdmin inserts the admin account and returns it.
func seedTestAdmin(t *testing.T, db *sql.DB, name string) *Admin {
	t.Helper()

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewAdminRepository(db)
	admin := &Admin{Name: name, PasswordHash: hash}
	if err := repo.Create(context.Background(), admin); err != nil {
		t.Fatalf("creating test admin %s: %v", name, err)
	}
	return admin
}

// seedTestEmployee provisions an email on the roster.
func seedTestEmployee(t *testing.T, db *sql.DB, fullName, email string) *roster.EmployeeRecord {
	t.Helper()

	repo := roster.NewSQLiteRepository(db)
	rec := &roster.EmployeeRecord{FullName: fullName, Email: email}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("creating roster record %s: %v", email, err)
	}
	return rec
}

// recorderSender captures outgoing mail for assertions.
type recorderSender struct {
	to      []string
	bodies  []string
	failErr error
}

func (s *recorderSender) Send(_ context.Context, to, _, htmlBody string) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.to = append(s.to, to)
	s.bodies = append(s.bodies, htmlBody)
	return nil
}

// testServiceSecret is a signing secret long enough to pass config validation.
const testServiceSecret = "test-secret-that-is-at-least-32-chars!!"

// newTestService builds a Service wired to the temp database and a mail recorder.
func newTestService(t *testing.T, db *sql.DB) (*Service, *recorderSender) {
	t.Helper()

	mailer := &recorderSender{}
	svc := NewService(
		NewUserRepository(db),
		NewAdminRepository(db),
		roster.NewSQLiteRepository(db),
		NewTokenIssuer(testServiceSecret, 0, 0),
		mailer,
		logging.Default(),
		"http://localhost:3000",
	)
	return svc, mailer
}
