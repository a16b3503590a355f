package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shivsys/noticeboard/internal/audit"
	"github.com/shivsys/noticeboard/internal/auth"
	"github.com/shivsys/noticeboard/internal/infrastructure/logging"
	"github.com/shivsys/noticeboard/internal/notice"
	"github.com/shivsys/noticeboard/internal/roster"
)

// testJWTSecret is a signing secret long enough to pass config validation.
const testJWTSecret = "test-secret-that-is-at-least-32-chars!!"

// testPassword is the password used by seeded accounts in API tests.
const testPassword = "test-password"

// testDB creates a temporary SQLite database with the full application schema.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
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

		CREATE TABLE admins (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			refresh_token TEXT,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE notices (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'General',
			attachments TEXT NOT NULL DEFAULT '[]',
			posted_by TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			date_posted TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

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
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	return db
}

// recorderSender captures outgoing mail for assertions.
type recorderSender struct {
	mu     sync.Mutex
	to     []string
	bodies []string
}

func (s *recorderSender) Send(_ context.Context, to, _, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	s.bodies = append(s.bodies, htmlBody)
	return nil
}

func (s *recorderSender) lastBody(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bodies) == 0 {
		t.Fatal("no mail was sent")
	}
	return s.bodies[len(s.bodies)-1]
}

// newTestServer builds the full API server backed by a temp database and
// serves its router via httptest. The WebSocket hub is not started; handlers
// tolerate that.
func newTestServer(t *testing.T) (*httptest.Server, *recorderSender, *sql.DB) {
	t.Helper()

	db := testDB(t)
	logger := logging.Default()
	mailer := &recorderSender{}
	tokens := auth.NewTokenIssuer(testJWTSecret, time.Hour, 7*24*time.Hour)

	svc := auth.NewService(
		auth.NewUserRepository(db),
		auth.NewAdminRepository(db),
		roster.NewSQLiteRepository(db),
		tokens,
		mailer,
		logger,
		"http://localhost:3000",
	)

	srv, err := New(Deps{
		Logger:  logger,
		Auth:    svc,
		Tokens:  tokens,
		Roster:  roster.NewSQLiteRepository(db),
		Notices: notice.NewSQLiteRepository(db),
		Audit:   audit.NewSQLiteRepository(db),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("building server: %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return ts, mailer, db
}

// doJSON sends a JSON request and decodes the JSON response body into a map.
func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, payload
}

// bootstrapAdmin creates the admin account and returns its access token.
func bootstrapAdmin(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	creds := map[string]string{"name": "admin", "password": testPassword}
	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/admin", "", creds)
	if status != http.StatusCreated {
		t.Fatalf("admin bootstrap returned %d: %v", status, body)
	}

	status, body = doJSON(t, ts, http.MethodPost, "/api/v1/admin/login", "", creds)
	if status != http.StatusOK {
		t.Fatalf("admin login returned %d: %v", status, body)
	}
	return accessTokenFrom(t, body)
}

// registerUser provisions an email on the roster, registers the account,
// and logs in. Returns the access token.
func registerUser(t *testing.T, ts *httptest.Server, db *sql.DB, username, email string) string {
	t.Helper()

	rosterRepo := roster.NewSQLiteRepository(db)
	rec := &roster.EmployeeRecord{FullName: "Test " + username, Email: email}
	if err := rosterRepo.Create(context.Background(), rec); err != nil {
		t.Fatalf("provisioning %s: %v", email, err)
	}

	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":  username,
		"email":     email,
		"full_name": "Test " + username,
		"password":  testPassword,
	})
	if status != http.StatusCreated {
		t.Fatalf("register returned %d: %v", status, body)
	}

	status, body = doJSON(t, ts, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": username,
		"password":   testPassword,
	})
	if status != http.StatusOK {
		t.Fatalf("login returned %d: %v", status, body)
	}
	return accessTokenFrom(t, body)
}

// accessTokenFrom digs the access token out of a login response.
func accessTokenFrom(t *testing.T, body map[string]any) string {
	t.Helper()

	tokens, ok := body["tokens"].(map[string]any)
	if !ok {
		t.Fatalf("response has no tokens object: %v", body)
	}
	token, ok := tokens["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("response has no access_token: %v", tokens)
	}
	return token
}

// refreshTokenFrom digs the refresh token out of a login response.
func refreshTokenFrom(t *testing.T, body map[string]any) string {
	t.Helper()

	tokens, ok := body["tokens"].(map[string]any)
	if !ok {
		t.Fatalf("response has no tokens object: %v", body)
	}
	token, ok := tokens["refresh_token"].(string)
	if !ok || token == "" {
		t.Fatalf("response has no refresh_token: %v", tokens)
	}
	return token
}

// errorCode extracts the machine-readable error code from an error response.
func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()

	code, ok := body["code"].(string)
	if !ok {
		t.Fatalf("response has no error code: %v", body)
	}
	return code
}

// extractResetSecret pulls the reset secret out of a reset email body.
func extractResetSecret(t *testing.T, htmlBody string) string {
	t.Helper()

	const marker = "/reset-password/"
	idx := strings.Index(htmlBody, marker)
	if idx < 0 {
		t.Fatalf("mail body has no reset link: %s", htmlBody)
	}
	rest := htmlBody[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		t.Fatalf("reset link is not terminated: %s", rest)
	}
	return rest[:end]
}

// noticeCount reads the count field from a notice list response.
func noticeCount(t *testing.T, body map[string]any) int {
	t.Helper()

	count, ok := body["count"].(float64)
	if !ok {
		t.Fatalf("response has no count: %v", body)
	}
	return int(count)
}
