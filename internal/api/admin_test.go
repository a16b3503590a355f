package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestAdmin_BootstrapOnce(t *testing.T) {
	ts, _, _ := newTestServer(t)

	creds := map[string]string{"name": "admin", "password": testPassword}

	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/admin", "", creds)
	if status != http.StatusCreated {
		t.Fatalf("bootstrap returned %d: %v", status, body)
	}
	id, _ := body["id"].(string) //nolint:errcheck // checked below
	if !strings.HasPrefix(id, "adm-") {
		t.Errorf("admin ID should have adm- prefix, got %q", id)
	}

	// A second bootstrap is rejected once an admin exists.
	status, body = doJSON(t, ts, http.MethodPost, "/api/v1/admin", "", map[string]string{
		"name": "intruder", "password": "some-password",
	})
	if status != http.StatusConflict {
		t.Fatalf("second bootstrap returned %d, want 409: %v", status, body)
	}
	if code := errorCode(t, body); code != ErrCodeConflict {
		t.Errorf("error code = %q, want %q", code, ErrCodeConflict)
	}
}

func TestAdmin_Login_Unknown(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/admin/login", "", map[string]string{
		"name": "nobody", "password": testPassword,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("admin login returned %d, want 401: %v", status, body)
	}
}

func TestAdmin_Replace(t *testing.T) {
	ts, _, _ := newTestServer(t)

	oldToken := bootstrapAdmin(t, ts)

	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/admin/replace", oldToken, map[string]string{
		"name": "successor", "password": "successor-password",
	})
	if status != http.StatusOK {
		t.Fatalf("replace returned %d: %v", status, body)
	}
	if body["name"] != "successor" {
		t.Errorf("replacement name = %v, want successor", body["name"])
	}

	// The old admin's session dies with the row.
	status, _ = doJSON(t, ts, http.MethodGet, "/api/v1/auth/me", oldToken, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("old admin token returned %d, want 401", status)
	}

	// The old credentials are gone, the new ones work.
	status, _ = doJSON(t, ts, http.MethodPost, "/api/v1/admin/login", "", map[string]string{
		"name": "admin", "password": testPassword,
	})
	if status != http.StatusUnauthorized {
		t.Errorf("old admin login returned %d, want 401", status)
	}
	status, _ = doJSON(t, ts, http.MethodPost, "/api/v1/admin/login", "", map[string]string{
		"name": "successor", "password": "successor-password",
	})
	if status != http.StatusOK {
		t.Errorf("new admin login returned %d, want 200", status)
	}
}

func TestAdmin_EmployeeCRUD(t *testing.T) {
	ts, _, _ := newTestServer(t)

	adminToken := bootstrapAdmin(t, ts)

	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/admin/employees", adminToken, map[string]string{
		"full_name": "John Smith",
		"email":     "jsmith@example.com",
	})
	if status != http.StatusCreated {
		t.Fatalf("create employee returned %d: %v", status, body)
	}
	id, _ := body["id"].(string) //nolint:errcheck // checked below
	if !strings.HasPrefix(id, "emp-") {
		t.Errorf("employee ID should have emp- prefix, got %q", id)
	}

	// Duplicate email on the roster is rejected.
	status, body = doJSON(t, ts, http.MethodPost, "/api/v1/admin/employees", adminToken, map[string]string{
		"full_name": "Jane Smith",
		"email":     "jsmith@example.com",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate employee returned %d, want 409: %v", status, body)
	}

	status, body = doJSON(t, ts, http.MethodGet, "/api/v1/admin/employees", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list employees returned %d: %v", status, body)
	}
	if body["count"] != float64(1) {
		t.Errorf("employee count = %v, want 1", body["count"])
	}

	status, body = doJSON(t, ts, http.MethodGet, "/api/v1/admin/employees/"+id, adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("get employee returned %d: %v", status, body)
	}
	if body["email"] != "jsmith@example.com" {
		t.Errorf("employee email = %v, want jsmith@example.com", body["email"])
	}

	status, body = doJSON(t, ts, http.MethodDelete, "/api/v1/admin/employees/"+id, adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("delete employee returned %d: %v", status, body)
	}

	status, _ = doJSON(t, ts, http.MethodGet, "/api/v1/admin/employees/"+id, adminToken, nil)
	if status != http.StatusNotFound {
		t.Errorf("get deleted employee returned %d, want 404", status)
	}
}

func TestAdmin_CreateEmployee_Validation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	adminToken := bootstrapAdmin(t, ts)

	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/admin/employees", adminToken, map[string]string{
		"full_name": "No Email",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("create without email returned %d, want 400: %v", status, body)
	}
	if code := errorCode(t, body); code != ErrCodeValidation {
		t.Errorf("error code = %q, want %q", code, ErrCodeValidation)
	}

	status, body = doJSON(t, ts, http.MethodPost, "/api/v1/admin/employees", adminToken, map[string]string{
		"full_name": "Bad Email",
		"email":     "not-an-email",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("create with bad email returned %d, want 400: %v", status, body)
	}
}

func TestAdmin_RoutesRejectEmployees(t *testing.T) {
	ts, _, db := newTestServer(t)

	bootstrapAdmin(t, ts)
	userToken := registerUser(t, ts, db, "jsmith", "jsmith@example.com")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/admin/employees"},
		{http.MethodPost, "/api/v1/admin/replace"},
		{http.MethodGet, "/api/v1/admin/audit"},
	}
	for _, p := range paths {
		status, _ := doJSON(t, ts, p.method, p.path, userToken, map[string]string{})
		if status != http.StatusForbidden {
			t.Errorf("%s %s with employee token returned %d, want 403", p.method, p.path, status)
		}
	}
}

func TestAdmin_AuditTrail(t *testing.T) {
	ts, _, db := newTestServer(t)

	adminToken := bootstrapAdmin(t, ts)
	registerUser(t, ts, db, "jsmith", "jsmith@example.com")
	createNotice(t, ts, adminToken, "Audited notice", "")

	status, body := doJSON(t, ts, http.MethodGet, "/api/v1/admin/audit", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("audit list returned %d: %v", status, body)
	}
	total, _ := body["total"].(float64) //nolint:errcheck // zero on miss fails the check
	if total < 3 {
		// At least: admin create, user register, user login, notice create.
		t.Errorf("audit total = %v, want at least 3 entries", body["total"])
	}

	status, body = doJSON(t, ts, http.MethodGet, "/api/v1/admin/audit?entity_type=notice&action=create", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("filtered audit list returned %d: %v", status, body)
	}
	if body["total"] != float64(1) {
		t.Errorf("filtered audit total = %v, want 1", body["total"])
	}

	status, body = doJSON(t, ts, http.MethodGet, "/api/v1/admin/audit?limit=abc", adminToken, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("audit with bad limit returned %d, want 400: %v", status, body)
	}
}
