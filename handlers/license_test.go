package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"quillnote.app/cloud/handlers"
	"quillnote.app/cloud/internal/license"
	"quillnote.app/cloud/internal/testutil"
	"quillnote.app/cloud/models"
)

func TestRequestLicense_CreatesAndRepeats(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)

	w := testutil.PostJSON(t, server, "/api/request-license", map[string]string{
		"email": "fresh@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var first handlers.RequestLicenseResponse
	testutil.DecodeJSON(t, w, &first)

	if !first.Created {
		t.Errorf("Expected created=true on first request")
	}
	if first.Status != models.StatusActive {
		t.Errorf("Expected active status, got %s", first.Status)
	}
	if first.LicenseKey != license.Derive("fresh@example.com") {
		t.Errorf("Expected derived key, got %s", first.LicenseKey)
	}

	w = testutil.PostJSON(t, server, "/api/request-license", map[string]string{
		"email": "FRESH@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var second handlers.RequestLicenseResponse
	testutil.DecodeJSON(t, w, &second)

	if second.Created {
		t.Errorf("Expected created=false on repeat request")
	}
	if second.LicenseKey != first.LicenseKey {
		t.Errorf("Expected same key, got %s and %s", first.LicenseKey, second.LicenseKey)
	}
}

func TestRequestLicense_InvalidEmail(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)

	for _, email := range []string{"", "not-an-email", "half@"} {
		w := testutil.PostJSON(t, server, "/api/request-license", map[string]string{
			"email": email,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %q, got %d", email, w.Code)
		}
	}
}

func TestRequestLicense_EmptyBody(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)

	w := testutil.PostJSON(t, server, "/api/request-license", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty body, got %d", w.Code)
	}
}

func TestVerifyLicense_Active(t *testing.T) {
	server, store, _ := testutil.NewTestServer(t)
	key := testutil.SeedLicense(t, store, "verified@example.com", models.StatusActive)

	w := testutil.PostJSON(t, server, "/api/verify-license", map[string]string{
		"license_key": key,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp handlers.VerifyLicenseResponse
	testutil.DecodeJSON(t, w, &resp)

	if !resp.Valid {
		t.Errorf("Expected valid license")
	}
	if resp.User == nil || resp.User.Email != "verified@example.com" {
		t.Errorf("Expected user email, got %+v", resp.User)
	}
	if resp.User != nil && resp.User.PlanType != models.PlanPremium {
		t.Errorf("Expected premium plan, got %s", resp.User.PlanType)
	}
}

func TestVerifyLicense_UnknownOrInactive(t *testing.T) {
	server, store, _ := testutil.NewTestServer(t)
	inactiveKey := testutil.SeedLicense(t, store, "dormant@example.com", models.StatusInactive)

	for _, key := range []string{"AAAA-BBBB-CCCC-DDDD", inactiveKey} {
		w := testutil.PostJSON(t, server, "/api/verify-license", map[string]string{
			"license_key": key,
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for %s, got %d", key, w.Code)
			continue
		}

		var resp handlers.VerifyLicenseResponse
		testutil.DecodeJSON(t, w, &resp)
		if resp.Valid {
			t.Errorf("Expected valid=false for %s", key)
		}
	}
}

func TestActivateLicense_Flow(t *testing.T) {
	server, store, _ := testutil.NewTestServer(t)

	w := testutil.PostJSON(t, server, "/api/activate-license", map[string]string{
		"license_key": "G1FT-G1FT-G1FT-G1FT",
		"email":       "gifted@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// Activating someone else's key conflicts.
	w = testutil.PostJSON(t, server, "/api/activate-license", map[string]string{
		"license_key": "G1FT-G1FT-G1FT-G1FT",
		"email":       "thief@example.com",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for foreign activation, got %d", w.Code)
	}

	// Re-activating an already active key conflicts too.
	w = testutil.PostJSON(t, server, "/api/activate-license", map[string]string{
		"license_key": "G1FT-G1FT-G1FT-G1FT",
		"email":       "gifted@example.com",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for repeat activation, got %d", w.Code)
	}

	// After deactivation the owner can re-activate.
	if _, err := store.SetLicenseStatus(context.Background(), "gifted@example.com", models.StatusInactive); err != nil {
		t.Fatalf("Failed to deactivate: %v", err)
	}
	w = testutil.PostJSON(t, server, "/api/activate-license", map[string]string{
		"license_key": "G1FT-G1FT-G1FT-G1FT",
		"email":       "gifted@example.com",
	})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for owner reactivation, got %d", w.Code)
	}
}

func TestDeleteLicense_RemovesRow(t *testing.T) {
	server, store, _ := testutil.NewTestServer(t)
	key := testutil.SeedLicense(t, store, "reset@example.com", models.StatusActive)

	w := testutil.DeleteJSON(t, server, "/api/admin/license", map[string]string{
		"email": "reset@example.com",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}

	w = testutil.PostJSON(t, server, "/api/verify-license", map[string]string{
		"license_key": key,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after reset, got %d", w.Code)
	}
}

func TestHealth_ReflectsReadiness(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)

	w := testutil.Get(t, server, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp handlers.HealthResponse
	testutil.DecodeJSON(t, w, &resp)
	if !resp.Ready || resp.Status != "healthy" {
		t.Errorf("Expected ready healthy response, got %+v", resp)
	}

	server.Ready.Store(false)
	w = testutil.Get(t, server, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when not ready, got %d", w.Code)
	}
}
