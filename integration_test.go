package main

import (
	"net/http"
	"testing"

	"quillnote.app/cloud/handlers"
	"quillnote.app/cloud/internal/testutil"
	"quillnote.app/cloud/models"
)

// TestLicenseLifecycle walks the full path a paying user takes: checkout
// webhook issues a license, the app verifies it, notes sync up and down,
// the subscription lapses, and sync is locked out again.
func TestLicenseLifecycle(t *testing.T) {
	server, _, emails := testutil.NewTestServer(t)

	// 1. Checkout completes and issues a license.
	payload := testutil.WebhookPayload(t, "checkout.session.completed", map[string]interface{}{
		"id": "cs_lifecycle",
		"customer_details": map[string]interface{}{
			"email": "journey@example.com",
		},
		"customer": map[string]interface{}{"id": "cus_journey"},
	})
	w := testutil.PostWebhook(t, server, payload)
	if w.Code != http.StatusOK {
		t.Fatalf("Checkout webhook failed: %d %s", w.Code, w.Body.String())
	}
	if len(emails.Sent) != 1 {
		t.Fatalf("Expected license email, got %d", len(emails.Sent))
	}

	// 2. Requesting a license for the same email returns the same key.
	w = testutil.PostJSON(t, server, "/api/request-license", map[string]string{
		"email": "journey@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Request license failed: %d", w.Code)
	}
	var reqResp handlers.RequestLicenseResponse
	testutil.DecodeJSON(t, w, &reqResp)
	if reqResp.Created {
		t.Errorf("Expected created=false after checkout already issued the license")
	}
	key := reqResp.LicenseKey

	// 3. Verification succeeds.
	w = testutil.PostJSON(t, server, "/api/verify-license", map[string]string{
		"license_key": key,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Verify failed: %d", w.Code)
	}

	// 4. Notes sync up and back down.
	w = testutil.PostJSON(t, server, "/api/sync/upload", map[string]interface{}{
		"license_key": key,
		"data":        map[string]interface{}{"notes": []string{"remember the milk"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Upload failed: %d %s", w.Code, w.Body.String())
	}

	w = testutil.Get(t, server, "/api/sync/download/"+key)
	if w.Code != http.StatusOK {
		t.Fatalf("Download failed: %d", w.Code)
	}
	var down handlers.DownloadResponse
	testutil.DecodeJSON(t, w, &down)
	if down.Data == nil {
		t.Fatalf("Expected synced data back")
	}

	// 5. The subscription is cancelled.
	payload = testutil.WebhookPayload(t, "customer.subscription.deleted", map[string]interface{}{
		"id":       "sub_lifecycle",
		"customer": map[string]interface{}{"id": "cus_journey"},
	})
	w = testutil.PostWebhook(t, server, payload)
	if w.Code != http.StatusOK {
		t.Fatalf("Deletion webhook failed: %d", w.Code)
	}

	// 6. Verification and sync are now refused.
	w = testutil.PostJSON(t, server, "/api/verify-license", map[string]string{
		"license_key": key,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after cancellation, got %d", w.Code)
	}

	w = testutil.PostJSON(t, server, "/api/sync/upload", map[string]interface{}{
		"license_key": key,
		"data":        map[string]string{"notes": "locked out"},
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 after cancellation, got %d", w.Code)
	}

	// 7. A fresh license request reactivates the same key.
	w = testutil.PostJSON(t, server, "/api/request-license", map[string]string{
		"email": "journey@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Reactivation request failed: %d", w.Code)
	}
	var again handlers.RequestLicenseResponse
	testutil.DecodeJSON(t, w, &again)
	if again.LicenseKey != key {
		t.Errorf("Expected same key on reactivation, got %s", again.LicenseKey)
	}
	if again.Status != models.StatusActive {
		t.Errorf("Expected active status, got %s", again.Status)
	}

	// Previously synced data is still there.
	w = testutil.Get(t, server, "/api/sync/download/"+key)
	if w.Code != http.StatusOK {
		t.Fatalf("Download after reactivation failed: %d", w.Code)
	}
	testutil.DecodeJSON(t, w, &down)
	if down.Data == nil {
		t.Errorf("Expected data to survive deactivation")
	}
}
