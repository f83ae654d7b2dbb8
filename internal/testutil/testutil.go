package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/atomic"

	"quillnote.app/cloud/handlers"
	"quillnote.app/cloud/internal/license"
	"quillnote.app/cloud/models"
	"quillnote.app/cloud/storage"
)

// SentEmail records one call to the server's email collaborator.
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// EmailRecorder stands in for SMTP delivery in tests.
type EmailRecorder struct {
	mu   sync.Mutex
	Sent []SentEmail
}

func (e *EmailRecorder) Send(to, subject, body string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Sent = append(e.Sent, SentEmail{To: to, Subject: subject, Body: body})
	return nil
}

// NewTestServer builds a server over in-memory storage with webhook
// signature verification stubbed to a pass-through JSON parse and email
// delivery captured in the returned recorder.
func NewTestServer(t *testing.T) (*handlers.Server, *storage.MemoryStorage, *EmailRecorder) {
	t.Helper()

	store := storage.NewMemoryStorage()
	server := handlers.NewServer(store, atomic.NewBool(true), handlers.Options{
		AllowedOrigins: []string{"*"},
		WebhookSecret:  "whsec_test",
		AdminReset:     true,
		Version:        "test",
	})

	server.VerifyWebhook = func(payload []byte, sigHeader string) (stripe.Event, error) {
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, err
		}
		return event, nil
	}

	recorder := &EmailRecorder{}
	server.SendEmail = recorder.Send

	return server, store, recorder
}

// SeedLicense inserts a license for email with the given status and
// returns its derived key.
func SeedLicense(t *testing.T, store storage.Storage, email, status string) string {
	t.Helper()

	normalized := license.Normalize(email)
	key := license.Derive(normalized)

	lic, _, err := store.FindOrCreateLicense(context.Background(), normalized, key)
	if err != nil {
		t.Fatalf("Failed to seed license for %s: %v", email, err)
	}
	if status != models.StatusActive {
		if _, err := store.SetLicenseStatus(context.Background(), normalized, status); err != nil {
			t.Fatalf("Failed to set seeded license status: %v", err)
		}
	}

	return lic.Key
}

// PostJSON sends body to path through the server's full router, so
// middleware runs too.
func PostJSON(t *testing.T, server *handlers.Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	req := httptest.NewRequest("POST", path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// DeleteJSON sends a DELETE with a JSON body through the server's router.
func DeleteJSON(t *testing.T, server *handlers.Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	req := httptest.NewRequest("DELETE", path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// Get sends a GET request through the server's router.
func Get(t *testing.T, server *handlers.Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// PostWebhook delivers a webhook payload with a signature header through
// the server's router.
func PostWebhook(t *testing.T, server *handlers.Server, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/webhooks/stripe", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "test-signature")

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// DecodeJSON decodes a response body or fails the test.
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// WebhookPayload builds a provider event envelope the pass-through
// verifier can parse.
func WebhookPayload(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_test123",
		"type": eventType,
		"data": map[string]interface{}{
			"object": object,
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal webhook payload: %v", err)
	}
	return payload
}
