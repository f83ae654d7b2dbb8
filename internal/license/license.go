// Package license holds the key derivation and reconciliation rules for
// premium licenses. Keys are derived, not stored secrets: the same email
// always maps to the same key, so repeated requests are naturally
// idempotent.
package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"quillnote.app/cloud/models"
	"quillnote.app/cloud/storage"
)

var (
	ErrInvalidEmail = errors.New("license: invalid email address")

	// ErrGenerationConflict means a derived key already belongs to a
	// different email. With a 64-bit truncated digest this is
	// astronomically unlikely, but it must never overwrite another
	// user's license.
	ErrGenerationConflict = errors.New("license: key collision with another account")

	// ErrKeyTaken is returned by Activate when the supplied key is
	// already bound and active, or bound to a different email.
	ErrKeyTaken = errors.New("license: key already activated")
)

// Normalize trims and lower-cases an email so case variants of the same
// address share one identity.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Derive maps a normalized email to its license key: the SHA-256 digest of
// the lower-cased address, hex encoded, upper-cased, truncated to 16
// characters and grouped XXXX-XXXX-XXXX-XXXX. Pure function, stable across
// restarts.
func Derive(email string) string {
	sum := sha256.Sum256([]byte(Normalize(email)))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))[:16]

	return fmt.Sprintf("%s-%s-%s-%s", digest[0:4], digest[4:8], digest[8:12], digest[12:16])
}

// Result is the outcome of a license request.
type Result struct {
	LicenseKey string
	Status     string
	Created    bool
}

// Reconciler decides, per email, whether a license request creates a new
// license, reactivates a dormant one, or returns the existing one.
type Reconciler struct {
	Storage storage.Storage
}

func NewReconciler(store storage.Storage) *Reconciler {
	return &Reconciler{Storage: store}
}

// Request resolves a license for email. Calling it twice is safe: the
// second call returns the same key with Created=false. The storage layer's
// find-or-create is atomic, so concurrent requests for one email still
// produce a single row.
func (r *Reconciler) Request(ctx context.Context, email string) (*Result, error) {
	email = Normalize(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	key := Derive(email)

	lic, created, err := r.Storage.FindOrCreateLicense(ctx, email, key)
	if errors.Is(err, storage.ErrConflict) {
		return nil, ErrGenerationConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile license for %s: %w", email, err)
	}

	return &Result{
		LicenseKey: lic.Key,
		Status:     lic.Status,
		Created:    created,
	}, nil
}

// Activate links a caller-supplied key to an email. This is the manual
// path, distinct from derived-key generation: the key is taken as given.
func (r *Reconciler) Activate(ctx context.Context, key, email string) (*models.License, error) {
	email = Normalize(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	existing, err := r.Storage.FindLicenseByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.Email != email {
			return nil, ErrKeyTaken
		}
		if existing.Active() {
			return nil, ErrKeyTaken
		}
		return r.Storage.Reactivate(ctx, email)
	}

	now := time.Now().UTC()
	lic := &models.License{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Key:       key,
		Email:     email,
		Status:    models.StatusActive,
		PlanType:  models.PlanPremium,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.Storage.InsertLicense(ctx, lic); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrKeyTaken
		}
		return nil, err
	}

	return lic, nil
}
