package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quillnote.app/cloud/models"
)

var (
	// ErrConflict is returned when an insert collides with an existing
	// license key or email.
	ErrConflict = errors.New("storage: conflict")

	// ErrNotFound is returned by mutations that require an existing row.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidLicense is returned when a user data write is attempted
	// against a license that is missing or not active.
	ErrInvalidLicense = errors.New("storage: license missing or inactive")

	// ErrUnavailable wraps timeouts and connection failures so callers can
	// tell a store outage apart from "row does not exist".
	ErrUnavailable = errors.New("storage: unavailable")
)

type Storage interface {
	FindLicenseByEmail(ctx context.Context, email string) (*models.License, error)
	FindLicenseByKey(ctx context.Context, key string) (*models.License, error)
	FindActiveLicenseByKey(ctx context.Context, key string) (*models.License, error)

	InsertLicense(ctx context.Context, license *models.License) error

	// FindOrCreateLicense atomically resolves a license request for email:
	// it inserts a new active license with the given key, or reactivates
	// and returns the existing one. The returned bool reports whether a
	// row was created. A key collision against a different email returns
	// ErrConflict.
	FindOrCreateLicense(ctx context.Context, email, key string) (*models.License, bool, error)

	Reactivate(ctx context.Context, email string) (*models.License, error)
	SetLicenseStatus(ctx context.Context, email, status string) (*models.License, error)

	SetStripeCustomerID(ctx context.Context, email, stripeCustomerID string) error
	FindEmailByStripeCustomer(ctx context.Context, stripeCustomerID string) (string, error)

	// UpsertUserData writes a content blob for (licenseKey, dataType),
	// last-write-wins. The active-license check happens inside the same
	// statement as the write, so a concurrent deactivation cannot slip a
	// blob in for a dead license.
	UpsertUserData(ctx context.Context, licenseKey, dataType string, content json.RawMessage) (time.Time, error)
	GetUserData(ctx context.Context, licenseKey, dataType string) (*models.UserData, error)

	// DeleteLicenseByEmail removes a license and its user data. Test and
	// administrative use only.
	DeleteLicenseByEmail(ctx context.Context, email string) error

	Ping(ctx context.Context) error
	Close() error
}
