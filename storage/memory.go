package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"quillnote.app/cloud/models"
)

// MemoryStorage is the in-memory implementation used by tests and local
// development. All methods take the mutex, so the atomicity guarantees
// match the SQLite implementation.
type MemoryStorage struct {
	mu       sync.Mutex
	licenses map[string]models.License // keyed by normalized email
	userData map[string]models.UserData
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		licenses: make(map[string]models.License),
		userData: make(map[string]models.UserData),
	}
}

func userDataKey(licenseKey, dataType string) string {
	return licenseKey + "\x00" + dataType
}

func (m *MemoryStorage) FindLicenseByEmail(ctx context.Context, email string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[email]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (m *MemoryStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByKeyLocked(key), nil
}

func (m *MemoryStorage) findByKeyLocked(key string) *models.License {
	for _, license := range m.licenses {
		if license.Key == key {
			licenseCopy := license
			return &licenseCopy
		}
	}
	return nil
}

func (m *MemoryStorage) FindActiveLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	license := m.findByKeyLocked(key)
	if license == nil || !license.Active() {
		return nil, nil
	}
	return license, nil
}

func (m *MemoryStorage) InsertLicense(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.licenses[license.Email]; exists {
		return fmt.Errorf("%w: license key or email already exists", ErrConflict)
	}
	if existing := m.findByKeyLocked(license.Key); existing != nil {
		return fmt.Errorf("%w: license key or email already exists", ErrConflict)
	}

	m.licenses[license.Email] = *license
	return nil
}

func (m *MemoryStorage) FindOrCreateLicense(ctx context.Context, email, key string) (*models.License, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	if license, exists := m.licenses[email]; exists {
		if !license.Active() {
			license.Status = models.StatusActive
			license.UpdatedAt = now
			m.licenses[email] = license
		}
		return &license, false, nil
	}

	if existing := m.findByKeyLocked(key); existing != nil {
		return nil, false, fmt.Errorf("%w: key %s already bound to another email", ErrConflict, key)
	}

	license := models.License{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Key:       key,
		Email:     email,
		Status:    models.StatusActive,
		PlanType:  models.PlanPremium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.licenses[email] = license

	return &license, true, nil
}

func (m *MemoryStorage) Reactivate(ctx context.Context, email string) (*models.License, error) {
	return m.SetLicenseStatus(ctx, email, models.StatusActive)
}

func (m *MemoryStorage) SetLicenseStatus(ctx context.Context, email, status string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[email]
	if !exists {
		return nil, fmt.Errorf("%w: no license for %s", ErrNotFound, email)
	}

	license.Status = status
	license.UpdatedAt = time.Now().UTC()
	m.licenses[email] = license

	return &license, nil
}

func (m *MemoryStorage) SetStripeCustomerID(ctx context.Context, email, stripeCustomerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[email]
	if !exists {
		return fmt.Errorf("%w: no license for %s", ErrNotFound, email)
	}

	license.StripeCustomerID = stripeCustomerID
	license.UpdatedAt = time.Now().UTC()
	m.licenses[email] = license

	return nil
}

func (m *MemoryStorage) FindEmailByStripeCustomer(ctx context.Context, stripeCustomerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stripeCustomerID == "" {
		return "", fmt.Errorf("%w: empty stripe customer id", ErrNotFound)
	}

	for _, license := range m.licenses {
		if license.StripeCustomerID == stripeCustomerID {
			return license.Email, nil
		}
	}
	return "", fmt.Errorf("%w: no license for stripe customer %s", ErrNotFound, stripeCustomerID)
}

func (m *MemoryStorage) UpsertUserData(ctx context.Context, licenseKey, dataType string, content json.RawMessage) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	license := m.findByKeyLocked(licenseKey)
	if license == nil || !license.Active() {
		return time.Time{}, ErrInvalidLicense
	}

	now := time.Now().UTC()
	k := userDataKey(licenseKey, dataType)

	data, exists := m.userData[k]
	if !exists {
		data = models.UserData{
			LicenseKey: licenseKey,
			DataType:   dataType,
			CreatedAt:  now,
		}
	}
	data.Content = append(json.RawMessage(nil), content...)
	data.UpdatedAt = now
	m.userData[k] = data

	return now, nil
}

func (m *MemoryStorage) GetUserData(ctx context.Context, licenseKey, dataType string) (*models.UserData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.userData[userDataKey(licenseKey, dataType)]
	if !exists {
		return nil, nil
	}
	return &data, nil
}

func (m *MemoryStorage) DeleteLicenseByEmail(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[email]
	if !exists {
		return nil
	}

	delete(m.licenses, email)
	for k, data := range m.userData {
		if data.LicenseKey == license.Key {
			delete(m.userData, k)
		}
	}
	return nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
