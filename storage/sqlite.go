package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"quillnote.app/cloud/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultTimeout bounds every store call so a wedged database surfaces as
// ErrUnavailable instead of a hung request.
const DefaultTimeout = 5 * time.Second

type SQLiteStorage struct {
	db      *sql.DB
	path    string
	timeout time.Duration
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{
		db:      db,
		path:    path,
		timeout: DefaultTimeout,
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("failed to build migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *SQLiteStorage) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// wrapErr maps low-level failures onto the storage error taxonomy. A
// deadline or bad connection must never look like a missing row.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

const licenseColumns = `id, key, email, status, plan_type, stripe_customer_id, created_at, updated_at`

func scanLicense(row *sql.Row) (*models.License, error) {
	var license models.License
	err := row.Scan(
		&license.ID,
		&license.Key,
		&license.Email,
		&license.Status,
		&license.PlanType,
		&license.StripeCustomerID,
		&license.CreatedAt,
		&license.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	return &license, nil
}

func (s *SQLiteStorage) FindLicenseByEmail(ctx context.Context, email string) (*models.License, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE email = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, key))
}

func (s *SQLiteStorage) FindActiveLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = ? AND status = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, key, models.StatusActive))
}

func (s *SQLiteStorage) InsertLicense(ctx context.Context, license *models.License) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := `INSERT INTO licenses (id, key, email, status, plan_type, stripe_customer_id, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		license.ID,
		license.Key,
		license.Email,
		license.Status,
		license.PlanType,
		license.StripeCustomerID,
		license.CreatedAt,
		license.UpdatedAt,
	)

	if isUniqueViolation(err) {
		return fmt.Errorf("%w: license key or email already exists", ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert license: %w", wrapErr(err))
	}

	return nil
}

func (s *SQLiteStorage) FindOrCreateLicense(ctx context.Context, email, key string) (*models.License, bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	// Insert races resolve on the unique email constraint. A unique
	// violation here can only be the key colliding with a different
	// email's license.
	insert := `INSERT INTO licenses (id, key, email, status, plan_type, stripe_customer_id, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, '', ?, ?)
	           ON CONFLICT(email) DO NOTHING`

	res, err := tx.ExecContext(ctx, insert,
		uuid.Must(uuid.NewRandom()).String(),
		key,
		email,
		models.StatusActive,
		models.PlanPremium,
		now,
		now,
	)
	if isUniqueViolation(err) {
		return nil, false, fmt.Errorf("%w: key %s already bound to another email", ErrConflict, key)
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, wrapErr(err)
	}

	if inserted == 0 {
		reactivate := `UPDATE licenses SET status = ?, updated_at = ? WHERE email = ? AND status != ?`
		if _, err := tx.ExecContext(ctx, reactivate, models.StatusActive, now, email, models.StatusActive); err != nil {
			return nil, false, wrapErr(err)
		}
	}

	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE email = ?`
	license, err := scanLicense(tx.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, false, err
	}
	if license == nil {
		return nil, false, fmt.Errorf("license for %s vanished mid-transaction", email)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, wrapErr(err)
	}

	return license, inserted > 0, nil
}

func (s *SQLiteStorage) Reactivate(ctx context.Context, email string) (*models.License, error) {
	return s.SetLicenseStatus(ctx, email, models.StatusActive)
}

func (s *SQLiteStorage) SetLicenseStatus(ctx context.Context, email, status string) (*models.License, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := `UPDATE licenses SET status = ?, updated_at = ? WHERE email = ?`
	res, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), email)
	if err != nil {
		return nil, wrapErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, wrapErr(err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: no license for %s", ErrNotFound, email)
	}

	return s.FindLicenseByEmail(ctx, email)
}

func (s *SQLiteStorage) SetStripeCustomerID(ctx context.Context, email, stripeCustomerID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := `UPDATE licenses SET stripe_customer_id = ?, updated_at = ? WHERE email = ?`
	res, err := s.db.ExecContext(ctx, query, stripeCustomerID, time.Now().UTC(), email)
	if err != nil {
		return wrapErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: no license for %s", ErrNotFound, email)
	}

	return nil
}

func (s *SQLiteStorage) FindEmailByStripeCustomer(ctx context.Context, stripeCustomerID string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var email string
	query := `SELECT email FROM licenses WHERE stripe_customer_id = ? AND stripe_customer_id != ''`
	err := s.db.QueryRowContext(ctx, query, stripeCustomerID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: no license for stripe customer %s", ErrNotFound, stripeCustomerID)
	}
	if err != nil {
		return "", wrapErr(err)
	}

	return email, nil
}

func (s *SQLiteStorage) UpsertUserData(ctx context.Context, licenseKey, dataType string, content json.RawMessage) (time.Time, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()

	// The source SELECT only yields a row when the license is active, so
	// the validity check and the write commit together.
	query := `INSERT INTO user_data (license_key, data_type, content, created_at, updated_at)
	          SELECT ?, ?, ?, ?, ?
	          WHERE EXISTS (SELECT 1 FROM licenses WHERE key = ? AND status = ?)
	          ON CONFLICT(license_key, data_type) DO UPDATE SET
	              content = excluded.content,
	              updated_at = excluded.updated_at`

	res, err := s.db.ExecContext(ctx, query,
		licenseKey, dataType, string(content), now, now,
		licenseKey, models.StatusActive,
	)
	if err != nil {
		return time.Time{}, wrapErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, wrapErr(err)
	}
	if affected == 0 {
		return time.Time{}, ErrInvalidLicense
	}

	return now, nil
}

func (s *SQLiteStorage) GetUserData(ctx context.Context, licenseKey, dataType string) (*models.UserData, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var data models.UserData
	var content string
	query := `SELECT license_key, data_type, content, created_at, updated_at FROM user_data WHERE license_key = ? AND data_type = ?`
	err := s.db.QueryRowContext(ctx, query, licenseKey, dataType).Scan(
		&data.LicenseKey,
		&data.DataType,
		&content,
		&data.CreatedAt,
		&data.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	data.Content = json.RawMessage(content)
	return &data, nil
}

func (s *SQLiteStorage) DeleteLicenseByEmail(ctx context.Context, email string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	// user_data rows go with the license via ON DELETE CASCADE.
	_, err := s.db.ExecContext(ctx, `DELETE FROM licenses WHERE email = ?`, email)
	return wrapErr(err)
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return wrapErr(s.db.PingContext(ctx))
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
