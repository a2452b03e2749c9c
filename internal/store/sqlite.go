package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

// SQLiteStore implements Store on a local SQLite database. Each
// operation is a single statement, so SQLite's own write serialization
// is the only locking needed; the revocations primary key realizes the
// at-most-one-active-revocation invariant.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS licenses (
	license_key  TEXT PRIMARY KEY,
	machine_id   TEXT NOT NULL,
	license_type TEXT NOT NULL,
	issued_at    TIMESTAMP NOT NULL,
	expires_at   TIMESTAMP NOT NULL,
	features     TEXT NOT NULL,
	signature    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_licenses_machine_id ON licenses(machine_id);
CREATE INDEX IF NOT EXISTS idx_licenses_expires_at ON licenses(expires_at);

CREATE TABLE IF NOT EXISTS revocations (
	license_key TEXT PRIMARY KEY,
	revoked_at  TIMESTAMP NOT NULL,
	reason      TEXT NOT NULL,
	revoked_by  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS validation_checks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	license_key TEXT NOT NULL,
	machine_id  TEXT NOT NULL,
	checked_at  TIMESTAMP NOT NULL,
	outcome     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_checks_license_key ON validation_checks(license_key);
`

// OpenSQLite opens (creating if needed) the license database at dbPath.
// Use ":memory:" for tests.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InsertLicense persists a newly issued license.
func (s *SQLiteStore) InsertLicense(ctx context.Context, lic *domain.License) error {
	features, err := json.Marshal(lic.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO licenses (license_key, machine_id, license_type, issued_at, expires_at, features, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lic.LicenseKey, lic.MachineID, string(lic.LicenseType),
		lic.IssuedAt.UTC(), lic.ExpiresAt.UTC(), string(features), lic.Signature)
	if err != nil {
		return s.wrap("insert license", err)
	}
	return nil
}

// GetLicense returns the license for the key, or ErrNotFound.
func (s *SQLiteStore) GetLicense(ctx context.Context, licenseKey string) (*domain.License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT license_key, machine_id, license_type, issued_at, expires_at, features, signature
		 FROM licenses WHERE license_key = ?`, licenseKey)
	return scanLicense(row)
}

// ActiveLicenseForMachine returns the newest non-revoked, non-expired
// license bound to the machine, or ErrNotFound.
func (s *SQLiteStore) ActiveLicenseForMachine(ctx context.Context, machineID string) (*domain.License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT l.license_key, l.machine_id, l.license_type, l.issued_at, l.expires_at, l.features, l.signature
		 FROM licenses l
		 LEFT JOIN revocations r ON r.license_key = l.license_key
		 WHERE l.machine_id = ? AND r.license_key IS NULL AND l.expires_at > ?
		 ORDER BY l.issued_at DESC LIMIT 1`,
		machineID, time.Now().UTC())
	return scanLicense(row)
}

// InsertRevocation records a revocation fact idempotently. INSERT OR
// IGNORE rides the primary key so a racing double-revoke never inserts
// twice; the stored (earliest) entry is read back and returned.
func (s *SQLiteStore) InsertRevocation(ctx context.Context, entry domain.RevocationEntry) (*domain.RevocationEntry, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revocations (license_key, revoked_at, reason, revoked_by)
		 VALUES (?, ?, ?, ?)`,
		entry.LicenseKey, entry.RevokedAt.UTC(), entry.Reason, entry.RevokedBy)
	if err != nil {
		return nil, s.wrap("insert revocation", err)
	}
	return s.GetRevocation(ctx, entry.LicenseKey)
}

// GetRevocation returns the active revocation for the key, or ErrNotFound.
func (s *SQLiteStore) GetRevocation(ctx context.Context, licenseKey string) (*domain.RevocationEntry, error) {
	var entry domain.RevocationEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT license_key, revoked_at, reason, revoked_by FROM revocations WHERE license_key = ?`,
		licenseKey).Scan(&entry.LicenseKey, &entry.RevokedAt, &entry.Reason, &entry.RevokedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrap("get revocation", err)
	}
	entry.RevokedAt = entry.RevokedAt.UTC()
	return &entry, nil
}

// ListRevocations returns the full current revocation set ordered by key.
func (s *SQLiteStore) ListRevocations(ctx context.Context) ([]domain.RevocationEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT license_key, revoked_at, reason, revoked_by FROM revocations ORDER BY license_key`)
	if err != nil {
		return nil, s.wrap("list revocations", err)
	}
	defer rows.Close()

	var entries []domain.RevocationEntry
	for rows.Next() {
		var entry domain.RevocationEntry
		if err := rows.Scan(&entry.LicenseKey, &entry.RevokedAt, &entry.Reason, &entry.RevokedBy); err != nil {
			return nil, s.wrap("scan revocation", err)
		}
		entry.RevokedAt = entry.RevokedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list revocations", err)
	}
	return entries, nil
}

// AppendValidationCheck appends one audit row.
func (s *SQLiteStore) AppendValidationCheck(ctx context.Context, check domain.ValidationCheck) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_checks (license_key, machine_id, checked_at, outcome)
		 VALUES (?, ?, ?, ?)`,
		check.LicenseKey, check.MachineID, check.CheckedAt.UTC(), check.Outcome)
	if err != nil {
		return s.wrap("append validation check", err)
	}
	return nil
}

// Stats returns total/active/revoked/expired counts plus the size of
// the validation audit log.
func (s *SQLiteStore) Stats(ctx context.Context) (*domain.LicenseStats, error) {
	var stats domain.LicenseStats
	now := time.Now().UTC()

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM licenses),
			(SELECT COUNT(*) FROM licenses l
				LEFT JOIN revocations r ON r.license_key = l.license_key
				WHERE r.license_key IS NULL AND l.expires_at > ?),
			(SELECT COUNT(*) FROM revocations),
			(SELECT COUNT(*) FROM licenses l
				LEFT JOIN revocations r ON r.license_key = l.license_key
				WHERE r.license_key IS NULL AND l.expires_at <= ?),
			(SELECT COUNT(*) FROM validation_checks)`,
		now, now).Scan(&stats.Total, &stats.Active, &stats.Revoked, &stats.Expired, &stats.ValidationChecks)
	if err != nil {
		return nil, s.wrap("stats", err)
	}
	return &stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// wrap classifies a driver error as ErrUnavailable so callers can keep
// "could not check" distinct from "not licensed".
func (s *SQLiteStore) wrap(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*domain.License, error) {
	var lic domain.License
	var licenseType, features string

	err := row.Scan(&lic.LicenseKey, &lic.MachineID, &licenseType,
		&lic.IssuedAt, &lic.ExpiresAt, &features, &lic.Signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan license: %w: %v", ErrUnavailable, err)
	}

	lic.LicenseType = domain.LicenseType(licenseType)
	lic.IssuedAt = lic.IssuedAt.UTC()
	lic.ExpiresAt = lic.ExpiresAt.UTC()
	if err := json.Unmarshal([]byte(features), &lic.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return &lic, nil
}
