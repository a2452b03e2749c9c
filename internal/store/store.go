// Package store owns the issuer's durable record of issued licenses,
// revocation facts, and the append-only validation audit log.
package store

import (
	"context"
	"errors"

	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

var (
	// ErrNotFound means the requested license key has no record.
	ErrNotFound = errors.New("store: license not found")

	// ErrUnavailable wraps infrastructure failures (database down,
	// disk errors). It is a transient condition, never an "invalid
	// license" verdict; callers must keep the two distinguishable.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the issuer's durable license record. Implementations must
// serialize racing writes to the revocation set so idempotent revoke
// never double-inserts.
type Store interface {
	// InsertLicense persists a newly issued license. Licenses are
	// immutable once inserted and never deleted.
	InsertLicense(ctx context.Context, lic *domain.License) error

	// GetLicense returns the license for the key, or ErrNotFound.
	GetLicense(ctx context.Context, licenseKey string) (*domain.License, error)

	// ActiveLicenseForMachine returns the newest non-revoked,
	// non-expired license bound to the machine, or ErrNotFound.
	ActiveLicenseForMachine(ctx context.Context, machineID string) (*domain.License, error)

	// InsertRevocation records a revocation fact. Re-revoking an
	// already-revoked key is a no-op; the returned entry always carries
	// the earliest revoked_at.
	InsertRevocation(ctx context.Context, entry domain.RevocationEntry) (*domain.RevocationEntry, error)

	// GetRevocation returns the active revocation for the key, or
	// ErrNotFound when the key is not revoked.
	GetRevocation(ctx context.Context, licenseKey string) (*domain.RevocationEntry, error)

	// ListRevocations returns the full current revocation set.
	ListRevocations(ctx context.Context) ([]domain.RevocationEntry, error)

	// AppendValidationCheck appends one audit row. The decision path
	// never reads this table.
	AppendValidationCheck(ctx context.Context, check domain.ValidationCheck) error

	// Stats returns the read-only aggregate counts.
	Stats(ctx context.Context) (*domain.LicenseStats, error)

	// Close releases the underlying resources.
	Close() error
}
