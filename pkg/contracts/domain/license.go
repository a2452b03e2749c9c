// Package domain contains the core domain models for the licensing
// subsystem. These types serve as the single source of truth for the
// issuer service, the client validator, and the HTTP contracts layer.
package domain

import (
	"time"
)

// LicenseType is the enumerated entitlement tier.
type LicenseType string

const (
	LicenseTypeTrial      LicenseType = "trial"
	LicenseTypeStandard   LicenseType = "standard"
	LicenseTypePremium    LicenseType = "premium"
	LicenseTypeEnterprise LicenseType = "enterprise"
)

// Valid reports whether t is one of the known tiers.
func (t LicenseType) Valid() bool {
	switch t {
	case LicenseTypeTrial, LicenseTypeStandard, LicenseTypePremium, LicenseTypeEnterprise:
		return true
	}
	return false
}

// License is an issued entitlement record. A license is bound to exactly
// one machine, immutable once issued, and never physically deleted;
// revocation is a separate fact (RevocationEntry), not a mutation.
type License struct {
	LicenseKey  string      `json:"license_key" db:"license_key" validate:"required,min=10"`
	MachineID   string      `json:"machine_id" db:"machine_id" validate:"required"`
	LicenseType LicenseType `json:"license_type" db:"license_type" validate:"required"`
	IssuedAt    time.Time   `json:"issued_at" db:"issued_at"`
	ExpiresAt   time.Time   `json:"expires_at" db:"expires_at"`
	Features    []string    `json:"features" db:"features"`
	Signature   string      `json:"signature" db:"signature"`
}

// HasFeature reports whether the license grants the named feature flag.
func (l *License) HasFeature(feature string) bool {
	for _, f := range l.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// RevocationEntry is a fact stating a license is no longer honored.
// A license key appears at most once in the active revocation set;
// un-revocation is not modeled (reinstating requires a new license).
type RevocationEntry struct {
	LicenseKey string    `json:"license_key" db:"license_key"`
	RevokedAt  time.Time `json:"revoked_at" db:"revoked_at"`
	Reason     string    `json:"reason" db:"reason"`
	RevokedBy  string    `json:"revoked_by" db:"revoked_by"`
}

// ValidationCheck is one audit log line for a validation attempt.
// Append-only; never read by the validation decision path.
type ValidationCheck struct {
	LicenseKey string    `json:"license_key" db:"license_key"`
	MachineID  string    `json:"machine_id" db:"machine_id"`
	CheckedAt  time.Time `json:"checked_at" db:"checked_at"`
	Outcome    string    `json:"outcome" db:"outcome"`
}

// Reason codes shared by the issuer service and the client validator.
// The first four are authoritative denials and are never retried; the
// transient codes drive the client's degraded-mode fallback instead.
const (
	ReasonOK                 = "OK"
	ReasonInvalidSignature   = "INVALID_SIGNATURE"
	ReasonRevoked            = "REVOKED"
	ReasonExpired            = "EXPIRED"
	ReasonMachineMismatch    = "MACHINE_MISMATCH"
	ReasonLicenseNotFound    = "LICENSE_NOT_FOUND"
	ReasonStoreUnavailable   = "STORE_UNAVAILABLE"
	ReasonNetworkUnreachable = "NETWORK_UNREACHABLE"
	ReasonCacheCorrupt       = "CACHE_CORRUPT"
	ReasonNotValidated       = "NOT_VALIDATED"
	ReasonGraceExpired       = "GRACE_WINDOW_EXPIRED"
)

// AuthoritativeReason reports whether the reason is a final verdict from
// the issuer, as opposed to a transient condition the client may retry.
func AuthoritativeReason(reason string) bool {
	switch reason {
	case ReasonInvalidSignature, ReasonRevoked, ReasonExpired,
		ReasonMachineMismatch, ReasonLicenseNotFound:
		return true
	}
	return false
}

// VerdictResult is the outcome of a single issuer-side validation.
type VerdictResult struct {
	Valid       bool      `json:"valid"`
	Reason      string    `json:"reason,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
	LicenseData *License  `json:"license_data,omitempty"`
}

// LicenseStats is the read-only aggregate for operational dashboards.
type LicenseStats struct {
	Total            int `json:"total"`
	Active           int `json:"active"`
	Revoked          int `json:"revoked"`
	Expired          int `json:"expired"`
	ValidationChecks int `json:"validation_checks"`
}
