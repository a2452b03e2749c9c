// Package api contains the HTTP contract definitions for the licensing
// subsystem. Version v1 represents the current stable API version.
package api

import (
	"time"

	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

// Requests

// ValidateRequest is the POST /validate payload.
type ValidateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=10"`
	MachineID  string `json:"machine_id" validate:"required"`
}

// GenerateRequest is the POST /generate payload. Replace controls the
// duplicate-machine policy: without it an active license for the same
// machine fails the request; with it the prior license is revoked with
// reason "superseded" before the new one is issued.
type GenerateRequest struct {
	MachineID   string             `json:"machine_id" validate:"required"`
	LicenseType domain.LicenseType `json:"license_type" validate:"required,oneof=trial standard premium enterprise"`
	DaysValid   int                `json:"days_valid" validate:"required,min=1,max=3650"`
	Features    []string           `json:"features" validate:"omitempty,dive,min=1"`
	Replace     bool               `json:"replace,omitempty"`
}

// RevokeRequest is the POST /revoke payload.
type RevokeRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=10"`
	Reason     string `json:"reason" validate:"required"`
	RevokedBy  string `json:"revoked_by" validate:"required"`
}

// Responses

// ValidateResponse is the POST /validate response body.
type ValidateResponse struct {
	Valid       bool            `json:"valid"`
	Message     string          `json:"message"`
	Reason      string          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	LicenseData *domain.License `json:"license_data,omitempty"`
}

// RevokeResponse is the POST /revoke response body. RevokedAt is the
// original revocation time even when the call was an idempotent repeat.
type RevokeResponse struct {
	Success   bool      `json:"success"`
	RevokedAt time.Time `json:"revoked_at"`
}

// RevocationListResponse is the GET /revocation-list response body.
// Signature covers the full key list plus the as-of timestamp so a
// tampered or partial list is rejected as a whole.
type RevocationListResponse struct {
	RevokedLicenses []string  `json:"revoked_licenses"`
	Count           int       `json:"count"`
	Timestamp       time.Time `json:"timestamp"`
	Signature       string    `json:"signature"`
}

// HealthResponse is the GET /health response body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
