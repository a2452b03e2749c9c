// Package issuer implements the issuer-side license operations:
// generate, validate, revoke, revocation-list, and stats. The service
// is stateless per request; all state lives in the store.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/NevessSt/Trading-bots-sub000/internal/infrastructure"
	"github.com/NevessSt/Trading-bots-sub000/internal/license"
	"github.com/NevessSt/Trading-bots-sub000/internal/store"
	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

// ErrDuplicateMachineLicense is returned by Generate when an active
// license already exists for the machine and replace was not requested.
var ErrDuplicateMachineLicense = errors.New("issuer: active license already exists for machine")

// SupersededReason is the revocation reason recorded when Generate
// replaces a machine's prior license.
const SupersededReason = "superseded"

// Service is the only writer to the license store.
type Service struct {
	store   store.Store
	signer  *license.Signer
	logger  *slog.Logger
	metrics *infrastructure.LicenseMetrics

	now func() time.Time
}

// NewService creates the issuer service. metrics may be nil.
func NewService(st store.Store, signer *license.Signer, logger *slog.Logger, metrics *infrastructure.LicenseMetrics) *Service {
	return &Service{
		store:   st,
		signer:  signer,
		logger:  infrastructure.WithComponent(logger, "issuer_service"),
		metrics: metrics,
		now:     time.Now,
	}
}

// GenerateParams are the inputs to Generate.
type GenerateParams struct {
	MachineID   string
	LicenseType domain.LicenseType
	DaysValid   int
	Features    []string
	// Replace revokes any active license for the machine (reason
	// "superseded") instead of failing with ErrDuplicateMachineLicense.
	Replace bool
}

// Generate creates and signs a new license. The duplicate-machine
// policy is explicit: an existing active license fails the call unless
// Replace is set, in which case it is revoked first.
func (s *Service) Generate(ctx context.Context, p GenerateParams) (*domain.License, error) {
	if !p.LicenseType.Valid() {
		return nil, fmt.Errorf("issuer: unknown license type %q", p.LicenseType)
	}
	if p.DaysValid <= 0 {
		return nil, fmt.Errorf("issuer: days_valid must be positive, got %d", p.DaysValid)
	}

	existing, err := s.store.ActiveLicenseForMachine(ctx, p.MachineID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if !p.Replace {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMachineLicense, existing.LicenseKey)
		}
		if _, err := s.Revoke(ctx, existing.LicenseKey, SupersededReason, "issuer"); err != nil {
			return nil, fmt.Errorf("issuer: failed to revoke superseded license: %w", err)
		}
	}

	now := s.now().UTC().Truncate(time.Second)
	lic := &domain.License{
		LicenseKey:  license.NewLicenseKey(),
		MachineID:   p.MachineID,
		LicenseType: p.LicenseType,
		IssuedAt:    now,
		ExpiresAt:   now.AddDate(0, 0, p.DaysValid),
		Features:    append([]string(nil), p.Features...),
	}
	lic.Signature = s.signer.Sign(lic)

	if err := s.store.InsertLicense(ctx, lic); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LicensesGenerated.Add(ctx, 1,
			metric.WithAttributes(attribute.String("license_type", string(lic.LicenseType))))
	}

	s.logger.InfoContext(ctx, "license generated",
		slog.String("license_key", lic.LicenseKey),
		slog.String("machine_id", p.MachineID),
		slog.String("license_type", string(p.LicenseType)),
		slog.Time("expires_at", lic.ExpiresAt),
		slog.Bool("replaced_existing", existing != nil))

	return lic, nil
}

// Validate runs the ordered decision checks: signature, revocation,
// expiry, machine binding. The first failing check determines the
// reason, so a revoked-and-expired license reports REVOKED. Every call
// appends one audit row regardless of outcome. The returned error is
// non-nil only for store unavailability; a denial is a verdict, not an
// error.
func (s *Service) Validate(ctx context.Context, licenseKey, machineID string) (*domain.VerdictResult, error) {
	start := s.now()

	verdict, err := s.decide(ctx, licenseKey, machineID)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, licenseKey, machineID, verdict)
	s.recordValidation(ctx, verdict, s.now().Sub(start))

	return verdict, nil
}

func (s *Service) decide(ctx context.Context, licenseKey, machineID string) (*domain.VerdictResult, error) {
	checkedAt := s.now().UTC()

	lic, err := s.store.GetLicense(ctx, licenseKey)
	if errors.Is(err, store.ErrNotFound) {
		return deny(domain.ReasonLicenseNotFound, checkedAt), nil
	}
	if err != nil {
		return nil, err
	}

	if !s.signer.Verify(lic, lic.Signature) {
		return deny(domain.ReasonInvalidSignature, checkedAt), nil
	}

	if _, err := s.store.GetRevocation(ctx, licenseKey); err == nil {
		return deny(domain.ReasonRevoked, checkedAt), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if !checkedAt.Before(lic.ExpiresAt) {
		return deny(domain.ReasonExpired, checkedAt), nil
	}

	if lic.MachineID != machineID {
		return deny(domain.ReasonMachineMismatch, checkedAt), nil
	}

	return &domain.VerdictResult{
		Valid:       true,
		Reason:      domain.ReasonOK,
		CheckedAt:   checkedAt,
		LicenseData: lic,
	}, nil
}

// Revoke records a revocation fact. Idempotent: re-revoking succeeds
// and returns the entry with the original revoked_at.
func (s *Service) Revoke(ctx context.Context, licenseKey, reason, revokedBy string) (*domain.RevocationEntry, error) {
	if _, err := s.store.GetLicense(ctx, licenseKey); err != nil {
		return nil, err
	}

	entry, err := s.store.InsertRevocation(ctx, domain.RevocationEntry{
		LicenseKey: licenseKey,
		RevokedAt:  s.now().UTC().Truncate(time.Second),
		Reason:     reason,
		RevokedBy:  revokedBy,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LicensesRevoked.Add(ctx, 1)
	}

	s.logger.InfoContext(ctx, "license revoked",
		slog.String("license_key", licenseKey),
		slog.String("reason", entry.Reason),
		slog.String("revoked_by", entry.RevokedBy),
		slog.Time("revoked_at", entry.RevokedAt))

	return entry, nil
}

// RevocationList returns the full current snapshot of revoked keys,
// signed as a whole together with the as-of timestamp.
func (s *Service) RevocationList(ctx context.Context) (keys []string, asOf time.Time, signature string, err error) {
	entries, err := s.store.ListRevocations(ctx)
	if err != nil {
		return nil, time.Time{}, "", err
	}

	keys = make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.LicenseKey)
	}

	asOf = s.now().UTC().Truncate(time.Second)
	return keys, asOf, s.signer.SignList(keys, asOf), nil
}

// Stats returns the read-only aggregate counts. Off the decision path.
func (s *Service) Stats(ctx context.Context) (*domain.LicenseStats, error) {
	return s.store.Stats(ctx)
}

func deny(reason string, checkedAt time.Time) *domain.VerdictResult {
	return &domain.VerdictResult{
		Valid:     false,
		Reason:    reason,
		CheckedAt: checkedAt,
	}
}

// appendAudit writes the validation check row. Audit failures are
// logged, never propagated into the verdict.
func (s *Service) appendAudit(ctx context.Context, licenseKey, machineID string, verdict *domain.VerdictResult) {
	check := domain.ValidationCheck{
		LicenseKey: licenseKey,
		MachineID:  machineID,
		CheckedAt:  verdict.CheckedAt,
		Outcome:    verdict.Reason,
	}
	if err := s.store.AppendValidationCheck(ctx, check); err != nil {
		s.logger.WarnContext(ctx, "failed to append validation audit row",
			slog.String("license_key", licenseKey),
			slog.String("error", err.Error()))
	}
}

func (s *Service) recordValidation(ctx context.Context, verdict *domain.VerdictResult, latency time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ValidationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", verdict.Reason)))
	if !verdict.Valid {
		s.metrics.ValidationsDenied.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", verdict.Reason)))
	}
	s.metrics.ValidationDuration.Record(ctx, latency.Seconds())
}
