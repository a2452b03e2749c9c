package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/NevessSt/Trading-bots-sub000/pkg/contracts/api/v1"
	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

const testLicenseKey = "TBOT-1234-ABCD-5678-EF90"

// fakeIssuer scripts the remote issuer and counts calls so tests can
// assert that a fresh cache short-circuits the network entirely.
type fakeIssuer struct {
	verdict *Verdict
	err     error

	list    *api.RevocationListResponse
	listErr error

	validateCalls int
	listCalls     int
}

func (f *fakeIssuer) Validate(_ context.Context, _, _ string) (*Verdict, error) {
	f.validateCalls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.verdict
	return &cp, nil
}

func (f *fakeIssuer) RevocationList(_ context.Context) (*api.RevocationListResponse, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.list == nil {
		return nil, errors.New("no list scripted")
	}
	return f.list, nil
}

type validatorHarness struct {
	validator *Validator
	issuer    *fakeIssuer
	clock     time.Time
}

func newValidatorHarness(t *testing.T) *validatorHarness {
	t.Helper()

	v, err := New(Config{
		IssuerURL:      "http://issuer.invalid",
		LicenseKey:     testLicenseKey,
		SharedSecret:   "test-secret",
		CachePath:      filepath.Join(t.TempDir(), "license-cache.json"),
		TTL:            time.Hour,
		GraceWindow:    96 * time.Hour,
		RequestTimeout: time.Second,
	}, discardLogger())
	require.NoError(t, err)

	h := &validatorHarness{
		validator: v,
		issuer:    &fakeIssuer{err: ErrIssuerUnreachable},
		clock:     time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	v.remote = h.issuer
	v.now = func() time.Time { return h.clock }

	return h
}

func (h *validatorHarness) scriptValid(features ...string) {
	h.issuer.err = nil
	h.issuer.verdict = &Verdict{
		Valid:  true,
		Reason: domain.ReasonOK,
		LicenseData: &domain.License{
			LicenseKey:  testLicenseKey,
			MachineID:   h.validator.machineID,
			LicenseType: domain.LicenseTypeStandard,
			Features:    features,
		},
	}
	h.scriptList(nil)
}

func (h *validatorHarness) scriptDenied(reason string) {
	h.issuer.err = nil
	h.issuer.verdict = &Verdict{Valid: false, Reason: reason}
	h.scriptList(nil)
}

func (h *validatorHarness) scriptList(keys []string) {
	asOf := h.clock
	h.issuer.listErr = nil
	h.issuer.list = &api.RevocationListResponse{
		RevokedLicenses: keys,
		Count:           len(keys),
		Timestamp:       asOf,
		Signature:       h.validator.signer.SignList(keys, asOf),
	}
}

func (h *validatorHarness) scriptUnreachable() {
	h.issuer.err = ErrIssuerUnreachable
	h.issuer.listErr = ErrIssuerUnreachable
}

func TestNewValidation(t *testing.T) {
	t.Run("license key required", func(t *testing.T) {
		_, err := New(Config{
			SharedSecret: "s",
			TTL:          time.Hour,
			GraceWindow:  2 * time.Hour,
		}, discardLogger())
		assert.Error(t, err)
	})

	t.Run("grace window must exceed ttl", func(t *testing.T) {
		_, err := New(Config{
			LicenseKey:   testLicenseKey,
			SharedSecret: "s",
			TTL:          time.Hour,
			GraceWindow:  time.Hour,
		}, discardLogger())
		assert.Error(t, err)
	})
}

func TestValidateFailsClosedOnFirstRun(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptUnreachable()

	ok, reason := h.validator.Validate(context.Background())

	assert.False(t, ok, "never-validated installation must not run offline")
	assert.Equal(t, domain.ReasonNotValidated, reason)
	assert.Equal(t, StateDenied, h.validator.CurrentState())
}

func TestValidateFreshVerdict(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptValid("spot")

	ok, reason := h.validator.Validate(context.Background())
	require.True(t, ok)
	assert.Equal(t, domain.ReasonOK, reason)
	assert.Equal(t, StateFreshValid, h.validator.CurrentState())
	assert.Equal(t, 1, h.issuer.validateCalls)

	t.Run("fresh cache short-circuits the network", func(t *testing.T) {
		h.clock = h.clock.Add(30 * time.Minute)

		ok, _ := h.validator.Validate(context.Background())
		assert.True(t, ok)
		assert.Equal(t, 1, h.issuer.validateCalls, "no second remote call within ttl")
	})

	t.Run("stale cache revalidates remotely", func(t *testing.T) {
		h.clock = h.clock.Add(time.Hour)

		ok, _ := h.validator.Validate(context.Background())
		assert.True(t, ok)
		assert.Equal(t, 2, h.issuer.validateCalls)
	})
}

func TestValidateFreshDenial(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptDenied(domain.ReasonRevoked)

	ok, reason := h.validator.Validate(context.Background())
	assert.False(t, ok)
	assert.Equal(t, domain.ReasonRevoked, reason)
	assert.Equal(t, StateFreshInvalid, h.validator.CurrentState())

	t.Run("unreachability never softens a cached denial", func(t *testing.T) {
		h.clock = h.clock.Add(2 * time.Hour)
		h.scriptUnreachable()

		ok, reason := h.validator.Validate(context.Background())
		assert.False(t, ok)
		assert.Equal(t, domain.ReasonRevoked, reason)
		assert.Equal(t, StateDenied, h.validator.CurrentState())
	})
}

func TestValidateGraceWindow(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptValid()

	ok, _ := h.validator.Validate(context.Background())
	require.True(t, ok)

	h.scriptUnreachable()

	t.Run("within grace window keeps running", func(t *testing.T) {
		h.clock = h.clock.Add(48 * time.Hour)

		ok, reason := h.validator.Validate(context.Background())
		assert.True(t, ok)
		assert.Equal(t, domain.ReasonNetworkUnreachable, reason)
		assert.Equal(t, StateDegradedValid, h.validator.CurrentState())
	})

	t.Run("beyond grace window fails closed", func(t *testing.T) {
		h.clock = h.clock.Add(72 * time.Hour)

		ok, reason := h.validator.Validate(context.Background())
		assert.False(t, ok)
		assert.Equal(t, domain.ReasonGraceExpired, reason)
		assert.Equal(t, StateDegradedExpired, h.validator.CurrentState())
	})

	t.Run("reconnecting restores authorization", func(t *testing.T) {
		h.scriptValid()

		ok, reason := h.validator.Validate(context.Background())
		assert.True(t, ok)
		assert.Equal(t, domain.ReasonOK, reason)
		assert.Equal(t, StateFreshValid, h.validator.CurrentState())
	})
}

func TestValidateCorruptCache(t *testing.T) {
	h := newValidatorHarness(t)
	require.NoError(t, os.WriteFile(h.validator.cfg.CachePath, []byte("\x00garbage"), 0600))

	t.Run("corrupt cache forces a remote check", func(t *testing.T) {
		h.scriptValid()

		ok, _ := h.validator.Validate(context.Background())
		assert.True(t, ok)
		assert.Equal(t, 1, h.issuer.validateCalls)
	})

	t.Run("cache is rewritten cleanly", func(t *testing.T) {
		entry, err := h.validator.cache.Load()
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, entry.LastVerdict.Valid)
	})
}

func TestValidateCorruptCacheUnreachableIssuer(t *testing.T) {
	h := newValidatorHarness(t)
	require.NoError(t, os.WriteFile(h.validator.cfg.CachePath, []byte("{broken"), 0600))
	h.scriptUnreachable()

	// Corrupt cache plus unreachable issuer is the first-run posture.
	ok, reason := h.validator.Validate(context.Background())
	assert.False(t, ok)
	assert.Equal(t, domain.ReasonNotValidated, reason)
}

func TestValidateHonorsCachedRevocationSnapshot(t *testing.T) {
	h := newValidatorHarness(t)

	// A valid verdict cached together with a snapshot that already
	// lists this key: the known revocation wins, even fully offline.
	entry := &CacheEntry{
		LastVerdict:        Verdict{Valid: true, Reason: domain.ReasonOK},
		MachineID:          h.validator.machineID,
		RevocationSnapshot: []string{testLicenseKey},
		FetchedAt:          h.clock,
		TTLSeconds:         3600,
	}
	require.NoError(t, h.validator.cache.Store(entry))
	h.scriptUnreachable()

	ok, reason := h.validator.Validate(context.Background())
	assert.False(t, ok)
	assert.Equal(t, domain.ReasonRevoked, reason)
	assert.Zero(t, h.issuer.validateCalls, "fresh cache decides without the network")
}

func TestValidateDiscardsForeignMachineCache(t *testing.T) {
	h := newValidatorHarness(t)

	entry := &CacheEntry{
		LastVerdict: Verdict{Valid: true, Reason: domain.ReasonOK},
		MachineID:   "someone-elses-machine",
		FetchedAt:   h.clock,
		TTLSeconds:  3600,
	}
	require.NoError(t, h.validator.cache.Store(entry))
	h.scriptUnreachable()

	ok, reason := h.validator.Validate(context.Background())
	assert.False(t, ok, "a cache copied from another machine carries no authorization")
	assert.Equal(t, domain.ReasonNotValidated, reason)
}

func TestValidatePersistsRevocationSnapshot(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptValid()
	h.scriptList([]string{"TBOT-DEAD-DEAD-DEAD-DEAD"})

	ok, _ := h.validator.Validate(context.Background())
	require.True(t, ok)

	entry, err := h.validator.cache.Load()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []string{"TBOT-DEAD-DEAD-DEAD-DEAD"}, entry.RevocationSnapshot)
	assert.Equal(t, h.validator.machineID, entry.MachineID)
}

func TestValidateRejectsTamperedRevocationList(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptValid()
	h.scriptList([]string{"TBOT-DEAD-DEAD-DEAD-DEAD"})
	h.issuer.list.Signature = "ffffffff"

	ok, _ := h.validator.Validate(context.Background())
	require.True(t, ok, "the verdict itself still stands")

	entry, err := h.validator.cache.Load()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Empty(t, entry.RevocationSnapshot, "a tampered list must not be persisted")
}

func TestIsAuthorized(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptValid("spot", "futures")

	assert.True(t, h.validator.IsAuthorized(""), "cold call validates first")
	assert.True(t, h.validator.IsAuthorized("spot"))
	assert.True(t, h.validator.IsAuthorized("futures"))
	assert.False(t, h.validator.IsAuthorized("margin"), "unlicensed feature")
	assert.Equal(t, 1, h.issuer.validateCalls)
}

func TestIsAuthorizedDenied(t *testing.T) {
	h := newValidatorHarness(t)
	h.scriptDenied(domain.ReasonExpired)

	assert.False(t, h.validator.IsAuthorized(""))
	assert.False(t, h.validator.IsAuthorized("spot"))
	assert.Equal(t, domain.ReasonExpired, h.validator.Reason())
}
