package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

func testLicense() *domain.License {
	issued := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	return &domain.License{
		LicenseKey:  "TBOT-1234-ABCD-5678-EF90",
		MachineID:   "machine-fingerprint-1",
		LicenseType: domain.LicenseTypeStandard,
		IssuedAt:    issued,
		ExpiresAt:   issued.AddDate(1, 0, 0),
		Features:    []string{"spot", "futures"},
	}
}

func TestNewSigner(t *testing.T) {
	t.Run("valid secret", func(t *testing.T) {
		signer, err := NewSigner("test-secret")
		require.NoError(t, err)
		require.NotNil(t, signer)
	})

	t.Run("empty secret rejected", func(t *testing.T) {
		signer, err := NewSigner("")
		assert.Error(t, err)
		assert.Nil(t, signer)
	})

	t.Run("derivation is deterministic", func(t *testing.T) {
		a, err := NewSigner("test-secret")
		require.NoError(t, err)
		b, err := NewSigner("test-secret")
		require.NoError(t, err)

		lic := testLicense()
		assert.Equal(t, a.Sign(lic), b.Sign(lic))
	})
}

func TestSignerSignAndVerify(t *testing.T) {
	signer, err := NewSigner("test-secret")
	require.NoError(t, err)

	lic := testLicense()
	sig := signer.Sign(lic)
	require.NotEmpty(t, sig)

	assert.True(t, signer.Verify(lic, sig))
}

func TestSignerVerifyRejectsTampering(t *testing.T) {
	signer, err := NewSigner("test-secret")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*domain.License)
	}{
		{"license key changed", func(l *domain.License) { l.LicenseKey = "TBOT-0000-0000-0000-0000" }},
		{"machine rebound", func(l *domain.License) { l.MachineID = "machine-fingerprint-2" }},
		{"type upgraded", func(l *domain.License) { l.LicenseType = domain.LicenseTypeEnterprise }},
		{"expiry extended", func(l *domain.License) { l.ExpiresAt = l.ExpiresAt.AddDate(1, 0, 0) }},
		{"issued backdated", func(l *domain.License) { l.IssuedAt = l.IssuedAt.AddDate(-1, 0, 0) }},
		{"feature added", func(l *domain.License) { l.Features = append(l.Features, "margin") }},
		{"feature removed", func(l *domain.License) { l.Features = l.Features[:1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lic := testLicense()
			sig := signer.Sign(lic)

			tt.mutate(lic)
			assert.False(t, signer.Verify(lic, sig))
		})
	}
}

func TestSignerVerifyEdgeCases(t *testing.T) {
	signer, err := NewSigner("test-secret")
	require.NoError(t, err)

	lic := testLicense()
	sig := signer.Sign(lic)

	assert.False(t, signer.Verify(nil, sig), "nil license")
	assert.False(t, signer.Verify(lic, ""), "empty signature")
	assert.False(t, signer.Verify(lic, "not-hex!!"), "malformed signature")

	other, err := NewSigner("another-secret")
	require.NoError(t, err)
	assert.False(t, other.Verify(lic, sig), "signature from a different secret")
}

func TestSignerFeatureOrderIndependent(t *testing.T) {
	signer, err := NewSigner("test-secret")
	require.NoError(t, err)

	a := testLicense()
	a.Features = []string{"spot", "futures"}
	b := testLicense()
	b.Features = []string{"futures", "spot"}

	assert.Equal(t, signer.Sign(a), signer.Sign(b))
}

func TestSignList(t *testing.T) {
	signer, err := NewSigner("test-secret")
	require.NoError(t, err)

	asOf := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	keys := []string{"TBOT-AAAA-AAAA-AAAA-AAAA", "TBOT-BBBB-BBBB-BBBB-BBBB"}

	sig := signer.SignList(keys, asOf)
	assert.True(t, signer.VerifyList(keys, asOf, sig))

	t.Run("key order does not matter", func(t *testing.T) {
		reversed := []string{keys[1], keys[0]}
		assert.True(t, signer.VerifyList(reversed, asOf, sig))
	})

	t.Run("dropped key rejected", func(t *testing.T) {
		assert.False(t, signer.VerifyList(keys[:1], asOf, sig))
	})

	t.Run("added key rejected", func(t *testing.T) {
		padded := append(append([]string(nil), keys...), "TBOT-CCCC-CCCC-CCCC-CCCC")
		assert.False(t, signer.VerifyList(padded, asOf, sig))
	})

	t.Run("replayed timestamp rejected", func(t *testing.T) {
		assert.False(t, signer.VerifyList(keys, asOf.Add(time.Hour), sig))
	})

	t.Run("empty signature rejected", func(t *testing.T) {
		assert.False(t, signer.VerifyList(keys, asOf, ""))
	})

	t.Run("empty list signs and verifies", func(t *testing.T) {
		emptySig := signer.SignList(nil, asOf)
		assert.True(t, signer.VerifyList(nil, asOf, emptySig))
		assert.True(t, signer.VerifyList([]string{}, asOf, emptySig))
	})
}
