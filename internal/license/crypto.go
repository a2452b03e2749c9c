package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

// signingKeyInfo is the HKDF domain-separation string for the license
// signing key. Changing it invalidates every previously issued signature.
const signingKeyInfo = "tbot-license-signing-v1"

// Signer computes and verifies HMAC-SHA256 signatures over license and
// revocation-list payloads. It is a pure function holder with no state
// beyond the derived key; Verify never returns an error on malformed
// input, only false, so callers cannot mistake a crypto failure for a
// pass.
type Signer struct {
	key []byte
}

// NewSigner derives the signing key from the issuer's shared secret
// using HKDF-SHA256.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("license signer: empty shared secret")
	}

	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("license signer: key derivation failed: %w", err)
	}

	return &Signer{key: key}, nil
}

// Sign returns the hex HMAC-SHA256 of the license's canonical
// serialization. The signature field itself is not part of the input.
func (s *Signer) Sign(lic *domain.License) string {
	return s.mac(canonicalLicense(lic))
}

// Verify recomputes the license signature and compares in constant time.
// A nil license or empty signature verifies as false.
func (s *Signer) Verify(lic *domain.License, signature string) bool {
	if lic == nil || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(s.Sign(lic))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// SignList signs the full revocation snapshot plus its as-of timestamp.
// Signing the list as a whole prevents serving a tampered partial list.
func (s *Signer) SignList(keys []string, asOf time.Time) string {
	return s.mac(canonicalList(keys, asOf))
}

// VerifyList checks a revocation snapshot signature in constant time.
func (s *Signer) VerifyList(keys []string, asOf time.Time, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(s.SignList(keys, asOf))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func (s *Signer) mac(payload string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalLicense serializes the signed license fields in a stable
// order: pipe-delimited, RFC 3339 UTC timestamps, feature names sorted.
func canonicalLicense(lic *domain.License) string {
	features := append([]string(nil), lic.Features...)
	sort.Strings(features)

	return strings.Join([]string{
		lic.LicenseKey,
		lic.MachineID,
		string(lic.LicenseType),
		lic.IssuedAt.UTC().Format(time.RFC3339),
		lic.ExpiresAt.UTC().Format(time.RFC3339),
		strings.Join(features, ","),
	}, "|")
}

// canonicalList serializes a revocation snapshot: as-of timestamp first,
// then the sorted key set.
func canonicalList(keys []string, asOf time.Time) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	return asOf.UTC().Format(time.RFC3339) + "|" + strings.Join(sorted, ",")
}
