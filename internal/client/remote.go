package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	api "github.com/NevessSt/Trading-bots-sub000/pkg/contracts/api/v1"
)

// ErrIssuerUnreachable covers timeouts, connection failures, and
// issuer-side transient conditions (store unavailable, rate limited).
// It is never a verdict: callers fall back to the cache policy instead
// of denying outright.
var ErrIssuerUnreachable = errors.New("client: issuer unreachable")

// issuerAPI abstracts the remote issuer so tests can substitute a fake.
type issuerAPI interface {
	Validate(ctx context.Context, licenseKey, machineID string) (*Verdict, error)
	RevocationList(ctx context.Context) (*api.RevocationListResponse, error)
}

// httpIssuer talks to the issuer service over HTTP/JSON.
type httpIssuer struct {
	baseURL string
	client  *http.Client
}

func newHTTPIssuer(baseURL string, timeout time.Duration) *httpIssuer {
	return &httpIssuer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Validate calls POST /validate. A 200 response is an authoritative
// verdict, valid or not; anything else is ErrIssuerUnreachable.
func (c *httpIssuer) Validate(ctx context.Context, licenseKey, machineID string) (*Verdict, error) {
	body, err := json.Marshal(api.ValidateRequest{
		LicenseKey: licenseKey,
		MachineID:  machineID,
	})
	if err != nil {
		return nil, fmt.Errorf("client: failed to encode validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: failed to build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: issuer returned status %d", ErrIssuerUnreachable, resp.StatusCode)
	}

	var vr api.ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("%w: malformed validate response: %v", ErrIssuerUnreachable, err)
	}

	return &Verdict{
		Valid:       vr.Valid,
		Reason:      vr.Reason,
		LicenseData: vr.LicenseData,
	}, nil
}

// RevocationList calls GET /revocation-list.
func (c *httpIssuer) RevocationList(ctx context.Context) (*api.RevocationListResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/revocation-list", nil)
	if err != nil {
		return nil, fmt.Errorf("client: failed to build revocation-list request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: issuer returned status %d", ErrIssuerUnreachable, resp.StatusCode)
	}

	var list api.RevocationListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: malformed revocation-list response: %v", ErrIssuerUnreachable, err)
	}
	return &list, nil
}
