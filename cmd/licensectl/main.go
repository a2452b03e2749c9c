// licensectl is the operator CLI for the license issuer: it generates,
// revokes, and inspects licenses over the admin HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	api "github.com/NevessSt/Trading-bots-sub000/pkg/contracts/api/v1"
	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

const usage = `Usage: licensectl <command> [flags]

Commands:
  generate   issue a new license for a machine
  revoke     revoke an existing license
  stats      show aggregate license counts
  list       print the current revocation list

Connection flags (all commands):
  -url       issuer base URL (default $TBOT_ISSUER_URL or http://localhost:8090)
  -api-key   admin API key (default $TBOT_ISSUER_API_KEY)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "revoke":
		err = runRevoke(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "licensectl: %v\n", err)
		os.Exit(1)
	}
}

type conn struct {
	url    string
	apiKey string
	client *http.Client
}

func connFlags(fs *flag.FlagSet) (*string, *string) {
	url := fs.String("url", envOr("TBOT_ISSUER_URL", "http://localhost:8090"), "issuer base URL")
	apiKey := fs.String("api-key", os.Getenv("TBOT_ISSUER_API_KEY"), "admin API key")
	return url, apiKey
}

func newConn(url, apiKey string) *conn {
	return &conn{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	url, apiKey := connFlags(fs)
	machineID := fs.String("machine", "", "machine fingerprint to bind the license to (required)")
	licType := fs.String("type", string(domain.LicenseTypeStandard), "license type: trial | standard | premium | enterprise")
	days := fs.Int("days", 365, "validity in days from now")
	features := fs.String("features", "", "comma-separated feature list")
	replace := fs.Bool("replace", false, "revoke any existing active license for the machine first")
	fs.Parse(args)

	if *machineID == "" {
		return fmt.Errorf("-machine is required")
	}

	req := api.GenerateRequest{
		MachineID:   *machineID,
		LicenseType: domain.LicenseType(*licType),
		DaysValid:   *days,
		Replace:     *replace,
	}
	if *features != "" {
		req.Features = strings.Split(*features, ",")
	}

	var lic domain.License
	if err := newConn(*url, *apiKey).post("/generate", req, &lic); err != nil {
		return err
	}

	fmt.Printf("license key: %s\n", lic.LicenseKey)
	fmt.Printf("type:        %s\n", lic.LicenseType)
	fmt.Printf("machine:     %s\n", lic.MachineID)
	fmt.Printf("expires:     %s\n", lic.ExpiresAt.Format(time.RFC3339))
	if len(lic.Features) > 0 {
		fmt.Printf("features:    %s\n", strings.Join(lic.Features, ", "))
	}
	return nil
}

func runRevoke(args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	url, apiKey := connFlags(fs)
	key := fs.String("key", "", "license key to revoke (required)")
	reason := fs.String("reason", "", "revocation reason (required)")
	by := fs.String("by", "licensectl", "operator identity recorded with the revocation")
	fs.Parse(args)

	if *key == "" || *reason == "" {
		return fmt.Errorf("-key and -reason are required")
	}

	var resp api.RevokeResponse
	err := newConn(*url, *apiKey).post("/revoke", api.RevokeRequest{
		LicenseKey: *key,
		Reason:     *reason,
		RevokedBy:  *by,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("revoked at %s\n", resp.RevokedAt.Format(time.RFC3339))
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url, apiKey := connFlags(fs)
	fs.Parse(args)

	var stats domain.LicenseStats
	if err := newConn(*url, *apiKey).get("/stats", &stats); err != nil {
		return err
	}

	fmt.Printf("total:             %d\n", stats.Total)
	fmt.Printf("active:            %d\n", stats.Active)
	fmt.Printf("revoked:           %d\n", stats.Revoked)
	fmt.Printf("expired:           %d\n", stats.Expired)
	fmt.Printf("validation checks: %d\n", stats.ValidationChecks)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	url, apiKey := connFlags(fs)
	fs.Parse(args)

	var list api.RevocationListResponse
	if err := newConn(*url, *apiKey).get("/revocation-list", &list); err != nil {
		return err
	}

	fmt.Printf("revoked licenses as of %s (%d):\n", list.Timestamp.Format(time.RFC3339), list.Count)
	for _, key := range list.RevokedLicenses {
		fmt.Printf("  %s\n", key)
	}
	return nil
}

func (c *conn) post(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.url+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *conn) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.url+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *conn) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("issuer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("issuer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
