// Package client implements the installation-side license validator:
// machine fingerprinting, the durable revocation cache, and the
// state machine that decides whether the host application is currently
// authorized. The host's entire contract with this package is
// IsAuthorized(feature) and Reason(); it never reads the cache file or
// talks to the issuer directly.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NevessSt/Trading-bots-sub000/internal/config"
	"github.com/NevessSt/Trading-bots-sub000/internal/infrastructure"
	"github.com/NevessSt/Trading-bots-sub000/internal/license"
	"github.com/NevessSt/Trading-bots-sub000/pkg/contracts/domain"
)

// State is the validator's internal position in the validation state
// machine. Hosts never observe states, only the authorization boolean
// and reason code.
type State string

const (
	StateUnchecked       State = "UNCHECKED"
	StateFreshValid      State = "FRESH_VALID"
	StateFreshInvalid    State = "FRESH_INVALID"
	StateDegradedValid   State = "DEGRADED_VALID"
	StateDegradedExpired State = "DEGRADED_EXPIRED"
	StateDenied          State = "DENIED"
)

// authorized reports whether the state permits use. Only a fresh valid
// verdict or a within-grace degraded one does; everything else denies.
func (s State) authorized() bool {
	return s == StateFreshValid || s == StateDegradedValid
}

// Config is the immutable validator configuration, fixed at
// construction.
type Config struct {
	IssuerURL      string
	LicenseKey     string
	SharedSecret   string
	CachePath      string
	TTL            time.Duration
	GraceWindow    time.Duration
	RequestTimeout time.Duration
}

// FromClientConfig builds a validator Config from the application
// configuration.
func FromClientConfig(cc config.ClientConfig) Config {
	return Config{
		IssuerURL:      cc.IssuerURL,
		LicenseKey:     cc.LicenseKey,
		SharedSecret:   cc.SharedSecret,
		CachePath:      cc.CachePath,
		TTL:            cc.TTL,
		GraceWindow:    cc.GraceWindow,
		RequestTimeout: cc.RequestTimeout,
	}
}

// Validator orchestrates local-cache lookup, remote re-validation, and
// bounded fallback. Construct one instance at process start and pass it
// to callers; there is no package-level singleton.
type Validator struct {
	cfg       Config
	cache     *Cache
	remote    issuerAPI
	signer    *license.Signer
	logger    *slog.Logger
	machineID string

	mu     sync.Mutex
	state  State
	reason string
	lastOK *Verdict

	now func() time.Time
}

// New creates a validator. The machine fingerprint is computed once at
// construction. A signer is derived from the shared secret to verify
// revocation-list signatures; an empty secret disables that check only
// if explicitly configured so.
func New(cfg Config, logger *slog.Logger) (*Validator, error) {
	if cfg.LicenseKey == "" {
		return nil, fmt.Errorf("client: license key is required")
	}
	if cfg.GraceWindow <= cfg.TTL {
		return nil, fmt.Errorf("client: grace window (%s) must be strictly larger than ttl (%s)",
			cfg.GraceWindow, cfg.TTL)
	}

	signer, err := license.NewSigner(cfg.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	log := infrastructure.WithComponent(logger, "license_validator")

	return &Validator{
		cfg:       cfg,
		cache:     NewCache(cfg.CachePath, log),
		remote:    newHTTPIssuer(cfg.IssuerURL, cfg.RequestTimeout),
		signer:    signer,
		logger:    log,
		machineID: MachineID(),
		state:     StateUnchecked,
		reason:    "",
		now:       time.Now,
	}, nil
}

// IsAuthorized reports whether the named feature is currently
// authorized for this installation. An empty feature asks for the
// overall authorization. A validator that has never checked runs one
// validation first, so a cold call still fails closed rather than
// returning a default.
func (v *Validator) IsAuthorized(feature string) bool {
	v.mu.Lock()
	unchecked := v.state == StateUnchecked
	v.mu.Unlock()

	if unchecked {
		v.Validate(context.Background())
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.state.authorized() {
		return false
	}
	if feature == "" {
		return true
	}
	if v.lastOK == nil || v.lastOK.LicenseData == nil {
		return false
	}
	return v.lastOK.LicenseData.HasFeature(feature)
}

// Reason returns the machine-readable reason code for the current
// authorization decision.
func (v *Validator) Reason() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reason
}

// CurrentState returns the validator's internal state, for logging and
// tests only; host applications must use IsAuthorized and Reason.
func (v *Validator) CurrentState() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Validate runs one pass of the state machine: fresh cache short-
// circuit, remote re-validation, bounded degraded fallback. It returns
// the resulting authorization and reason. Cancellation of the context
// simply keeps the prior cached verdict via the fallback path.
func (v *Validator) Validate(ctx context.Context) (bool, string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	entry := v.loadCache()

	// Fresh cache answers without any network call.
	if entry != nil && entry.IsFresh(now) {
		v.applyVerdict(&entry.LastVerdict)
		return v.state.authorized(), v.reason
	}

	rctx, cancel := context.WithTimeout(ctx, v.cfg.RequestTimeout)
	defer cancel()

	verdict, err := v.remote.Validate(rctx, v.cfg.LicenseKey, v.machineID)
	if err == nil {
		v.storeFresh(ctx, verdict, entry, now)
		v.applyVerdict(verdict)
		return v.state.authorized(), v.reason
	}

	v.logger.WarnContext(ctx, "remote validation unavailable, applying fallback policy",
		slog.String("error", err.Error()),
		slog.Bool("have_cache", entry != nil))

	v.applyFallback(entry, now)
	return v.state.authorized(), v.reason
}

// loadCache loads the persisted entry, treating corruption as absence
// and discarding entries fetched for a different machine fingerprint.
// A cached valid verdict whose own revocation snapshot lists the key is
// downgraded to a revoked denial: a revocation the client already knows
// about wins over cached optimism even offline.
func (v *Validator) loadCache() *CacheEntry {
	entry, err := v.cache.Load()
	if err != nil {
		if errors.Is(err, ErrCacheCorrupt) {
			v.logger.Warn("license cache corrupt, forcing remote check",
				slog.String("error", err.Error()))
			if rmErr := v.cache.Remove(); rmErr != nil {
				v.logger.Warn("failed to remove corrupt cache",
					slog.String("error", rmErr.Error()))
			}
			return nil
		}
		v.logger.Warn("failed to load license cache",
			slog.String("error", err.Error()))
		return nil
	}
	if entry == nil {
		return nil
	}

	if entry.MachineID != v.machineID {
		v.logger.Warn("license cache was written for a different machine, discarding",
			slog.String("cached_machine_id", entry.MachineID))
		return nil
	}

	if entry.LastVerdict.Valid && entry.SnapshotContains(v.cfg.LicenseKey) {
		entry.LastVerdict = Verdict{Valid: false, Reason: domain.ReasonRevoked}
	}

	return entry
}

// storeFresh persists the authoritative verdict together with the
// current revocation snapshot. Cache write failures degrade to a
// warning; the in-memory verdict still stands.
func (v *Validator) storeFresh(ctx context.Context, verdict *Verdict, prev *CacheEntry, now time.Time) {
	snapshot := v.fetchSnapshot(ctx, prev)

	entry := &CacheEntry{
		LastVerdict:        *verdict,
		MachineID:          v.machineID,
		RevocationSnapshot: snapshot,
		FetchedAt:          now.UTC(),
		TTLSeconds:         int64(v.cfg.TTL.Seconds()),
	}

	if err := v.cache.Store(entry); err != nil {
		v.logger.Warn("failed to persist license cache",
			slog.String("error", err.Error()))
	}
}

// fetchSnapshot pulls the signed revocation list, falling back to the
// previous snapshot when the fetch fails or the signature does not
// verify.
func (v *Validator) fetchSnapshot(ctx context.Context, prev *CacheEntry) []string {
	rctx, cancel := context.WithTimeout(ctx, v.cfg.RequestTimeout)
	defer cancel()

	list, err := v.remote.RevocationList(rctx)
	if err != nil {
		v.logger.Warn("failed to fetch revocation list, keeping previous snapshot",
			slog.String("error", err.Error()))
		return prevSnapshot(prev)
	}

	if !v.signer.VerifyList(list.RevokedLicenses, list.Timestamp, list.Signature) {
		v.logger.Error("revocation list signature verification failed, keeping previous snapshot",
			slog.Int("count", list.Count))
		return prevSnapshot(prev)
	}

	return list.RevokedLicenses
}

func prevSnapshot(prev *CacheEntry) []string {
	if prev == nil {
		return nil
	}
	return prev.RevocationSnapshot
}

// applyVerdict installs an authoritative verdict as the current state.
func (v *Validator) applyVerdict(verdict *Verdict) {
	if verdict.Valid {
		v.state = StateFreshValid
		v.reason = domain.ReasonOK
		v.lastOK = verdict
		return
	}

	v.state = StateFreshInvalid
	v.reason = verdict.Reason
	if v.reason == "" {
		v.reason = domain.ReasonInvalidSignature
	}
	v.lastOK = nil
}

// applyFallback implements the degraded policy when the issuer is
// unreachable: a cached valid verdict bridges the gap within the grace
// window; beyond it, or with no cache at all, the validator fails
// closed.
func (v *Validator) applyFallback(entry *CacheEntry, now time.Time) {
	if entry == nil {
		// Never-validated installation with an unreachable issuer.
		v.state = StateDenied
		v.reason = domain.ReasonNotValidated
		v.lastOK = nil
		return
	}

	if !entry.LastVerdict.Valid {
		// The cached verdict is an authoritative denial; unreachability
		// does not soften it.
		v.state = StateDenied
		v.reason = entry.LastVerdict.Reason
		v.lastOK = nil
		return
	}

	if entry.Age(now) < v.cfg.GraceWindow {
		v.state = StateDegradedValid
		v.reason = domain.ReasonNetworkUnreachable
		v.lastOK = &entry.LastVerdict
		v.logger.Info("operating on cached verdict within grace window",
			slog.Duration("cache_age", entry.Age(now)),
			slog.Duration("grace_window", v.cfg.GraceWindow))
		return
	}

	v.state = StateDegradedExpired
	v.reason = domain.ReasonGraceExpired
	v.lastOK = nil
	v.logger.Warn("grace window elapsed without a successful re-check, denying use",
		slog.Duration("cache_age", entry.Age(now)),
		slog.Duration("grace_window", v.cfg.GraceWindow))
}
