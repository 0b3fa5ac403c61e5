// Package refresher keeps stored credentials fresh. A single periodic sweep
// walks every known user, renews tokens that are inside the skew window, and
// flags credentials the provider has rejected so they stop being retried.
package refresher

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/adapter/spotify"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/repository"
)

// Refresher drives proactive token renewal.
type Refresher struct {
	repo      repository.CredentialRepository
	exchanger spotify.Exchanger
	clock     clockwork.Clock
	interval  time.Duration
	skew      time.Duration
	logger    *zap.Logger

	// flight serializes refresh attempts per user id. Spotify invalidates a
	// refresh token after first use, so two concurrent refreshes for the same
	// user would corrupt the stored token.
	flight singleflight.Group
}

// New constructs a Refresher. interval is the sweep period, skew the
// early-refresh margin before actual expiry.
func New(repo repository.CredentialRepository, exchanger spotify.Exchanger, clock clockwork.Clock, interval, skew time.Duration, logger *zap.Logger) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Refresher{
		repo:      repo,
		exchanger: exchanger,
		clock:     clock,
		interval:  interval,
		skew:      skew,
		logger:    logger,
	}
}

// Run sweeps on the configured interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("refresh sweep started", zap.Duration("interval", r.interval), zap.Duration("skew_window", r.skew))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresh sweep stopped")
			return
		case <-ticker.Chan():
			r.Sweep(ctx)
		}
	}
}

// Sweep refreshes every due credential once. A failing record never aborts
// the rest of the sweep, and no error escapes to the caller.
func (r *Refresher) Sweep(ctx context.Context) {
	ids, err := r.repo.ListUserIDs(ctx)
	if err != nil {
		r.logger.Error("list credentials for sweep", zap.Error(err))
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.RefreshUser(ctx, id); err != nil {
			r.logSweepFailure(id, err)
		}
	}
}

// RefreshUser renews the user's credential if it is due. Concurrent calls for
// the same user share a single upstream exchange. Returns the current
// credential, refreshed or not.
func (r *Refresher) RefreshUser(ctx context.Context, userID string) (domain.Credential, error) {
	v, err, _ := r.flight.Do(userID, func() (any, error) {
		return r.refreshOne(ctx, userID)
	})
	if err != nil {
		return domain.Credential{}, err
	}
	return v.(domain.Credential), nil
}

func (r *Refresher) refreshOne(ctx context.Context, userID string) (domain.Credential, error) {
	cred, err := r.repo.Get(ctx, userID)
	if err != nil {
		return domain.Credential{}, err
	}

	// Inactive records (rejected or never refreshable) stay out of the cycle
	// until a fresh authorization-code exchange replaces them.
	if !cred.Refreshable() {
		return cred, nil
	}

	now := r.clock.Now()
	if now.Before(cred.ExpiresAt.Add(-r.skew)) {
		return cred, nil
	}

	grant, err := r.exchanger.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if domain.IsExchangeKind(err, domain.ExchangeRejected) {
			return r.deactivate(ctx, cred, err)
		}
		// Transient and protocol failures leave the record untouched for the
		// next tick.
		return domain.Credential{}, err
	}

	updated := mergeGrant(cred, grant, r.clock.Now())
	if err := r.repo.Put(ctx, updated); err != nil {
		return domain.Credential{}, fmt.Errorf("store refreshed credential: %w", err)
	}
	return updated, nil
}

// deactivate flags the credential so the sweep never retries it, then
// surfaces the rejection to the caller.
func (r *Refresher) deactivate(ctx context.Context, cred domain.Credential, cause error) (domain.Credential, error) {
	cred.Status = domain.StatusInactive
	cred.StatusReason = domain.ReasonRefreshRejected
	cred.LastUpdated = r.clock.Now()
	if err := r.repo.Put(ctx, cred); err != nil {
		r.logger.Error("flag rejected credential", zap.String("user_id", cred.UserID), zap.Error(err))
	}
	return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrCredentialInactive, cause)
}

// mergeGrant folds a refresh response into the stored credential. The
// refresh token is replaced only when the provider returned a new one.
func mergeGrant(cred domain.Credential, grant *spotify.TokenGrant, now time.Time) domain.Credential {
	cred.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		cred.RefreshToken = grant.RefreshToken
	}
	if grant.Scope != "" {
		cred.Scope = grant.Scope
	}
	if grant.TokenType != "" {
		cred.TokenType = grant.TokenType
	}
	cred.ExpiresAt = now.Add(time.Duration(grant.ExpiresIn) * time.Second)
	cred.LastUpdated = now
	cred.Status = domain.StatusActive
	cred.StatusReason = ""
	return cred
}

func (r *Refresher) logSweepFailure(userID string, err error) {
	switch {
	case domain.IsExchangeKind(err, domain.ExchangeProtocol):
		r.logger.Error("refresh response malformed", zap.String("user_id", userID), zap.Error(err))
	case domain.IsExchangeKind(err, domain.ExchangeTransient):
		r.logger.Warn("refresh deferred to next tick", zap.String("user_id", userID), zap.Error(err))
	default:
		r.logger.Warn("refresh failed", zap.String("user_id", userID), zap.Error(err))
	}
}
