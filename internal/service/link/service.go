// Package link orchestrates the account-linking flow: building the
// authorization redirect, completing the provider callback, and serving
// credential reads to the bot.
package link

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/adapter/spotify"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/config"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/repository"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/service/refresher"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/statetoken"
)

// Service implements the linking state machine per login attempt.
type Service struct {
	repo      repository.CredentialRepository
	exchanger spotify.Exchanger
	profiles  spotify.ProfileFetcher
	states    *statetoken.Manager
	refresher *refresher.Refresher
	clock     clockwork.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewService wires the link service.
func NewService(
	repo repository.CredentialRepository,
	exchanger spotify.Exchanger,
	profiles spotify.ProfileFetcher,
	states *statetoken.Manager,
	refr *refresher.Refresher,
	clock clockwork.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Service{
		repo:      repo,
		exchanger: exchanger,
		profiles:  profiles,
		states:    states,
		refresher: refr,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// BeginLink builds the provider authorization URL for the given Discord user.
// The user identity travels only inside the signed state parameter; the
// redirect URI stays exactly as registered with the provider.
func (s *Service) BeginLink(_ context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrMissingUser
	}

	state, claims, err := s.states.Issue(userID)
	if err != nil {
		return "", fmt.Errorf("issue state token: %w", err)
	}

	authURL, err := url.Parse(s.cfg.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}

	params := authURL.Query()
	params.Set("response_type", "code")
	params.Set("client_id", s.cfg.SpotifyClientID)
	params.Set("redirect_uri", s.cfg.RedirectURI)
	params.Set("scope", strings.Join(s.cfg.Scopes, " "))
	params.Set("state", state)
	authURL.RawQuery = params.Encode()

	s.logger.Info("link started",
		zap.String("user_id", userID),
		zap.String("attempt_id", claims.AttemptID),
	)
	return authURL.String(), nil
}

// CompleteLink handles the provider callback: verifies the state, exchanges
// the code, and stores the credential. On any failure nothing is written.
func (s *Service) CompleteLink(ctx context.Context, code, state string) (domain.Credential, error) {
	if strings.TrimSpace(state) == "" {
		return domain.Credential{}, domain.ErrInvalidState
	}
	if strings.TrimSpace(code) == "" {
		return domain.Credential{}, domain.ErrMissingCode
	}

	claims, err := s.states.Verify(state)
	if err != nil {
		return domain.Credential{}, err
	}

	grant, err := s.exchanger.ExchangeCode(ctx, strings.TrimSpace(code), s.cfg.RedirectURI)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("exchange code: %w", err)
	}

	now := s.clock.Now()
	cred := domain.Credential{
		UserID:       claims.UserID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Scope:        grant.Scope,
		TokenType:    grant.TokenType,
		ExpiresAt:    now.Add(time.Duration(grant.ExpiresIn) * time.Second),
		LastUpdated:  now,
		Status:       domain.StatusActive,
	}
	if cred.RefreshToken == "" {
		// Without a refresh token the credential cannot self-heal. Flag it so
		// the sweep skips it visibly instead of silently forever.
		cred.Status = domain.StatusInactive
		cred.StatusReason = domain.ReasonNoRefreshToken
	}

	cred.ProfileURL = s.resolveProfileURL(ctx, claims.UserID, grant.AccessToken)

	if err := s.repo.Put(ctx, cred); err != nil {
		return domain.Credential{}, fmt.Errorf("store credential: %w", err)
	}

	s.logger.Info("link completed",
		zap.String("user_id", claims.UserID),
		zap.String("attempt_id", claims.AttemptID),
		zap.Time("expires_at", cred.ExpiresAt),
		zap.String("status", string(cred.Status)),
	)
	return cred, nil
}

// resolveProfileURL keeps an already-stored profile URL (write-once at
// creation) and otherwise fetches it best-effort.
func (s *Service) resolveProfileURL(ctx context.Context, userID, accessToken string) string {
	if existing, err := s.repo.Get(ctx, userID); err == nil && existing.ProfileURL != "" {
		return existing.ProfileURL
	}
	if s.profiles == nil {
		return ""
	}
	profile, err := s.profiles.FetchProfile(ctx, accessToken)
	if err != nil {
		s.logger.Warn("profile fetch failed", zap.String("user_id", userID), zap.Error(err))
		return ""
	}
	return profile.URL
}

// Credential returns the stored credential for the bot. A known-expired
// access token triggers a just-in-time refresh attempt first; if that fails
// transiently the stored record is returned as-is and callers can inspect
// ExpiresAt.
func (s *Service) Credential(ctx context.Context, userID string) (domain.Credential, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Credential{}, domain.ErrMissingUser
	}

	cred, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.Credential{}, err
	}

	if !cred.Expired(s.clock.Now()) || !cred.Refreshable() {
		return cred, nil
	}

	refreshed, err := s.refresher.RefreshUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialInactive) {
			// The refresh token was rejected; return the flagged record.
			if flagged, getErr := s.repo.Get(ctx, userID); getErr == nil {
				return flagged, nil
			}
		}
		s.logger.Warn("just-in-time refresh failed", zap.String("user_id", userID), zap.Error(err))
		return cred, nil
	}
	return refreshed, nil
}
