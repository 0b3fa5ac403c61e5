package link

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/adapter/spotify"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/config"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/repository"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/service/refresher"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/statetoken"
)

// ---- Test harness and fakes ----

type fakeExchanger struct {
	exchangeGrant *spotify.TokenGrant
	exchangeErr   error
	refreshGrant  *spotify.TokenGrant
	refreshErr    error
	refreshCalls  int
}

func (f *fakeExchanger) ExchangeCode(context.Context, string, string) (*spotify.TokenGrant, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	grant := *f.exchangeGrant
	return &grant, nil
}

func (f *fakeExchanger) Refresh(context.Context, string) (*spotify.TokenGrant, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	grant := *f.refreshGrant
	return &grant, nil
}

type fakeProfileFetcher struct {
	profile *spotify.Profile
	err     error
}

func (f *fakeProfileFetcher) FetchProfile(context.Context, string) (*spotify.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type linkTestHarness struct {
	service   *Service
	repo      repository.CredentialRepository
	exchanger *fakeExchanger
	profiles  *fakeProfileFetcher
	states    *statetoken.Manager
	clock     clockwork.FakeClock
}

func newLinkTestHarness(t *testing.T) *linkTestHarness {
	t.Helper()
	return newLinkTestHarnessWithRepo(t, repository.NewMemoryCredentialRepo())
}

func newLinkTestHarnessWithRepo(t *testing.T, repo repository.CredentialRepository) *linkTestHarness {
	t.Helper()

	scopes := []string{
		"user-read-email",
		"user-read-private",
		"playlist-read-private",
		"playlist-read-collaborative",
	}
	cfg := config.Config{
		AuthorizeURL:    "https://accounts.spotify.com/authorize",
		RedirectURI:     "https://link.example.com/callback",
		SpotifyClientID: "client-id",
		Scopes:          scopes,
	}

	clock := clockwork.NewFakeClock()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	states, err := statetoken.NewManager([]byte("0123456789abcdef0123456789abcdef"), 10*time.Minute, node, clock)
	require.NoError(t, err)

	exchanger := &fakeExchanger{
		exchangeGrant: &spotify.TokenGrant{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
			Scope:        "user-read-email",
			ExpiresIn:    3600,
		},
		refreshGrant: &spotify.TokenGrant{AccessToken: "access-2", ExpiresIn: 3600},
	}
	profiles := &fakeProfileFetcher{
		profile: &spotify.Profile{ID: "sp-user", URL: "https://open.spotify.com/user/sp-user"},
	}

	refr := refresher.New(repo, exchanger, clock, 5*time.Minute, 10*time.Minute, zap.NewNop())
	svc := NewService(repo, exchanger, profiles, states, refr, clock, cfg, zap.NewNop())

	return &linkTestHarness{
		service:   svc,
		repo:      repo,
		exchanger: exchanger,
		profiles:  profiles,
		states:    states,
		clock:     clock,
	}
}

// ---- Tests ----

func TestService_BeginLink(t *testing.T) {
	h := newLinkTestHarness(t)

	raw, err := h.service.BeginLink(context.Background(), "discord-123")
	require.NoError(t, err)

	authURL, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "accounts.spotify.com", authURL.Host)

	params := authURL.Query()
	require.Equal(t, "code", params.Get("response_type"))
	require.Equal(t, "client-id", params.Get("client_id"))
	require.Equal(t, "https://link.example.com/callback", params.Get("redirect_uri"))
	require.Equal(t, strings.Join([]string{
		"user-read-email",
		"user-read-private",
		"playlist-read-private",
		"playlist-read-collaborative",
	}, " "), params.Get("scope"))

	// The user identity rides inside the state token, not the redirect URI.
	require.NotContains(t, params.Get("redirect_uri"), "discord-123")
	claims, err := h.states.Verify(params.Get("state"))
	require.NoError(t, err)
	require.Equal(t, "discord-123", claims.UserID)
}

func TestService_BeginLinkRequiresUser(t *testing.T) {
	h := newLinkTestHarness(t)
	_, err := h.service.BeginLink(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrMissingUser)
}

func TestService_CompleteLinkStoresCredential(t *testing.T) {
	h := newLinkTestHarness(t)
	ctx := context.Background()

	state, _, err := h.states.Issue("discord-123")
	require.NoError(t, err)

	now := h.clock.Now()
	cred, err := h.service.CompleteLink(ctx, "auth-code", state)
	require.NoError(t, err)
	require.Equal(t, "discord-123", cred.UserID)
	require.Equal(t, "access-1", cred.AccessToken)
	require.Equal(t, "refresh-1", cred.RefreshToken)
	require.Equal(t, now.Add(time.Hour), cred.ExpiresAt)
	require.True(t, cred.ExpiresAt.After(now))
	require.Equal(t, domain.StatusActive, cred.Status)
	require.Equal(t, "https://open.spotify.com/user/sp-user", cred.ProfileURL)

	stored, err := h.repo.Get(ctx, "discord-123")
	require.NoError(t, err)
	require.Equal(t, cred, stored)
}

func TestService_CompleteLinkMissingState(t *testing.T) {
	h := newLinkTestHarness(t)

	_, err := h.service.CompleteLink(context.Background(), "auth-code", "")
	require.ErrorIs(t, err, domain.ErrInvalidState)

	ids, err := h.repo.ListUserIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestService_CompleteLinkMissingCode(t *testing.T) {
	h := newLinkTestHarness(t)

	state, _, err := h.states.Issue("discord-123")
	require.NoError(t, err)

	_, err = h.service.CompleteLink(context.Background(), "", state)
	require.ErrorIs(t, err, domain.ErrMissingCode)

	ids, err := h.repo.ListUserIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestService_CompleteLinkRejectedExchangeWritesNothing(t *testing.T) {
	h := newLinkTestHarness(t)
	h.exchanger.exchangeErr = &domain.ExchangeError{Kind: domain.ExchangeRejected, ProviderCode: "invalid_grant"}

	state, _, err := h.states.Issue("discord-123")
	require.NoError(t, err)

	_, err = h.service.CompleteLink(context.Background(), "bad-code", state)
	require.True(t, domain.IsExchangeKind(err, domain.ExchangeRejected))

	ids, err := h.repo.ListUserIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestService_CompleteLinkWithoutRefreshTokenFlagsInactive(t *testing.T) {
	h := newLinkTestHarness(t)
	h.exchanger.exchangeGrant.RefreshToken = ""

	state, _, err := h.states.Issue("discord-123")
	require.NoError(t, err)

	cred, err := h.service.CompleteLink(context.Background(), "auth-code", state)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInactive, cred.Status)
	require.Equal(t, domain.ReasonNoRefreshToken, cred.StatusReason)
}

func TestService_CompleteLinkStoreFailureSurfaces(t *testing.T) {
	mem := repository.NewMemoryCredentialRepo()
	h := newLinkTestHarnessWithRepo(t, &failingPutRepo{MemoryCredentialRepo: mem, putErr: errors.New("disk full")})

	state, _, err := h.states.Issue("discord-123")
	require.NoError(t, err)

	_, err = h.service.CompleteLink(context.Background(), "auth-code", state)
	require.ErrorContains(t, err, "store credential")
	require.ErrorContains(t, err, "disk full")

	ids, err := mem.ListUserIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestService_CompleteLinkKeepsExistingProfileURL(t *testing.T) {
	h := newLinkTestHarness(t)
	ctx := context.Background()

	require.NoError(t, h.repo.Put(ctx, domain.Credential{
		UserID:     "discord-123",
		ProfileURL: "https://open.spotify.com/user/original",
		Status:     domain.StatusActive,
	}))

	state, _, err := h.states.Issue("discord-123")
	require.NoError(t, err)

	cred, err := h.service.CompleteLink(ctx, "auth-code", state)
	require.NoError(t, err)
	require.Equal(t, "https://open.spotify.com/user/original", cred.ProfileURL)
}

func TestService_CompleteLinkSurvivesProfileFailure(t *testing.T) {
	h := newLinkTestHarness(t)
	h.profiles.err = context.DeadlineExceeded
	h.profiles.profile = nil

	state, _, err := h.states.Issue("discord-123")
	require.NoError(t, err)

	cred, err := h.service.CompleteLink(context.Background(), "auth-code", state)
	require.NoError(t, err)
	require.Empty(t, cred.ProfileURL)
}

func TestService_CredentialNotFound(t *testing.T) {
	h := newLinkTestHarness(t)
	_, err := h.service.Credential(context.Background(), "unknown")
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestService_CredentialFreshIsReturnedWithoutRefresh(t *testing.T) {
	h := newLinkTestHarness(t)
	ctx := context.Background()

	require.NoError(t, h.repo.Put(ctx, domain.Credential{
		UserID:       "discord-123",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    h.clock.Now().Add(time.Hour),
		Status:       domain.StatusActive,
	}))

	cred, err := h.service.Credential(ctx, "discord-123")
	require.NoError(t, err)
	require.Equal(t, "access-1", cred.AccessToken)
	require.Zero(t, h.exchanger.refreshCalls)
}

func TestService_CredentialExpiredTriggersJustInTimeRefresh(t *testing.T) {
	h := newLinkTestHarness(t)
	ctx := context.Background()

	require.NoError(t, h.repo.Put(ctx, domain.Credential{
		UserID:       "discord-123",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    h.clock.Now().Add(-time.Minute),
		Status:       domain.StatusActive,
	}))

	cred, err := h.service.Credential(ctx, "discord-123")
	require.NoError(t, err)
	require.Equal(t, "access-2", cred.AccessToken)
	require.Equal(t, 1, h.exchanger.refreshCalls)
}

func TestService_CredentialTransientRefreshFailureReturnsStored(t *testing.T) {
	h := newLinkTestHarness(t)
	ctx := context.Background()

	stored := domain.Credential{
		UserID:       "discord-123",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    h.clock.Now().Add(-time.Minute),
		Status:       domain.StatusActive,
	}
	require.NoError(t, h.repo.Put(ctx, stored))
	h.exchanger.refreshErr = &domain.ExchangeError{Kind: domain.ExchangeTransient, StatusCode: 503}

	cred, err := h.service.Credential(ctx, "discord-123")
	require.NoError(t, err)
	require.Equal(t, stored, cred)
}

func TestService_CredentialRejectedRefreshReturnsFlaggedRecord(t *testing.T) {
	h := newLinkTestHarness(t)
	ctx := context.Background()

	require.NoError(t, h.repo.Put(ctx, domain.Credential{
		UserID:       "discord-123",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    h.clock.Now().Add(-time.Minute),
		Status:       domain.StatusActive,
	}))
	h.exchanger.refreshErr = &domain.ExchangeError{Kind: domain.ExchangeRejected, ProviderCode: "invalid_grant"}

	cred, err := h.service.Credential(ctx, "discord-123")
	require.NoError(t, err)
	require.Equal(t, domain.StatusInactive, cred.Status)
	require.Equal(t, domain.ReasonRefreshRejected, cred.StatusReason)
}

type failingPutRepo struct {
	*repository.MemoryCredentialRepo
	putErr error
}

func (f *failingPutRepo) Put(ctx context.Context, cred domain.Credential) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryCredentialRepo.Put(ctx, cred)
}
