package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
)

func TestMemoryCredentialRepo_RoundTrip(t *testing.T) {
	repo := NewMemoryCredentialRepo()
	ctx := context.Background()

	cred := domain.Credential{
		UserID:       "discord-1",
		AccessToken:  "access",
		RefreshToken: "refresh",
		Scope:        "user-read-email",
		TokenType:    "Bearer",
		ProfileURL:   "https://open.spotify.com/user/u",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		LastUpdated:  time.Now().UTC(),
		Status:       domain.StatusActive,
	}
	require.NoError(t, repo.Put(ctx, cred))

	got, err := repo.Get(ctx, "discord-1")
	require.NoError(t, err)
	require.Equal(t, cred, got)
}

func TestMemoryCredentialRepo_NotFound(t *testing.T) {
	repo := NewMemoryCredentialRepo()
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestMemoryCredentialRepo_LastWriteWins(t *testing.T) {
	repo := NewMemoryCredentialRepo()
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, domain.Credential{UserID: "u", AccessToken: "one"}))
	require.NoError(t, repo.Put(ctx, domain.Credential{UserID: "u", AccessToken: "two"}))

	got, err := repo.Get(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, "two", got.AccessToken)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"u"}, ids)
}

func TestMemoryCredentialRepo_ListIsRestartable(t *testing.T) {
	repo := NewMemoryCredentialRepo()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Put(ctx, domain.Credential{UserID: id}))
	}

	first, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	second, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, first)
	require.Equal(t, first, second)
}
