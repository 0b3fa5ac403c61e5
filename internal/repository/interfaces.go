package repository

import (
	"context"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
)

// CredentialRepository is the durable per-user credential store.
type CredentialRepository interface {
	// Get returns the stored credential or domain.ErrCredentialNotFound.
	Get(ctx context.Context, userID string) (domain.Credential, error)
	// Put fully overwrites the credential for its user id.
	Put(ctx context.Context, cred domain.Credential) error
	// ListUserIDs enumerates every known user identity. Expiry filtering is
	// the caller's job.
	ListUserIDs(ctx context.Context) ([]string, error)
}
