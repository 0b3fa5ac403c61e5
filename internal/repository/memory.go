package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
)

// MemoryCredentialRepo is an in-memory CredentialRepository. Writes per key
// are serialized by the mutex; last write wins.
type MemoryCredentialRepo struct {
	mu    sync.RWMutex
	creds map[string]domain.Credential
}

var _ CredentialRepository = (*MemoryCredentialRepo)(nil)

func NewMemoryCredentialRepo() *MemoryCredentialRepo {
	return &MemoryCredentialRepo{creds: make(map[string]domain.Credential)}
}

func (r *MemoryCredentialRepo) Get(_ context.Context, userID string) (domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.creds[userID]
	if !ok {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	return cred, nil
}

func (r *MemoryCredentialRepo) Put(_ context.Context, cred domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[cred.UserID] = cred
	return nil
}

func (r *MemoryCredentialRepo) ListUserIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.creds))
	for id := range r.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
