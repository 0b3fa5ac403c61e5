package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
)

// PostgresCredentialRepo implements CredentialRepository on pgx.
type PostgresCredentialRepo struct {
	pool *pgxpool.Pool
}

var _ CredentialRepository = (*PostgresCredentialRepo)(nil)

func NewPostgresCredentialRepo(pool *pgxpool.Pool) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{pool: pool}
}

const credentialColumns = `user_id, access_token, refresh_token, scope, token_type, profile_url, expires_at, last_updated, status, status_reason`

func (r *PostgresCredentialRepo) Get(ctx context.Context, userID string) (domain.Credential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE user_id = $1`, userID)

	var cred domain.Credential
	err := row.Scan(
		&cred.UserID,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.Scope,
		&cred.TokenType,
		&cred.ProfileURL,
		&cred.ExpiresAt,
		&cred.LastUpdated,
		&cred.Status,
		&cred.StatusReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credential{}, domain.ErrCredentialNotFound
		}
		return domain.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

// Put upserts the whole record. The single-statement upsert keeps concurrent
// readers from ever observing a half-written row.
func (r *PostgresCredentialRepo) Put(ctx context.Context, cred domain.Credential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			token_type = EXCLUDED.token_type,
			profile_url = EXCLUDED.profile_url,
			expires_at = EXCLUDED.expires_at,
			last_updated = EXCLUDED.last_updated,
			status = EXCLUDED.status,
			status_reason = EXCLUDED.status_reason`,
		cred.UserID,
		cred.AccessToken,
		cred.RefreshToken,
		cred.Scope,
		cred.TokenType,
		cred.ProfileURL,
		cred.ExpiresAt,
		cred.LastUpdated,
		cred.Status,
		cred.StatusReason,
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (r *PostgresCredentialRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM credentials ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan credential id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return ids, nil
}
