package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
)

// KeyRepositoryPG resolves API key hashes to caller identities.
type KeyRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewKeyRepository creates an API key repository backed by PostgreSQL.
func NewKeyRepository(pool *pgxpool.Pool) *KeyRepositoryPG {
	return &KeyRepositoryPG{pool: pool}
}

// Resolve implements domain.KeyRepository. Only the SHA-256 hash of a key is
// ever stored or compared.
func (r *KeyRepositoryPG) Resolve(ctx context.Context, keyHash string) (*domain.CallerIdentity, error) {
	query := `
SELECT caller_id, tier
FROM api_keys
WHERE key_hash = $1 AND revoked_at IS NULL;
`
	row := r.pool.QueryRow(ctx, query, keyHash)
	var identity domain.CallerIdentity
	if err := row.Scan(&identity.ID, &identity.Tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	return &identity, nil
}

// Mint registers a key hash for a caller. Used by the callerkey admin tool.
func (r *KeyRepositoryPG) Mint(ctx context.Context, keyHash, callerID string, tier domain.QuotaTier) error {
	query := `
INSERT INTO api_keys (key_hash, caller_id, tier)
VALUES ($1, $2, $3)
ON CONFLICT (key_hash) DO UPDATE SET caller_id = $2, tier = $3, revoked_at = NULL;
`
	_, err := r.pool.Exec(ctx, query, keyHash, callerID, tier)
	return err
}

var _ domain.KeyRepository = (*KeyRepositoryPG)(nil)
