package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
)

// Provider names with stored credentials.
const (
	ProviderReplicate = "replicate"
)

// CredentialRepositoryPG stores provider API tokens so they can be rotated
// without redeploying. An environment variable still wins when set.
type CredentialRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a credential repository backed by PostgreSQL.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepositoryPG {
	return &CredentialRepositoryPG{pool: pool}
}

// Token implements domain.CredentialRepository. A missing credential returns
// an empty token, not an error; the caller decides whether that is fatal.
func (r *CredentialRepositoryPG) Token(ctx context.Context, provider string) (string, error) {
	query := `
SELECT token
FROM integration_tokens
WHERE provider = $1;
`
	row := r.pool.QueryRow(ctx, query, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken upserts the credential for a provider.
func (r *CredentialRepositoryPG) SetToken(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	query := `
INSERT INTO integration_tokens (provider, token)
VALUES ($1, $2)
ON CONFLICT (provider) DO UPDATE SET token = $2, updated_at = NOW();
`
	_, err := r.pool.Exec(ctx, query, provider, token)
	return err
}

var _ domain.CredentialRepository = (*CredentialRepositoryPG)(nil)
