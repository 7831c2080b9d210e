package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

// ActionTokenRepository stores email verification and password reset tokens.
type ActionTokenRepository struct {
	pool *pgxpool.Pool
}

func NewActionTokenRepository(pool *pgxpool.Pool) *ActionTokenRepository {
	return &ActionTokenRepository{pool: pool}
}

func (r *ActionTokenRepository) Save(ctx context.Context, t model.ActionToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO action_tokens (token_hash, kind, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.TokenHash, string(t.Kind), t.UserID, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store action token: %w", err)
	}
	return nil
}

// Find returns the token even when expired; callers decide what expiry means.
func (r *ActionTokenRepository) Find(ctx context.Context, tokenHash string) (model.ActionToken, error) {
	var t model.ActionToken
	var kind string
	err := r.pool.QueryRow(ctx,
		`SELECT token_hash, kind, user_id, expires_at, created_at
		 FROM action_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&t.TokenHash, &kind, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ActionToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.ActionToken{}, fmt.Errorf("find action token: %w", err)
	}
	t.Kind = model.ActionKind(kind)
	return t, nil
}

func (r *ActionTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM action_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete action token: %w", err)
	}
	return nil
}

func (r *ActionTokenRepository) DeleteForUser(ctx context.Context, userID string, kind model.ActionKind) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM action_tokens WHERE user_id = $1 AND kind = $2`, userID, string(kind))
	if err != nil {
		return fmt.Errorf("delete action tokens for user: %w", err)
	}
	return nil
}

func (r *ActionTokenRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM action_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("clean expired action tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
