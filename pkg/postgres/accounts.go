package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// CreateAccount inserts a new account
func (d *DB) CreateAccount(ctx context.Context, account model.Account) error {
	var hash *string
	if account.PasswordHash != "" {
		hash = &account.PasswordHash
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, provider)
		VALUES ($1, $2, $3, $4)
	`, string(account.ID), strings.ToLower(account.Email), hash, account.Provider)
	if err != nil {
		if isUniqueViolation(err) {
			return gateway.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert account: %w", classify(err))
	}
	return nil
}

// GetAccountByEmail looks an account up by email, case-insensitively
func (d *DB) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	var a model.Account
	var id string
	var hash *string
	err := d.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, provider, created_at
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&id, &a.Email, &hash, &a.Provider, &a.CreatedAt)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to get account: %w", classify(err))
	}
	a.ID = model.Identity(id)
	if hash != nil {
		a.PasswordHash = *hash
	}
	return a, nil
}

// CreateSession stores a session token for an account
func (d *DB) CreateSession(ctx context.Context, token string, account model.Identity, expiresAt time.Time) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO sessions (token, account_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, string(account), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", classify(err))
	}
	return nil
}

// LookupSession returns the identity behind an unexpired token
func (d *DB) LookupSession(ctx context.Context, token string) (model.Identity, error) {
	if token == "" {
		return "", gateway.ErrAuthenticationRequired
	}

	var id string
	err := d.pool.QueryRow(ctx, `
		SELECT account_id FROM sessions
		WHERE token = $1 AND expires_at > NOW()
	`, token).Scan(&id)
	if err != nil {
		err = classify(err)
		if errors.Is(err, gateway.ErrNotFound) {
			return "", gateway.ErrAuthenticationRequired
		}
		return "", fmt.Errorf("failed to look up session: %w", err)
	}
	return model.Identity(id), nil
}

// DeleteSession removes a session token. Unknown tokens are not an error.
func (d *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := d.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", classify(err))
	}
	return nil
}

// PurgeExpiredSessions deletes expired sessions and returns how many were removed
func (d *DB) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", classify(err))
	}
	return tag.RowsAffected(), nil
}
