package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/custodia/internal/domain/repository"
)

const userCols = `id, username, email, password_hash, active, locked,
       deactivated_at, must_change_password, terms_accepted_at IS NOT NULL,
       failed_logins, last_login_at, created_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Active, &u.Locked,
		&u.DeactivatedAt, &u.MustChangePassword, &u.TermsAccepted,
		&u.FailedLogins, &u.LastLoginAt, &u.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	const q = `SELECT ` + userCols + ` FROM app_user WHERE LOWER(username) = LOWER($1) LIMIT 1`
	return scanUser(s.pool.QueryRow(ctx, q, username))
}

func (s *Store) GetByID(ctx context.Context, userID string) (*repository.User, error) {
	const q = `SELECT ` + userCols + ` FROM app_user WHERE id = $1 LIMIT 1`
	return scanUser(s.pool.QueryRow(ctx, q, userID))
}

func (s *Store) RecordLoginAttempt(ctx context.Context, userID string, success bool, at time.Time) error {
	if success {
		const q = `UPDATE app_user SET failed_logins = 0, last_login_at = $2 WHERE id = $1`
		tag, err := s.pool.Exec(ctx, q, userID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	}
	const q = `UPDATE app_user SET failed_logins = failed_logins + 1 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	const q = `UPDATE app_user SET password_hash = $2, must_change_password = false WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, userID, newHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) SetTermsAccepted(ctx context.Context, userID string, at time.Time) error {
	const q = `UPDATE app_user SET terms_accepted_at = $2 WHERE id = $1 AND terms_accepted_at IS NULL`
	_, err := s.pool.Exec(ctx, q, userID, at)
	return err
}

var _ repository.UserRepository = (*Store)(nil)
