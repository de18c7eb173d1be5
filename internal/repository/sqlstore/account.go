package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new account. Emails are stored lower-cased; a second
// account with the same email is rejected with apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	if _, err := db.GetByEmail(ctx, user.Email); err == nil {
		return apperror.Conflict("user", user.Email)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO users (id, email, password_hash, verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Verified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound if no account has that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

// GetByEmail matches case-insensitively.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT id, email, password_hash, verified, created_at, updated_at
		 FROM users WHERE `+column+` = ?`),
		value,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Verified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlstore: getting user by %s: %w", column, err)
	}
	return &u, nil
}

func (db *DB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return db.updateUser(ctx, id, "password_hash", passwordHash)
}

// UpdateEmail changes the login email. The new address must not belong to
// another account.
func (db *DB) UpdateEmail(ctx context.Context, id, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := db.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != id:
		return apperror.Conflict("user", email)
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return err
	}
	return db.updateUser(ctx, id, "email", email)
}

func (db *DB) MarkVerified(ctx context.Context, id string) error {
	return db.updateUser(ctx, id, "verified", true)
}

func (db *DB) updateUser(ctx context.Context, id, column string, value any) error {
	result, err := db.conn.ExecContext(ctx, db.rebind(
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`),
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating user %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
