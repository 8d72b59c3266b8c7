package user

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-pos/internal/db"
)

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, in NewUser) (User, error)
	Update(ctx context.Context, id string, in UpdateInput) (User, error)
	SetStatus(ctx context.Context, id string, status Status) (User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
}

const columns = `id::text, username, email, phone, status, role, password_hash, created_at, updated_at`

const (
	emailConstraint = "users_email_lower_key"
	phoneConstraint = "users_phone_key"
)

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.Status, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

// Create inserts an account.
func (s *PGStore) Create(ctx context.Context, in NewUser) (User, error) {
	u, err := scanUser(s.DB.QueryRow(ctx, `
		INSERT INTO users (username, email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+columns,
		in.Username, in.Email, in.Phone, in.PasswordHash, string(in.Role)))
	if err != nil {
		return User{}, mapWriteError(err, "insert user")
	}
	return u, nil
}

// Update applies the non-nil fields of in.
func (s *PGStore) Update(ctx context.Context, id string, in UpdateInput) (User, error) {
	var role *string
	if in.Role != nil {
		v := string(*in.Role)
		role = &v
	}
	u, err := scanUser(s.DB.QueryRow(ctx, `
		UPDATE users SET
			username = COALESCE($2, username),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			role = COALESCE($5, role),
			updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+columns,
		id, in.Username, in.Email, in.Phone, role))
	if err != nil {
		return User{}, mapWriteError(err, "update user")
	}
	return u, nil
}

// SetStatus changes the account status.
func (s *PGStore) SetStatus(ctx context.Context, id string, status Status) (User, error) {
	u, err := scanUser(s.DB.QueryRow(ctx, `
		UPDATE users SET status = $2, updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+columns, id, string(status)))
	if err != nil {
		return User{}, mapWriteError(err, "update user status")
	}
	return u, nil
}

// SetPasswordHash replaces the stored password hash.
func (s *PGStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1::uuid`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads an account by id.
func (s *PGStore) Get(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.DB.QueryRow(ctx, `SELECT `+columns+` FROM users WHERE id = $1::uuid`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail loads an account by case-insensitive email.
func (s *PGStore) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.DB.QueryRow(ctx, `SELECT `+columns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// List returns every account ordered by username.
func (s *PGStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+columns+` FROM users ORDER BY lower(username), created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func mapWriteError(err error, op string) error {
	switch {
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		switch db.ConstraintName(err) {
		case phoneConstraint:
			return ErrDuplicatePhone
		case emailConstraint:
			return ErrDuplicateEmail
		}
		return ErrDuplicateEmail
	}
	return fmt.Errorf("%s: %w", op, err)
}
