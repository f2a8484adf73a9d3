package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CinitSwift/divide/internal/domain"
)

// UserRepository handles user data access
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert creates a user on first login, keyed by the provider identity.
// Later logins refresh nickname and avatar when the provider (or client)
// sends non-empty values, and leave the stored ones alone otherwise.
func (r *UserRepository) Upsert(ctx context.Context, user *domain.User) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO users (id, provider_uid, nickname, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT users_provider_uid_key DO UPDATE
		SET nickname   = COALESCE(NULLIF(EXCLUDED.nickname, ''), users.nickname),
		    avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
		    updated_at = NOW()
		RETURNING id, provider_uid, nickname, avatar_url, created_at, updated_at
	`, user.ID, user.ProviderUID, user.Nickname, user.AvatarURL).Scan(
		&user.ID, &user.ProviderUID, &user.Nickname, &user.AvatarURL,
		&user.CreatedAt, &user.UpdatedAt,
	)
}

// GetByID finds a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, provider_uid, nickname, avatar_url, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID, &user.ProviderUID, &user.Nickname, &user.AvatarURL,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// UpdateProfile updates the display fields pushed in through the profile
// interface.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, nickname, avatarURL string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE users
		SET nickname = $2, avatar_url = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, provider_uid, nickname, avatar_url, created_at, updated_at
	`, userID, nickname, avatarURL).Scan(
		&user.ID, &user.ProviderUID, &user.Nickname, &user.AvatarURL,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}
