// Package auth resolves external login credentials to local users and
// issues the bearer tokens every other endpoint trusts.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CinitSwift/divide/internal/domain"
)

// UserRepository interface for auth operations
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, nickname, avatarURL string) (*domain.User, error)
}

// Service handles authentication logic
type Service struct {
	users    UserRepository
	provider Provider
	tokens   *TokenService
	logger   *slog.Logger
}

// NewService creates an auth service
func NewService(users UserRepository, provider Provider, tokens *TokenService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		provider: provider,
		tokens:   tokens,
		logger:   logger.With("component", "auth"),
	}
}

// LoginInput for credential exchange. Nickname and avatar are optional
// client-side profile pushes applied on top of the provider identity.
type LoginInput struct {
	Code      string `json:"code"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
}

// LoginResult is the issued session.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// Login exchanges a provider code for an identity, upserts the user and
// issues a bearer token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if strings.TrimSpace(input.Code) == "" {
		return nil, domain.ErrUnauthenticated
	}

	identity, err := s.provider.Exchange(ctx, input.Code)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:          uuid.New(),
		ProviderUID: identity.ProviderUID,
		Nickname:    firstNonEmpty(strings.TrimSpace(input.Nickname), identity.Nickname),
		AvatarURL:   firstNonEmpty(strings.TrimSpace(input.AvatarURL), identity.AvatarURL),
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	// First login with no profile at all: give the user a visible name.
	if user.Nickname == "" {
		named, err := s.users.UpdateProfile(ctx, user.ID, defaultNickname(user.ID), user.AvatarURL)
		if err != nil {
			return nil, fmt.Errorf("name new user: %w", err)
		}
		user = named
	}

	token, expiresAt, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user", user.ID)
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

// ValidateToken validates an access token and returns claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return s.tokens.Validate(tokenString)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateProfileInput for profile edits. Empty fields keep current values.
type UpdateProfileInput struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
}

// UpdateProfile changes the caller's display fields.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*domain.User, error) {
	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	nickname := strings.TrimSpace(input.Nickname)
	if nickname == "" {
		nickname = current.Nickname
	}
	avatarURL := strings.TrimSpace(input.AvatarURL)
	if avatarURL == "" {
		avatarURL = current.AvatarURL
	}

	return s.users.UpdateProfile(ctx, userID, nickname, avatarURL)
}

// TokenTTL returns the session lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func defaultNickname(id uuid.UUID) string {
	return "player-" + id.String()[:8]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
