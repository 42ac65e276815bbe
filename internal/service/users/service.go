package users

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/service"
	"meetly/backend/internal/store"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,38}[a-z0-9]$`)

type Service struct {
	repo store.UserRepository
	log  *slog.Logger
}

func NewService(repo store.UserRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With(slog.String("component", "service.users"))}
}

type ProfileInput struct {
	Username string
	Name     string
	Email    string
	ImageURL string
}

// Sync stores the profile the identity provider reports for userID.
func (s *Service) Sync(ctx context.Context, userID string, in ProfileInput) (domain.User, error) {
	if userID == "" {
		return domain.User{}, service.Validation("user_id is required")
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if !usernamePattern.MatchString(username) {
		return domain.User{}, service.Validation("username must be 3-40 lowercase letters, digits, '.', '_' or '-'")
	}

	u, err := s.repo.UpsertUser(ctx, domain.User{
		ID:       userID,
		Username: username,
		Name:     strings.TrimSpace(in.Name),
		Email:    strings.TrimSpace(in.Email),
		ImageURL: strings.TrimSpace(in.ImageURL),
	})
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("profile synced", slog.String("user_id", userID), slog.String("username", username))
	return u, nil
}

func (s *Service) Get(ctx context.Context, userID string) (domain.User, error) {
	if userID == "" {
		return domain.User{}, service.Validation("user_id is required")
	}
	return s.repo.GetUser(ctx, userID)
}
