package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/service"
	"meetly/backend/internal/store"
)

type userReader interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type Service struct {
	repo  store.EventRepository
	users userReader
	log   *slog.Logger
}

func NewService(repo store.EventRepository, users userReader, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, users: users, log: log.With(slog.String("component", "service.events"))}
}

type CreateInput struct {
	Title           string
	Description     string
	DurationMinutes int
	IsPrivate       bool
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (domain.Event, error) {
	if userID == "" {
		return domain.Event{}, service.Validation("user_id is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Event{}, service.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > domain.MaxEventTitleLen {
		return domain.Event{}, service.Validationf("title must be at most %d characters", domain.MaxEventTitleLen)
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > domain.MaxEventDescriptionLen {
		return domain.Event{}, service.Validationf("description must be at most %d characters", domain.MaxEventDescriptionLen)
	}
	if in.DurationMinutes <= 0 {
		return domain.Event{}, service.Validation("duration must be positive")
	}
	if in.DurationMinutes > domain.MaxEventDuration {
		return domain.Event{}, service.Validation("duration must be at most one day")
	}

	ev, err := s.repo.CreateEvent(ctx, domain.Event{
		UserID:          userID,
		Title:           title,
		Description:     description,
		DurationMinutes: in.DurationMinutes,
		IsPrivate:       in.IsPrivate,
	})
	if err != nil {
		return domain.Event{}, err
	}
	s.log.Info("event created", slog.String("event_id", ev.ID.String()), slog.String("user_id", userID))
	return ev, nil
}

type List struct {
	Username string
	Events   []domain.Event
}

// List returns the host's events newest first with booking counts.
func (s *Service) List(ctx context.Context, userID string) (List, error) {
	if userID == "" {
		return List{}, service.Validation("user_id is required")
	}
	rows, err := s.repo.ListEvents(ctx, userID)
	if err != nil {
		return List{}, err
	}
	if rows == nil {
		rows = []domain.Event{}
	}

	out := List{Events: rows}
	u, err := s.users.GetUser(ctx, userID)
	switch {
	case err == nil:
		out.Username = u.Username
	case !errors.Is(err, store.ErrNotFound):
		return List{}, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, userID string, eventID uuid.UUID) error {
	if userID == "" {
		return service.Validation("user_id is required")
	}
	if eventID == uuid.Nil {
		return service.Validation("event_id is required")
	}
	if err := s.repo.DeleteEvent(ctx, userID, eventID); err != nil {
		return err
	}
	s.log.Info("event deleted", slog.String("event_id", eventID.String()), slog.String("user_id", userID))
	return nil
}

// Details is the public view of one event, addressed by its host's username.
func (s *Service) Details(ctx context.Context, username string, eventID uuid.UUID) (domain.Event, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Event{}, service.Validation("username is required")
	}
	if eventID == uuid.Nil {
		return domain.Event{}, service.Validation("event_id is required")
	}

	host, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.Event{}, err
	}
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if ev.UserID != host.ID {
		return domain.Event{}, store.ErrNotFound
	}
	ev.User = &host
	return ev, nil
}
