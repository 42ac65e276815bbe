package events

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/service"
	"meetly/backend/internal/store"
)

type fakeRepo struct {
	createFn func(ctx context.Context, ev domain.Event) (domain.Event, error)
	getFn    func(ctx context.Context, eventID uuid.UUID) (domain.Event, error)
	listFn   func(ctx context.Context, userID string) ([]domain.Event, error)
	deleteFn func(ctx context.Context, userID string, eventID uuid.UUID) error
}

func (f *fakeRepo) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if f.createFn == nil {
		panic("CreateEvent not configured")
	}
	return f.createFn(ctx, ev)
}

func (f *fakeRepo) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	if f.getFn == nil {
		panic("GetEvent not configured")
	}
	return f.getFn(ctx, eventID)
}

func (f *fakeRepo) ListEvents(ctx context.Context, userID string) ([]domain.Event, error) {
	if f.listFn == nil {
		panic("ListEvents not configured")
	}
	return f.listFn(ctx, userID)
}

func (f *fakeRepo) DeleteEvent(ctx context.Context, userID string, eventID uuid.UUID) error {
	if f.deleteFn == nil {
		panic("DeleteEvent not configured")
	}
	return f.deleteFn(ctx, userID, eventID)
}

type fakeUsers struct {
	getFn           func(ctx context.Context, userID string) (domain.User, error)
	getByUsernameFn func(ctx context.Context, username string) (domain.User, error)
}

func (f *fakeUsers) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if f.getFn == nil {
		panic("GetUser not configured")
	}
	return f.getFn(ctx, userID)
}

func (f *fakeUsers) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	if f.getByUsernameFn == nil {
		panic("GetUserByUsername not configured")
	}
	return f.getByUsernameFn(ctx, username)
}

var evID = uuid.MustParse("00000000-0000-0000-0000-000000000201")

func TestCreate_Validation(t *testing.T) {
	svc := NewService(&fakeRepo{}, &fakeUsers{}, nil)

	tests := []struct {
		name string
		in   CreateInput
		want string
	}{
		{name: "blank title", in: CreateInput{Title: "   ", DurationMinutes: 30}, want: "title is required"},
		{name: "long title", in: CreateInput{Title: strings.Repeat("x", 101), DurationMinutes: 30}, want: "title must be at most 100 characters"},
		{name: "long description", in: CreateInput{Title: "t", Description: strings.Repeat("d", 501), DurationMinutes: 30}, want: "description must be at most 500 characters"},
		{name: "zero duration", in: CreateInput{Title: "t"}, want: "duration must be positive"},
		{name: "too long", in: CreateInput{Title: "t", DurationMinutes: 1441}, want: "duration must be at most one day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "host-1", tt.in)
			var vErr *service.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v (%T), want *ValidationError", err, err)
			}
			if vErr.Error() != tt.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), tt.want)
			}
		})
	}
}

func TestCreate_TrimsAndStores(t *testing.T) {
	var got domain.Event
	svc := NewService(&fakeRepo{createFn: func(ctx context.Context, ev domain.Event) (domain.Event, error) {
		got = ev
		ev.ID = evID
		return ev, nil
	}}, &fakeUsers{}, nil)

	ev, err := svc.Create(context.Background(), "host-1", CreateInput{Title: "  Intro call ", Description: " hi ", DurationMinutes: 30, IsPrivate: true})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.Title != "Intro call" || got.Description != "hi" || got.UserID != "host-1" || !got.IsPrivate {
		t.Fatalf("stored = %+v", got)
	}
	if ev.ID != evID {
		t.Fatalf("id = %s, want %s", ev.ID, evID)
	}
}

func TestList_IncludesUsernameAndToleratesMissingProfile(t *testing.T) {
	repo := &fakeRepo{listFn: func(ctx context.Context, userID string) ([]domain.Event, error) {
		return nil, nil
	}}

	svc := NewService(repo, &fakeUsers{getFn: func(ctx context.Context, userID string) (domain.User, error) {
		return domain.User{ID: userID, Username: "ada"}, nil
	}}, nil)
	out, err := svc.List(context.Background(), "host-1")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if out.Username != "ada" || out.Events == nil {
		t.Fatalf("list = %+v", out)
	}

	svc = NewService(repo, &fakeUsers{getFn: func(ctx context.Context, userID string) (domain.User, error) {
		return domain.User{}, store.ErrNotFound
	}}, nil)
	out, err = svc.List(context.Background(), "host-1")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if out.Username != "" {
		t.Fatalf("username = %q, want empty", out.Username)
	}
}

func TestDetails_RejectsEventOfAnotherHost(t *testing.T) {
	svc := NewService(&fakeRepo{getFn: func(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
		return domain.Event{ID: eventID, UserID: "host-2"}, nil
	}}, &fakeUsers{getByUsernameFn: func(ctx context.Context, username string) (domain.User, error) {
		return domain.User{ID: "host-1", Username: username}, nil
	}}, nil)

	_, err := svc.Details(context.Background(), "ada", evID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestDetails_AttachesHost(t *testing.T) {
	svc := NewService(&fakeRepo{getFn: func(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
		return domain.Event{ID: eventID, UserID: "host-1", Title: "Intro"}, nil
	}}, &fakeUsers{getByUsernameFn: func(ctx context.Context, username string) (domain.User, error) {
		return domain.User{ID: "host-1", Username: username, Name: "Ada"}, nil
	}}, nil)

	ev, err := svc.Details(context.Background(), "ada", evID)
	if err != nil {
		t.Fatalf("Details error: %v", err)
	}
	if ev.User == nil || ev.User.Name != "Ada" {
		t.Fatalf("user = %+v", ev.User)
	}
}

func TestDelete_PassesNotFoundThrough(t *testing.T) {
	svc := NewService(&fakeRepo{deleteFn: func(ctx context.Context, userID string, eventID uuid.UUID) error {
		return store.ErrNotFound
	}}, &fakeUsers{}, nil)

	if err := svc.Delete(context.Background(), "host-1", evID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
	if err := svc.Delete(context.Background(), "host-1", uuid.Nil); err == nil {
		t.Fatalf("expected validation error for nil id")
	}
}
