package httptransport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"meetly/backend/internal/calendar"
	"meetly/backend/internal/domain"
	"meetly/backend/internal/service"
	"meetly/backend/internal/service/availability"
	"meetly/backend/internal/service/events"
	"meetly/backend/internal/service/meetings"
	"meetly/backend/internal/service/users"
	"meetly/backend/internal/store"
)

// UserIDHeader carries the caller's id, set by the authenticating gateway.
const UserIDHeader = "X-User-Id"

type availabilityService interface {
	EventAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.DayAvailability, error)
	EventSlots(ctx context.Context, eventID uuid.UUID) (domain.Event, []domain.DayAvailability, error)
	Schedule(ctx context.Context, userID string) (domain.Schedule, error)
	UpdateSchedule(ctx context.Context, userID string, in availability.ScheduleInput) (domain.Schedule, error)
	Location() *time.Location
}

type eventsService interface {
	Create(ctx context.Context, userID string, in events.CreateInput) (domain.Event, error)
	List(ctx context.Context, userID string) (events.List, error)
	Delete(ctx context.Context, userID string, eventID uuid.UUID) error
	Details(ctx context.Context, username string, eventID uuid.UUID) (domain.Event, error)
}

type meetingsService interface {
	Book(ctx context.Context, in meetings.BookInput) (domain.Booking, error)
	List(ctx context.Context, userID string, kind meetings.Kind) ([]domain.Booking, error)
	Latest(ctx context.Context, userID string) ([]domain.Booking, error)
	Cancel(ctx context.Context, userID string, bookingID uuid.UUID) error
}

type usersService interface {
	Sync(ctx context.Context, userID string, in users.ProfileInput) (domain.User, error)
	Get(ctx context.Context, userID string) (domain.User, error)
}

type Handler struct {
	availability availabilityService
	events       eventsService
	meetings     meetingsService
	users        usersService
	log          *slog.Logger
	now          func() time.Time
}

func NewHandler(av availabilityService, ev eventsService, mt meetingsService, us usersService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		availability: av,
		events:       ev,
		meetings:     mt,
		users:        us,
		log:          log.With(slog.String("component", "http.api")),
		now:          time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/events/{eventID}/availability", h.getAvailability)
	mux.HandleFunc("GET /api/v1/events/{eventID}/availability.ics", h.getAvailabilityICS)
	mux.HandleFunc("POST /api/v1/events/{eventID}/bookings", h.createBooking)
	mux.HandleFunc("GET /api/v1/users/{username}/events/{eventID}", h.getEventDetails)

	mux.HandleFunc("GET /api/v1/profile", h.authed(h.getProfile))
	mux.HandleFunc("PUT /api/v1/profile", h.authed(h.putProfile))
	mux.HandleFunc("GET /api/v1/schedule", h.authed(h.getSchedule))
	mux.HandleFunc("PUT /api/v1/schedule", h.authed(h.putSchedule))
	mux.HandleFunc("GET /api/v1/events", h.authed(h.listEvents))
	mux.HandleFunc("POST /api/v1/events", h.authed(h.createEvent))
	mux.HandleFunc("DELETE /api/v1/events/{eventID}", h.authed(h.deleteEvent))
	mux.HandleFunc("GET /api/v1/meetings", h.authed(h.listMeetings))
	mux.HandleFunc("GET /api/v1/meetings/latest", h.authed(h.latestMeetings))
	mux.HandleFunc("GET /api/v1/meetings.ics", h.authed(h.meetingsICS))
	mux.HandleFunc("POST /api/v1/meetings/cancel", h.authed(h.cancelMeeting))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (h *Handler) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	}
}

// writeError maps service errors to status codes. Only unexpected errors are logged as errors.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *service.ValidationError
	var irErr *domain.InvalidRequestError
	switch {
	case errors.As(err, &vErr):
		writeJSONError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &irErr):
		writeJSONError(w, http.StatusBadRequest, irErr.Error())
	case errors.Is(err, errBadJSON):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrConflict):
		writeJSONError(w, http.StatusConflict, "that time is no longer available")
	case errors.Is(err, store.ErrIdempotencyConflict):
		writeJSONError(w, http.StatusConflict, "idempotency key was already used for a different booking")
	default:
		h.log.Error("request failed",
			slog.Any("err", err),
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, service.Validationf("%s must be a UUID", name)
	}
	return id, nil
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "eventID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	days, err := h.availability.EventAvailability(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (h *Handler) getAvailabilityICS(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "eventID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, days, err := h.availability.EventSlots(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cal, err := calendar.Slots(ev, days, h.availability.Location(), h.now())
	h.writeCalendar(w, r, cal, err)
}

// writeCalendar buffers the encoded calendar; an empty one is 204.
func (h *Handler) writeCalendar(w http.ResponseWriter, r *http.Request, cal *ical.Calendar, err error) {
	if errors.Is(err, calendar.ErrEmptyCalendar) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := calendar.Encode(&buf, cal); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type bookingRequest struct {
	StartTime      *time.Time `json:"startTime"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	AdditionalInfo string     `json:"additionalInfo"`
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "eventID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var start time.Time
	switch {
	case req.StartTime != nil:
		start = *req.StartTime
	case req.Date != "" && req.Time != "":
		day, err := time.ParseInLocation(domain.DateLayout, req.Date, h.availability.Location())
		if err != nil {
			h.writeError(w, r, service.Validation("date must be YYYY-MM-DD"))
			return
		}
		tod, err := domain.ParseTimeOfDay(req.Time)
		if err != nil {
			h.writeError(w, r, service.Validation("time must be HH:MM"))
			return
		}
		start = tod.On(day, h.availability.Location())
	default:
		h.writeError(w, r, service.Validation("startTime or date and time are required"))
		return
	}

	b, err := h.meetings.Book(r.Context(), meetings.BookInput{
		EventID:        id,
		Name:           req.Name,
		Email:          req.Email,
		AdditionalInfo: req.AdditionalInfo,
		StartTime:      start,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingJSON(b))
}

func (h *Handler) getEventDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "eventID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := h.events.Details(r.Context(), r.PathValue("username"), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventJSON(ev))
}

type profileRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"imageUrl"`
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request, userID string) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	u, err := h.users.Sync(r.Context(), userID, users.ProfileInput(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request, userID string) {
	s, err := h.availability.Schedule(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(s))
}

func (h *Handler) putSchedule(w http.ResponseWriter, r *http.Request, userID string) {
	var req scheduleJSON
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := availability.ScheduleInput{TimeGapMinutes: req.TimeGap, Days: make([]availability.DayInput, 0, len(req.Days))}
	for _, d := range req.Days {
		in.Days = append(in.Days, availability.DayInput{Day: d.Day, Start: d.StartTime, End: d.EndTime})
	}
	s, err := h.availability.UpdateSchedule(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(s))
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.events.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := struct {
		Username string      `json:"username"`
		Events   []eventJSON `json:"events"`
	}{Username: list.Username, Events: make([]eventJSON, 0, len(list.Events))}
	for _, ev := range list.Events {
		e := toEventJSON(ev)
		count := ev.BookingCount
		e.BookingCount = &count
		out.Events = append(out.Events, e)
	}
	writeJSON(w, http.StatusOK, out)
}

type eventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	IsPrivate   *bool  `json:"isPrivate"`
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request, userID string) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	private := true
	if req.IsPrivate != nil {
		private = *req.IsPrivate
	}
	ev, err := h.events.Create(r.Context(), userID, events.CreateInput{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.Duration,
		IsPrivate:       private,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventJSON(ev))
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := pathUUID(r, "eventID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.events.Delete(r.Context(), userID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMeetings(w http.ResponseWriter, r *http.Request, userID string) {
	kind, err := meetings.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.meetings.List(r.Context(), userID, kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingsJSON(rows))
}

func (h *Handler) latestMeetings(w http.ResponseWriter, r *http.Request, userID string) {
	rows, err := h.meetings.Latest(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingsJSON(rows))
}

func (h *Handler) meetingsICS(w http.ResponseWriter, r *http.Request, userID string) {
	rows, err := h.meetings.List(r.Context(), userID, meetings.KindUpcoming)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cal, err := calendar.Meetings(rows, h.now())
	h.writeCalendar(w, r, cal, err)
}

type cancelRequest struct {
	MeetingID string `json:"meetingId"`
}

func (h *Handler) cancelMeeting(w http.ResponseWriter, r *http.Request, userID string) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(req.MeetingID))
	if err != nil {
		h.writeError(w, r, service.Validation("meetingId must be a UUID"))
		return
	}
	if err := h.meetings.Cancel(r.Context(), userID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
