package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"meetly/backend/internal/domain"
)

const maxJSONBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var errBadJSON = errors.New("request body must be valid JSON")

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

type userJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func toUserJSON(u domain.User) userJSON {
	return userJSON{ID: u.ID, Username: u.Username, Name: u.Name, Email: u.Email, ImageURL: u.ImageURL}
}

type eventJSON struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Duration     int       `json:"duration"`
	IsPrivate    bool      `json:"isPrivate"`
	CreatedAt    time.Time `json:"createdAt"`
	BookingCount *int      `json:"bookingCount,omitempty"`
	User         *userJSON `json:"user,omitempty"`
}

func toEventJSON(ev domain.Event) eventJSON {
	out := eventJSON{
		ID:          ev.ID.String(),
		Title:       ev.Title,
		Description: ev.Description,
		Duration:    ev.DurationMinutes,
		IsPrivate:   ev.IsPrivate,
		CreatedAt:   ev.CreatedAt,
	}
	if ev.User != nil {
		u := toUserJSON(*ev.User)
		u.Email = ""
		out.User = &u
	}
	return out
}

type bookingJSON struct {
	ID             string     `json:"id"`
	EventID        string     `json:"eventId"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	AdditionalInfo string     `json:"additionalInfo,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        time.Time  `json:"endTime"`
	CreatedAt      time.Time  `json:"createdAt"`
	Event          *eventJSON `json:"event,omitempty"`
}

func toBookingJSON(b domain.Booking) bookingJSON {
	out := bookingJSON{
		ID:             b.ID.String(),
		EventID:        b.EventID.String(),
		Name:           b.Name,
		Email:          b.Email,
		AdditionalInfo: b.AdditionalInfo,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		CreatedAt:      b.CreatedAt,
	}
	if b.Event != nil {
		ev := toEventJSON(*b.Event)
		out.Event = &ev
	}
	return out
}

func toBookingsJSON(rows []domain.Booking) []bookingJSON {
	out := make([]bookingJSON, 0, len(rows))
	for _, b := range rows {
		out = append(out, toBookingJSON(b))
	}
	return out
}

type scheduleDayJSON struct {
	Day       string `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type scheduleJSON struct {
	TimeGap int               `json:"timeGap"`
	Days    []scheduleDayJSON `json:"days"`
}

func toScheduleJSON(s domain.Schedule) scheduleJSON {
	out := scheduleJSON{TimeGap: s.TimeGapMinutes, Days: make([]scheduleDayJSON, 0, len(s.Days))}
	for _, d := range s.Days {
		out.Days = append(out.Days, scheduleDayJSON{Day: string(d.Day), StartTime: d.StartTime.String(), EndTime: d.EndTime.String()})
	}
	return out
}
