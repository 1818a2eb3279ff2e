package calendar

import (
	"context"
	"fmt"
	"os"
	"time"

	"termin/internal/config"
	"termin/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleAdapter mirrors appointments into a Google Calendar through a
// service account. When no credentials are configured every call is a no-op.
type GoogleAdapter struct {
	service    *gcal.Service
	calendarID string
	location   *time.Location
	logger     *zerolog.Logger
}

func NewGoogleAdapter(ctx context.Context, cfg config.GoogleConfig, location *time.Location, logger *zerolog.Logger) (*GoogleAdapter, error) {
	adapter := &GoogleAdapter{
		calendarID: cfg.CalendarID,
		location:   location,
		logger:     logger,
	}
	if !cfg.Configured() {
		logger.Info().Msg("google calendar not configured, calendar sync disabled")
		return adapter, nil
	}

	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}
	if cfg.SenderEmail != "" {
		// Domain-wide delegation: act as the workspace user owning the calendar.
		jwtConfig.Subject = cfg.SenderEmail
	}

	srv, err := gcal.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %v", err)
	}

	adapter.service = srv
	return adapter, nil
}

func (g *GoogleAdapter) IsConfigured() bool {
	return g != nil && g.service != nil
}

func (g *GoogleAdapter) buildEvent(appt *models.Appointment) (*gcal.Event, error) {
	start, err := appt.StartAt(g.location)
	if err != nil {
		return nil, err
	}
	end := start.Add(models.SlotDurationMinutes * time.Minute)

	description := fmt.Sprintf("Service: %s\nPhone: %s\nCompany: %s", appt.Service, appt.Phone, appt.Company)
	if appt.ZoomJoinURL != "" {
		description += "\nJoin: " + appt.ZoomJoinURL
	}
	if appt.Message != "" {
		description += "\n\n" + appt.Message
	}

	return &gcal.Event{
		Summary:     fmt.Sprintf("Consultation: %s", appt.Name),
		Description: description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: g.location.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: g.location.String()},
		Attendees:   []*gcal.EventAttendee{{Email: appt.Email, DisplayName: appt.Name}},
	}, nil
}

func (g *GoogleAdapter) CreateEvent(ctx context.Context, appt *models.Appointment) (string, error) {
	event, err := g.buildEvent(appt)
	if err != nil {
		return "", err
	}

	created, err := g.service.Events.Insert(g.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar insert failed: %w", err)
	}

	g.logger.Debug().Str("event_id", created.Id).Str("token", appt.Token).Msg("calendar event created")
	return created.Id, nil
}

func (g *GoogleAdapter) UpdateEvent(ctx context.Context, eventID string, appt *models.Appointment) error {
	event, err := g.buildEvent(appt)
	if err != nil {
		return err
	}

	if _, err := g.service.Events.Patch(g.calendarID, eventID, event).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar patch failed: %w", err)
	}
	return nil
}

func (g *GoogleAdapter) DeleteEvent(ctx context.Context, eventID string) error {
	if err := g.service.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar delete failed: %w", err)
	}
	return nil
}

// CheckAvailability queries the calendar's busy windows for the day and marks
// offered slots that overlap one.
func (g *GoogleAdapter) CheckAvailability(ctx context.Context, date time.Time, slots []string) ([]models.Slot, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, g.location)
	dayEnd := dayStart.AddDate(0, 0, 1)

	resp, err := g.service.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: dayStart.Format(time.RFC3339),
		TimeMax: dayEnd.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	type window struct{ start, end time.Time }
	var busy []window
	if cal, ok := resp.Calendars[g.calendarID]; ok {
		for _, period := range cal.Busy {
			start, err1 := time.Parse(time.RFC3339, period.Start)
			end, err2 := time.Parse(time.RFC3339, period.End)
			if err1 != nil || err2 != nil {
				continue
			}
			busy = append(busy, window{start, end})
		}
	}

	result := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		slotStart, err := time.ParseInLocation("2006-01-02 15:04", date.Format("2006-01-02")+" "+slot, g.location)
		if err != nil {
			continue
		}
		slotEnd := slotStart.Add(models.SlotDurationMinutes * time.Minute)

		available := true
		for _, w := range busy {
			if slotStart.Before(w.end) && w.start.Before(slotEnd) {
				available = false
				break
			}
		}
		result = append(result, models.Slot{Time: slot, Available: available})
	}

	return result, nil
}
