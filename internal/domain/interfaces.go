package domain

import (
	"context"
	"time"

	"termin/internal/models"
)

// Store is the narrow interface every component uses to reach the appointment
// collection. Callers must not hold records across blocking calls; re-fetch
// instead of acting on stale data.
type Store interface {
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	GetAppointmentByToken(ctx context.Context, token string) (*models.Appointment, error)
	GetAppointmentByID(ctx context.Context, id string) (*models.Appointment, error)
	GetAppointmentByMeetingID(ctx context.Context, meetingID string) (*models.Appointment, error)
	RescheduleWithVersion(ctx context.Context, token string, fromVersion int64, date, timeOfDay string) error
	CancelWithVersion(ctx context.Context, token string, fromVersion int64) error
	UpdateStatusByID(ctx context.Context, id, status string) error
	SetExternalRefs(ctx context.Context, token string, appt *models.Appointment) error
	SetSyncStatus(ctx context.Context, token, adapter, status string) error
	DeleteAppointmentByID(ctx context.Context, id string) error
	ListAppointments(ctx context.Context) ([]*models.Appointment, error)
	BookedTimes(ctx context.Context, date string) (map[string]bool, error)
	CountByStatus(ctx context.Context) (models.Stats, error)
	AppendNote(ctx context.Context, appointmentID, note string) (*models.AdminNote, error)
}

// CalendarAdapter wraps the external calendar provider. An unconfigured
// adapter is a silent no-op, not an error.
type CalendarAdapter interface {
	IsConfigured() bool
	CreateEvent(ctx context.Context, appt *models.Appointment) (eventID string, err error)
	UpdateEvent(ctx context.Context, eventID string, appt *models.Appointment) error
	DeleteEvent(ctx context.Context, eventID string) error
	CheckAvailability(ctx context.Context, date time.Time, slots []string) ([]models.Slot, error)
}

// Meeting is what the meeting provider hands back at creation time.
type Meeting struct {
	ID       string
	JoinURL  string
	Password string
}

// MeetingAdapter wraps the external virtual-meeting provider.
type MeetingAdapter interface {
	IsConfigured() bool
	CreateMeeting(ctx context.Context, appt *models.Appointment) (*Meeting, error)
	UpdateMeeting(ctx context.Context, meetingID string, appt *models.Appointment) error
	CancelMeeting(ctx context.Context, meetingID string) error
}

// EmailSender dispatches one rendered message to one recipient.
type EmailSender interface {
	IsConfigured() bool
	Send(ctx context.Context, to, subject, html string) error
}

// Notifier renders and sends the lifecycle emails. Failures are logged by the
// implementation and never surface to the caller's request.
type Notifier interface {
	SendConfirmation(ctx context.Context, appt *models.Appointment)
	SendRescheduleNotice(ctx context.Context, appt *models.Appointment, oldDate, oldTime string)
	SendCancellationNotice(ctx context.Context, appt *models.Appointment)
	SendHostAlert(ctx context.Context, appt *models.Appointment)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker replays failed external propagation.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType, token string, appt *models.Appointment) error
}

// StateRepository backs rate limiting with Redis, falling back to memory.
type StateRepository interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
