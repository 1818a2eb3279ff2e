package scheduling

import (
	"context"
	"fmt"
	"strings"

	"termin/internal/domain"
	"termin/internal/events"
	"termin/internal/models"

	"github.com/rs/zerolog"
)

// AdminOverview is the admin dashboard payload: every appointment plus
// aggregate counts by status.
type AdminOverview struct {
	Appointments []*models.Appointment `json:"appointments"`
	Stats        models.Stats          `json:"stats"`
}

// AdminService covers the operator-facing mutations. Unlike visitor
// operations these address appointments by id, not management token.
type AdminService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAdminService(store domain.Store, eventBus domain.EventPublisher, logger *zerolog.Logger) *AdminService {
	return &AdminService{store: store, eventBus: eventBus, logger: logger}
}

func (a *AdminService) Overview(ctx context.Context) (*AdminOverview, error) {
	appts, err := a.store.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := a.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminOverview{Appointments: appts, Stats: stats}, nil
}

// UpdateStatus is an operator override: it may set any known status and
// bypasses the visitor state machine. An optional note is appended in the
// same operation.
func (a *AdminService) UpdateStatus(ctx context.Context, id, status, note string) (*models.Appointment, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	if err := a.store.UpdateStatusByID(ctx, id, status); err != nil {
		return nil, err
	}

	if note = strings.TrimSpace(note); note != "" {
		if _, err := a.store.AppendNote(ctx, id, note); err != nil {
			return nil, err
		}
	}

	appt, err := a.store.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a.publishStatusEvent(appt)
	return appt, nil
}

// AppendNote attaches an operator note. Notes are append-only; there is no
// edit or delete path.
func (a *AdminService) AppendNote(ctx context.Context, id, note string) (*models.AdminNote, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: note text is required", ErrValidation)
	}
	return a.store.AppendNote(ctx, id, note)
}

// Delete removes the appointment record entirely. Cascades to its notes.
func (a *AdminService) Delete(ctx context.Context, id string) error {
	return a.store.DeleteAppointmentByID(ctx, id)
}

func (a *AdminService) publishStatusEvent(appt *models.Appointment) {
	if a.eventBus == nil {
		return
	}

	var eventType string
	switch appt.Status {
	case models.StatusInProgress:
		eventType = events.EventAppointmentStarted
	case models.StatusCompleted:
		eventType = events.EventAppointmentCompleted
	case models.StatusCancelled:
		eventType = events.EventAppointmentCancelled
	default:
		return
	}

	payload := events.AppointmentEventPayload{
		AppointmentID: appt.ID,
		Token:         appt.Token,
		Name:          appt.Name,
		Email:         appt.Email,
		Service:       appt.Service,
		Status:        appt.Status,
		Date:          appt.Date,
		Time:          appt.Time,
		ChangedBy:     "admin",
	}

	if err := a.eventBus.PublishJSON(eventType, payload); err != nil {
		a.logger.Error().Err(err).Str("event_type", eventType).Str("id", appt.ID).Msg("publish event error")
	}
}
