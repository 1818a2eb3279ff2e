package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/events"
	"termin/internal/metrics"
	"termin/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingRequest carries the visitor-supplied fields of a new appointment.
type BookingRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Service string `json:"service"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Message string `json:"message"`
}

// Service drives the appointment lifecycle. External adapters are best effort:
// their failures are recorded on the appointment and retried by the worker,
// never returned to the caller.
type Service struct {
	store          domain.Store
	calendar       domain.CalendarAdapter
	meetings       domain.MeetingAdapter
	notifier       domain.Notifier
	eventBus       domain.EventPublisher
	syncWorker     domain.SyncWorker
	location       *time.Location
	maxBookingDays int
	adapterTimeout time.Duration
	logger         *zerolog.Logger
}

func NewService(store domain.Store, calendar domain.CalendarAdapter, meetings domain.MeetingAdapter, notifier domain.Notifier, eventBus domain.EventPublisher, syncWorker domain.SyncWorker, location *time.Location, maxBookingDays int, adapterTimeout time.Duration, logger *zerolog.Logger) *Service {
	if maxBookingDays <= 0 {
		maxBookingDays = 90
	}
	if adapterTimeout <= 0 {
		adapterTimeout = time.Duration(models.DefaultAdapterTimeoutSeconds) * time.Second
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{
		store:          store,
		calendar:       calendar,
		meetings:       meetings,
		notifier:       notifier,
		eventBus:       eventBus,
		syncWorker:     syncWorker,
		location:       location,
		maxBookingDays: maxBookingDays,
		adapterTimeout: adapterTimeout,
		logger:         logger,
	}
}

func (s *Service) validateSlot(date, timeOfDay string) error {
	day, err := time.ParseInLocation("2006-01-02", date, s.location)
	if err != nil {
		return fmt.Errorf("%w: bad date %q", ErrValidation, date)
	}
	if !models.BookableTime(timeOfDay) {
		return fmt.Errorf("%w: time %q is outside business hours", ErrValidation, timeOfDay)
	}

	today := time.Now().In(s.location).Truncate(24 * time.Hour)
	if day.Before(today) {
		return ErrPastDate
	}
	if day.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return ErrDateTooFar
	}
	return nil
}

func (s *Service) validateRequest(req *BookingRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	return s.validateSlot(req.Date, req.Time)
}

// Book creates a confirmed appointment and propagates it to the external
// calendar and meeting providers.
func (s *Service) Book(ctx context.Context, req *BookingRequest) (*models.Appointment, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	booked, err := s.store.BookedTimes(ctx, req.Date)
	if err != nil {
		return nil, err
	}
	if booked[req.Time] {
		return nil, ErrSlotTaken
	}

	appt := &models.Appointment{
		ID:      uuid.NewString(),
		Token:   uuid.NewString(),
		Status:  models.StatusConfirmed,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Service: req.Service,
		Date:    req.Date,
		Time:    req.Time,
		Message: req.Message,
	}

	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, database.ErrTokenExists) {
			// Token collision is vanishingly rare with random UUIDs; retry once.
			appt.Token = uuid.NewString()
			err = s.store.CreateAppointment(ctx, appt)
		}
		if err != nil {
			return nil, err
		}
	}

	s.syncExternal(ctx, appt, false)
	metrics.IncBooked()

	s.publishEvent(events.EventAppointmentBooked, appt, "visitor")
	if s.notifier != nil {
		s.notifier.SendConfirmation(ctx, appt)
		s.notifier.SendHostAlert(ctx, appt)
	}

	return s.store.GetAppointmentByToken(ctx, appt.Token)
}

// GetByToken resolves an appointment for the self-service management page.
func (s *Service) GetByToken(ctx context.Context, token string) (*models.Appointment, error) {
	if token == "" {
		return nil, database.ErrNotFound
	}
	return s.store.GetAppointmentByToken(ctx, token)
}

// Reschedule moves a live appointment to a new slot. Terminal and in-progress
// appointments reject the transition.
func (s *Service) Reschedule(ctx context.Context, token, date, timeOfDay string) (*models.Appointment, error) {
	if err := s.validateSlot(date, timeOfDay); err != nil {
		return nil, err
	}

	appt, err := s.store.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case models.StatusConfirmed, models.StatusRescheduled:
	default:
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidState, appt.Status)
	}

	if date != appt.Date || timeOfDay != appt.Time {
		booked, err := s.store.BookedTimes(ctx, date)
		if err != nil {
			return nil, err
		}
		if booked[timeOfDay] {
			return nil, ErrSlotTaken
		}
	}

	oldDate, oldTime := appt.Date, appt.Time
	if err := s.store.RescheduleWithVersion(ctx, token, appt.Version, date, timeOfDay); err != nil {
		return nil, err
	}

	updated, err := s.store.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	s.syncExternal(ctx, updated, true)

	s.publishEvent(events.EventAppointmentRescheduled, updated, "visitor")
	if s.notifier != nil {
		s.notifier.SendRescheduleNotice(ctx, updated, oldDate, oldTime)
	}

	return s.store.GetAppointmentByToken(ctx, token)
}

// Cancel moves an appointment to its terminal state. Once cancelled no
// transition is accepted, a repeated cancel included.
func (s *Service) Cancel(ctx context.Context, token string) (*models.Appointment, error) {
	appt, err := s.store.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case models.StatusCancelled:
		// Terminal: no further transitions, not even a repeated cancel.
		return nil, fmt.Errorf("%w: appointment is already cancelled", ErrInvalidState)
	case models.StatusCompleted:
		return nil, fmt.Errorf("%w: cannot cancel a completed appointment", ErrInvalidState)
	}

	if err := s.store.CancelWithVersion(ctx, token, appt.Version); err != nil {
		return nil, err
	}

	s.teardownExternal(ctx, appt)

	updated, err := s.store.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventAppointmentCancelled, updated, "visitor")
	if s.notifier != nil {
		s.notifier.SendCancellationNotice(ctx, updated)
	}

	return updated, nil
}

// Availability lists the bookable slots of a day, marking taken ones.
func (s *Service) Availability(ctx context.Context, date string) ([]models.Slot, error) {
	if _, err := time.ParseInLocation("2006-01-02", date, s.location); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrValidation, date)
	}

	booked, err := s.store.BookedTimes(ctx, date)
	if err != nil {
		return nil, err
	}

	slots := make([]models.Slot, 0, len(models.BookableSlots))
	for _, t := range models.BookableSlots {
		slots = append(slots, models.Slot{Time: t, Available: !booked[t]})
	}

	// The calendar is authoritative for busy time created outside this system.
	if s.calendar != nil && s.calendar.IsConfigured() {
		day, _ := time.ParseInLocation("2006-01-02", date, s.location)
		cctx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
		defer cancel()
		external, err := s.calendar.CheckAvailability(cctx, day, models.BookableSlots)
		if err != nil {
			s.logger.Warn().Err(err).Str("date", date).Msg("calendar availability check failed, using local data only")
			return slots, nil
		}
		busy := make(map[string]bool, len(external))
		for _, sl := range external {
			if !sl.Available {
				busy[sl.Time] = true
			}
		}
		for i := range slots {
			if busy[slots[i].Time] {
				slots[i].Available = false
			}
		}
	}

	return slots, nil
}

// syncExternal propagates the appointment to the calendar and meeting
// providers, creating on first contact and updating afterwards.
func (s *Service) syncExternal(ctx context.Context, appt *models.Appointment, update bool) {
	s.syncCalendar(ctx, appt, update)
	s.syncMeeting(ctx, appt, update)

	if err := s.store.SetExternalRefs(ctx, appt.Token, appt); err != nil {
		s.logger.Error().Err(err).Str("token", appt.Token).Msg("persist external refs failed")
	}
}

func (s *Service) syncCalendar(ctx context.Context, appt *models.Appointment, update bool) {
	if s.calendar == nil || !s.calendar.IsConfigured() {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
	defer cancel()

	var err error
	if update && appt.CalendarEventID != "" {
		err = s.calendar.UpdateEvent(cctx, appt.CalendarEventID, appt)
	} else {
		appt.CalendarEventID, err = s.calendar.CreateEvent(cctx, appt)
	}

	if err != nil {
		s.recordSyncFailure(ctx, appt, "calendar", err)
		return
	}
	s.clearSyncFailure(ctx, appt, "calendar")
}

func (s *Service) syncMeeting(ctx context.Context, appt *models.Appointment, update bool) {
	if s.meetings == nil || !s.meetings.IsConfigured() {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
	defer cancel()

	var err error
	if update && appt.ZoomMeetingID != "" {
		err = s.meetings.UpdateMeeting(cctx, appt.ZoomMeetingID, appt)
	} else {
		var meeting *domain.Meeting
		meeting, err = s.meetings.CreateMeeting(cctx, appt)
		if err == nil {
			appt.ZoomMeetingID = meeting.ID
			appt.ZoomJoinURL = meeting.JoinURL
			appt.ZoomPassword = meeting.Password
		}
	}

	if err != nil {
		s.recordSyncFailure(ctx, appt, "meeting", err)
		return
	}
	s.clearSyncFailure(ctx, appt, "meeting")
}

// teardownExternal removes the calendar event and meeting of a cancelled
// appointment. Failures are logged and retried by the worker.
func (s *Service) teardownExternal(ctx context.Context, appt *models.Appointment) {
	if s.calendar != nil && s.calendar.IsConfigured() && appt.CalendarEventID != "" {
		cctx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
		if err := s.calendar.DeleteEvent(cctx, appt.CalendarEventID); err != nil {
			s.recordSyncFailure(ctx, appt, "calendar", err)
		}
		cancel()
	}
	if s.meetings != nil && s.meetings.IsConfigured() && appt.ZoomMeetingID != "" {
		cctx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
		if err := s.meetings.CancelMeeting(cctx, appt.ZoomMeetingID); err != nil {
			s.recordSyncFailure(ctx, appt, "meeting", err)
		}
		cancel()
	}
}

func (s *Service) recordSyncFailure(ctx context.Context, appt *models.Appointment, adapter string, cause error) {
	s.logger.Warn().Err(cause).Str("adapter", adapter).Str("token", appt.Token).Msg("external sync failed")
	metrics.IncSyncFailure(adapter)

	if err := s.store.SetSyncStatus(ctx, appt.Token, adapter, models.SyncFailed); err != nil {
		s.logger.Error().Err(err).Str("token", appt.Token).Msg("record sync status failed")
	}
	if s.syncWorker != nil {
		if err := s.syncWorker.EnqueueTask(ctx, adapter, appt.Token, appt); err != nil {
			s.logger.Error().Err(err).Str("token", appt.Token).Str("task", adapter).Msg("sync enqueue failed")
		}
	}
}

func (s *Service) clearSyncFailure(ctx context.Context, appt *models.Appointment, adapter string) {
	if err := s.store.SetSyncStatus(ctx, appt.Token, adapter, models.SyncOK); err != nil {
		s.logger.Error().Err(err).Str("token", appt.Token).Msg("record sync status failed")
	}
}

func (s *Service) publishEvent(eventType string, appt *models.Appointment, changedBy string) {
	if s.eventBus == nil {
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
		ChangedBy:     changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("token", appt.Token).Msg("publish event error")
	}
}
