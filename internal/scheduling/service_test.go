package scheduling

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	return m.Called(ctx, a).Error(0)
}
func (m *mockStore) GetAppointmentByToken(ctx context.Context, token string) (*models.Appointment, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}
func (m *mockStore) GetAppointmentByID(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}
func (m *mockStore) GetAppointmentByMeetingID(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}
func (m *mockStore) RescheduleWithVersion(ctx context.Context, token string, v int64, d, t string) error {
	return m.Called(ctx, token, v, d, t).Error(0)
}
func (m *mockStore) CancelWithVersion(ctx context.Context, token string, v int64) error {
	return m.Called(ctx, token, v).Error(0)
}
func (m *mockStore) UpdateStatusByID(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *mockStore) SetExternalRefs(ctx context.Context, token string, a *models.Appointment) error {
	return m.Called(ctx, token, a).Error(0)
}
func (m *mockStore) SetSyncStatus(ctx context.Context, token, adapter, status string) error {
	return m.Called(ctx, token, adapter, status).Error(0)
}
func (m *mockStore) DeleteAppointmentByID(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockStore) ListAppointments(ctx context.Context) ([]*models.Appointment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}
func (m *mockStore) BookedTimes(ctx context.Context, date string) (map[string]bool, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}
func (m *mockStore) CountByStatus(ctx context.Context) (models.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Stats), args.Error(1)
}
func (m *mockStore) AppendNote(ctx context.Context, id, note string) (*models.AdminNote, error) {
	args := m.Called(ctx, id, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdminNote), args.Error(1)
}

type mockCalendar struct {
	mock.Mock
	configured bool
}

func (m *mockCalendar) IsConfigured() bool { return m.configured }
func (m *mockCalendar) CreateEvent(ctx context.Context, a *models.Appointment) (string, error) {
	args := m.Called(ctx, a)
	return args.String(0), args.Error(1)
}
func (m *mockCalendar) UpdateEvent(ctx context.Context, id string, a *models.Appointment) error {
	return m.Called(ctx, id, a).Error(0)
}
func (m *mockCalendar) DeleteEvent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockCalendar) CheckAvailability(ctx context.Context, d time.Time, slots []string) ([]models.Slot, error) {
	args := m.Called(ctx, d, slots)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Slot), args.Error(1)
}

type mockMeetings struct {
	mock.Mock
	configured bool
}

func (m *mockMeetings) IsConfigured() bool { return m.configured }
func (m *mockMeetings) CreateMeeting(ctx context.Context, a *models.Appointment) (*domain.Meeting, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Meeting), args.Error(1)
}
func (m *mockMeetings) UpdateMeeting(ctx context.Context, id string, a *models.Appointment) error {
	return m.Called(ctx, id, a).Error(0)
}
func (m *mockMeetings) CancelMeeting(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockNotifier struct {
	confirmations int
	reschedules   int
	cancellations int
	hostAlerts    int
}

func (n *mockNotifier) SendConfirmation(context.Context, *models.Appointment) { n.confirmations++ }
func (n *mockNotifier) SendRescheduleNotice(_ context.Context, _ *models.Appointment, _, _ string) {
	n.reschedules++
}
func (n *mockNotifier) SendCancellationNotice(context.Context, *models.Appointment) {
	n.cancellations++
}
func (n *mockNotifier) SendHostAlert(context.Context, *models.Appointment) { n.hostAlerts++ }

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt, token string, a *models.Appointment) error {
	return m.Called(ctx, tt, token, a).Error(0)
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}

func newTestService(store *mockStore, cal *mockCalendar, meet *mockMeetings, notifier *mockNotifier, bus *mockEventBus, worker *mockWorker) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, cal, meet, notifier, bus, worker, time.UTC, 90, time.Second, &logger)
}

func TestBook(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store := new(mockStore)
		cal := &mockCalendar{configured: true}
		meet := &mockMeetings{configured: true}
		notifier := &mockNotifier{}
		bus := new(mockEventBus)
		worker := new(mockWorker)
		svc := newTestService(store, cal, meet, notifier, bus, worker)

		date := futureDate(7)
		req := &BookingRequest{Name: "Ada Lovelace", Email: "ada@example.com", Date: date, Time: "10:00"}

		store.On("BookedTimes", ctx, date).Return(map[string]bool{}, nil).Once()
		store.On("CreateAppointment", ctx, mock.AnythingOfType("*models.Appointment")).Return(nil).Once()
		cal.On("CreateEvent", mock.Anything, mock.Anything).Return("ev-1", nil).Once()
		meet.On("CreateMeeting", mock.Anything, mock.Anything).Return(&domain.Meeting{ID: "m-1", JoinURL: "https://zoom.us/j/1"}, nil).Once()
		store.On("SetSyncStatus", ctx, mock.Anything, "calendar", models.SyncOK).Return(nil).Once()
		store.On("SetSyncStatus", ctx, mock.Anything, "meeting", models.SyncOK).Return(nil).Once()
		store.On("SetExternalRefs", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		bus.On("PublishJSON", "appointment_booked", mock.Anything).Return(nil).Once()
		store.On("GetAppointmentByToken", ctx, mock.Anything).Return(&models.Appointment{Status: models.StatusConfirmed, Date: date, Time: "10:00"}, nil).Once()

		appt, err := svc.Book(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, appt.Status)
		assert.Equal(t, 1, notifier.confirmations)
		assert.Equal(t, 1, notifier.hostAlerts)
		store.AssertExpectations(t)
		cal.AssertExpectations(t)
		meet.AssertExpectations(t)
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		svc := newTestService(new(mockStore), &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		cases := []struct {
			name string
			req  BookingRequest
			want error
		}{
			{"missing name", BookingRequest{Email: "a@b.de", Date: futureDate(3), Time: "10:00"}, ErrValidation},
			{"bad email", BookingRequest{Name: "A", Email: "nope", Date: futureDate(3), Time: "10:00"}, ErrValidation},
			{"bad time", BookingRequest{Name: "A", Email: "a@b.de", Date: futureDate(3), Time: "12:00"}, ErrValidation},
			{"bad date", BookingRequest{Name: "A", Email: "a@b.de", Date: "not-a-date", Time: "10:00"}, ErrValidation},
			{"past date", BookingRequest{Name: "A", Email: "a@b.de", Date: "2020-01-01", Time: "10:00"}, ErrPastDate},
			{"too far", BookingRequest{Name: "A", Email: "a@b.de", Date: futureDate(400), Time: "10:00"}, ErrDateTooFar},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := tc.req
				_, err := svc.Book(context.Background(), &req)
				assert.ErrorIs(t, err, tc.want)
			})
		}
	})

	t.Run("SlotTaken", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		date := futureDate(7)
		store.On("BookedTimes", ctx, date).Return(map[string]bool{"10:00": true}, nil).Once()

		_, err := svc.Book(ctx, &BookingRequest{Name: "A", Email: "a@b.de", Date: date, Time: "10:00"})
		assert.ErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("ExternalFailureDoesNotFailBooking", func(t *testing.T) {
		store := new(mockStore)
		cal := &mockCalendar{configured: true}
		meet := &mockMeetings{configured: false}
		bus := new(mockEventBus)
		worker := new(mockWorker)
		svc := newTestService(store, cal, meet, &mockNotifier{}, bus, worker)

		date := futureDate(7)
		store.On("BookedTimes", ctx, date).Return(map[string]bool{}, nil).Once()
		store.On("CreateAppointment", ctx, mock.Anything).Return(nil).Once()
		cal.On("CreateEvent", mock.Anything, mock.Anything).Return("", errors.New("calendar down")).Once()
		store.On("SetSyncStatus", ctx, mock.Anything, "calendar", models.SyncFailed).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "calendar", mock.Anything, mock.Anything).Return(nil).Once()
		store.On("SetExternalRefs", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Once()
		store.On("GetAppointmentByToken", ctx, mock.Anything).Return(&models.Appointment{Status: models.StatusConfirmed, CalendarSyncStatus: models.SyncFailed}, nil).Once()

		appt, err := svc.Book(ctx, &BookingRequest{Name: "A", Email: "a@b.de", Date: date, Time: "09:30"})
		assert.NoError(t, err)
		assert.True(t, appt.Degraded())
		worker.AssertExpectations(t)
	})
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store := new(mockStore)
		notifier := &mockNotifier{}
		bus := new(mockEventBus)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, notifier, bus, new(mockWorker))

		oldDate, newDate := futureDate(5), futureDate(9)
		current := &models.Appointment{Token: "tok", Status: models.StatusConfirmed, Date: oldDate, Time: "10:00", Version: 3}
		moved := &models.Appointment{Token: "tok", Status: models.StatusRescheduled, Date: newDate, Time: "14:00", Version: 4}

		store.On("GetAppointmentByToken", ctx, "tok").Return(current, nil).Once()
		store.On("BookedTimes", ctx, newDate).Return(map[string]bool{}, nil).Once()
		store.On("RescheduleWithVersion", ctx, "tok", int64(3), newDate, "14:00").Return(nil).Once()
		store.On("GetAppointmentByToken", ctx, "tok").Return(moved, nil).Times(2)
		store.On("SetExternalRefs", ctx, "tok", mock.Anything).Return(nil).Once()
		bus.On("PublishJSON", "appointment_rescheduled", mock.Anything).Return(nil).Once()

		appt, err := svc.Reschedule(ctx, "tok", newDate, "14:00")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusRescheduled, appt.Status)
		assert.Equal(t, newDate, appt.Date)
		assert.Equal(t, "14:00", appt.Time)
		assert.Equal(t, 1, notifier.reschedules)
		store.AssertExpectations(t)
	})

	t.Run("CancelledIsTerminal", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		store.On("GetAppointmentByToken", ctx, "tok").Return(&models.Appointment{Token: "tok", Status: models.StatusCancelled}, nil).Once()

		_, err := svc.Reschedule(ctx, "tok", futureDate(9), "14:00")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("CompletedRejectsReschedule", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		store.On("GetAppointmentByToken", ctx, "tok").Return(&models.Appointment{Token: "tok", Status: models.StatusCompleted}, nil).Once()

		_, err := svc.Reschedule(ctx, "tok", futureDate(9), "14:00")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("TargetSlotTaken", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		newDate := futureDate(9)
		store.On("GetAppointmentByToken", ctx, "tok").Return(&models.Appointment{Token: "tok", Status: models.StatusConfirmed, Date: futureDate(5), Time: "10:00"}, nil).Once()
		store.On("BookedTimes", ctx, newDate).Return(map[string]bool{"14:00": true}, nil).Once()

		_, err := svc.Reschedule(ctx, "tok", newDate, "14:00")
		assert.ErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		store.On("GetAppointmentByToken", ctx, "nope").Return(nil, database.ErrNotFound).Once()

		_, err := svc.Reschedule(ctx, "nope", futureDate(9), "14:00")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store := new(mockStore)
		cal := &mockCalendar{configured: true}
		meet := &mockMeetings{configured: true}
		notifier := &mockNotifier{}
		bus := new(mockEventBus)
		svc := newTestService(store, cal, meet, notifier, bus, new(mockWorker))

		current := &models.Appointment{Token: "tok", Status: models.StatusConfirmed, CalendarEventID: "ev-1", ZoomMeetingID: "m-1", Version: 2}
		cancelled := &models.Appointment{Token: "tok", Status: models.StatusCancelled, Version: 3}

		store.On("GetAppointmentByToken", ctx, "tok").Return(current, nil).Once()
		store.On("CancelWithVersion", ctx, "tok", int64(2)).Return(nil).Once()
		cal.On("DeleteEvent", mock.Anything, "ev-1").Return(nil).Once()
		meet.On("CancelMeeting", mock.Anything, "m-1").Return(nil).Once()
		store.On("GetAppointmentByToken", ctx, "tok").Return(cancelled, nil).Once()
		bus.On("PublishJSON", "appointment_cancelled", mock.Anything).Return(nil).Once()

		appt, err := svc.Cancel(ctx, "tok")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, appt.Status)
		assert.Equal(t, 1, notifier.cancellations)
		cal.AssertExpectations(t)
		meet.AssertExpectations(t)
	})

	t.Run("CancelledIsTerminal", func(t *testing.T) {
		store := new(mockStore)
		notifier := &mockNotifier{}
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, notifier, new(mockEventBus), new(mockWorker))

		store.On("GetAppointmentByToken", ctx, "tok").Return(&models.Appointment{Token: "tok", Status: models.StatusCancelled}, nil).Once()

		_, err := svc.Cancel(ctx, "tok")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Zero(t, notifier.cancellations)
		store.AssertNotCalled(t, "CancelWithVersion", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CompletedRejectsCancel", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		store.On("GetAppointmentByToken", ctx, "tok").Return(&models.Appointment{Token: "tok", Status: models.StatusCompleted}, nil).Once()

		_, err := svc.Cancel(ctx, "tok")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("TeardownFailureDoesNotFailCancel", func(t *testing.T) {
		store := new(mockStore)
		cal := &mockCalendar{configured: true}
		worker := new(mockWorker)
		bus := new(mockEventBus)
		svc := newTestService(store, cal, &mockMeetings{}, &mockNotifier{}, bus, worker)

		current := &models.Appointment{Token: "tok", Status: models.StatusConfirmed, CalendarEventID: "ev-1", Version: 1}

		store.On("GetAppointmentByToken", ctx, "tok").Return(current, nil).Once()
		store.On("CancelWithVersion", ctx, "tok", int64(1)).Return(nil).Once()
		cal.On("DeleteEvent", mock.Anything, "ev-1").Return(errors.New("calendar down")).Once()
		store.On("SetSyncStatus", ctx, "tok", "calendar", models.SyncFailed).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "calendar", "tok", mock.Anything).Return(nil).Once()
		store.On("GetAppointmentByToken", ctx, "tok").Return(&models.Appointment{Token: "tok", Status: models.StatusCancelled}, nil).Once()
		bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Once()

		appt, err := svc.Cancel(ctx, "tok")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, appt.Status)
		worker.AssertExpectations(t)
	})
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("MarksBookedSlots", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		date := futureDate(7)
		store.On("BookedTimes", ctx, date).Return(map[string]bool{"09:00": true, "14:30": true}, nil).Once()

		slots, err := svc.Availability(ctx, date)
		assert.NoError(t, err)
		assert.Len(t, slots, len(models.BookableSlots))
		for _, slot := range slots {
			switch slot.Time {
			case "09:00", "14:30":
				assert.False(t, slot.Available, "slot %s should be taken", slot.Time)
			default:
				assert.True(t, slot.Available, "slot %s should be free", slot.Time)
			}
		}
	})

	t.Run("CalendarBusyOverrides", func(t *testing.T) {
		store := new(mockStore)
		cal := &mockCalendar{configured: true}
		svc := newTestService(store, cal, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		date := futureDate(7)
		store.On("BookedTimes", ctx, date).Return(map[string]bool{}, nil).Once()
		cal.On("CheckAvailability", mock.Anything, mock.Anything, models.BookableSlots).
			Return([]models.Slot{{Time: "10:00", Available: false}}, nil).Once()

		slots, err := svc.Availability(ctx, date)
		assert.NoError(t, err)
		for _, slot := range slots {
			if slot.Time == "10:00" {
				assert.False(t, slot.Available)
			}
		}
	})

	t.Run("CalendarErrorFallsBackToLocal", func(t *testing.T) {
		store := new(mockStore)
		cal := &mockCalendar{configured: true}
		svc := newTestService(store, cal, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

		date := futureDate(7)
		store.On("BookedTimes", ctx, date).Return(map[string]bool{}, nil).Once()
		cal.On("CheckAvailability", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unavailable")).Once()

		slots, err := svc.Availability(ctx, date)
		assert.NoError(t, err)
		assert.Len(t, slots, len(models.BookableSlots))
	})
}

func TestGetByToken(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc := newTestService(store, &mockCalendar{}, &mockMeetings{}, &mockNotifier{}, new(mockEventBus), new(mockWorker))

	store.On("GetAppointmentByToken", ctx, "known").Return(&models.Appointment{Token: "known"}, nil).Once()
	appt, err := svc.GetByToken(ctx, "known")
	assert.NoError(t, err)
	assert.Equal(t, "known", appt.Token)

	store.On("GetAppointmentByToken", ctx, "unknown").Return(nil, database.ErrNotFound).Once()
	_, err = svc.GetByToken(ctx, "unknown")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = svc.GetByToken(ctx, "")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
