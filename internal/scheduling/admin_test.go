package scheduling

import (
	"context"
	"io"
	"testing"

	"termin/internal/database"
	"termin/internal/events"
	"termin/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAdminService(store *mockStore, bus *mockEventBus) *AdminService {
	logger := zerolog.New(io.Discard)
	return NewAdminService(store, bus, &logger)
}

func TestAdminOverview(t *testing.T) {
	store := new(mockStore)
	svc := newTestAdminService(store, nil)

	appts := []*models.Appointment{
		{ID: "a1", Status: models.StatusConfirmed},
		{ID: "a2", Status: models.StatusCancelled},
	}
	stats := models.Stats{Total: 2, Confirmed: 1, Cancelled: 1}
	store.On("ListAppointments", mock.Anything).Return(appts, nil)
	store.On("CountByStatus", mock.Anything).Return(stats, nil)

	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Len(t, overview.Appointments, 2)
	assert.Equal(t, stats, overview.Stats)
}

func TestAdminUpdateStatus(t *testing.T) {
	t.Run("PublishesLifecycleEvent", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockEventBus)
		svc := newTestAdminService(store, bus)

		appt := &models.Appointment{ID: "a1", Status: models.StatusCompleted}
		store.On("UpdateStatusByID", mock.Anything, "a1", models.StatusCompleted).Return(nil)
		store.On("GetAppointmentByID", mock.Anything, "a1").Return(appt, nil)
		bus.On("PublishJSON", events.EventAppointmentCompleted, mock.Anything).Return(nil)

		got, err := svc.UpdateStatus(context.Background(), "a1", models.StatusCompleted, "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
		store.AssertNotCalled(t, "AppendNote", mock.Anything, mock.Anything, mock.Anything)
		bus.AssertExpectations(t)
	})

	t.Run("AppendsNoteWithStatus", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestAdminService(store, nil)

		appt := &models.Appointment{ID: "a1", Status: models.StatusConfirmed}
		store.On("UpdateStatusByID", mock.Anything, "a1", models.StatusConfirmed).Return(nil)
		store.On("AppendNote", mock.Anything, "a1", "customer confirmed by phone").
			Return(&models.AdminNote{ID: 1, AppointmentID: "a1", Note: "customer confirmed by phone"}, nil)
		store.On("GetAppointmentByID", mock.Anything, "a1").Return(appt, nil)

		_, err := svc.UpdateStatus(context.Background(), "a1", models.StatusConfirmed, " customer confirmed by phone ")
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("ConfirmedHasNoEvent", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockEventBus)
		svc := newTestAdminService(store, bus)

		appt := &models.Appointment{ID: "a1", Status: models.StatusConfirmed}
		store.On("UpdateStatusByID", mock.Anything, "a1", models.StatusConfirmed).Return(nil)
		store.On("GetAppointmentByID", mock.Anything, "a1").Return(appt, nil)

		_, err := svc.UpdateStatus(context.Background(), "a1", models.StatusConfirmed, "")
		require.NoError(t, err)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("RejectsUnknownStatus", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestAdminService(store, nil)

		_, err := svc.UpdateStatus(context.Background(), "a1", "archived", "")
		assert.ErrorIs(t, err, ErrValidation)
		store.AssertNotCalled(t, "UpdateStatusByID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownID", func(t *testing.T) {
		store := new(mockStore)
		svc := newTestAdminService(store, nil)

		store.On("UpdateStatusByID", mock.Anything, "missing", models.StatusCompleted).Return(database.ErrNotFound)

		_, err := svc.UpdateStatus(context.Background(), "missing", models.StatusCompleted, "")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestAdminAppendNote(t *testing.T) {
	store := new(mockStore)
	svc := newTestAdminService(store, nil)

	note := &models.AdminNote{ID: 1, AppointmentID: "a1", Note: "called back", Admin: true}
	store.On("AppendNote", mock.Anything, "a1", "called back").Return(note, nil)

	got, err := svc.AppendNote(context.Background(), "a1", "  called back  ")
	require.NoError(t, err)
	assert.Equal(t, "called back", got.Note)

	_, err = svc.AppendNote(context.Background(), "a1", "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdminDelete(t *testing.T) {
	store := new(mockStore)
	svc := newTestAdminService(store, nil)

	store.On("DeleteAppointmentByID", mock.Anything, "a1").Return(nil)
	require.NoError(t, svc.Delete(context.Background(), "a1"))
	store.AssertExpectations(t)
}
