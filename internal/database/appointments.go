package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"termin/internal/models"

	"github.com/mattn/go-sqlite3"
)

const appointmentColumns = `id, token, status, name, email, phone, company, service,
                 date, time, message, calendar_event_id, zoom_meeting_id,
                 zoom_join_url, zoom_password, calendar_sync_status,
                 meeting_sync_status, last_activity, created_at, updated_at,
                 cancelled_at, version`

func (db *DB) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	query := `INSERT INTO appointments (
                id, token, status, name, email, phone, company, service,
                date, time, message, calendar_event_id, zoom_meeting_id,
                zoom_join_url, zoom_password, calendar_sync_status,
                meeting_sync_status, last_activity, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		appt.ID,
		appt.Token,
		appt.Status,
		appt.Name,
		appt.Email,
		appt.Phone,
		appt.Company,
		appt.Service,
		appt.Date,
		appt.Time,
		appt.Message,
		appt.CalendarEventID,
		appt.ZoomMeetingID,
		appt.ZoomJoinURL,
		appt.ZoomPassword,
		appt.CalendarSyncStatus,
		appt.MeetingSyncStatus,
		now,
		now,
		now,
		1,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrTokenExists
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	appt.LastActivity = now
	appt.CreatedAt = now
	appt.UpdatedAt = now
	appt.Version = 1
	return nil
}

func (db *DB) GetAppointmentByToken(ctx context.Context, token string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE token = ?`
	appt, err := db.scanOne(ctx, query, token)
	if err != nil {
		return nil, err
	}
	return db.attachNotes(ctx, appt)
}

func (db *DB) GetAppointmentByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	appt, err := db.scanOne(ctx, query, id)
	if err != nil {
		return nil, err
	}
	return db.attachNotes(ctx, appt)
}

// GetAppointmentByMeetingID resolves the appointment a meeting webhook refers to.
func (db *DB) GetAppointmentByMeetingID(ctx context.Context, meetingID string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE zoom_meeting_id = ?`
	return db.scanOne(ctx, query, meetingID)
}

// RescheduleWithVersion moves the slot and marks the appointment rescheduled.
// The version check rejects writes racing a concurrent mutation.
func (db *DB) RescheduleWithVersion(ctx context.Context, token string, fromVersion int64, date, timeOfDay string) error {
	query := `UPDATE appointments
              SET date = ?, time = ?, status = ?, version = version + 1,
                  last_activity = ?, updated_at = ?
              WHERE token = ? AND version = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, date, timeOfDay, models.StatusRescheduled, now, now, token, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	return versionedOutcome(result)
}

// CancelWithVersion flips the appointment into its terminal state.
func (db *DB) CancelWithVersion(ctx context.Context, token string, fromVersion int64) error {
	query := `UPDATE appointments
              SET status = ?, cancelled_at = ?, version = version + 1,
                  last_activity = ?, updated_at = ?
              WHERE token = ? AND version = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, models.StatusCancelled, now, now, now, token, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	return versionedOutcome(result)
}

// UpdateStatusByID is the operator override; it does not consult the state
// machine and is also used by meeting-activity webhooks.
func (db *DB) UpdateStatusByID(ctx context.Context, id, status string) error {
	query := `UPDATE appointments
              SET status = ?, version = version + 1, last_activity = ?, updated_at = ?
              WHERE id = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, status, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return notFoundOutcome(result)
}

// SetExternalRefs records the provider identifiers obtained after booking.
func (db *DB) SetExternalRefs(ctx context.Context, token string, appt *models.Appointment) error {
	query := `UPDATE appointments
              SET calendar_event_id = ?, zoom_meeting_id = ?, zoom_join_url = ?,
                  zoom_password = ?, calendar_sync_status = ?, meeting_sync_status = ?,
                  updated_at = ?
              WHERE token = ?`
	_, err := db.ExecContext(ctx, query,
		appt.CalendarEventID,
		appt.ZoomMeetingID,
		appt.ZoomJoinURL,
		appt.ZoomPassword,
		appt.CalendarSyncStatus,
		appt.MeetingSyncStatus,
		time.Now(),
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to set external refs: %w", err)
	}
	return nil
}

// SetSyncStatus records the outcome of a best-effort external call so the
// admin surface can show degraded appointments.
func (db *DB) SetSyncStatus(ctx context.Context, token, adapter, status string) error {
	var column string
	switch adapter {
	case "calendar":
		column = "calendar_sync_status"
	case "meeting":
		column = "meeting_sync_status"
	default:
		return fmt.Errorf("unknown sync adapter: %s", adapter)
	}
	query := fmt.Sprintf(`UPDATE appointments SET %s = ?, updated_at = ? WHERE token = ?`, column)
	_, err := db.ExecContext(ctx, query, status, time.Now(), token)
	if err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}

func (db *DB) DeleteAppointmentByID(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return notFoundOutcome(result)
}

// ListAppointments returns every appointment, newest first, notes included.
func (db *DB) ListAppointments(ctx context.Context) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var appointments []*models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	for _, appt := range appointments {
		if _, err := db.attachNotes(ctx, appt); err != nil {
			return nil, err
		}
	}
	return appointments, nil
}

// BookedTimes returns the occupied slots for one day, cancelled excluded.
func (db *DB) BookedTimes(ctx context.Context, date string) (map[string]bool, error) {
	query := `SELECT time FROM appointments WHERE date = ? AND status != ?`
	rows, err := db.QueryContext(ctx, query, date, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked times: %w", err)
	}
	defer rows.Close()

	booked := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan booked time: %w", err)
		}
		booked[t] = true
	}
	return booked, rows.Err()
}

// CountByStatus aggregates appointment counts for the dashboard.
func (db *DB) CountByStatus(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	query := `SELECT status, COUNT(*) FROM appointments GROUP BY status`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.Total += count
		switch status {
		case models.StatusConfirmed:
			stats.Confirmed = count
		case models.StatusInProgress:
			stats.InProgress = count
		case models.StatusCompleted:
			stats.Completed = count
		case models.StatusCancelled:
			stats.Cancelled = count
		case models.StatusRescheduled:
			stats.Rescheduled = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var appt models.Appointment
	var cancelledAt sql.NullTime
	err := row.Scan(
		&appt.ID, &appt.Token, &appt.Status, &appt.Name, &appt.Email,
		&appt.Phone, &appt.Company, &appt.Service, &appt.Date, &appt.Time,
		&appt.Message, &appt.CalendarEventID, &appt.ZoomMeetingID,
		&appt.ZoomJoinURL, &appt.ZoomPassword, &appt.CalendarSyncStatus,
		&appt.MeetingSyncStatus, &appt.LastActivity, &appt.CreatedAt,
		&appt.UpdatedAt, &cancelledAt, &appt.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}
	if cancelledAt.Valid {
		appt.CancelledAt = &cancelledAt.Time
	}
	return &appt, nil
}

func (db *DB) scanOne(ctx context.Context, query string, arg any) (*models.Appointment, error) {
	appt, err := scanAppointment(db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return appt, nil
}

func versionedOutcome(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func notFoundOutcome(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
