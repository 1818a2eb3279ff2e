package database

import (
	"context"
	"fmt"
	"time"

	"termin/internal/models"
)

// AppendNote adds an operator annotation. Notes are never updated or removed
// individually; the table only grows for the lifetime of the appointment.
func (db *DB) AppendNote(ctx context.Context, appointmentID, note string) (*models.AdminNote, error) {
	// Touch the parent first so a missing id fails before the insert.
	var exists int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments WHERE id = ?`, appointmentID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check appointment: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO admin_notes (appointment_id, note, admin, timestamp) VALUES (?, ?, 1, ?)`,
		appointmentID, note, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append note: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get note id: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE appointments SET last_activity = ?, updated_at = ? WHERE id = ?`,
		now, now, appointmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to touch appointment: %w", err)
	}

	return &models.AdminNote{
		ID:            id,
		AppointmentID: appointmentID,
		Note:          note,
		Admin:         true,
		Timestamp:     now,
	}, nil
}

func (db *DB) GetNotes(ctx context.Context, appointmentID string) ([]models.AdminNote, error) {
	query := `SELECT id, appointment_id, note, admin, timestamp
              FROM admin_notes WHERE appointment_id = ? ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notes: %w", err)
	}
	defer rows.Close()

	var notes []models.AdminNote
	for rows.Next() {
		var n models.AdminNote
		if err := rows.Scan(&n.ID, &n.AppointmentID, &n.Note, &n.Admin, &n.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (db *DB) attachNotes(ctx context.Context, appt *models.Appointment) (*models.Appointment, error) {
	notes, err := db.GetNotes(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	appt.AdminNotes = notes
	return appt, nil
}
