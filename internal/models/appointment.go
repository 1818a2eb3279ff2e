package models

import "time"

// Appointment is the central scheduling entity. The token is the only handle
// clients hold; it is unguessable and never reused.
type Appointment struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	Status    string `json:"status"` // confirmed, in_progress, completed, cancelled, rescheduled
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Service   string `json:"service"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM
	Message   string `json:"message,omitempty"`

	CalendarEventID string `json:"calendar_event_id,omitempty"`
	ZoomMeetingID   string `json:"zoom_meeting_id,omitempty"`
	ZoomJoinURL     string `json:"zoom_join_url,omitempty"`
	ZoomPassword    string `json:"zoom_password,omitempty"`

	// External propagation is best-effort; these record the last outcome so
	// operators can spot stale calendar entries.
	CalendarSyncStatus string `json:"calendar_sync_status,omitempty"` // "", ok, failed
	MeetingSyncStatus  string `json:"meeting_sync_status,omitempty"`

	AdminNotes []AdminNote `json:"admin_notes,omitempty"`

	LastActivity time.Time  `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	Version      int64      `json:"version"`
}

// AdminNote is an operator annotation. Notes are append-only.
type AdminNote struct {
	ID            int64     `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	Note          string    `json:"note"`
	Admin         bool      `json:"admin"`
	Timestamp     time.Time `json:"timestamp"`
}

// Degraded reports whether any external system is out of sync with the store.
func (a *Appointment) Degraded() bool {
	return a.CalendarSyncStatus == SyncFailed || a.MeetingSyncStatus == SyncFailed
}

// StartAt combines the date and time fields into a wall-clock instant.
func (a *Appointment) StartAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.Time, loc)
}

// Stats aggregates appointment counts by status for the admin dashboard.
type Stats struct {
	Total       int `json:"total"`
	Confirmed   int `json:"confirmed"`
	InProgress  int `json:"in_progress"`
	Completed   int `json:"completed"`
	Cancelled   int `json:"cancelled"`
	Rescheduled int `json:"rescheduled"`
}

// Slot is one bookable time slot on a given day.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}
