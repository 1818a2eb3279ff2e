package models

const (
	StatusConfirmed   = "confirmed"
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

const (
	SyncOK     = "ok"
	SyncFailed = "failed"
)

// ValidStatus reports whether s is one of the known appointment statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

const (
	// SlotDurationMinutes is the length of every consultation.
	SlotDurationMinutes = 30

	// AdminTokenTTLHours is how long an issued admin credential stays valid.
	AdminTokenTTLHours = 24

	// DefaultAdapterTimeout bounds every external provider call so a slow
	// provider cannot stall a request.
	DefaultAdapterTimeoutSeconds = 5

	// LoginRateLimitAttempts / LoginRateLimitWindow bound admin login attempts per IP.
	LoginRateLimitAttempts = 5
	LoginRateLimitWindow   = 15 * 60 // seconds

	// WorkerQueueSize is the in-memory buffer of the sync worker.
	WorkerQueueSize = 128
)

// BookableSlots are the offered consultation start times (local business hours,
// lunch excluded).
var BookableSlots = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"13:00", "13:30", "14:00", "14:30", "15:00", "15:30",
	"16:00", "16:30", "17:00",
}

// BookableTime reports whether t is one of the offered start times.
func BookableTime(t string) bool {
	for _, slot := range BookableSlots {
		if slot == t {
			return true
		}
	}
	return false
}
