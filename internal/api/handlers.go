package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"termin/internal/database"
	"termin/internal/models"
	"termin/internal/scheduling"
	"termin/internal/zoom"
)

// appointmentView is the wire shape of an appointment. The degraded flag tells
// clients that an external provider still lacks the latest state.
type appointmentView struct {
	*models.Appointment
	Degraded bool `json:"degraded"`
}

func view(appt *models.Appointment) appointmentView {
	return appointmentView{Appointment: appt, Degraded: appt.Degraded()}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req scheduling.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := s.lifecycle.Book(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view(appt))
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	slots, err := s.lifecycle.Availability(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

func (s *Server) handleManageGet(w http.ResponseWriter, r *http.Request) {
	appt, err := s.lifecycle.GetByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view(appt))
}

func (s *Server) handleManagePatch(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var body struct {
		Action  string `json:"action"`
		NewDate string `json:"newDate"`
		NewTime string `json:"newTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var appt *models.Appointment
	var err error
	switch body.Action {
	case "reschedule":
		appt, err = s.lifecycle.Reschedule(r.Context(), token, body.NewDate, body.NewTime)
	case "cancel":
		appt, err = s.lifecycle.Cancel(r.Context(), token)
	default:
		writeError(w, http.StatusBadRequest, "action must be reschedule or cancel")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view(appt))
}

func (s *Server) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.admin.Overview(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAdminMutate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action        string `json:"action"`
		AppointmentID string `json:"appointmentId"`
		Data          struct {
			Status string `json:"status"`
			Note   string `json:"note"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointmentId is required")
		return
	}

	switch body.Action {
	case "update_status":
		appt, err := s.admin.UpdateStatus(r.Context(), body.AppointmentID, body.Data.Status, body.Data.Note)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view(appt))
	case "add_note":
		note, err := s.admin.AppendNote(r.Context(), body.AppointmentID, body.Data.Note)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)
	default:
		writeError(w, http.StatusBadRequest, "action must be update_status or add_note")
	}
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.admin.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	overview, err := s.admin.Overview(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	path, err := s.exporter.AppointmentsToExcel(overview.Appointments)
	if err != nil {
		s.logger.Error().Err(err).Msg("excel export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="appointments.xlsx"`)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

// handleZoomWebhook reacts to meeting state changes so the appointment status
// tracks the actual meeting.
func (s *Server) handleZoomWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	secret := s.cfg.Zoom.WebhookSecretToken
	if !zoom.VerifySignature(secret, r.Header.Get("x-zm-request-timestamp"), r.Header.Get("x-zm-signature"), body) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event struct {
		Event   string `json:"event"`
		Payload struct {
			PlainToken string `json:"plainToken"`
			Object     struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch event.Event {
	case "endpoint.url_validation":
		writeJSON(w, http.StatusOK, zoom.ValidationResponse(secret, event.Payload.PlainToken))
		return
	case "meeting.started":
		s.applyMeetingStatus(w, r, event.Payload.Object.ID, models.StatusInProgress)
	case "meeting.ended":
		s.applyMeetingStatus(w, r, event.Payload.Object.ID, models.StatusCompleted)
	default:
		// Unhandled events are acknowledged so Zoom does not retry them.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (s *Server) applyMeetingStatus(w http.ResponseWriter, r *http.Request, meetingID, status string) {
	appt, err := s.store.GetAppointmentByMeetingID(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Meeting not tracked here; acknowledge and move on.
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		writeDomainError(w, err)
		return
	}

	// Cancelled stays cancelled even if the meeting was joined afterwards.
	if appt.Status == models.StatusCancelled {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := s.store.UpdateStatusByID(r.Context(), appt.ID, status); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
