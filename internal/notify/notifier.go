package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"termin/internal/domain"
	"termin/internal/models"

	"github.com/rs/zerolog"
)

// Service renders and dispatches the lifecycle emails. Send failures are
// logged and never propagated: mail must not break a booking.
type Service struct {
	sender    domain.EmailSender
	enabled   bool
	baseURL   string
	hostEmail string
	logger    *zerolog.Logger
}

func NewService(sender domain.EmailSender, enabled bool, baseURL, hostEmail string, logger *zerolog.Logger) *Service {
	return &Service{
		sender:    sender,
		enabled:   enabled && sender != nil && sender.IsConfigured(),
		baseURL:   baseURL,
		hostEmail: hostEmail,
		logger:    logger,
	}
}

type mailData struct {
	Appt       *models.Appointment
	ManageLink string
	OldDate    string
	OldTime    string
}

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(`<html><body>
<p>Hello {{.Appt.Name}},</p>
<p>Your consultation is confirmed for <strong>{{.Appt.Date}}</strong> at <strong>{{.Appt.Time}}</strong>.</p>
{{if .Appt.ZoomJoinURL}}<p>Join link: <a href="{{.Appt.ZoomJoinURL}}">{{.Appt.ZoomJoinURL}}</a>{{if .Appt.ZoomPassword}} (password: {{.Appt.ZoomPassword}}){{end}}</p>{{end}}
<p>You can reschedule or cancel at any time: <a href="{{.ManageLink}}">{{.ManageLink}}</a></p>
</body></html>`))

	rescheduleTmpl = template.Must(template.New("reschedule").Parse(`<html><body>
<p>Hello {{.Appt.Name}},</p>
<p>Your consultation has been moved from {{.OldDate}} {{.OldTime}} to <strong>{{.Appt.Date}}</strong> at <strong>{{.Appt.Time}}</strong>.</p>
{{if .Appt.ZoomJoinURL}}<p>Join link: <a href="{{.Appt.ZoomJoinURL}}">{{.Appt.ZoomJoinURL}}</a></p>{{end}}
<p>Manage your appointment: <a href="{{.ManageLink}}">{{.ManageLink}}</a></p>
</body></html>`))

	cancellationTmpl = template.Must(template.New("cancellation").Parse(`<html><body>
<p>Hello {{.Appt.Name}},</p>
<p>Your consultation on {{.Appt.Date}} at {{.Appt.Time}} has been cancelled.</p>
<p>You are welcome to book a new appointment whenever it suits you.</p>
</body></html>`))

	hostAlertTmpl = template.Must(template.New("host_alert").Parse(`<html><body>
<p>New consultation booked:</p>
<ul>
<li>Name: {{.Appt.Name}}</li>
<li>Email: {{.Appt.Email}}</li>
{{if .Appt.Company}}<li>Company: {{.Appt.Company}}</li>{{end}}
{{if .Appt.Service}}<li>Service: {{.Appt.Service}}</li>{{end}}
<li>When: {{.Appt.Date}} {{.Appt.Time}}</li>
{{if .Appt.Message}}<li>Message: {{.Appt.Message}}</li>{{end}}
</ul>
</body></html>`))
)

func (s *Service) manageLink(appt *models.Appointment) string {
	return fmt.Sprintf("%s/appointments/manage/%s", s.baseURL, appt.Token)
}

func (s *Service) send(ctx context.Context, to, subject string, tmpl *template.Template, data mailData) {
	if !s.enabled || to == "" {
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.logger.Error().Err(err).Str("template", tmpl.Name()).Msg("render email failed")
		return
	}

	if err := s.sender.Send(ctx, to, subject, buf.String()); err != nil {
		s.logger.Warn().Err(err).Str("to", to).Str("template", tmpl.Name()).Msg("send email failed")
	}
}

func (s *Service) SendConfirmation(ctx context.Context, appt *models.Appointment) {
	s.send(ctx, appt.Email,
		fmt.Sprintf("Appointment confirmed for %s at %s", appt.Date, appt.Time),
		confirmationTmpl, mailData{Appt: appt, ManageLink: s.manageLink(appt)})
}

func (s *Service) SendRescheduleNotice(ctx context.Context, appt *models.Appointment, oldDate, oldTime string) {
	s.send(ctx, appt.Email,
		fmt.Sprintf("Appointment moved to %s at %s", appt.Date, appt.Time),
		rescheduleTmpl, mailData{Appt: appt, ManageLink: s.manageLink(appt), OldDate: oldDate, OldTime: oldTime})
}

func (s *Service) SendCancellationNotice(ctx context.Context, appt *models.Appointment) {
	s.send(ctx, appt.Email,
		"Appointment cancelled",
		cancellationTmpl, mailData{Appt: appt})
}

func (s *Service) SendHostAlert(ctx context.Context, appt *models.Appointment) {
	s.send(ctx, s.hostEmail,
		fmt.Sprintf("New booking: %s on %s %s", appt.Name, appt.Date, appt.Time),
		hostAlertTmpl, mailData{Appt: appt})
}
