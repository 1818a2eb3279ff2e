package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"termin/internal/config"
	"termin/internal/domain"
	"termin/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	defaultAuthBase = "https://zoom.us"
	defaultAPIBase  = "https://api.zoom.us/v2"
)

// accountTokenSource fetches server-to-server OAuth tokens with the
// account_credentials grant. Wrapped in oauth2.ReuseTokenSource it refreshes
// only when the cached token is about to expire.
type accountTokenSource struct {
	authBase     string
	accountID    string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func (s *accountTokenSource) Token() (*oauth2.Token, error) {
	endpoint := fmt.Sprintf("%s/oauth/token?grant_type=account_credentials&account_id=%s",
		s.authBase, url.QueryEscape(s.accountID))

	req, err := http.NewRequest(http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token request returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   "Bearer",
		// Refresh a minute early so in-flight calls never carry a stale token.
		Expiry: time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - time.Minute),
	}, nil
}

// Client talks to the Zoom REST API. Unconfigured clients no-op.
type Client struct {
	apiBase    string
	hostEmail  string
	location   *time.Location
	tokens     oauth2.TokenSource
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewClient(cfg config.ZoomConfig, hostEmail string, location *time.Location, logger *zerolog.Logger) *Client {
	return newClient(cfg, hostEmail, location, logger, defaultAuthBase, defaultAPIBase)
}

func newClient(cfg config.ZoomConfig, hostEmail string, location *time.Location, logger *zerolog.Logger, authBase, apiBase string) *Client {
	client := &Client{
		apiBase:    apiBase,
		hostEmail:  hostEmail,
		location:   location,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	if !cfg.Configured() {
		logger.Info().Msg("zoom not configured, meeting sync disabled")
		return client
	}

	client.tokens = oauth2.ReuseTokenSource(nil, &accountTokenSource{
		authBase:     authBase,
		accountID:    cfg.AccountID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   client.httpClient,
	})
	return client
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.tokens != nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return err
	}
	token.SetAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("zoom request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("zoom %s %s returned %d: %s", method, path, resp.StatusCode, raw)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type meetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time,omitempty"`
	Duration  int             `json:"duration,omitempty"`
	Timezone  string          `json:"timezone,omitempty"`
	Agenda    string          `json:"agenda,omitempty"`
	Settings  meetingSettings `json:"settings"`
}

type meetingSettings struct {
	JoinBeforeHost bool   `json:"join_before_host"`
	WaitingRoom    bool   `json:"waiting_room"`
	Audio          string `json:"audio"`
	AutoRecording  string `json:"auto_recording"`
}

func (c *Client) meetingPayload(appt *models.Appointment) (*meetingRequest, error) {
	start, err := appt.StartAt(c.location)
	if err != nil {
		return nil, err
	}
	return &meetingRequest{
		Topic:     fmt.Sprintf("Consultation: %s", appt.Name),
		Type:      2, // scheduled meeting
		StartTime: start.Format("2006-01-02T15:04:05"),
		Duration:  models.SlotDurationMinutes,
		Timezone:  c.location.String(),
		Agenda:    appt.Service,
		Settings: meetingSettings{
			WaitingRoom:   true,
			Audio:         "both",
			AutoRecording: "none",
		},
	}, nil
}

func (c *Client) CreateMeeting(ctx context.Context, appt *models.Appointment) (*domain.Meeting, error) {
	payload, err := c.meetingPayload(appt)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID       int64  `json:"id"`
		JoinURL  string `json:"join_url"`
		Password string `json:"password"`
	}
	host := c.hostEmail
	if host == "" {
		host = "me"
	}
	if err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(host)+"/meetings", payload, &created); err != nil {
		return nil, err
	}

	c.logger.Debug().Int64("meeting_id", created.ID).Str("token", appt.Token).Msg("zoom meeting created")
	return &domain.Meeting{
		ID:       strconv.FormatInt(created.ID, 10),
		JoinURL:  created.JoinURL,
		Password: created.Password,
	}, nil
}

func (c *Client) UpdateMeeting(ctx context.Context, meetingID string, appt *models.Appointment) error {
	payload, err := c.meetingPayload(appt)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, "/meetings/"+url.PathEscape(meetingID), payload, nil)
}

func (c *Client) CancelMeeting(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodDelete, "/meetings/"+url.PathEscape(meetingID), nil, nil)
}
