package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"termin/internal/config"
	"termin/internal/domain"
	"termin/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const sessionCookie = "admin_session"

// AdminAuth issues and verifies signed admin session tokens. A single shared
// password grants a token; the token, not the password, authorizes requests.
type AdminAuth struct {
	cfg     config.AdminConfig
	limiter domain.StateRepository
	logger  *zerolog.Logger
}

func NewAdminAuth(cfg config.AdminConfig, limiter domain.StateRepository, logger *zerolog.Logger) *AdminAuth {
	return &AdminAuth{cfg: cfg, limiter: limiter, logger: logger}
}

// IssueToken mints an HMAC-signed session token valid for 24 hours.
func (a *AdminAuth) IssueToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(models.AdminTokenTTLHours * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.TokenSecret))
}

func (a *AdminAuth) verify(tokenString string) error {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.cfg.TokenSecret), nil
	})
	if err != nil || !token.Valid {
		return jwt.ErrTokenUnverifiable
	}
	return nil
}

// Middleware rejects requests without a valid session token. The token is
// read from the Authorization header or the session cookie.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		} else if cookie, err := r.Cookie(sessionCookie); err == nil {
			tokenString = cookie.Value
		}

		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "missing admin credentials")
			return
		}
		if err := a.verify(tokenString); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid admin credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleLogin exchanges the admin password for a session token. Attempts are
// rate limited per client IP.
func (a *AdminAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if a.limiter != nil {
		allowed, err := a.limiter.CheckRateLimit(r.Context(), "admin_login:"+clientIP(r),
			models.LoginRateLimitAttempts, models.LoginRateLimitWindow*time.Second)
		if err != nil {
			a.logger.Error().Err(err).Msg("login rate limit check failed")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(body.Password), []byte(a.cfg.Password)) != 1 {
		a.logger.Warn().Str("ip", clientIP(r)).Msg("failed admin login attempt")
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := a.IssueToken()
	if err != nil {
		a.logger.Error().Err(err).Msg("issue admin token failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   models.AdminTokenTTLHours * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// HandleSession reports a valid session; Middleware already rejected the rest.
func (a *AdminAuth) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}
