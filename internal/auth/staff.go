// Package auth guards the staff-only order routes.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

const AdminKeyHeader = "X-Admin-Key"

// Claims is the token issued to staff by the dashboard login.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Staff accepts either the shared admin key or an HS256 bearer token whose
// email is on the admin list.
type Staff struct {
	adminKey []byte
	secret   []byte
	emails   []string
	logger   *slog.Logger
}

func NewStaff(adminKey, jwtSecret string, adminEmails []string, logger *slog.Logger) *Staff {
	emails := make([]string, 0, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			emails = append(emails, e)
		}
	}
	return &Staff{
		adminKey: []byte(adminKey),
		secret:   []byte(jwtSecret),
		emails:   emails,
		logger:   logger,
	}
}

func (s *Staff) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.allowKey(r.Header.Get(AdminKeyHeader)) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w)
			return
		}
		email, err := s.verify(token)
		if err != nil {
			s.logger.Warn("staff token rejected", "error", err, "path", r.URL.Path)
			unauthorized(w)
			return
		}
		if !slices.Contains(s.emails, email) {
			s.logger.Warn("staff token for non-admin", "email", email, "path", r.URL.Path)
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Staff) allowKey(key string) bool {
	if len(s.adminKey) == 0 || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), s.adminKey) == 1
}

func (s *Staff) verify(raw string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("no jwt secret configured")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errors.Wrap(err, "parse token")
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return "", errors.New("token has no email")
	}
	return email, nil
}

// Sign issues a staff token. Used by tooling and tests.
func Sign(secret string, claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
}
