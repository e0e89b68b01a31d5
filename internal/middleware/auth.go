package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/utils"
)

type authCtxKey int

const questKey authCtxKey = 7

// QuestClaims are carried by Career Quest session tokens.
type QuestClaims struct {
	SID   string `json:"sid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 Career Quest tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	if secret == "" {
		secret = "parcours-dev-secret"
	}
	return &Signer{secret: []byte(secret), now: time.Now}
}

func (s *Signer) SignQuestToken(sessionID, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := QuestClaims{SID: sessionID, Email: email, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) Parse(tok string) (*QuestClaims, error) {
	t, err := jwt.ParseWithClaims(tok, &QuestClaims{}, func(token *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*QuestClaims); ok && t.Valid {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// SessionResolver maps a verified session id to its owner email.
type SessionResolver func(sessionID, email string) (string, error)

// RequireQuestSession checks the session id and token headers. The token
// must be valid and name the same session; resolve gets the final say.
func (s *Signer) RequireQuestSession(resolve SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := strings.TrimSpace(r.Header.Get(models.HeaderQuestSessionID))
			tok := strings.TrimSpace(r.Header.Get(models.HeaderQuestToken))
			c, err := s.Parse(tok)
			if sid == "" || err != nil || c.SID != sid {
				unauthorized(w, r)
				return
			}
			email, err := resolve(sid, c.Email)
			if err != nil {
				unauthorized(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), questKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	msg := utils.T(LocaleFromContext(r.Context()), "session.unauthorized")
	_ = json.NewEncoder(w).Encode(models.ErrorBody{Message: msg, Code: "unauthorized"})
}

// QuestEmailFromContext returns the email of the authenticated player.
func QuestEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(questKey).(string)
	return email, ok && email != ""
}

// RequireStaffKey guards staff routes with a shared key. An empty key
// disables them.
func RequireStaffKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || r.Header.Get("X-Staff-Key") != key {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
