package careerquest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/eligibility"
	"github.com/maconsulting/parcours/internal/kvstore"
	"github.com/maconsulting/parcours/internal/models"
)

// ErrNoSession means no Career Quest session is stored.
var ErrNoSession = errors.New("no career quest session")

// Login exchanges an email and access code for a session and stores it.
func Login(ctx context.Context, c *apiclient.Client, store kvstore.Store, email, code string) (models.QuestSession, error) {
	e, err := eligibility.NormalizeAndValidate(email)
	if err != nil {
		return models.QuestSession{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return models.QuestSession{}, apiclient.NewValidationError("code", "Code d'accès requis")
	}
	sess, err := apiclient.Send[models.QuestSession](ctx, c, http.MethodPost, "/career-quest/login",
		models.QuestLoginRequest{Email: e, Code: code}, nil)
	if err != nil {
		return models.QuestSession{}, fmt.Errorf("career quest login: %w", err)
	}
	if sess.Email == "" {
		sess.Email = e
	}
	if err := kvstore.SetJSON(ctx, store, kvstore.KeyQuestSession, sess); err != nil {
		return sess, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// LoadSession returns the stored session, or ErrNoSession.
func LoadSession(ctx context.Context, store kvstore.Store) (models.QuestSession, error) {
	var sess models.QuestSession
	err := kvstore.GetJSON(ctx, store, kvstore.KeyQuestSession, &sess)
	if errors.Is(err, kvstore.ErrNotFound) || (err == nil && sess.SessionID == "") {
		return models.QuestSession{}, ErrNoSession
	}
	return sess, err
}

// Logout forgets the stored session. Cached progress is kept.
func Logout(ctx context.Context, store kvstore.Store) error {
	return store.Remove(ctx, kvstore.KeyQuestSession)
}

// Expired reports whether the session token is past its expiry. The token's
// exp claim is read without verifying the signature; the server does that.
// ExpiresAt is used when the token carries no exp.
func Expired(s models.QuestSession, now time.Time) bool {
	if s.Token != "" {
		var claims jwt.RegisteredClaims
		if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err == nil && claims.ExpiresAt != nil {
			return !now.Before(claims.ExpiresAt.Time)
		}
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}
