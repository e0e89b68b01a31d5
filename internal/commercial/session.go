package commercial

import (
	"context"
	"errors"

	"github.com/maconsulting/parcours/internal/eligibility"
	"github.com/maconsulting/parcours/internal/kvstore"
	"github.com/maconsulting/parcours/internal/models"
)

var ErrNoSession = errors.New("no commercial session")

// SaveSession records the partner identity.
func SaveSession(ctx context.Context, store kvstore.Store, s models.CommercialSession) (models.CommercialSession, error) {
	e, err := eligibility.NormalizeAndValidate(s.Email)
	if err != nil {
		return models.CommercialSession{}, err
	}
	s.Email = e
	return s, kvstore.SetJSON(ctx, store, kvstore.KeyCommercialSession, s)
}

func LoadSession(ctx context.Context, store kvstore.Store) (models.CommercialSession, error) {
	var s models.CommercialSession
	err := kvstore.GetJSON(ctx, store, kvstore.KeyCommercialSession, &s)
	if errors.Is(err, kvstore.ErrNotFound) || (err == nil && s.Email == "") {
		return models.CommercialSession{}, ErrNoSession
	}
	return s, err
}

func ClearSession(ctx context.Context, store kvstore.Store) error {
	return store.Remove(ctx, kvstore.KeyCommercialSession)
}
