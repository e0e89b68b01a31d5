// Package commercial manages a commercial partner's deal pipeline.
package commercial

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/eligibility"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filter narrows a deal listing. Zero values mean first page, default limit,
// any status and no search.
type Filter struct {
	Page   int
	Limit  int
	Status models.DealStatus
	Query  string
}

func (f Filter) values(partner string) (url.Values, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apiclient.NewValidationError("status", fmt.Sprintf("Statut inconnu: %s", f.Status))
	}
	page := max(f.Page, 1)
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	v := url.Values{}
	v.Set("partner", partner)
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		v.Set("q", q)
	}
	return v, nil
}

// Client is bound to one partner.
type Client struct {
	api     *apiclient.Client
	partner string
	log     *zap.Logger
}

func NewClient(api *apiclient.Client, session models.CommercialSession, log *zap.Logger) (*Client, error) {
	e, err := eligibility.NormalizeAndValidate(session.Email)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, partner: e, log: logging.OrNop(log)}, nil
}

// List returns one page of the partner's deals.
func (c *Client) List(ctx context.Context, f Filter) (models.DealList, error) {
	q, err := f.values(c.partner)
	if err != nil {
		return models.DealList{}, err
	}
	list, err := apiclient.Get[models.DealList](ctx, c.api, "/commercial-deals", q, nil)
	if err != nil {
		return models.DealList{}, fmt.Errorf("list deals: %w", err)
	}
	return list, nil
}

// Create validates in and stores a new deal.
func (c *Client) Create(ctx context.Context, in models.DealInput) (models.Deal, error) {
	in, err := c.prepare(in)
	if err != nil {
		return models.Deal{}, err
	}
	d, err := apiclient.Send[models.Deal](ctx, c.api, http.MethodPost, "/commercial-deals", in, nil)
	if err != nil {
		return models.Deal{}, fmt.Errorf("create deal: %w", err)
	}
	c.log.Info("deal created", zap.String("id", d.ID), zap.String("status", string(d.Status)))
	return d, nil
}

// Update replaces the editable fields of deal id.
func (c *Client) Update(ctx context.Context, id string, in models.DealInput) (models.Deal, error) {
	if strings.TrimSpace(id) == "" {
		return models.Deal{}, apiclient.NewValidationError("id", "Identifiant requis")
	}
	in, err := c.prepare(in)
	if err != nil {
		return models.Deal{}, err
	}
	d, err := apiclient.Send[models.Deal](ctx, c.api, http.MethodPut, "/commercial-deals/"+url.PathEscape(id), in, nil)
	if err != nil {
		return models.Deal{}, fmt.Errorf("update deal %s: %w", id, err)
	}
	return d, nil
}

// Delete removes deal id.
func (c *Client) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apiclient.NewValidationError("id", "Identifiant requis")
	}
	err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/commercial-deals/" + url.PathEscape(id),
		Query:  url.Values{"partner": []string{c.partner}},
	}, nil)
	if err != nil {
		return fmt.Errorf("delete deal %s: %w", id, err)
	}
	return nil
}

func (c *Client) prepare(in models.DealInput) (models.DealInput, error) {
	in.PartnerEmail = c.partner
	in.Company = strings.TrimSpace(in.Company)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Status == "" {
		in.Status = models.DealProspect
	}
	return in, Validate(in)
}

// Validate checks a deal form.
func Validate(in models.DealInput) error {
	switch {
	case strings.TrimSpace(in.Company) == "":
		return apiclient.NewValidationError("company", "Entreprise requise")
	case math.IsNaN(in.Amount) || in.Amount < 0:
		return apiclient.NewValidationError("amount", "Le montant doit être positif")
	case math.IsNaN(in.CommissionRate) || in.CommissionRate < 0 || in.CommissionRate > 100:
		return apiclient.NewValidationError("commissionRate", "La commission doit être comprise entre 0 et 100")
	case !in.Status.Valid():
		return apiclient.NewValidationError("status", fmt.Sprintf("Statut inconnu: %s", in.Status))
	}
	return nil
}
