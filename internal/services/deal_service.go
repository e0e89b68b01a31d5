package services

import (
	"math"
	"strings"
	"time"

	"github.com/maconsulting/parcours/internal/models"
)

type DealStore interface {
	InsertDeal(d *models.Deal) error
	UpdateDeal(d *models.Deal) error
	GetDeal(id string) (*models.Deal, error)
	DeleteDeal(id string) (bool, error)
	ListDeals(q DealQuery) ([]models.Deal, int, error)
}

const (
	DefaultDealLimit = 20
	MaxDealLimit     = 100
)

type DealService struct {
	store DealStore
	now   func() time.Time
	idGen func() string
}

func NewDealService(store DealStore) *DealService {
	return &DealService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return "deal_" + shortID(10) },
	}
}

func validateDeal(in *models.DealInput) error {
	in.Company = strings.TrimSpace(in.Company)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Status == "" {
		in.Status = models.DealProspect
	}
	switch {
	case in.Company == "":
		return NewInvalidError("company required")
	case math.IsNaN(in.Amount) || in.Amount < 0:
		return NewInvalidError("amount must be >= 0")
	case math.IsNaN(in.CommissionRate) || in.CommissionRate < 0 || in.CommissionRate > 100:
		return NewInvalidError("commissionRate must be within [0,100]")
	case !in.Status.Valid():
		return NewInvalidError("invalid status")
	}
	return nil
}

func (s *DealService) Create(in models.DealInput) (*models.Deal, error) {
	partner, err := normalizeEmail(in.PartnerEmail)
	if err != nil {
		return nil, err
	}
	if err := validateDeal(&in); err != nil {
		return nil, err
	}
	now := s.now()
	d := &models.Deal{
		ID:             s.idGen(),
		PartnerEmail:   partner,
		Company:        in.Company,
		Contact:        in.Contact,
		Amount:         in.Amount,
		Status:         in.Status,
		CommissionRate: in.CommissionRate,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertDeal(d); err != nil {
		return nil, err
	}
	return d, nil
}

// owned loads deal id and checks it belongs to partner.
func (s *DealService) owned(id, partner string) (*models.Deal, error) {
	p, err := normalizeEmail(partner)
	if err != nil {
		return nil, err
	}
	d, err := s.store.GetDeal(id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, NewNotFoundError("deal not found")
	}
	if d.PartnerEmail != p {
		return nil, NewForbiddenError("forbidden")
	}
	return d, nil
}

func (s *DealService) Update(id string, in models.DealInput) (*models.Deal, error) {
	d, err := s.owned(id, in.PartnerEmail)
	if err != nil {
		return nil, err
	}
	if err := validateDeal(&in); err != nil {
		return nil, err
	}
	d.Company, d.Contact, d.Notes = in.Company, in.Contact, in.Notes
	d.Amount, d.CommissionRate, d.Status = in.Amount, in.CommissionRate, in.Status
	d.UpdatedAt = s.now()
	if err := s.store.UpdateDeal(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DealService) Delete(id, partner string) error {
	if _, err := s.owned(id, partner); err != nil {
		return err
	}
	ok, err := s.store.DeleteDeal(id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("deal not found")
	}
	return nil
}

// List returns one page of a partner's deals, newest first.
func (s *DealService) List(partner string, status models.DealStatus, search string, page, limit int) (models.DealList, error) {
	p, err := normalizeEmail(partner)
	if err != nil {
		return models.DealList{}, err
	}
	if status != "" && !status.Valid() {
		return models.DealList{}, NewInvalidError("invalid status")
	}
	page = max(page, 1)
	if limit <= 0 {
		limit = DefaultDealLimit
	}
	limit = min(limit, MaxDealLimit)
	items, total, err := s.store.ListDeals(DealQuery{
		Partner: p,
		Status:  status,
		Search:  strings.ToLower(strings.TrimSpace(search)),
		Offset:  (page - 1) * limit,
		Limit:   limit,
	})
	if err != nil {
		return models.DealList{}, err
	}
	if items == nil {
		items = []models.Deal{}
	}
	return models.DealList{Items: items, Page: models.Page{Page: page, Limit: limit, Total: total}}, nil
}
