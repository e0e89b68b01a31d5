package models

import "time"

// DealStatus tracks a commercial partner's deal through the pipeline.
type DealStatus string

const (
	DealProspect    DealStatus = "prospect"
	DealNegotiation DealStatus = "negociation"
	DealWon         DealStatus = "gagne"
	DealLost        DealStatus = "perdu"
)

// Valid reports whether s is one of the known statuses.
func (s DealStatus) Valid() bool {
	switch s {
	case DealProspect, DealNegotiation, DealWon, DealLost:
		return true
	}
	return false
}

// Deal is a commercial partner's tracked opportunity.
type Deal struct {
	ID             string     `json:"id"`
	PartnerEmail   string     `json:"partnerEmail"`
	Company        string     `json:"company"`
	Contact        string     `json:"contact,omitempty"`
	Amount         float64    `json:"amount"`
	Status         DealStatus `json:"status"`
	CommissionRate float64    `json:"commissionRate"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// DealList is a page of deals.
type DealList struct {
	Items []Deal `json:"items"`
	Page
}

// DealInput is the body of POST and PUT /commercial-deals.
type DealInput struct {
	PartnerEmail   string     `json:"partnerEmail"`
	Company        string     `json:"company"`
	Contact        string     `json:"contact,omitempty"`
	Amount         float64    `json:"amount"`
	Status         DealStatus `json:"status"`
	CommissionRate float64    `json:"commissionRate"`
	Notes          string     `json:"notes,omitempty"`
}

// CommercialSession identifies the logged-in commercial partner.
type CommercialSession struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
