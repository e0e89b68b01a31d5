package commercial

import "github.com/maconsulting/parcours/internal/models"

// PipelineSummary aggregates a set of deals.
type PipelineSummary struct {
	Count    int
	ByStatus map[models.DealStatus]int
	// Pipeline is the amount still open (prospect and negociation).
	Pipeline float64
	Won      float64
	// WonCommission is the partner's commission on won deals.
	WonCommission float64
	// ExpectedCommission is the commission on the open pipeline.
	ExpectedCommission float64
}

func Summary(deals []models.Deal) PipelineSummary {
	s := PipelineSummary{ByStatus: map[models.DealStatus]int{}}
	for _, d := range deals {
		s.Count++
		s.ByStatus[d.Status]++
		commission := d.Amount * d.CommissionRate / 100
		switch d.Status {
		case models.DealProspect, models.DealNegotiation:
			s.Pipeline += d.Amount
			s.ExpectedCommission += commission
		case models.DealWon:
			s.Won += d.Amount
			s.WonCommission += commission
		}
	}
	return s
}
