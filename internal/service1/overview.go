package service1

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/maconsulting/parcours/internal/models"
)

// PhaseSummary is one line of the status overview.
type PhaseSummary struct {
	Key    PhaseKey
	Status string
	Empty  bool
}

// Overview loads phases 0 to 5 concurrently and summarises them. Nothing is
// generated. The first failure cancels the remaining loads.
func (c *Controller) Overview(ctx context.Context) ([]PhaseSummary, error) {
	keys := Phases[:6]
	out := make([]PhaseSummary, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			st, err := c.fetch(gctx, key)
			if err != nil {
				return err
			}
			out[i] = PhaseSummary{Key: key, Status: statusOf(st), Empty: isEmpty(st)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func statusOf(state any) string {
	switch s := state.(type) {
	case *models.Phase0State:
		return s.Status
	case *models.Phase1State:
		return s.Status
	case *models.Phase2State:
		return s.Status
	case *models.Phase3State:
		return s.Status
	case *models.Phase4State:
		return s.Status
	case *models.Phase5State:
		return string(s.Status)
	}
	return ""
}
