package cli

import (
	"github.com/spf13/cobra"

	"github.com/maconsulting/parcours/internal/eligibility"
)

func newEligibilityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility <email>",
		Short: "Check whether an email may start a new diagnostic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dec, err := eligibility.NewGate(a.client, a.log).Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(dec, func() { a.printDecision(args[0], dec) })
		},
	}
}

func (a *app) printDecision(email string, dec eligibility.Decision) {
	switch {
	case dec.AllowNew:
		a.printf("OK: a new diagnostic can start (%s)\n", dec.Reason)
	case dec.HardBlock():
		a.printf("Blocked: account suspended (%s)\n", dec.BlockedBy)
	default:
		a.printf("Blocked: %s (by %s)\n", dec.Reason, dec.BlockedBy)
		if dec.OffersResultLink() {
			a.printf("Previous result: %s\n", dec.ResultRoute(email))
		}
	}
}
