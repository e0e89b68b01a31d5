package cli

import (
	"context"
	"errors"
	"sort"

	"github.com/spf13/cobra"

	"github.com/maconsulting/parcours/internal/commercial"
	"github.com/maconsulting/parcours/internal/models"
)

func (a *app) dealsClient(ctx context.Context) (*commercial.Client, error) {
	sess, err := commercial.LoadSession(ctx, a.store)
	if errors.Is(err, commercial.ErrNoSession) {
		return nil, errors.New("no partner session, run `parcours deals login <email>`")
	}
	if err != nil {
		return nil, err
	}
	return commercial.NewClient(a.client, sess, a.log)
}

func dealFlags(cmd *cobra.Command, in *models.DealInput) {
	f := cmd.Flags()
	f.StringVar(&in.Company, "company", "", "company name")
	f.StringVar(&in.Contact, "contact", "", "contact person")
	f.Float64Var(&in.Amount, "amount", 0, "deal amount in euros")
	f.Float64Var(&in.CommissionRate, "commission", 0, "commission rate in percent")
	f.StringVar((*string)(&in.Status), "status", "", "prospect, negociation, gagne or perdu")
	f.StringVar(&in.Notes, "notes", "", "free notes")
}

func newDealsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deals",
		Short: "Commercial partner deals",
	}

	var name string
	login := &cobra.Command{
		Use:   "login <email>",
		Short: "Remember the partner email used for deals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := commercial.SaveSession(cmd.Context(), a.store, models.CommercialSession{Email: args[0], Name: name})
			if err != nil {
				return err
			}
			a.printf("Partner %s\n", sess.Email)
			return nil
		},
	}
	login.Flags().StringVar(&name, "name", "", "partner display name")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the partner session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commercial.ClearSession(cmd.Context(), a.store)
		},
	}

	var filter commercial.Filter
	list := &cobra.Command{
		Use:   "list",
		Short: "List deals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.dealsClient(cmd.Context())
			if err != nil {
				return err
			}
			page, err := c.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return a.emit(page, func() {
				for _, d := range page.Items {
					a.printDeal(d)
				}
				a.printf("page %d, %d of %d deals\n", page.Page.Page, len(page.Items), page.Total)
			})
		},
	}
	list.Flags().IntVar(&filter.Page, "page", 1, "page number")
	list.Flags().IntVar(&filter.Limit, "limit", commercial.DefaultLimit, "deals per page")
	list.Flags().StringVar((*string)(&filter.Status), "status", "", "only this status")
	list.Flags().StringVar(&filter.Query, "q", "", "search company or contact")

	var in models.DealInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a deal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.dealsClient(cmd.Context())
			if err != nil {
				return err
			}
			d, err := c.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.emit(d, func() { a.printDeal(d) })
		},
	}
	dealFlags(add, &in)

	var upd models.DealInput
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a deal's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.dealsClient(cmd.Context())
			if err != nil {
				return err
			}
			d, err := c.Update(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			return a.emit(d, func() { a.printDeal(d) })
		},
	}
	dealFlags(update, &upd)

	remove := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a deal",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.dealsClient(cmd.Context())
			if err != nil {
				return err
			}
			return c.Delete(cmd.Context(), args[0])
		},
	}

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Pipeline and commission totals over all deals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.dealsClient(cmd.Context())
			if err != nil {
				return err
			}
			var all []models.Deal
			for page := 1; ; page++ {
				res, err := c.List(cmd.Context(), commercial.Filter{Page: page, Limit: commercial.MaxLimit})
				if err != nil {
					return err
				}
				all = append(all, res.Items...)
				if len(res.Items) == 0 || len(all) >= res.Total {
					break
				}
			}
			s := commercial.Summary(all)
			return a.emit(s, func() {
				a.printf("%d deals, pipeline %.2f EUR, won %.2f EUR\n", s.Count, s.Pipeline, s.Won)
				a.printf("commission won %.2f EUR, expected %.2f EUR\n", s.WonCommission, s.ExpectedCommission)
				statuses := make([]string, 0, len(s.ByStatus))
				for st := range s.ByStatus {
					statuses = append(statuses, string(st))
				}
				sort.Strings(statuses)
				for _, st := range statuses {
					a.printf("  %-12s %d\n", st, s.ByStatus[models.DealStatus(st)])
				}
			})
		},
	}

	cmd.AddCommand(login, logout, list, add, update, remove, summary)
	return cmd
}

func (a *app) printDeal(d models.Deal) {
	a.printf("%s  %-20s %-12s %10.2f EUR  %5.1f%%\n", d.ID, d.Company, d.Status, d.Amount, d.CommissionRate)
}
