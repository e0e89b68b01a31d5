package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maconsulting/parcours/internal/diagnostic"
	"github.com/maconsulting/parcours/internal/models"
)

// wizard restores the saved draft so each subcommand continues where the
// previous one stopped.
func (a *app) wizard(cmd *cobra.Command) (*diagnostic.Wizard, *diagnostic.Questionnaire, error) {
	q, err := diagnostic.Default()
	if err != nil {
		return nil, nil, err
	}
	w := diagnostic.NewWizard(a.client, a.store, q, a.log)
	if err := w.Restore(cmd.Context()); err != nil {
		return nil, nil, err
	}
	return w, q, nil
}

func newDiagnosticCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnostic",
		Short: "Professional diagnostic questionnaire",
	}

	var identity models.DiagnosticParticipant
	start := &cobra.Command{
		Use:   "start <email>",
		Short: "Check eligibility and open a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, q, err := a.wizard(cmd)
			if err != nil {
				return err
			}
			dec, err := w.Start(cmd.Context(), args[0], identity)
			if err != nil {
				return err
			}
			a.printDecision(w.Draft().Email, dec)
			if dec.AllowNew {
				a.printf("Domains:\n")
				for _, d := range q.Domains {
					a.printf("  %-12s %s\n", d.ID, d.Title)
				}
			}
			return nil
		},
	}
	start.Flags().StringVar(&identity.FirstName, "first-name", "", "participant first name")
	start.Flags().StringVar(&identity.LastName, "last-name", "", "participant last name")
	start.Flags().StringVar(&identity.Company, "company", "", "participant company")

	domain := &cobra.Command{
		Use:   "domain <id>",
		Short: "Choose the questionnaire domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := a.wizard(cmd)
			if err != nil {
				return err
			}
			if err := w.ChooseDomain(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printRemaining(w)
			return nil
		},
	}

	answer := &cobra.Command{
		Use:   "answer <question-id> <value>",
		Short: "Answer one question (1 to points)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("value must be a number: %w", err)
			}
			w, _, err := a.wizard(cmd)
			if err != nil {
				return err
			}
			if err := w.Answer(cmd.Context(), args[0], v); err != nil {
				return err
			}
			a.printRemaining(w)
			return nil
		},
	}

	remaining := &cobra.Command{
		Use:   "remaining",
		Short: "List unanswered questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := a.wizard(cmd)
			if err != nil {
				return err
			}
			a.printf("Step: %s\n", w.Step())
			a.printRemaining(w)
			return nil
		},
	}

	submit := &cobra.Command{
		Use:   "submit",
		Short: "Score and send the answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := a.wizard(cmd)
			if err != nil {
				return err
			}
			res, err := w.Submit(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(res, func() { a.printResult(res) })
		},
	}

	result := &cobra.Command{
		Use:   "result <email>",
		Short: "Show the latest stored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := diagnostic.PublicResult(cmd.Context(), a.client, args[0])
			if err != nil {
				return err
			}
			return a.emit(res, func() { a.printResult(res) })
		},
	}

	subscription := &cobra.Command{
		Use:   "subscription <email>",
		Short: "Show Service 1 access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := diagnostic.PublicSubscription(cmd.Context(), a.client, args[0])
			if err != nil {
				return err
			}
			return a.emit(sub, func() {
				if !sub.Active {
					a.printf("No active subscription for %s\n", sub.Email)
					return
				}
				a.printf("Active: plan %s", sub.Plan)
				if sub.ExpiresAt != nil {
					a.printf(" until %s", sub.ExpiresAt.Format("2006-01-02"))
				}
				a.printf("\n")
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Discard the local draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := a.wizard(cmd)
			if err != nil {
				return err
			}
			return w.Reset(cmd.Context())
		},
	}

	cmd.AddCommand(start, domain, answer, remaining, submit, result, subscription, reset)
	return cmd
}

func (a *app) printRemaining(w *diagnostic.Wizard) {
	rest := w.Remaining()
	if len(rest) == 0 {
		a.printf("All questions answered, run `parcours diagnostic submit`\n")
		return
	}
	for _, q := range rest {
		a.printf("  %-20s %s\n", q.ID, q.Text)
	}
}

func (a *app) printResult(res models.DiagnosticResult) {
	a.printf("Result %s for %s: total %d, orientation %s (%s)\n", res.ID, res.Email, res.Total, res.Orientation, res.Status)
	dims := make([]string, 0, len(res.Scores))
	for d := range res.Scores {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	for _, d := range dims {
		a.printf("  %-16s %d\n", d, res.Scores[d])
	}
}
