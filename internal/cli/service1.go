package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maconsulting/parcours/internal/service1"
)

// service1Action runs one controller step. args are what follows the action
// name on the command line.
type service1Action struct {
	usage string
	nargs int
	run   func(ctx context.Context, c *service1.Controller, args []string) (any, error)
}

var service1Actions = map[string]service1Action{
	"analyze-cv": {"<file>", 1, func(ctx context.Context, c *service1.Controller, args []string) (any, error) {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return c.AnalyzeCV(ctx, filepath.Base(args[0]), f)
	}},
	"interview-start": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.StartInterview(ctx)
	}},
	"interview-answer": {"<text>", 1, func(ctx context.Context, c *service1.Controller, args []string) (any, error) {
		return c.AnswerInterview(ctx, args[0])
	}},
	"answer-scenarios": {"<id=answer>...", -1, func(ctx context.Context, c *service1.Controller, args []string) (any, error) {
		answers := map[string]string{}
		for _, kv := range args {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("expected id=answer, got %q", kv)
			}
			answers[strings.TrimSpace(k)] = v
		}
		return c.AnswerScenarios(ctx, answers)
	}},
	"report": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.GenerateReport(ctx)
	}},
	"select-path": {"<path-id>", 1, func(ctx context.Context, c *service1.Controller, args []string) (any, error) {
		return c.SelectPath(ctx, args[0])
	}},
	"plan": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.GeneratePlan(ctx)
	}},
	"aggregate": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.Aggregate(ctx)
	}},
	"self-description": {"<text>", 1, func(ctx context.Context, c *service1.Controller, args []string) (any, error) {
		return c.SubmitSelfDescription(ctx, args[0])
	}},
	"final-actions": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.GenerateFinalActions(ctx)
	}},
	"select-action": {"<action-id>", 1, func(ctx context.Context, c *service1.Controller, args []string) (any, error) {
		return c.SelectFinalAction(ctx, args[0])
	}},
	"skill-gap": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.GenerateSkillGap(ctx)
	}},
	"grand-simulation": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.StartGrandSimulation(ctx)
	}},
	"grand-answer": {"<text>", 1, func(ctx context.Context, c *service1.Controller, args []string) (any, error) {
		return c.SubmitGrandAnswer(ctx, args[0])
	}},
	"evaluate": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.Evaluate(ctx)
	}},
	"handover": {"", 0, func(ctx context.Context, c *service1.Controller, _ []string) (any, error) {
		return c.Handover(ctx)
	}},
}

func actionList() string {
	names := make([]string, 0, len(service1Actions))
	for n, act := range service1Actions {
		names = append(names, strings.TrimSpace(n+" "+act.usage))
	}
	sort.Strings(names)
	return "  " + strings.Join(names, "\n  ")
}

func (a *app) controller(email string) (*service1.Controller, error) {
	return service1.NewController(a.client, email, service1.WithLogger(a.log))
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newService1Cmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service1",
		Short: "Service 1 coaching phases",
	}

	status := &cobra.Command{
		Use:   "status <email>",
		Short: "Summarise phases 0 to 5 without generating anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(args[0])
			if err != nil {
				return err
			}
			rows, err := c.Overview(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(rows, func() {
				for _, r := range rows {
					st := r.Status
					if r.Empty {
						st = "(empty) " + st
					}
					a.printf("phase %s  %s\n", r.Key, st)
				}
				for _, k := range c.Tabs() {
					if k == service1.PhaseFinal {
						a.printf("final synthesis available\n")
					}
				}
			})
		},
	}

	open := &cobra.Command{
		Use:   "open <email> <phase>",
		Short: "Open a phase, generating it when empty",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(args[0])
			if err != nil {
				return err
			}
			key, err := service1.ParsePhaseKey(args[1])
			if err != nil {
				return err
			}
			if key == service1.PhaseFinal {
				fs, err := c.Final(cmd.Context())
				if err != nil {
					return err
				}
				a.printf("%s\n", fs.Markdown)
				return nil
			}
			if err := c.Select(cmd.Context(), key); err != nil {
				return err
			}
			return a.printJSON(phaseState(c, key))
		},
	}

	run := &cobra.Command{
		Use:   "run <email> <action> [args...]",
		Short: "Run a phase action",
		Long:  "Actions:\n" + actionList(),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, ok := service1Actions[args[1]]
			if !ok {
				return fmt.Errorf("unknown action %q, available:\n%s", args[1], actionList())
			}
			rest := args[2:]
			if act.nargs >= 0 && len(rest) != act.nargs {
				return fmt.Errorf("usage: service1 run <email> %s %s", args[1], act.usage)
			}
			c, err := a.controller(args[0])
			if err != nil {
				return err
			}
			st, err := act.run(cmd.Context(), c, rest)
			if err != nil {
				return err
			}
			return a.printJSON(st)
		},
	}

	cmd.AddCommand(status, open, run)
	return cmd
}

func phaseState(c *service1.Controller, key service1.PhaseKey) any {
	switch key {
	case service1.Phase0:
		return c.Phase0()
	case service1.Phase1:
		return c.Phase1()
	case service1.Phase2:
		return c.Phase2()
	case service1.Phase3:
		return c.Phase3()
	case service1.Phase4:
		return c.Phase4()
	case service1.Phase5:
		return c.Phase5()
	}
	return nil
}
