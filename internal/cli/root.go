// Package cli implements the parcours command line client.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/config"
	"github.com/maconsulting/parcours/internal/kvstore"
	"github.com/maconsulting/parcours/internal/logging"
)

// app is what every subcommand works with. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  kvstore.Store
	client *apiclient.Client
	out    io.Writer

	configPath string
	apiURL     string
	backend    string
	storePath  string
	jsonOut    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

// newRoot also returns the app so callers can release it when a command
// fails, since PersistentPostRunE only runs after a successful RunE.
func newRoot() (*cobra.Command, *app) {
	a := &app{out: os.Stdout}
	root := &cobra.Command{
		Use:   "parcours",
		Short: "MA Consulting client: diagnostic, Service 1, Career Quest and commercial deals",
		Long: `parcours talks to the MA Consulting backend.

Typical journey:
  parcours eligibility lea@example.fr
  parcours diagnostic start lea@example.fr
  parcours service1 status lea@example.fr
  parcours quest login lea@example.fr 1234`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "parcours.yaml", "config file (missing file means defaults)")
	f.StringVar(&a.apiURL, "api-url", "", "backend base URL, overrides the config")
	f.StringVar(&a.backend, "store", "", "local store backend: memory, sqlite or redis")
	f.StringVar(&a.storePath, "store-path", "", "sqlite file for the local store")
	f.BoolVar(&a.jsonOut, "json", false, "print raw JSON")

	root.AddCommand(
		newEligibilityCmd(a),
		newDiagnosticCmd(a),
		newService1Cmd(a),
		newQuestCmd(a),
		newDealsCmd(a),
	)
	return root, a
}

// Execute runs the command tree until done or interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, a := newRoot()
	defer a.teardown()
	return root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.out = cmd.OutOrStdout()
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
	}
	if a.backend != "" {
		cfg.Store.Backend = a.backend
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.log, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	timeout, _ := cfg.APITimeout()
	a.client = apiclient.New(cfg.APIBaseURL(), apiclient.WithTimeout(timeout), apiclient.WithLogger(a.log))

	a.store, err = kvstore.Open(cmd.Context(), kvstore.Options{
		Backend:  cfg.Store.Backend,
		Path:     cfg.Store.Path,
		RedisURL: cfg.Store.RedisURL,
	})
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	a.log.Debug("cli ready", zap.String("api", a.client.BaseURL()), zap.String("store", cfg.Store.Backend))
	return nil
}

// teardown is idempotent.
func (a *app) teardown() error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// emit prints v as indented JSON when --json is set; otherwise it calls
// human.
func (a *app) emit(v any, human func()) error {
	if !a.jsonOut {
		human()
		return nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
