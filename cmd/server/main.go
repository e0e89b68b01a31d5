package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/api"
	"github.com/maconsulting/parcours/internal/diagnostic"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/middleware"
	"github.com/maconsulting/parcours/internal/utils"
)

var (
	commit    = "dev"
	buildTime = ""
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parcours server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, err := logging.New(utils.SafeEnv("PARCOURS_LOG_LEVEL", "info"), utils.SafeEnv("PARCOURS_LOG_FORMAT", "json"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	addr := utils.SafeEnv("PARCOURS_ADDR", ":4000")
	store, err := openStore(utils.SafeEnv("PARCOURS_DB_PATH", ""), utils.SafeEnv("PARCOURS_MIGRATIONS_DIR", ""), log)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := diagnostic.Default()
	if err != nil {
		return err
	}
	signer := middleware.NewSigner(os.Getenv("PARCOURS_JWT_SECRET"))
	if os.Getenv("PARCOURS_JWT_SECRET") == "" {
		log.Warn("PARCOURS_JWT_SECRET not set, using the development secret")
	}
	rt := api.NewRouter(store, signer, q,
		api.WithStaffKey(os.Getenv("PARCOURS_STAFF_KEY")),
		api.WithLogger(log))
	if err := seedQuestCodes(rt.Quest(), os.Getenv("PARCOURS_QUEST_CODES"), log); err != nil {
		return err
	}

	mux := http.NewServeMux()
	rt.Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "parcours API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"commit": commit, "build_time": buildTime})
	})

	handler := middleware.Chain(mux,
		middleware.RequestLogger(log),
		middleware.CORS,
		middleware.SecureHeaders(utils.SafeEnv("PARCOURS_HSTS", "") == "1"),
		middleware.NoStore,
		middleware.LocaleMiddleware,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("parcours server listening", zap.String("addr", addr), zap.String("commit", commit))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
