package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/debemdeboas/docsave/internal/autosave"
	"github.com/debemdeboas/docsave/internal/config"
	"github.com/debemdeboas/docsave/internal/db"
	"github.com/debemdeboas/docsave/internal/document"
	"github.com/debemdeboas/docsave/internal/editor"
	"github.com/debemdeboas/docsave/internal/logger"
	"github.com/debemdeboas/docsave/internal/persistence"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/session"
	"github.com/debemdeboas/docsave/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML or TOML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.AppConfig

	log := logger.New(cfg.Logging.Level)
	config.SetLogger(logger.Component(log, "config"))
	db.SetLogger(logger.Component(log, "db"))
	repository.SetLogger(logger.Component(log, "repository"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with errors")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (err error) {
	if cfg.Tracing.Enabled {
		shutdown, terr := tracing.Init(ctx, tracing.Config{ServiceName: cfg.Tracing.ServiceName, Stdout: cfg.Tracing.Stdout})
		if terr != nil {
			return fmt.Errorf("init tracing: %w", terr)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, shutdown(sctx))
		}()
	}

	sess, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, sess.Close())
	}()

	srv := newServer(sess, cfg.Server.SaveRate, cfg.Server.SaveBurst, logger.Component(log, "http"))
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("content_id", string(sess.ContentID())).Msg("Listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(sctx)
}

// openSession builds the configured stores and opens the editing session.
// The session owns the stores and closes them.
func openSession(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*session.Session, error) {
	localRepo, err := session.OpenLocal(cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	remoteRepo, err := session.OpenRemote(ctx, cfg.Remote)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open remote store: %w", err), localRepo.Close())
	}

	sess, err := session.New(session.Config{
		ContentID: repository.ContentID(cfg.Content.ID),
		Autosave: autosave.Config{
			Enabled:  cfg.Autosave.Enabled,
			Interval: cfg.Autosave.Interval,
		},
	}, localRepo, remoteRepo, editor.NewBuffer(document.Welcome()), logger.Component(log, "persistence"),
		persistence.WithSingleFlight(),
	)
	if err != nil {
		return nil, multierr.Append(err, localRepo.Close())
	}
	sess.CloseWith(localRepo)

	if err := sess.Open(ctx); err != nil {
		return nil, multierr.Append(err, sess.Close())
	}
	return sess, nil
}
