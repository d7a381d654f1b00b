package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"courier/auth"
	"courier/chat"
	"courier/config"
	"courier/database"
	"courier/handlers"
	"courier/logger"
	"courier/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logger.New(cfg)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	dispatcher := notify.NewDispatcher(cfg, notify.NewNotifier(cfg, log), store, log)
	if !cfg.SendGridConfigured() {
		log.Warn().Msg("SendGrid API key not configured, emails will only be logged")
	}

	authService := auth.NewService(store, auth.NewTokens(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.ServiceName), dispatcher, log)
	chatService := chat.NewService(store, dispatcher, log)
	digest := notify.NewDigestJob(cfg.DigestSchedule, store, dispatcher, log)

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: handlers.NewRouter(handlers.Deps{
			Auth:  authService,
			Chat:  chatService,
			Store: store,
			Log:   log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("driver", cfg.DBDriver).Msgf("%s server starting", cfg.AppName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return digest.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("notifications still in flight at shutdown")
		}
		return nil
	})

	return g.Wait()
}
