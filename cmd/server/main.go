package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/freedom_case_2/crcollector/internal/app"
	"github.com/freedom_case_2/crcollector/internal/config"
	httpapi "github.com/freedom_case_2/crcollector/internal/http"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.NewLogger(cfg, "crcollector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	if cfg.ScheduleEnabled {
		sched := &service.Scheduler{
			Service: a.Collection,
			Hour:    cfg.CollectHour,
			Logger:  logger,
			AfterRun: func(ctx context.Context, res models.RunResult) {
				rep, err := a.Reports.GenerateDaily(ctx, a.Collection.Window(0))
				if err != nil {
					logger.Error().Err(err).Msg("daily report failed")
					return
				}
				if _, err := a.Reports.Export(ctx, rep); err != nil {
					logger.Error().Err(err).Msg("report export failed")
				}
				if a.Reports.Poster != nil && a.Reports.Channel != "" {
					if _, err := a.Reports.Post(ctx, rep); err != nil {
						logger.Error().Err(err).Msg("report post failed")
					}
				}
			},
		}
		sched.Start(ctx)
	}

	router := httpapi.Router(cfg, a.Store, httpapi.Services{
		Query:      a.Query,
		Collection: a.Collection,
		Reports:    a.Reports,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + cfg.CollectBudget,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
