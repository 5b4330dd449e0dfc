// Command server runs the prompt-delivery HTTP service.
//
// Startup order: env → config → logging → tracing → database → chat gateway
// → router → optional in-process delivery ticker → HTTP server. Shutdown is
// graceful on SIGINT/SIGTERM: the listener drains, the ticker stops, and the
// trace exporter flushes.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/K41R0N/threadbot-sub001/internal/config"
	"github.com/K41R0N/threadbot-sub001/internal/domain"
	httpapi "github.com/K41R0N/threadbot-sub001/internal/http"
	"github.com/K41R0N/threadbot-sub001/internal/observability"
	"github.com/K41R0N/threadbot-sub001/internal/repo"
	"github.com/K41R0N/threadbot-sub001/internal/scheduler"
	"github.com/K41R0N/threadbot-sub001/internal/services"
	"github.com/K41R0N/threadbot-sub001/internal/sysutil"
	"github.com/K41R0N/threadbot-sub001/internal/telegram"
)

const version = "1.0.0"

// tickInterval is how often the in-process scheduler sweeps when
// ENABLE_TICKER is set. Matches the eligibility window half-width so no
// slot time can fall between ticks.
const tickInterval = 5 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = zerolog.New(sysutil.LogWriter(cfg.LogPretty)).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL,
		sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), version))
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	gateway := telegram.NewClient(cfg.Telegram.BotToken,
		telegram.WithRate(cfg.Telegram.SendRate, 1))

	// Point the chat platform at us once per boot. Saving settings repeats
	// this, so a transient failure here is not fatal.
	if cfg.Telegram.WebhookURL != "" {
		if ok, err := gateway.RegisterWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil || !ok {
			log.Warn().Err(err).Str("url", cfg.Telegram.WebhookURL).Msg("webhook registration failed at startup")
		} else {
			log.Info().Str("url", cfg.Telegram.WebhookURL).Msg("webhook registered")
		}
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Gateway: gateway}, cfg)

	// Optional in-process scheduler for deployments without an external cron.
	var ticker *scheduler.Scheduler
	if cfg.Sweep.TickerOn {
		delivery := services.NewDeliveryService(db, gateway, nil)
		delivery.Concurrency = cfg.Sweep.Concurrency
		delivery.UserTimeout = cfg.Sweep.UserTimeout
		linkSvc := services.NewLinkService(db)

		ticker, err = scheduler.New(tickInterval, func(tctx context.Context) {
			now := time.Now().UTC()
			for _, slot := range []domain.Slot{domain.SlotMorning, domain.SlotEvening} {
				if _, err := delivery.Sweep(tctx, slot, now); err != nil {
					log.Error().Err(err).Str("slot", string(slot)).Msg("scheduled sweep failed")
				}
			}
			if n, err := linkSvc.PurgeExpired(tctx); err != nil {
				log.Warn().Err(err).Msg("expired code purge failed")
			} else if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired verification codes removed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler setup failed")
		}
		ticker.Start()
		log.Info().Dur("interval", tickInterval).Msg("delivery ticker running")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("base_path", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	if ticker != nil {
		ticker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
