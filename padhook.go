package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/padhook/admin"
	"github.com/maxpert/padhook/cfg"
	"github.com/maxpert/padhook/ingress"
	"github.com/maxpert/padhook/publisher"
	_ "github.com/maxpert/padhook/publisher/sink"
	"github.com/maxpert/padhook/telemetry"
	"github.com/maxpert/padhook/tracker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	metricsInterval = 5 * time.Second
	httpStopTimeout = 5 * time.Second
)

func main() {
	flag.Parse()

	// An invalid [webhooks] table (bad ca_cert, bad endpoint) is fatal here
	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		log.Fatal().Err(err).Str("path", *cfg.ConfigPathFlag).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	setupLogging()

	log.Info().Msg("padhook - pad change webhooks")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	var journal *publisher.Journal
	if cfg.Config.Journal.Enabled {
		var err error
		journal, err = publisher.NewJournal(cfg.Config.DataDir, cfg.Config.Journal.Retain)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open delivery journal")
		}
		defer journal.Close()
	}

	dispatcher := publisher.NewDispatcher(journal)
	defer dispatcher.Close()

	tr := tracker.New(dispatcher, tracker.Options{
		Quiet:   time.Duration(cfg.Config.Debounce.QuietMS) * time.Millisecond,
		MaxWait: time.Duration(cfg.Config.Debounce.MaxWaitMS) * time.Millisecond,
	})
	if err := tr.OnConfigLoad(cfg.Config.Webhooks); err != nil {
		log.Fatal().Err(err).Msg("Invalid webhook settings")
	}
	tr.Start()

	sessions, err := ingress.NewSessionDirectory(cfg.Config.Ingress.SessionCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session directory")
	}
	in := ingress.New(tr, sessions)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Config.Ingress.BindAddress, cfg.Config.Ingress.Port),
		Handler:           newRouter(in, tr, journal),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", server.Addr).Msg("HTTP server failed")
		}
	}()

	var subscriber *ingress.Subscriber
	if cfg.Config.Ingress.NATS.Enabled {
		subscriber, err = ingress.Subscribe(cfg.Config.Ingress.NATS.URL, cfg.Config.Ingress.NATS.Subject, in)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start NATS ingress")
		}
	}

	collector := telemetry.NewMetricsCollector(tr, sessions, metricsInterval)
	collector.Start()

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Str("addr", server.Addr).
		Bool("settings_loaded", tr.SettingsLoaded()).
		Bool("journal", journal != nil).
		Msg("padhook is operational")

	waitForSignals(tr)

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), httpStopTimeout)
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	cancel()

	if subscriber != nil {
		subscriber.Close()
	}

	grace := time.Duration(cfg.Config.ShutdownGraceMS) * time.Millisecond
	if tr.Stop(grace) {
		log.Info().Msg("All deliveries completed")
	}
	collector.Stop()
}

func setupLogging() {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

func newRouter(in *ingress.Ingress, tr *tracker.Tracker, journal *publisher.Journal) http.Handler {
	r := chi.NewRouter()

	ingress.RegisterRoutes(r, in, cfg.Config.Ingress.Secret)

	var deliveries admin.DeliveryJournal
	if journal != nil {
		deliveries = journal
	}
	admin.RegisterRoutes(r, admin.NewAdminHandlers(tr, deliveries))

	if h := telemetry.GetMetricsHandler(); h != nil {
		r.Handle("/metrics", h)
	}

	return r
}

// waitForSignals reloads webhook settings on SIGHUP and returns on SIGINT or SIGTERM
func waitForSignals(tr *tracker.Tracker) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for sig := range sigs {
		if sig != syscall.SIGHUP {
			log.Info().Str("signal", sig.String()).Msg("Received signal")
			return
		}
		reloadWebhookSettings(tr)
	}
}

// reloadWebhookSettings keeps the current settings when the file is invalid
func reloadWebhookSettings(tr *tracker.Tracker) {
	settings, err := cfg.LoadWebhookSettings(*cfg.ConfigPathFlag)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload webhook settings, keeping current ones")
		return
	}
	if err := tr.OnConfigLoad(settings); err != nil {
		log.Error().Err(err).Msg("Rejected reloaded webhook settings, keeping current ones")
		return
	}
	log.Info().Msg("Webhook settings reloaded")
}
