// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/waflowhq/waflow-backend/internal/config"
	"github.com/waflowhq/waflow-backend/internal/controller"
	"github.com/waflowhq/waflow-backend/internal/db"
	"github.com/waflowhq/waflow-backend/internal/handler"
	"github.com/waflowhq/waflow-backend/internal/queue"
	"github.com/waflowhq/waflow-backend/internal/repository"
	"github.com/waflowhq/waflow-backend/internal/service"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "server").Logger()

	cfg := config.Load()

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	publisher, err := queue.NewAMQPPublisher(cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to queue")
	}
	defer publisher.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	audienceRepo := &repository.AudienceRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	orgRepo := &repository.OrganizationRepository{DB: conn}
	eventRepo := &repository.WebhookEventRepository{DB: conn}
	incomingRepo := &repository.IncomingMessageRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		TemplateRepo: templateRepo,
		Logger:       logger,
	}
	audienceService := &service.AudienceService{
		AudienceRepo:  audienceRepo,
		DefaultRegion: cfg.DefaultRegion,
		Logger:        logger,
	}
	correlator := &service.Correlator{
		EventRepo:    eventRepo,
		IncomingRepo: incomingRepo,
		AudienceRepo: audienceRepo,
		CampaignRepo: campaignRepo,
		Logger:       logger.With().Str("component", "correlator").Logger(),
	}

	scheduler := &service.Scheduler{
		CampaignRepo: campaignRepo,
		AudienceRepo: audienceRepo,
		TemplateRepo: templateRepo,
		OrgRepo:      orgRepo,
		Publisher:    publisher,
		RoutingKey:   cfg.DispatchQueue,
		BatchSize:    cfg.DispatchBatchSize,
		MaxRetries:   cfg.MaxRetries,
		Logger:       logger.With().Str("component", "scheduler").Logger(),
	}
	retryEngine := &service.RetryEngine{
		AudienceRepo: audienceRepo,
		CampaignRepo: campaignRepo,
		TemplateRepo: templateRepo,
		Publisher:    publisher,
		RoutingKey:   cfg.DispatchQueue,
		BatchSize:    cfg.DispatchBatchSize,
		MaxRetries:   cfg.MaxRetries,
		Backoff:      cfg.RetryBackoff,
		Logger:       logger.With().Str("component", "retry").Logger(),
	}
	autoReplyEngine := &service.AutoReplyEngine{
		IncomingRepo: incomingRepo,
		AudienceRepo: audienceRepo,
		TemplateRepo: templateRepo,
		Publisher:    publisher,
		RoutingKey:   cfg.DispatchQueue,
		BatchSize:    cfg.DispatchBatchSize,
		Logger:       logger.With().Str("component", "auto_reply").Logger(),
	}

	poller := service.NewPoller(logger)
	poller.Every(cfg.SchedulerInterval, "scheduler", scheduler.Run)
	poller.Every(cfg.RetryInterval, "retry", retryEngine.Run)
	poller.Every(cfg.AutoReplyInterval, "auto_reply", autoReplyEngine.Run)
	poller.Start()
	defer poller.Stop()

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		AudienceService: audienceService,
	}
	webhookHandler := &handler.WebhookHandler{
		Correlator: correlator,
		Logger:     logger.With().Str("component", "webhook").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/submit", campaignController.Transition("pending_approval"))
	r.Post("/campaigns/{id}/approve", campaignController.Transition("approved"))
	r.Post("/campaigns/{id}/reject", campaignController.Transition("rejected"))
	r.Post("/campaigns/{id}/launch", campaignController.Transition("ready_to_launch"))
	r.Post("/campaigns/{id}/pause", campaignController.Transition("paused"))
	r.Post("/campaigns/{id}/resume", campaignController.Transition("ready_to_launch"))
	r.Post("/campaigns/{id}/cancel", campaignController.Transition("cancelled"))
	r.Post("/campaigns/{id}/audience", campaignController.AddAudience)
	r.Delete("/campaigns/{id}/audience/{msisdn}", campaignController.RemoveAudience)

	// Webhook routes
	r.Post("/webhooks/gateway", webhookHandler.Ingest)
	r.Get("/webhooks/unprocessed", webhookHandler.ListUnprocessed)
	r.Get("/organizations/{orgID}/webhooks", webhookHandler.ListByOrganization)
	r.Get("/organizations/{orgID}/webhooks/stats", webhookHandler.Statistics)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
