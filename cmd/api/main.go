package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-messaging/internal/audit"
	"marketplace-messaging/internal/auth"
	"marketplace-messaging/internal/config"
	"marketplace-messaging/internal/contacts"
	"marketplace-messaging/internal/dispatch"
	"marketplace-messaging/internal/eventbus"
	"marketplace-messaging/internal/httpapi"
	"marketplace-messaging/internal/ingest"
	"marketplace-messaging/internal/intent"
	"marketplace-messaging/internal/interaction"
	"marketplace-messaging/internal/messaging"
	"marketplace-messaging/internal/reporting"
	"marketplace-messaging/internal/template"
	"marketplace-messaging/internal/workflow"
	"marketplace-messaging/pkg/logger"
	"marketplace-messaging/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local convenience; env vars from the process runner win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	messenger, err := messaging.NewWhatsAppClient(messaging.WhatsAppConfig{
		BaseURL:       cfg.WhatsApp.BaseURL,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
		Timeout:       cfg.WhatsApp.SendTimeout,
	})
	if err != nil {
		log.Error("whatsapp client init failed", "err", err)
		os.Exit(1)
	}

	classifier := intent.NewClassifier()
	if cfg.Intent.PackDir != "" {
		packs, err := intent.LoadPacks(cfg.Intent.PackDir)
		if err != nil {
			log.Error("intent pack load failed", "dir", cfg.Intent.PackDir, "err", err)
			os.Exit(1)
		}
		classifier.Replace(packs)
	}

	store := interaction.NewPostgresStore(db)
	anomalies := audit.NewService(audit.NewMemoryRepo(), log)
	locks := ingest.Locker(utils.NewRedisLocker(rdb, 15*time.Second))
	guard := utils.NewRedisCycleGuard(rdb, "dispatch:cycles", 1, 2*cfg.Dispatch.Interval)

	bus := eventbus.New(log)
	defer bus.Close()

	renderer := template.NewRegistry(cfg.Intent.DefaultLocale)
	registerDefaultTemplates(renderer)

	delivery := ingest.NewDeliveryIngestor(store, locks, anomalies, log)
	replies := ingest.NewReplyPipeline(store, classifier, bus, locks, anomalies, log)
	workflow.NewEffects(workflow.NewPostgresSubjects(db), store, renderer, log).Register(bus)

	worker := dispatch.NewWorker(dispatch.Config{
		Interval:         cfg.Dispatch.Interval,
		SendTimeout:      cfg.WhatsApp.SendTimeout,
		MaxAttempts:      cfg.Dispatch.MaxAttempts,
		BatchConcurrency: cfg.Dispatch.BatchConcurrency,
		Backoff:          dispatch.Backoff{Base: cfg.Dispatch.BackoffBase, Max: cfg.Dispatch.BackoffMax},
	}, store, messenger, contacts.NewPostgresResolver(db), locks, guard, anomalies, log)
	go worker.Run(rootCtx)

	reconciler := dispatch.NewReconciler(store, messenger, delivery,
		cfg.Dispatch.ReconcileInterval, cfg.Dispatch.ReconcileLookback, log)
	go reconciler.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Delivery:   delivery,
		Replies:    replies,
		Store:      store,
		Worker:     worker,
		Classifier: classifier,
		Reports:    reporting.NewService(reporting.NewPostgresRepo(db)),
		PackDir:    cfg.Intent.PackDir,
	}
	registerRoutes(r, handlers, db, cfg.WhatsApp.WebhookSecret, cfg.WhatsApp.VerifyToken, auth.RequireServiceToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// registerDefaultTemplates seeds the built-in message bodies. Deployments add
// or override per-locale bodies at boot; keys are stable.
func registerDefaultTemplates(reg *template.Registry) {
	reg.Register("workflow_confirmed_ack", "es", "Tu solicitud {{subject_id}} fue confirmada. Te avisaremos cuando haya novedades.")
	reg.Register("workflow_confirmed_ack", "en", "Your request {{subject_id}} is confirmed. We will keep you posted.")
	reg.Register("follow_up", "es", "Hola {{name}}, ¿pudiste avanzar con tu solicitud {{subject_id}}? Respondé a este mensaje para contarnos.")
	reg.Register("follow_up", "en", "Hi {{name}}, any updates on your request {{subject_id}}? Reply to this message to let us know.")
	reg.Register("status_update", "es", "Tu solicitud {{subject_id}} cambió de estado: {{status}}.")
	reg.Register("status_update", "en", "Your request {{subject_id}} changed status: {{status}}.")
}
