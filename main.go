package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/chatbook-backend/database"
	"github.com/Ananth-NQI/chatbook-backend/internal/config"
	"github.com/Ananth-NQI/chatbook-backend/internal/handlers"
	"github.com/Ananth-NQI/chatbook-backend/internal/jobs"
	"github.com/Ananth-NQI/chatbook-backend/internal/logger"
	"github.com/Ananth-NQI/chatbook-backend/internal/metrics"
	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/routes"
	"github.com/Ananth-NQI/chatbook-backend/internal/services"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg := config.Load(".env", "environments/.env.development")
	log := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: !cfg.IsProduction(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var store storage.Store
	if cfg.UseMemoryStore {
		log.Warn().Msg("⚠️  Using in-memory storage (not for production!)")
		mem := storage.NewMemoryStore()
		if err := seedDemoTenant(ctx, mem); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo tenant")
		}
		store = mem
	} else {
		db, err := database.Connect(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := database.Ping(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("database not reachable")
		}
		log.Info().Msg("🔄 Running database migrations...")
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		store = storage.NewDatabaseStore(db)
	}

	// Conversation contexts
	var contexts storage.ContextStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable")
		}
		defer rdb.Close()
		contexts = storage.NewRedisContextStore(rdb, cfg.ContextRetention, nil)
		log.Info().Str("addr", cfg.RedisAddr).Msg("✅ Using Redis for conversation contexts")
	} else {
		contexts = storage.NewMemoryContextStore()
		log.Warn().Msg("⚠️  Conversation contexts kept in memory")
	}

	// Outbound messages
	var dispatcher services.Dispatcher
	if cfg.TwilioConfigured() {
		twilioService, err := services.NewTwilioService(services.TwilioConfig{
			AccountSID:   cfg.TwilioAccountSID,
			AuthToken:    cfg.TwilioAuthToken,
			WhatsAppFrom: cfg.TwilioWhatsAppFrom,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Twilio service")
		}
		dispatcher = twilioService
		log.Info().Msg("✅ Twilio service initialized")
	} else {
		dispatcher = services.NewRecordingDispatcher(log)
		log.Warn().Msg("⚠️  Twilio credentials not found - replies are only logged")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	conversationMetrics := metrics.NewConversationMetrics(registry)

	// Conversation pipeline
	persister := services.NewPersister(store, log)
	flow := services.NewBookingFlow(store, persister, log, services.FlowConfig{
		Location: cfg.Location(),
		Currency: cfg.DefaultCurrency,
	})
	sessions := services.NewSessionManager(contexts, log, services.SessionConfig{
		TTL:       cfg.SessionTTL,
		Retention: cfg.ContextRetention,
	})
	live := services.NewConversationService(sessions, contexts, flow, dispatcher, conversationMetrics, log)
	test := services.NewConversationService(sessions, contexts, flow, nil, conversationMetrics, log)

	// Background jobs
	reminders := jobs.NewReminderJob(store, dispatcher, log, jobs.ReminderConfig{
		Interval: cfg.ReminderInterval,
		LeadTime: cfg.ReminderLeadTime,
		Location: cfg.Location(),
	})
	go reminders.Start(ctx)
	go sessions.RunCleanup(ctx, time.Hour)

	app := newApp(log)
	routes.SetupRoutes(app, routes.Dependencies{
		WhatsApp:         handlers.NewWhatsAppHandler(live, test, log),
		Bookings:         handlers.NewBookingHandler(store),
		Health:           handlers.NewHealthHandler(version, store, sessions),
		Gatherer:         registry,
		ValidateWebhooks: !cfg.DisableWebhookValidation && cfg.Environment != "development",
		EnableTestRoutes: !cfg.IsProduction(),
		TwilioAuthToken:  cfg.TwilioAuthToken,
		PublicBaseURL:    cfg.PublicBaseURL,
		Logger:           log,
	})

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("🛑 Gracefully shutting down...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("environment", cfg.Environment).
		Bool("memory_store", cfg.UseMemoryStore).
		Bool("redis_contexts", cfg.RedisAddr != "").
		Bool("twilio", cfg.TwilioConfigured()).
		Msg("🚀 ChatBook Backend starting")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newApp(log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "ChatBook Backend v" + version,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	return app
}

// seedDemoTenant gives the in-memory store something to book against
func seedDemoTenant(ctx context.Context, store storage.Store) error {
	tenant := &models.Tenant{ID: "demo", Name: "Demo Salon", Timezone: "Asia/Kolkata", Currency: "INR", IsActive: true}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		return err
	}
	for _, svc := range []models.Service{
		{Name: "Haircut", Category: "hair", Price: 500},
		{Name: "Hair Color", Category: "hair", Price: 2500},
		{Name: "Facial", Category: "skin", Price: 1500},
		{Name: "Manicure", Category: "nails", Price: 800},
	} {
		svc.TenantID = tenant.ID
		svc.IsActive = true
		if err := store.CreateService(ctx, &svc); err != nil {
			return err
		}
	}
	for _, st := range []models.StaffMember{
		{Name: "Priya", Specializations: "Haircut, Hair Color"},
		{Name: "Arjun", Specializations: "Facial, Manicure"},
	} {
		st.TenantID = tenant.ID
		st.IsActive = true
		if err := store.CreateStaff(ctx, &st); err != nil {
			return err
		}
	}
	return nil
}
