package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	database "github.com/sebuszqo/FundLedger/db"
	"github.com/sebuszqo/FundLedger/internal/auth"
	"github.com/sebuszqo/FundLedger/internal/config"
	"github.com/sebuszqo/FundLedger/internal/email"
	"github.com/sebuszqo/FundLedger/internal/ledger/application"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	"github.com/sebuszqo/FundLedger/internal/ledger/infrastructure"
	"github.com/sebuszqo/FundLedger/internal/ledger/interfaces"
	"github.com/sebuszqo/FundLedger/internal/notify"
	"github.com/sebuszqo/FundLedger/pkg/gateway"
	"github.com/sebuszqo/FundLedger/pkg/rabbitmq"
)

type Response struct {
	Message string `json:"message"`
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("level=info msg=\"request started\" method=%s path=%s", r.Method, r.URL.Path)

		next.ServeHTTP(w, r)

		log.Printf("level=info msg=\"request completed\" path=%s duration=%v", r.URL.Path, time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errors ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}
	if len(errors) > 0 && len(errors[0]) > 0 {
		payload["errors"] = errors[0]
	}
	respondJSON(w, status, payload)
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusNotFound, Response{Message: "Path not found"})
}

type Server struct {
	router        chi.Router
	db            *database.DBService
	authHandler   *auth.Handler
	authService   auth.Service
	ledgerHandler *interfaces.LedgerHandler
}

func NewServer(db *database.DBService, authHandler *auth.Handler, authService auth.Service, ledgerHandler *interfaces.LedgerHandler) *Server {
	return &Server{
		db:            db,
		authHandler:   authHandler,
		authService:   authService,
		ledgerHandler: ledgerHandler,
		router:        chi.NewRouter(),
	}
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	health := s.db.Health()
	status := http.StatusOK
	if health["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}

func (s *Server) RegisterRoutes() {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.NotFound(notFoundHandler)

	// Public routes
	r.Post("/api/auth/login", s.authHandler.HandleLogin)
	r.Get("/api/ready", s.handleReady)

	// Refresh token routes
	r.With(s.authService.JWTRefreshTokenMiddleware()).Put("/api/refresh/token", s.authHandler.RefreshAccessToken)

	// Protected routes (using JWT Access Token Middleware)
	r.Route("/api/protected", func(r chi.Router) {
		r.Use(s.authService.JWTAccessTokenMiddleware())
		r.Post("/auth/logout", s.authHandler.HandleLogout)
		s.ledgerHandler.Routes(r)
	})

	s.router = r
}

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Missing configuration, update to start server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbService, err := database.NewDBService(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Could not initialize database: %v", err)
	}
	defer dbService.Close()
	if err := dbService.Migrate(ctx); err != nil {
		log.Fatalf("Could not migrate database: %v", err)
	}

	var (
		sessionCache auth.SessionCache
		gaps         domain.SettlementGapStore
	)
	if redisClient := connectRedis(ctx, cfg.RedisURL); redisClient != nil {
		defer redisClient.Close()
		sessionCache = auth.NewRedisSessionCache(redisClient)
		gaps = infrastructure.NewRedisGapStore(redisClient, infrastructure.DefaultGapKey)
	} else {
		memoryCache := auth.NewMemorySessionCache()
		memoryCache.StartCleanup(ctx, time.Minute)
		sessionCache = memoryCache
		gaps = infrastructure.NewPostgresGapStore(dbService.DB)
	}

	var publisher rabbitmq.Publisher = &rabbitmq.FallbackPublisher{}
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=main msg=\"rabbitmq unavailable, notifications are logged only\" err=%v", err)
		} else {
			publisher = producer
		}
	}
	defer publisher.Close()
	notifications := notify.NewService(publisher, cfg.NotificationExchange)
	defer notifications.Close()
	notifier := notify.Fanout{notifications}
	if cfg.OpsMailEnabled() {
		mailer, err := email.NewOpsMailer(email.Settings{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.EmailAddress,
			Password: cfg.EmailPassword,
			To:       cfg.OpsEmail,
		})
		if err != nil {
			log.Printf("level=warn component=main msg=\"ops mail disabled\" err=%v", err)
		} else {
			defer mailer.Close()
			notifier = append(notifier, mailer)
		}
	}

	var images domain.PaymentImageStore = infrastructure.DisabledImageStore{}
	if cfg.S3Bucket != "" {
		s3Store, err := infrastructure.NewS3ImageStore(ctx, cfg.S3Bucket, cfg.AWSRegion)
		if err != nil {
			log.Printf("level=warn component=main msg=\"s3 unavailable, payment image upload disabled\" err=%v", err)
		} else {
			images = s3Store
		}
	}

	donationRepo := infrastructure.NewDonationRepository(dbService.DB)
	expenseRepo := infrastructure.NewExpenseRepository(dbService.DB)
	subcategoryRepo := infrastructure.NewSubcategoryRepository(dbService.DB)
	assignmentRepo := infrastructure.NewAssignmentRepository(dbService.DB)

	resolver := application.NewCapabilityResolver()
	aggregator := application.NewLedgerAggregator(resolver)
	registry := application.NewManagerRegistry(assignmentRepo, images)
	sessions := application.NewSessionRegistry(application.SessionDeps{
		Donations: donationRepo,
		Expenses:  expenseRepo,
		Resolver:  resolver,
		Registry:  registry,
		PageSize:  cfg.PageSize,
		Flow: application.FlowDeps{
			Registry:  registry,
			Donations: donationRepo,
			Gateway:   gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey),
			Gaps:      gaps,
			Notifier:  notifier,
			Resolver:  resolver,
			Settings: application.FlowSettings{
				Currency:         cfg.GatewayCurrency,
				SurchargePercent: cfg.Surcharge(),
			},
		},
	})

	ledgerHandler := interfaces.NewLedgerHandler(interfaces.Services{
		Sessions:      sessions,
		Views:         application.NewViewLoader(subcategoryRepo, registry, resolver, aggregator),
		Registry:      registry,
		Ledger:        application.NewLedgerService(donationRepo, expenseRepo, resolver),
		Subcategories: application.NewSubcategoryService(subcategoryRepo),
		Reports:       application.NewReportService(donationRepo, expenseRepo, resolver, aggregator),
	}, respondJSON, respondError)

	authRepo := auth.NewUserRepository(dbService.DB)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret)
	authService := auth.NewAuthService(authRepo, jwtManager, sessionCache, sessions)
	authHandler := auth.NewHandler(authService)

	server := NewServer(dbService, authHandler, authService, ledgerHandler)
	server.RegisterRoutes()

	sweeper := application.NewGapSweeper(gaps, donationRepo, notifier)
	scheduler, err := StartGapSweepScheduler(sweeper, cfg.GapSweepSchedule)
	if err != nil {
		log.Fatalf("Scheduler didn't start, stopping the app: %v", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server starting on port %s...", cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=main msg=\"server shutdown failed\" err=%v", err)
	}
	// A running sweep finishes before the notification sinks close.
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Printf("level=warn component=main msg=\"gap sweep still running at shutdown\"")
	}
	log.Println("Server stopped")
}

// connectRedis returns nil when no URL is configured or the server does not answer,
// in which case sessions are cached in memory and settlement gaps go to Postgres.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("level=warn component=main msg=\"invalid REDIS_URL, using fallback stores\" err=%v", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=main msg=\"redis unavailable, using fallback stores\" err=%v", err)
		client.Close()
		return nil
	}
	return client
}

// StartGapSweepScheduler retries recording payments that were charged but not saved.
func StartGapSweepScheduler(sweeper *application.GapSweeper, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		result, err := sweeper.Sweep(context.Background())
		if err != nil {
			log.Printf("Error sweeping settlement gaps: %v", err)
			return
		}
		if result.Resolved > 0 || result.Pending > 0 {
			log.Printf("Settlement gaps swept: resolved=%d pending=%d", result.Resolved, result.Pending)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
