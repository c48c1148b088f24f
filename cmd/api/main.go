package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-api/config"
	accountHandler "github.com/jwalitptl/hospital-api/internal/handler/account"
	appointmentHandler "github.com/jwalitptl/hospital-api/internal/handler/appointment"
	authHandler "github.com/jwalitptl/hospital-api/internal/handler/auth"
	doctorHandler "github.com/jwalitptl/hospital-api/internal/handler/doctor"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	liveHandler "github.com/jwalitptl/hospital-api/internal/handler/live"
	noticeHandler "github.com/jwalitptl/hospital-api/internal/handler/notice"
	"github.com/jwalitptl/hospital-api/internal/live"
	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/hospital-api/internal/repository/redis"
	"github.com/jwalitptl/hospital-api/internal/router"
	accountService "github.com/jwalitptl/hospital-api/internal/service/account"
	appointmentService "github.com/jwalitptl/hospital-api/internal/service/appointment"
	authService "github.com/jwalitptl/hospital-api/internal/service/auth"
	doctorService "github.com/jwalitptl/hospital-api/internal/service/doctor"
	eventService "github.com/jwalitptl/hospital-api/internal/service/event"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	msgredis "github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
	"github.com/jwalitptl/hospital-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Console:    cfg.Log.Console,
	})
	log.Logger = lg.ZL

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisClient, err := msgredis.NewClient(ctx, msgredis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisClient.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics("hospital_api", reg)

	broker := msgredis.NewRedisBroker(redisClient, lg, m)
	defer broker.Close()

	// Repositories
	base := postgres.NewBaseRepository(db)
	accountRepo := postgres.NewAccountRepository(base)
	credentialRepo := postgres.NewCredentialRepository(base)
	doctorRepo := postgres.NewDoctorRepository(base)
	appointmentRepo := postgres.NewAppointmentRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	sessions := redisrepo.NewSessionStore(redisClient)

	// Services
	events := eventService.NewEventService(outboxRepo, broker, cfg.Redis.Channel, lg)
	notifSvc := notification.NewService(outboxRepo, lg)
	authSvc := authService.NewService(
		accountRepo,
		credentialRepo,
		sessions,
		auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry()),
		security.NewBcryptHasher(security.DefaultCost),
		authService.Config{SignInPerMinute: cfg.RateLimit.SignInPerMinute},
		lg,
	)
	accountSvc := accountService.NewService(accountRepo, doctorRepo)
	doctorSvc := doctorService.NewService(doctorRepo, accountRepo, credentialRepo, events,
		doctorService.Config{DirectoryTTL: cfg.Cache.DirectoryTTL}, lg)
	appointmentSvc := appointmentService.NewService(appointmentRepo, doctorRepo, doctorSvc, accountRepo, notifSvc, events, lg)

	hub := live.NewHub(live.NewServiceQuerier(doctorSvc, appointmentSvc), lg, m)
	if err := hub.Run(ctx, messaging.NewBrokerAdapter(broker, lg), cfg.Redis.Channel); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to change feed")
	}

	healthH := health.NewHandler(map[string]health.Check{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	metricsPath := ""
	if cfg.Monitoring.PrometheusEnabled {
		metricsPath = cfg.Monitoring.MetricsPath
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		healthH,
		m,
		reg,
		[]router.Handler{
			authHandler.NewHandler(authSvc),
			accountHandler.NewHandler(accountSvc),
			doctorHandler.NewHandler(doctorSvc),
			appointmentHandler.NewHandler(appointmentSvc),
			noticeHandler.NewHandler(notifSvc),
			liveHandler.NewHandler(hub, cfg.Security.AllowedOrigins),
		},
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit: middleware.RateLimiterConfig{
				Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
				Burst: cfg.RateLimit.Burst,
			},
			CORSConfig: middleware.CORSFromConfig(
				cfg.Security.AllowedOrigins,
				cfg.Security.AllowedMethods,
				cfg.Security.AllowedHeaders,
			),
			Security:    middleware.DefaultSecurityConfig(),
			MetricsPath: metricsPath,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		// WriteTimeout is left unset: live websocket connections are long lived.
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
