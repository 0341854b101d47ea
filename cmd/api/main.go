package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telehealth-api/config"
	"github.com/jwalitptl/telehealth-api/internal/handler"
	appointmentHandler "github.com/jwalitptl/telehealth-api/internal/handler/appointment"
	scheduleHandler "github.com/jwalitptl/telehealth-api/internal/handler/schedule"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/repository/postgres"
	"github.com/jwalitptl/telehealth-api/internal/router"
	appointmentService "github.com/jwalitptl/telehealth-api/internal/service/appointment"
	availabilityService "github.com/jwalitptl/telehealth-api/internal/service/availability"
	bookingService "github.com/jwalitptl/telehealth-api/internal/service/booking"
	scheduleService "github.com/jwalitptl/telehealth-api/internal/service/schedule"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	"github.com/jwalitptl/telehealth-api/pkg/lock"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/messaging/redis"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
	"github.com/jwalitptl/telehealth-api/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &l.ZL)
	if err != nil {
		l.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	redisBroker := broker.(*redis.RedisBroker)
	locker := lock.NewRedisLocker(redisBroker.Client(), cfg.Scheduling.LockTTL)

	m := metrics.NewMetrics("telehealth", "api")

	scheduleRepo := postgres.NewScheduleRepository(db)
	slotRepo := postgres.NewSlotRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	availabilitySvc := availabilityService.NewService(
		scheduleRepo, slotRepo, outboxRepo, locker, m, l, cfg.Scheduling)
	scheduleSvc := scheduleService.NewService(
		scheduleRepo, slotRepo, availabilitySvc, l, cfg.Scheduling)
	bookingSvc := bookingService.NewService(slotRepo, m, l)
	appointmentSvc := appointmentService.NewService(
		appointmentRepo, outboxRepo, bookingSvc, l)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	authMW := middleware.NewAuthMiddleware(jwtSvc)

	if err := validator.RegisterDomainRules(); err != nil {
		l.Fatal(err, "failed to register binding rules")
	}

	h := handler.NewHandler(db, redisBroker.Client())
	scheduleH := scheduleHandler.NewHandler(scheduleSvc)
	appointmentH := appointmentHandler.NewHandler(appointmentSvc)

	routerCfg := router.Config{
		RequestTimeout: 30 * time.Second,
		CORSConfig:     middleware.DefaultCORSConfig(),
		MetricsPrefix:  "telehealth_http",
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerCfg.RateBurst = cfg.RateLimit.Burst
	}
	if len(cfg.Security.AllowedOrigins) > 0 {
		routerCfg.CORSConfig.AllowOrigins = cfg.Security.AllowedOrigins
	}

	r := router.NewRouter(authMW, scheduleH, appointmentH, h, routerCfg)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		l.Info("starting server", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Error(err, "forced shutdown")
	}
}
