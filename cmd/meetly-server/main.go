package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"meetly/backend/internal/cache"
	"meetly/backend/internal/config"
	"meetly/backend/internal/domain"
	meetingevents "meetly/backend/internal/events"
	"meetly/backend/internal/service/availability"
	"meetly/backend/internal/service/events"
	"meetly/backend/internal/service/meetings"
	"meetly/backend/internal/service/users"
	"meetly/backend/internal/store/postgres"
	"meetly/backend/internal/telemetry"
	grpcTransport "meetly/backend/internal/transport/grpc"
	httpTransport "meetly/backend/internal/transport/http"
)

const serviceName = "meetly-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("timezone", cfg.Timezone),
		slog.String("notice_policy", cfg.NoticePolicy),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracing setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("err", err))
		}
	}()

	engine, err := newEngine(cfg)
	if err != nil {
		log.Error("availability engine config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	readyChecks := []httpTransport.ReadyCheck{{Name: "postgres", Check: postgres.ReadyCheck(db)}}

	var (
		avCache   availability.Cache
		rateLimit httpTransport.Middleware
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		avCache = cache.NewRedis(rdb, cfg.CacheTTL, "meetly")
		rateLimit = httpTransport.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "meetly:rl").
			Middleware(log.With(slog.String("component", "http.ratelimit")))
		readyChecks = append(readyChecks, httpTransport.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
		log.Info("redis enabled", slog.String("redis_addr", cfg.RedisAddr))
	} else {
		rateLimit = httpTransport.NewLocalRateLimiter(cfg.RateLimitPerMinute).Middleware()
		log.Warn("redis not configured; availability cache disabled and rate limiting is per process")
	}

	publisher := meetingevents.NewPublisher(cfg.KafkaBrokers, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("kafka publisher close failed", slog.Any("err", err))
		}
	}()
	if len(cfg.KafkaBrokers) > 0 {
		readyChecks = append(readyChecks, httpTransport.ReadyCheck{Name: "kafka", Check: meetingevents.ReadyCheck(cfg.KafkaBrokers)})
	}

	userRepo := postgres.NewUserRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	bookingRepo := postgres.NewBookingRepo(db)

	availabilitySvc := availability.NewService(availability.Deps{
		Events:    eventRepo,
		Schedules: postgres.NewScheduleRepo(db),
		Bookings:  bookingRepo,
		Engine:    engine,
		Cache:     avCache,
		Log:       log,
	}, cfg.WindowDays)
	eventsSvc := events.NewService(eventRepo, userRepo, log)
	meetingsSvc := meetings.NewService(eventRepo, bookingRepo, availabilitySvc, publisher, log)
	usersSvc := users.NewService(userRepo, log)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcTransport.RequestIDInterceptor(),
			grpcTransport.DefaultTimeoutInterceptor(cfg.GRPCRequestTimeout),
		),
	)
	grpcTransport.RegisterAvailabilityServer(grpcServer, grpcTransport.NewAvailabilityServer(availabilitySvc, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.AvailabilityServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	api := httpTransport.NewHandler(availabilitySvc, eventsSvc, meetingsSvc, usersSvc, log)
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpTransport.NewServer(api, httpTransport.ServerConfig{
			MaxBodyBytes: cfg.HTTPMaxBodyBytes,
			RateLimit:    rateLimit,
			ReadyChecks:  readyChecks,
		}, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr), slog.String("http_addr", cfg.HTTPAddr))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	healthServer.Shutdown()
	shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
	shutdownGRPC(log, grpcServer, cfg.ShutdownTimeout)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func newEngine(cfg config.Config) (*domain.SlotEngine, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	policy, err := domain.ParseNoticePolicy(cfg.NoticePolicy)
	if err != nil {
		return nil, err
	}
	return domain.NewSlotEngine(
		domain.WithLocation(loc),
		domain.WithNoticePolicy(policy),
		domain.WithMaxSlotsPerDay(cfg.MaxSlotsPerDay),
	), nil
}

func shutdownHTTP(log *slog.Logger, s *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = s.Close()
		return
	}
	log.Info("http server stopped")
}

func shutdownGRPC(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
