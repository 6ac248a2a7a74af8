package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chairbook/backend/internal/cache"
	"chairbook/backend/internal/config"
	"chairbook/backend/internal/events"
	"chairbook/backend/internal/metrics"
	"chairbook/backend/internal/notify"
	"chairbook/backend/internal/observability"
	"chairbook/backend/internal/service/availability"
	"chairbook/backend/internal/service/booking"
	"chairbook/backend/internal/service/catalog"
	"chairbook/backend/internal/store"
	"chairbook/backend/internal/store/memory"
	"chairbook/backend/internal/store/postgres"
	grpcTransport "chairbook/backend/internal/transport/grpc"
	"chairbook/backend/internal/transport/rest"
)

func main() {
	_ = godotenv.Load()

	log := newLogger("info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	log = newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", "chairbook-server"),
	)
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr()),
		slog.String("store", cfg.StoreDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("err", err))
		}
	}()

	readyChecks := map[string]rest.ReadyCheck{}

	repo, closeRepo, err := openRepository(cfg, log, readyChecks)
	if err != nil {
		return err
	}
	defer closeRepo()

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	var (
		notifier    notify.Notifier = notify.Log{Logger: log}
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		notifier = notify.NewRedis(redisClient, cfg.RedisChannel)
		readyChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var publisher events.Publisher = events.Nop{}
	if brokers := events.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		k, err := events.NewKafka(events.KafkaConfig{
			Brokers:      brokers,
			TopicPrefix:  cfg.KafkaTopicPrefix,
			WriteTimeout: cfg.KafkaWriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() {
			if err := k.Close(); err != nil {
				log.Warn("kafka close failed", slog.Any("err", err))
			}
		}()
		publisher = k
		readyChecks["kafka"] = events.ReadyCheck(brokers)
	}

	policy := booking.DefaultPolicy()
	policy.Step = cfg.SlotStep
	policy.CompleteRequiresStart = cfg.CompleteRequiresStart
	policy.AutoComplete = cfg.AutoComplete
	policy.AutoCompleteBatch = cfg.AutoCompleteBatch
	policy.RetryAttempts = cfg.RetryAttempts
	policy.RetryBaseDelay = cfg.RetryBaseDelay
	policy.SearchHorizonDays = cfg.SearchHorizonDays

	bookings := booking.NewService(repo,
		booking.WithNotifier(notifier),
		booking.WithPublisher(publisher),
		booking.WithMetrics(bookingMetrics),
		booking.WithLogger(log),
		booking.WithPolicy(policy),
	)
	var slotSource cache.SlotSource = bookings
	if redisClient != nil {
		slotSource = cache.NewSlots(redisClient, bookings, cfg.SlotCacheTTL, bookingMetrics, log)
	}
	templates := availability.NewService(repo, notifier, bookingMetrics, log)
	services := catalog.NewService(repo, notifier, bookingMetrics, log)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: rest.NewRouter(rest.Config{
			Logger:         log,
			Bookings:       bookings,
			Slots:          slotSource,
			Search:         bookings,
			Templates:      templates,
			Catalog:        services,
			MetricsHandler: promhttp.Handler(),
			ReadyChecks:    readyChecks,
			RequestTimeout: cfg.HTTPRequestTimeout,
			BodyLimit:      cfg.HTTPBodyLimit,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(bookings, slotSource, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr(), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	if cfg.AutoComplete {
		g.Go(func() error {
			autoComplete(gctx, log, bookings, cfg.AutoCompleteInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, httpServer, cfg.ShutdownTimeout)
		return nil
	})

	return g.Wait()
}

func openRepository(cfg config.Config, log *slog.Logger, readyChecks map[string]rest.ReadyCheck) (store.Repository, func(), error) {
	if cfg.StoreDriver == "memory" {
		st := memory.New()
		if cfg.MemorySeed != "" {
			f, err := os.Open(cfg.MemorySeed)
			if err != nil {
				return nil, nil, fmt.Errorf("memory seed: %w", err)
			}
			defer f.Close()
			if err := st.LoadSeed(f); err != nil {
				return nil, nil, err
			}
		}
		log.Warn("using in-memory store; data is lost on restart")
		return st, func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		SlowQuery:       cfg.DBSlowQuery,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, nil, err
	}
	repo := postgres.NewSchedulingRepo(db)
	readyChecks["postgres"] = repo.Ping
	return repo, func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}, nil
}

func autoComplete(ctx context.Context, log *slog.Logger, svc *booking.Service, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.CompleteElapsed(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("auto-complete sweep failed", slog.Any("err", err))
			}
		}
	}
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, h *http.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	if err := h.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
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
