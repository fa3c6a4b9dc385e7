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
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"consultd/internal/config"
	"consultd/internal/domain"
	"consultd/internal/events"
	"consultd/internal/metrics"
	"consultd/internal/rpc/consultv1"
	"consultd/internal/service/appointments"
	"consultd/internal/store"
	"consultd/internal/store/memory"
	"consultd/internal/store/postgres"
	"consultd/internal/store/redislock"
	"consultd/internal/telemetry"
	grpcTransport "consultd/internal/transport/grpc"
)

const serviceName = "consultd-server"

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

	if err := run(log, cfg); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, cfg config.Config) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("log_level", cfg.LogLevel),
		slog.String("database_driver", cfg.DatabaseDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	collector := metrics.NewCollector("consultd")

	repo, outbox, checks, closeStore, err := openStore(log, cfg, collector)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []appointments.Option{
		appointments.WithLocation(cfg.Booking.Location),
		appointments.WithPolicy(domain.Policy{
			CancelNotice:     cfg.Policy.CancelNotice,
			RescheduleNotice: cfg.Policy.RescheduleNotice,
			Refund: domain.RefundPolicy{
				FullNotice:    cfg.Policy.FullRefundNotice,
				PartialNotice: cfg.Policy.PartialRefundNotice,
				PartialRatio:  cfg.Policy.PartialRefundRatio,
			},
		}),
		appointments.WithDurationBounds(appointments.DurationBounds{
			Min:     cfg.Booking.MinDuration,
			Max:     cfg.Booking.MaxDuration,
			Default: cfg.Booking.DefaultDuration,
		}),
		appointments.WithRecorder(collector),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		opts = append(opts, appointments.WithSlotLocker(redislock.New(rdb, cfg.RedisLockTTL, "")))
		checks = append(checks, metrics.ReadyCheck{Name: "redis", Check: redislock.ReadyCheck(rdb)})
		log.Info("redis slot lock enabled", slog.String("redis_addr", cfg.RedisAddr))
	}

	svc := appointments.NewService(repo, opts...)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
			collector.UnaryServerInterceptor(),
		),
	)
	consultv1.RegisterAppointmentsServiceServer(grpcServer, grpcTransport.NewAppointmentsServer(svc, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if brokers := events.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		writer := events.NewKafkaWriter(brokers)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Warn("kafka writer close failed", slog.Any("err", err))
			}
		}()
		publisher := events.NewPublisher(outbox, writer, log, events.PublisherConfig{
			PollEvery: cfg.OutboxPollInterval,
			BatchSize: cfg.OutboxBatchSize,
			Observer:  collector,
		})
		checks = append(checks, metrics.ReadyCheck{Name: "kafka", Check: events.ReadyCheck(brokers)})
		g.Go(func() error { return publisher.Run(gctx) })
		log.Info("outbox publisher started", slog.Int("brokers", len(brokers)))
	} else {
		log.Warn("outbox publisher disabled (no kafka brokers configured)")
	}

	if cfg.MetricsAddr != "" {
		admin := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.NewAdminMux(collector.Registry, checks...),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("admin http server started", slog.String("metrics_addr", cfg.MetricsAddr))
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
		return nil
	})

	return g.Wait()
}

// openStore returns the repositories for the configured driver, plus their
// readiness checks and a close func.
func openStore(log *slog.Logger, cfg config.Config, collector *metrics.Collector) (store.AppointmentRepository, store.OutboxRepository, []metrics.ReadyCheck, func(), error) {
	if cfg.DatabaseDriver == "memory" {
		log.Warn("using in-memory store; data is lost on restart")
		st := memory.New()
		return st, st, nil, func() {}, nil
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
		return nil, nil, nil, nil, err
	}
	postgres.Observe(db, collector.ObserveQuery)

	closeDB := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}
	checks := []metrics.ReadyCheck{{Name: "postgres", Check: postgres.ReadyCheck(db)}}
	return postgres.NewAppointmentRepo(db), postgres.NewOutboxRepo(db), checks, closeDB, nil
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

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
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
