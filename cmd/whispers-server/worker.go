package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/whispers/whispers/internal/config"
	"github.com/whispers/whispers/internal/domain/notification"
	"github.com/whispers/whispers/internal/platform/messaging"
	"github.com/whispers/whispers/internal/platform/telemetry"
)

const (
	taskOutboxScan = "outbox.scan"
	outboxStaleAge = 5 * time.Minute
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the outbox relay and daily notification jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	if shutdown, err := telemetry.InitTracer(ctx, telemetry.TelemetryConfig{
		ServiceName:  "whispers-worker",
		OTLPEndpoint: cfg.OTELEndpoint,
		Insecure:     true,
		Environment:  cfg.Env,
		SampleRate:   cfg.OTELSampleRatio,
	}); err == nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.Close()

	producer, err := messaging.NewProducer(messaging.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		ClientID: cfg.KafkaClientID,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka producer init failed")
	}
	defer producer.Close()

	relay := messaging.NewRelay(a.outbox, producer, messaging.RelayConfig{
		Owner:       cfg.KafkaClientID,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	}, logger)
	jobs := notification.NewJobs(a.rules, a.cache, logger)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.AsynqRedisAddr, Password: cfg.RedisPassword}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues:      map[string]int{cfg.AsynqQueue: 1},
	})
	defer server.Shutdown()

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskOutboxScan, func(ctx context.Context, t *asynq.Task) error {
		if n, err := a.outbox.RequeueStale(ctx, outboxStaleAge); err != nil {
			logger.Warn().Err(err).Msg("outbox requeue failed")
		} else if n > 0 {
			logger.Info().Int64("count", n).Msg("outbox messages requeued")
		}
		_, err := relay.RunOnce(ctx)
		return err
	})
	jobs.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	defer scheduler.Shutdown()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	scan := "@every " + strconv.Itoa(cfg.OutboxScanSec) + "s"
	if _, err := scheduler.Register(scan, asynq.NewTask(taskOutboxScan, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
		return fmt.Errorf("schedule outbox scan: %w", err)
	}
	if err := notification.Schedule(scheduler, cfg.NotifyCron, cfg.AsynqQueue); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			telemetry.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("queue", cfg.AsynqQueue).Int("concurrency", cfg.AsynqConcurrency).
			Str("notify_cron", cfg.NotifyCron).Msg("worker started")
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			return fmt.Errorf("worker failed: %w", err)
		}
	}

	logger.Info().Msg("worker stopped")
	return nil
}
