package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/config"
	"github.com/alfredjeanlab/planline/internal/events"
	"github.com/alfredjeanlab/planline/internal/lock"
	"github.com/alfredjeanlab/planline/internal/scheduler"
	"github.com/alfredjeanlab/planline/internal/server"
	"github.com/alfredjeanlab/planline/internal/store"
	"github.com/alfredjeanlab/planline/internal/store/memory"
	"github.com/alfredjeanlab/planline/internal/store/postgres"
	plansync "github.com/alfredjeanlab/planline/internal/sync"
)

var serveCmd = localCommand(&cobra.Command{
	Use:     "serve",
	Short:   "Start the planline HTTP and gRPC server",
	GroupID: "system",
	Long: `Start the planline server. Configuration is read from PLANLINE_*
environment variables. Without PLANLINE_DATABASE_URL the server refuses to
start unless --dev is given, which keeps all state in memory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, _ := cmd.Flags().GetBool("dev")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
		slog.SetDefault(logger)

		// Store.
		var st store.Store
		switch {
		case cfg.DatabaseURL != "":
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
		case dev:
			st = memory.New()
			logger.Warn("using in-memory store; state is lost on exit")
		default:
			return errors.New("PLANLINE_DATABASE_URL is not set (use --dev for an in-memory store)")
		}

		// Event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (PLANLINE_NATS_URL not set)")
		}

		hub := server.NewEventHub()
		opts := []scheduler.Option{
			scheduler.WithEventObserver(hub.Observe),
			scheduler.WithDefaultReminderDays(cfg.DefaultReminderDays),
			scheduler.WithSweepWorkers(cfg.SweepWorkers),
		}

		// Project lock. Without Redis, locks are only held within this process.
		var closeRedis func() error
		if cfg.RedisAddr != "" {
			rdb := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := rdb.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				rdb.Close()
				publisher.Close()
				st.Close()
				return err
			}
			closeRedis = rdb.Close
			opts = append(opts, scheduler.WithLocker(lock.NewRedis(rdb, cfg.LockTTL)))
			logger.Info("redis lock enabled", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
		} else {
			opts = append(opts, scheduler.WithLocker(lock.NewLocal()))
		}

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			if closeRedis != nil {
				closeRedis()
			}
			publisher.Close()
			st.Close()
			return err
		}

		svc := scheduler.New(st, publisher, opts...)

		// Recompute queue.
		queue := scheduler.NewQueue(svc, cfg.RecomputeWorkers, logger)
		queueCtx, queueCancel := context.WithCancel(context.Background())
		var wg conc.WaitGroup
		wg.Go(func() { queue.Run(queueCtx) })

		// Recompute requests arrive over NATS; the queue group hands each one
		// to a single replica.
		var consumeCancel context.CancelFunc
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSQueueSubscriber(cfg.NATSURL, "planline-recompute")
			if err != nil {
				logger.Error("failed to create recompute subscriber", "err", err)
			} else {
				var consumeCtx context.Context
				consumeCtx, consumeCancel = context.WithCancel(context.Background())
				wg.Go(func() {
					if err := queue.Consume(consumeCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("recompute subscriber error", "err", err)
					}
					sub.Close()
				})
				logger.Info("recompute subscriber started")
			}
		}

		// Milestone sweep.
		var sweeper *scheduler.Sweeper
		if cfg.SweepInterval > 0 {
			sweeper = scheduler.NewSweeper(svc, cfg.SweepInterval, logger)
			sweeper.Start()
			logger.Info("milestone sweeper started", "interval", cfg.SweepInterval, "workers", cfg.SweepWorkers)
		}

		// Snapshot sync.
		var syncer *plansync.Scheduler
		if cfg.SyncInterval > 0 && cfg.SyncS3Bucket != "" {
			dest, err := plansync.NewS3Destination(
				context.Background(),
				cfg.SyncS3Bucket,
				cfg.SyncS3Key,
				cfg.SyncS3Region,
				cfg.SyncS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 sync destination", "err", err)
			} else {
				syncer = plansync.NewScheduler(st, []plansync.Destination{dest}, cfg.SyncInterval, logger)
				syncer.Start()
				logger.Info("sync scheduler started", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key, "interval", cfg.SyncInterval)
			}
		}

		// gRPC health.
		grpcServer, healthServer := server.NewGRPCServer(cfg.AuthToken)
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// HTTP API.
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.New(svc, queue, hub).NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("planline server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"auth", cfg.AuthToken != "",
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		healthServer.Shutdown()

		if consumeCancel != nil {
			consumeCancel()
		}
		if sweeper != nil {
			sweeper.Stop()
			logger.Info("milestone sweeper stopped")
		}
		if syncer != nil {
			syncer.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		queueCancel()
		wg.Wait()

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
		if closeRedis != nil {
			if err := closeRedis(); err != nil {
				logger.Error("error closing redis", "err", err)
			}
		}

		logger.Info("shutdown complete")
		return nil
	},
})

func init() {
	serveCmd.Flags().Bool("dev", false, "use an in-memory store when PLANLINE_DATABASE_URL is unset")
}
