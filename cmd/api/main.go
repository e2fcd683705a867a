package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "frostmeter/internal/adapter/actor"
	"frostmeter/internal/config"
	"frostmeter/internal/core/actor"
	"frostmeter/internal/core/coordinator"
	"frostmeter/internal/core/domain"
	"frostmeter/internal/core/task"
	"frostmeter/internal/metrics"
	"frostmeter/internal/server"
	"frostmeter/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errEscalated = errors.New("pipeline task failed")

func main() {
	if err := run(); err != nil {
		slog.Error("frostmeter stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// load and print config
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("config errors: %w", err)
	}
	slog.Info("Using", "config", cfg.Redacted(), "version", versioninfo.Short())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	m := metrics.New()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	escalated := make(chan task.Outcome, 1)
	var masterPID *pactor.PID

	coord, err := coordinator.New(cfg, logger, coordinator.Options{
		Metrics: m,
		OnOutcome: func(o task.Outcome) {
			as.Root.Send(masterPID, domain.TaskOutcomeReceived{Outcome: o})
		},
	})
	if err != nil {
		return err
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(cfg, coord.Combiner(), mqttActorProvider(cfg, logger), func(o task.Outcome) {
			select {
			case escalated <- o:
			default:
			}
		}, logger)
	})
	masterPID, err = as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return err
	}
	defer as.Root.Stop(masterPID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer stopCoordinator(coord, logger)

	meterServer, err := coordinator.NewMeterServer(cfg.Meter, coord.Emulator())
	if err != nil {
		return err
	}
	if err := meterServer.Start(); err != nil {
		return fmt.Errorf("start meter server: %w", err)
	}
	defer meterServer.Stop()
	logger.Info("main@meter server listening", zap.String("listen", cfg.Meter.Listen))

	apiServer := server.NewServer(cfg, as.Root, masterPID, m.Registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("main@http server listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var result error
		select {
		case <-gctx.Done():
			logger.Info("main@shutting down gracefully")
		case o := <-escalated:
			logger.Error("main@fatal task outcome", zap.String("task", o.Task), zap.Error(o.Err))
			result = fmt.Errorf("%w: %s: %w", errEscalated, o.Task, o.Err)
		}

		// the server has 5 seconds to finish the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("main@http server forced to shutdown", zap.Error(err))
		}
		return result
	})

	return g.Wait()
}

func stopCoordinator(coord *coordinator.Coordinator, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.Stop(ctx); err != nil {
		logger.Warn("main@coordinator stop", zap.Error(err))
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	if !cfg.MQTT.Enabled() {
		return nil
	}
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}
