package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/api"
	"taskboard-api/config"
	"taskboard-api/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	tp := newTracerProvider()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("taskboard api listening")
		if err := a.e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	a.broker.Close()
	if err := a.e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
	a.sender.Close()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("tracer shutdown")
	}
}

type app struct {
	e      *echo.Echo
	sender *api.EventSender
	broker *api.Broker
}

func newApp(cfg config.Config, logger *log.Logger) (*app, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	broker := api.NewBroker()
	publishers := []api.EventPublisher{broker}
	if cfg.EventsQueue != "" {
		q, err := storage.NewQueuePublisher(cfg.StorageConnectionString, cfg.EventsQueue)
		if err != nil {
			return nil, fmt.Errorf("events queue: %w", err)
		}
		publishers = append(publishers, q)
	}
	if cfg.ActivityTable != "" {
		t, err := storage.NewActivityTable(cfg.StorageConnectionString, cfg.ActivityTable)
		if err != nil {
			return nil, fmt.Errorf("activity table: %w", err)
		}
		publishers = append(publishers, t)
	}
	sender := api.NewEventSender(api.EventSenderConfig{
		Workers:        cfg.EventWorkers,
		Buffer:         cfg.EventBuffer,
		Timeout:        cfg.EventTimeout,
		HandoffTimeout: cfg.EventHandoffTimeout,
	}, logger, publishers...)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))
	e.Use(api.RequestMetrics(logger))

	reg := prometheus.NewRegistry()
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "taskboard",
		Registerer: reg,
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	api.Register(e, store, sender, broker, logger)
	return &app{e: e, sender: sender, broker: broker}, nil
}

func newStore(cfg config.Config) (api.Storage, error) {
	if cfg.RedisConnectionString == "" {
		return storage.NewMemory(), nil
	}
	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	return storage.NewRedis(redis.NewClient(opts), cfg.RedisKeyPrefix), nil
}
