package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/vidpress/internal/recorder"
	"github.com/your-org/vidpress/pkg/airtable"
	"github.com/your-org/vidpress/pkg/config"
	"github.com/your-org/vidpress/pkg/httpx"
	"github.com/your-org/vidpress/pkg/kafka"
	"github.com/your-org/vidpress/pkg/logger"
	"github.com/your-org/vidpress/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(config.Recorder); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, string(config.Recorder))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     tracing.ParseAttributes(cfg.Tracing.ResourceAttr),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Component:      string(config.Recorder),
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	table, err := airtable.New(airtable.Config{
		BaseURL:     cfg.Airtable.BaseURL,
		BaseID:      cfg.Airtable.BaseID,
		Table:       cfg.Airtable.TableName,
		APIKey:      cfg.Airtable.APIKey,
		Timeout:     cfg.Airtable.Timeout,
		MaxAttempts: cfg.Airtable.MaxAttempts,
		RetryBase:   cfg.Airtable.RetryBase,
	}, logr)
	if err != nil {
		logr.Fatal("init airtable client", zap.Error(err))
	}

	rec := recorder.New(table, logr, nil)

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.RecordsTopic,
		GroupID:     cfg.GroupIDFor(config.Recorder),
		MaxAttempts: cfg.Kafka.MaxAttempts,
	}, logr)
	defer consumer.Close() //nolint:errcheck

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      recorder.NewHTTPHandler(rec, logr, cfg.HTTP.HandlerTimeout).Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		defer cancel()
		err := consumer.Consume(ctx, rec.KafkaHandler())
		if err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("records consumer stopped", zap.Error(err))
		}
	}()

	logr.Info("metadata recorder starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("topic", cfg.Kafka.RecordsTopic),
		zap.String("table", cfg.Airtable.TableName),
	)
	if err := httpx.Serve(ctx, server, 30*time.Second); err != nil {
		logr.Error("http server failed", zap.Error(err))
	}
	cancel()
	<-consumed
	logr.Info("metadata recorder stopped")
}
