package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/vidpress/internal/intake"
	"github.com/your-org/vidpress/pkg/config"
	"github.com/your-org/vidpress/pkg/httpx"
	"github.com/your-org/vidpress/pkg/kafka"
	"github.com/your-org/vidpress/pkg/logger"
	"github.com/your-org/vidpress/pkg/notify"
	"github.com/your-org/vidpress/pkg/storage/objectstore"
	"github.com/your-org/vidpress/pkg/tracing"
	"github.com/your-org/vidpress/pkg/transcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(config.Dispatcher); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, string(config.Dispatcher))
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
		Component:      string(config.Dispatcher),
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := objectstore.New(objectstore.Config{
		Provider:      cfg.Storage.Provider,
		Endpoint:      cfg.Storage.Endpoint,
		Region:        cfg.Storage.Region,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		UseSSL:        cfg.Storage.UseSSL,
		PartSizeBytes: cfg.Storage.PartSizeBytes,
	})
	if err != nil {
		logr.Fatal("init object store", zap.Error(err))
	}
	defer store.Close() //nolint:errcheck

	transcoder, err := transcode.New(ctx, transcode.Config{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.Transcode.Endpoint,
		RoleARN:  cfg.Transcode.RoleARN,
		Queue:    cfg.Transcode.Queue,
		Profile: transcode.Profile{
			QualityLevel: cfg.Transcode.QualityLevel,
			MaxBitrate:   cfg.Transcode.MaxBitrate,
			Width:        cfg.Transcode.Width,
			Height:       cfg.Transcode.Height,
			AudioBitrate: cfg.Transcode.AudioBitrate,
			SampleRate:   cfg.Transcode.SampleRate,
		},
	})
	if err != nil {
		logr.Fatal("init transcoder", zap.Error(err))
	}

	notifier, err := notify.New(ctx, cfg.AWS.Region, cfg.Notify.TopicARN)
	if err != nil {
		logr.Fatal("init notifier", zap.Error(err))
	}

	codec, err := kafka.ParseCompression(cfg.Kafka.CompressionCodec)
	if err != nil {
		logr.Fatal("kafka compression", zap.Error(err))
	}
	records := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.RecordsTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  codec,
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})
	defer func() {
		if err := records.Close(); err != nil {
			logr.Error("records producer close failed", zap.Error(err))
		}
	}()

	service := intake.NewService(intake.Params{
		Store:              store,
		Transcoder:         transcoder,
		Notifier:           notifier,
		Records:            records,
		HTTPClient:         &http.Client{Timeout: cfg.Intake.DownloadTimeout},
		Logger:             logr,
		StagingBucket:      cfg.Storage.StagingBucket,
		FinalBucket:        cfg.Storage.FinalBucket,
		DownloadBaseURL:    cfg.Intake.DownloadBaseURL,
		CompressionLimitGB: cfg.Intake.CompressionLimitGB,
	})

	handler := intake.NewHTTPHandler(service, logr, cfg.HTTP.HandlerTimeout)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	logr.Info("intake dispatcher starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("staging_bucket", cfg.Storage.StagingBucket),
		zap.String("final_bucket", cfg.Storage.FinalBucket),
	)
	if err := httpx.Serve(ctx, server, 30*time.Second); err != nil {
		logr.Error("http server failed", zap.Error(err))
	}
	logr.Info("intake dispatcher stopped")
}
