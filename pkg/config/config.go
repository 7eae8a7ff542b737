package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Component names the binary a configuration is validated for.
type Component string

const (
	Dispatcher Component = "dispatcher"
	Correlator Component = "correlator"
	Recorder   Component = "recorder"
)

const (
	minPartSizeBytes = 5 << 20
	minOutputWidth   = 1280
	minOutputHeight  = 720
)

// Config captures the full runtime configuration for a vidpress service.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	AWS       AWSConfig
	Transcode TranscodeConfig
	Notify    NotifyConfig
	Airtable  AirtableConfig
	Intake    IntakeConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"vidpress"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15m"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	HandlerTimeout time.Duration `env:"HTTP_HANDLER_TIMEOUT" envDefault:"15m"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	CompletionTopic  string        `env:"KAFKA_COMPLETION_TOPIC" envDefault:"vidpress.completion"`
	RecordsTopic     string        `env:"KAFKA_RECORDS_TOPIC" envDefault:"vidpress.records"`
	GroupID          string        `env:"KAFKA_GROUP_ID"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"1"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`
	MaxAttempts      uint          `env:"KAFKA_CONSUMER_MAX_ATTEMPTS" envDefault:"10"`
}

type StorageConfig struct {
	Provider      string `env:"STORAGE_PROVIDER" envDefault:"s3"`
	Endpoint      string `env:"STORAGE_ENDPOINT" envDefault:"s3.amazonaws.com"`
	Region        string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	StagingBucket string `env:"TEMP_BUCKET"`
	FinalBucket   string `env:"COMPRESSED_BUCKET"`
	AccessKey     string `env:"STORAGE_ACCESS_KEY"`
	SecretKey     string `env:"STORAGE_SECRET_KEY"`
	UseSSL        bool   `env:"STORAGE_USE_SSL" envDefault:"true"`
	PartSizeBytes uint64 `env:"STORAGE_PART_SIZE_BYTES" envDefault:"104857600"`
}

type AWSConfig struct {
	Region string `env:"AWS_REGION" envDefault:"us-east-1"`
}

type TranscodeConfig struct {
	Endpoint     string `env:"MEDIACONVERT_ENDPOINT"`
	RoleARN      string `env:"MEDIACONVERT_ROLE"`
	Queue        string `env:"MEDIACONVERT_QUEUE"`
	QualityLevel int32  `env:"TRANSCODE_QVBR_QUALITY" envDefault:"8"`
	MaxBitrate   int32  `env:"TRANSCODE_MAX_BITRATE" envDefault:"8000000"`
	Width        int32  `env:"TRANSCODE_WIDTH" envDefault:"1920"`
	Height       int32  `env:"TRANSCODE_HEIGHT" envDefault:"1080"`
	AudioBitrate int32  `env:"TRANSCODE_AUDIO_BITRATE" envDefault:"128000"`
	SampleRate   int32  `env:"TRANSCODE_AUDIO_SAMPLE_RATE" envDefault:"48000"`
}

type NotifyConfig struct {
	TopicARN string `env:"SNS_TOPIC"`
}

type AirtableConfig struct {
	BaseURL     string        `env:"AIRTABLE_API_URL" envDefault:"https://api.airtable.com/v0"`
	BaseID      string        `env:"AIRTABLE_BASE_ID"`
	TableName   string        `env:"AIRTABLE_TABLE_NAME" envDefault:"Processed Videos"`
	APIKey      string        `env:"AIRTABLE_API_KEY"`
	Timeout     time.Duration `env:"AIRTABLE_TIMEOUT" envDefault:"10s"`
	MaxAttempts uint          `env:"AIRTABLE_MAX_ATTEMPTS" envDefault:"3"`
	RetryBase   time.Duration `env:"AIRTABLE_RETRY_BASE" envDefault:"500ms"`
}

type IntakeConfig struct {
	DownloadBaseURL    string        `env:"INTAKE_DOWNLOAD_BASE_URL" envDefault:"https://drive.google.com/uc"`
	DownloadTimeout    time.Duration `env:"INTAKE_DOWNLOAD_TIMEOUT" envDefault:"14m"`
	CompressionLimitGB float64       `env:"INTAKE_COMPRESSION_LIMIT_GB" envDefault:"5.0"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=vidpress"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every value the given component depends on is set and
// is not a leftover placeholder.
func (c *Config) Validate(component Component) error {
	var errs []error
	require := func(name, value string) {
		if err := checkValue(name, value); err != nil {
			errs = append(errs, err)
		}
	}

	switch component {
	case Dispatcher:
		require("TEMP_BUCKET", c.Storage.StagingBucket)
		require("COMPRESSED_BUCKET", c.Storage.FinalBucket)
		require("MEDIACONVERT_ENDPOINT", c.Transcode.Endpoint)
		require("MEDIACONVERT_ROLE", c.Transcode.RoleARN)
		require("SNS_TOPIC", c.Notify.TopicARN)
		require("INTAKE_DOWNLOAD_BASE_URL", c.Intake.DownloadBaseURL)
		if c.Storage.PartSizeBytes < minPartSizeBytes {
			errs = append(errs, fmt.Errorf("STORAGE_PART_SIZE_BYTES must be at least %d", minPartSizeBytes))
		}
		if c.Transcode.Width < minOutputWidth || c.Transcode.Height < minOutputHeight {
			errs = append(errs, fmt.Errorf("transcode output %dx%d is below the %dx%d floor",
				c.Transcode.Width, c.Transcode.Height, minOutputWidth, minOutputHeight))
		}
		if c.Transcode.QualityLevel < 1 || c.Transcode.QualityLevel > 10 {
			errs = append(errs, fmt.Errorf("TRANSCODE_QVBR_QUALITY must be within 1..10, got %d", c.Transcode.QualityLevel))
		}
		if c.Intake.CompressionLimitGB <= 0 {
			errs = append(errs, errors.New("INTAKE_COMPRESSION_LIMIT_GB must be positive"))
		}
	case Correlator:
		require("TEMP_BUCKET", c.Storage.StagingBucket)
		require("COMPRESSED_BUCKET", c.Storage.FinalBucket)
		require("MEDIACONVERT_ENDPOINT", c.Transcode.Endpoint)
		require("SNS_TOPIC", c.Notify.TopicARN)
		require("KAFKA_COMPLETION_TOPIC", c.Kafka.CompletionTopic)
	case Recorder:
		require("AIRTABLE_BASE_ID", c.Airtable.BaseID)
		require("AIRTABLE_TABLE_NAME", c.Airtable.TableName)
		require("AIRTABLE_API_KEY", c.Airtable.APIKey)
		if c.Airtable.MaxAttempts == 0 {
			errs = append(errs, errors.New("AIRTABLE_MAX_ATTEMPTS must be at least 1"))
		}
	default:
		return fmt.Errorf("unknown component %q", component)
	}

	require("KAFKA_RECORDS_TOPIC", c.Kafka.RecordsTopic)
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}

	return errors.Join(errs...)
}

// GroupIDFor returns the consumer group for a component, defaulting to
// "vidpress-<component>".
func (c *Config) GroupIDFor(component Component) string {
	if c.Kafka.GroupID != "" {
		return c.Kafka.GroupID
	}
	return "vidpress-" + string(component)
}

var placeholderMarkers = []string{"your-", "YOUR-", "REPLACE", "changeme"}

func checkValue(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(value, marker) {
			return fmt.Errorf("%s still holds a placeholder value", name)
		}
	}
	return nil
}
