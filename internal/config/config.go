package config

import (
	"time"
)

const SupportedSchema = "v1"

type OffsetReset string

const (
	ResetLatest   OffsetReset = "latest"
	ResetEarliest OffsetReset = "earliest"
)

type KafkaCfg struct {
	Brokers     []string    `koanf:"brokers" yaml:"brokers"`
	Topic       string      `koanf:"topic" yaml:"topic"`
	GroupID     string      `koanf:"group_id" yaml:"group_id"`
	OffsetReset OffsetReset `koanf:"offset_reset" yaml:"offset_reset"` // latest|earliest
	ClientID    string      `koanf:"client_id" yaml:"client_id"`
	Version     string      `koanf:"version" yaml:"version"` // sarama protocol version
}

type ProducerCfg struct {
	Linger time.Duration `koanf:"linger" yaml:"linger"` // batching delay before a publish is flushed
}

type ConsumerCfg struct {
	PollTimeout time.Duration `koanf:"poll_timeout" yaml:"poll_timeout"`
	BatchSize   int           `koanf:"batch_size" yaml:"batch_size"` // <=1 writes one document per message
	// WriteTimeout bounds one store write plus its commit, and with it how
	// long a stop waits for pulled records.
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
}

type StoreCfg struct {
	Driver     string `koanf:"driver" yaml:"driver"` // mongo|postgres|memory
	URI        string `koanf:"uri" yaml:"uri"`
	Database   string `koanf:"database" yaml:"database"`
	Collection string `koanf:"collection" yaml:"collection"` // table name for postgres
}

type SpotifyCfg struct {
	CredentialsPath string        `koanf:"credentials_path" yaml:"credentials_path"`
	BaseURL         string        `koanf:"base_url" yaml:"base_url"`
	Market          string        `koanf:"market" yaml:"market"`
	Timeout         time.Duration `koanf:"timeout" yaml:"timeout"`
	// ClientID enables refreshing the stored token; empty leaves it as is.
	ClientID string `koanf:"client_id" yaml:"client_id"`
	TokenURL string `koanf:"token_url" yaml:"token_url"`
}

type TelemetryCfg struct {
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr"` // empty disables /metrics
	HealthAddr  string `koanf:"health_addr" yaml:"health_addr"`   // empty disables the gRPC health service
}

type LogCfg struct {
	Level string `koanf:"level" yaml:"level"`
	JSON  bool   `koanf:"json" yaml:"json"`
}

// Config is built once at startup and handed to every component by value.
type Config struct {
	SchemaVersion string       `koanf:"schema_version" yaml:"schema_version"`
	Kafka         KafkaCfg     `koanf:"kafka" yaml:"kafka"`
	Producer      ProducerCfg  `koanf:"producer" yaml:"producer"`
	Consumer      ConsumerCfg  `koanf:"consumer" yaml:"consumer"`
	Store         StoreCfg     `koanf:"store" yaml:"store"`
	Spotify       SpotifyCfg   `koanf:"spotify" yaml:"spotify"`
	Telemetry     TelemetryCfg `koanf:"telemetry" yaml:"telemetry"`
	Log           LogCfg       `koanf:"log" yaml:"log"`
}
