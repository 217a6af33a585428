package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const EnvPrefix = "PLAYRELAY__"

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Load merges YAML (if present) with env-vars
// (prefix `PLAYRELAY__`, delimiter `__`, comma-separated lists).
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("config schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "spotify-records"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "1"
	}
	if c.Kafka.OffsetReset != ResetEarliest {
		c.Kafka.OffsetReset = ResetLatest
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "playrelay"
	}
	if c.Kafka.Version == "" {
		c.Kafka.Version = "2.8.0"
	}
	if c.Producer.Linger == 0 {
		c.Producer.Linger = 300 * time.Millisecond
	}
	if c.Consumer.PollTimeout == 0 {
		c.Consumer.PollTimeout = time.Second
	}
	if c.Consumer.BatchSize < 1 {
		c.Consumer.BatchSize = 1
	}
	if c.Consumer.WriteTimeout <= 0 {
		c.Consumer.WriteTimeout = 30 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "mongo"
	}
	if c.Store.Database == "" {
		c.Store.Database = "SpotifyRecords"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "CurrentlyPlayingRecords"
	}
	if c.Spotify.CredentialsPath == "" {
		c.Spotify.CredentialsPath = "creds.json"
	}
	if c.Spotify.BaseURL == "" {
		c.Spotify.BaseURL = "https://api.spotify.com/v1"
	}
	if c.Spotify.Timeout == 0 {
		c.Spotify.Timeout = 10 * time.Second
	}
	if c.Spotify.TokenURL == "" {
		c.Spotify.TokenURL = "https://accounts.spotify.com/api/token"
	}
}

// ---------------------------------------------------------------------------
// validation
// ---------------------------------------------------------------------------

// ValidateProducer reports the first missing setting the publish side needs.
func (c Config) ValidateProducer() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic is required")
	}
	if c.Spotify.CredentialsPath == "" {
		return errors.New("config: spotify.credentials_path is required")
	}
	return nil
}

// ValidateConsumer reports the first missing setting the subscribe side needs.
func (c Config) ValidateConsumer() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic is required")
	}
	if c.Kafka.GroupID == "" {
		return errors.New("config: kafka.group_id is required")
	}
	if c.Store.URI == "" && c.Store.Driver != "memory" {
		return fmt.Errorf("config: store.uri is required for driver %q", c.Store.Driver)
	}
	return nil
}

// Dump writes the effective configuration as YAML.
func Dump(w io.Writer, c Config) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
