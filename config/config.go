package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "HNENRICHER_CONFIG"
	secretPrefix  = "ssm:"
)

// Config holds every setting required to run the enricher.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	HackerNews HackerNewsConfig `yaml:"hackernews"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Storage    StorageConfig    `yaml:"storage"`
	Inference  InferenceConfig  `yaml:"inference"`
	Database   DatabaseConfig   `yaml:"database"`
	Vector     VectorConfig     `yaml:"vector"`
	Cohere     CohereConfig     `yaml:"cohere"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// ServerConfig configures the ops HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects level and handler format ("text" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HackerNewsConfig points at the ranking and item-detail sources.
type HackerNewsConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	FeedURL string        `yaml:"feedUrl"`
	Ranking string        `yaml:"ranking"` // "firebase" or "feed"
	Timeout time.Duration `yaml:"timeout"`
}

// IngestConfig tunes candidate selection and batch accumulation.
type IngestConfig struct {
	CandidateLimit int           `yaml:"candidateLimit"`
	RecencyWindow  time.Duration `yaml:"recencyWindow"`
	FlushThreshold int           `yaml:"flushThreshold"`
	Pending        string        `yaml:"pending"` // "file" or "redis"
	PendingPath    string        `yaml:"pendingPath"`
	ScratchDir     string        `yaml:"scratchDir"`
	ContentTimeout time.Duration `yaml:"contentTimeout"`
}

// StorageConfig describes where batch artifacts live.
type StorageConfig struct {
	Bucket       string `yaml:"bucket"`
	InputPrefix  string `yaml:"inputPrefix"`
	OutputPrefix string `yaml:"outputPrefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// InferenceConfig configures batch and synchronous model calls.
type InferenceConfig struct {
	ModelID          string `yaml:"modelId"`
	RoleARN          string `yaml:"roleArn"`
	JobNamePrefix    string `yaml:"jobNamePrefix"`
	MaxTokens        int    `yaml:"maxTokens"`
	Prompt           string `yaml:"prompt"`
	AnthropicVersion string `yaml:"anthropicVersion"`
}

// DatabaseConfig selects the relational driver ("pgx" or "sqlite").
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// VectorConfig describes the Chroma collection and embedding settings.
type VectorConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Collection string        `yaml:"collection"`
	TTL        time.Duration `yaml:"ttl"`
	EmbedModel string        `yaml:"embedModel"`
	ChunkSize  int           `yaml:"chunkSize"`
}

// CohereConfig carries the embedding API key.
type CohereConfig struct {
	APIKey string `yaml:"apiKey"`
}

// RedisConfig is optional; an empty Addr disables Redis-backed features.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// KafkaConfig is optional; no brokers disables events and triggers.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	EnrichedTopic string   `yaml:"enrichedTopic"`
	TriggerTopic  string   `yaml:"triggerTopic"`
	GroupID       string   `yaml:"groupId"`
}

// ScheduleConfig holds cron expressions for the three cycles. Empty disables a cycle.
type ScheduleConfig struct {
	Ingest    string `yaml:"ingest"`
	Reconcile string `yaml:"reconcile"`
	Retention string `yaml:"retention"`
}

// RetentionConfig sets the artifact TTL: "same-day" or a Go duration.
type RetentionConfig struct {
	ArtifactTTL string `yaml:"artifactTtl"`
}

// SecretGetter resolves "ssm:<name>" references.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides(os.Getenv)
	return cfg
}

// Parse decodes a YAML document into a Config without defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveSecrets replaces "ssm:" references with parameter values.
func (c *Config) ResolveSecrets(ctx context.Context, getter SecretGetter) error {
	fields := []*string{&c.Cohere.APIKey, &c.Database.DSN, &c.Redis.Password}
	for _, f := range fields {
		if !strings.HasPrefix(*f, secretPrefix) {
			continue
		}
		if getter == nil {
			return fmt.Errorf("config: secret %q referenced but no parameter store configured", *f)
		}
		v, err := getter.GetParameter(ctx, strings.TrimPrefix(*f, secretPrefix))
		if err != nil {
			return fmt.Errorf("config: resolve secret: %w", err)
		}
		*f = v
	}
	return nil
}

// HasSecretRefs reports whether any field needs ResolveSecrets.
func (c Config) HasSecretRefs() bool {
	for _, v := range []string{c.Cohere.APIKey, c.Database.DSN, c.Redis.Password} {
		if strings.HasPrefix(v, secretPrefix) {
			return true
		}
	}
	return false
}

// Validate checks the settings required by every cycle.
func (c Config) Validate() error {
	var errs []error
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Inference.ModelID == "" {
		errs = append(errs, errors.New("inference.modelId is required"))
	}
	if c.Ingest.Pending == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when ingest.pending is redis"))
	}
	if _, err := c.Retention.Cutoff(time.Now()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Cutoff returns the instant before which artifacts are evicted.
func (r RetentionConfig) Cutoff(now time.Time) (time.Time, error) {
	ttl := strings.TrimSpace(r.ArtifactTTL)
	if ttl == "" || ttl == ArtifactTTLSameDay {
		now = now.UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return time.Time{}, fmt.Errorf("retention.artifactTtl %q: %w", ttl, err)
	}
	return now.Add(-d), nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Addr)
	if c.Server.Addr != "" && !strings.Contains(c.Server.Addr, ":") {
		c.Server.Addr = ":" + c.Server.Addr
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("S3_BUCKET", &c.Storage.Bucket)
	str("S3_REGION", &c.Storage.Region)
	str("S3_PROFILE", &c.Storage.Profile)
	str("BEDROCK_MODEL_ID", &c.Inference.ModelID)
	str("BEDROCK_ROLE_ARN", &c.Inference.RoleARN)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("CHROMA_HOST", &c.Vector.Host)
	str("COHERE_API_KEY", &c.Cohere.APIKey)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASS", &c.Redis.Password)

	if v := getenv("CHROMA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Vector.Port = port
		}
	}
	if v := getenv("S3_USE_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.UsePathStyle = b
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
		HackerNews: HackerNewsConfig{
			BaseURL: "https://hacker-news.firebaseio.com/v0",
			FeedURL: "https://hnrss.org/newest",
			Ranking: "firebase",
			Timeout: 10 * time.Second,
		},
		Ingest: IngestConfig{
			CandidateLimit: DefaultCandidateLimit,
			RecencyWindow:  RecencyWindow,
			FlushThreshold: FlushThreshold,
			Pending:        "file",
			PendingPath:    "batch_input.jsonl",
			ScratchDir:     "scratch",
			ContentTimeout: ContentFetchTimeout,
		},
		Storage: StorageConfig{
			InputPrefix:  "batch/input/",
			OutputPrefix: "batch/output/",
		},
		Inference: InferenceConfig{
			JobNamePrefix:    JobNamePrefix,
			MaxTokens:        DefaultMaxTokens,
			AnthropicVersion: AnthropicVersion,
			Prompt:           "Summarize this article in one paragraph and list its main topics.",
		},
		Database: DatabaseConfig{Driver: "pgx"},
		Vector: VectorConfig{
			Host:       "localhost",
			Port:       8000,
			Collection: DefaultCollection,
			TTL:        VectorTTL,
			EmbedModel: DefaultEmbedModel,
			ChunkSize:  EmbedChunkSize,
		},
		Redis: RedisConfig{KeyPrefix: "hnenricher:"},
		Kafka: KafkaConfig{
			EnrichedTopic: "items.enriched",
			TriggerTopic:  "enricher.triggers",
			GroupID:       "hnenricher",
		},
		Schedule: ScheduleConfig{
			Ingest:    "@every 1h",
			Reconcile: "@every 30m",
			Retention: "@daily",
		},
		Retention: RetentionConfig{ArtifactTTL: ArtifactTTLSameDay},
	}
}

func mergeConfig(base, override Config) Config {
	mergeString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	mergeInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	mergeDuration := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}

	mergeString(&base.Server.Addr, override.Server.Addr)
	mergeString(&base.Log.Level, override.Log.Level)
	mergeString(&base.Log.Format, override.Log.Format)

	mergeString(&base.HackerNews.BaseURL, override.HackerNews.BaseURL)
	mergeString(&base.HackerNews.FeedURL, override.HackerNews.FeedURL)
	mergeString(&base.HackerNews.Ranking, override.HackerNews.Ranking)
	mergeDuration(&base.HackerNews.Timeout, override.HackerNews.Timeout)

	mergeInt(&base.Ingest.CandidateLimit, override.Ingest.CandidateLimit)
	mergeDuration(&base.Ingest.RecencyWindow, override.Ingest.RecencyWindow)
	mergeInt(&base.Ingest.FlushThreshold, override.Ingest.FlushThreshold)
	mergeString(&base.Ingest.Pending, override.Ingest.Pending)
	mergeString(&base.Ingest.PendingPath, override.Ingest.PendingPath)
	mergeString(&base.Ingest.ScratchDir, override.Ingest.ScratchDir)
	mergeDuration(&base.Ingest.ContentTimeout, override.Ingest.ContentTimeout)

	mergeString(&base.Storage.Bucket, override.Storage.Bucket)
	mergeString(&base.Storage.InputPrefix, override.Storage.InputPrefix)
	mergeString(&base.Storage.OutputPrefix, override.Storage.OutputPrefix)
	mergeString(&base.Storage.Region, override.Storage.Region)
	mergeString(&base.Storage.Profile, override.Storage.Profile)
	base.Storage.UsePathStyle = base.Storage.UsePathStyle || override.Storage.UsePathStyle

	mergeString(&base.Inference.ModelID, override.Inference.ModelID)
	mergeString(&base.Inference.RoleARN, override.Inference.RoleARN)
	mergeString(&base.Inference.JobNamePrefix, override.Inference.JobNamePrefix)
	mergeInt(&base.Inference.MaxTokens, override.Inference.MaxTokens)
	mergeString(&base.Inference.Prompt, override.Inference.Prompt)
	mergeString(&base.Inference.AnthropicVersion, override.Inference.AnthropicVersion)

	mergeString(&base.Database.Driver, override.Database.Driver)
	mergeString(&base.Database.DSN, override.Database.DSN)

	mergeString(&base.Vector.Host, override.Vector.Host)
	mergeInt(&base.Vector.Port, override.Vector.Port)
	mergeString(&base.Vector.Collection, override.Vector.Collection)
	mergeDuration(&base.Vector.TTL, override.Vector.TTL)
	mergeString(&base.Vector.EmbedModel, override.Vector.EmbedModel)
	mergeInt(&base.Vector.ChunkSize, override.Vector.ChunkSize)

	mergeString(&base.Cohere.APIKey, override.Cohere.APIKey)

	mergeString(&base.Redis.Addr, override.Redis.Addr)
	mergeString(&base.Redis.Password, override.Redis.Password)
	mergeInt(&base.Redis.DB, override.Redis.DB)
	mergeString(&base.Redis.KeyPrefix, override.Redis.KeyPrefix)

	if len(override.Kafka.Brokers) > 0 {
		base.Kafka.Brokers = override.Kafka.Brokers
	}
	mergeString(&base.Kafka.EnrichedTopic, override.Kafka.EnrichedTopic)
	mergeString(&base.Kafka.TriggerTopic, override.Kafka.TriggerTopic)
	mergeString(&base.Kafka.GroupID, override.Kafka.GroupID)

	mergeString(&base.Schedule.Ingest, override.Schedule.Ingest)
	mergeString(&base.Schedule.Reconcile, override.Schedule.Reconcile)
	mergeString(&base.Schedule.Retention, override.Schedule.Retention)

	mergeString(&base.Retention.ArtifactTTL, override.Retention.ArtifactTTL)
	return base
}
