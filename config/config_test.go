package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	values map[string]string
	err    error
	asked  []string
}

func (f *fakeSecrets) GetParameter(_ context.Context, name string) (string, error) {
	f.asked = append(f.asked, name)
	if f.err != nil {
		return "", f.err
	}
	return f.values[name], nil
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
storage:
  bucket: from-file
  inputPrefix: in/
ingest:
  flushThreshold: 50
  recencyWindow: 48h
vector:
  port: 9000
kafka:
  brokers: ["a:9092"]
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "b:9092, c:9092")

	cfg := Load()
	require.Equal(t, "from-env", cfg.Storage.Bucket)
	require.Equal(t, "in/", cfg.Storage.InputPrefix)
	require.Equal(t, "batch/output/", cfg.Storage.OutputPrefix)
	require.Equal(t, 50, cfg.Ingest.FlushThreshold)
	require.Equal(t, 48*time.Hour, cfg.Ingest.RecencyWindow)
	require.Equal(t, DefaultCandidateLimit, cfg.Ingest.CandidateLimit)
	require.Equal(t, 9000, cfg.Vector.Port)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, []string{"b:9092", "c:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	cfg := Load()
	require.Equal(t, FlushThreshold, cfg.Ingest.FlushThreshold)
	require.Equal(t, RecencyWindow, cfg.Ingest.RecencyWindow)
	require.Equal(t, VectorTTL, cfg.Vector.TTL)
	require.Equal(t, EmbedChunkSize, cfg.Vector.ChunkSize)
	require.Equal(t, "items", cfg.Vector.Collection)
	require.Equal(t, ArtifactTTLSameDay, cfg.Retention.ArtifactTTL)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "storage.bucket")
	require.ErrorContains(t, err, "database.dsn")
	require.ErrorContains(t, err, "inference.modelId")

	cfg.Storage.Bucket = "b"
	cfg.Database.DSN = "postgres://x"
	cfg.Inference.ModelID = "m"
	require.NoError(t, cfg.Validate())

	cfg.Ingest.Pending = "redis"
	require.ErrorContains(t, cfg.Validate(), "redis.addr")

	cfg.Ingest.Pending = "file"
	cfg.Retention.ArtifactTTL = "soon"
	require.ErrorContains(t, cfg.Validate(), "artifactTtl")
}

func TestRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	cutoff, err := RetentionConfig{ArtifactTTL: ArtifactTTLSameDay}.Cutoff(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), cutoff)

	cutoff, err = RetentionConfig{ArtifactTTL: "72h"}.Cutoff(now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-72*time.Hour), cutoff)
}

func TestResolveSecrets(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cohere.APIKey = "ssm:/hn/cohere"
	cfg.Database.DSN = "postgres://plain"
	require.True(t, cfg.HasSecretRefs())

	getter := &fakeSecrets{values: map[string]string{"/hn/cohere": "secret"}}
	require.NoError(t, cfg.ResolveSecrets(context.Background(), getter))
	require.Equal(t, "secret", cfg.Cohere.APIKey)
	require.Equal(t, "postgres://plain", cfg.Database.DSN)
	require.Equal(t, []string{"/hn/cohere"}, getter.asked)
	require.False(t, cfg.HasSecretRefs())
}

func TestResolveSecrets_Errors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Redis.Password = "ssm:/hn/redis"

	require.ErrorContains(t, cfg.ResolveSecrets(context.Background(), nil), "no parameter store")

	err := cfg.ResolveSecrets(context.Background(), &fakeSecrets{err: errors.New("denied")})
	require.ErrorContains(t, err, "denied")
}
