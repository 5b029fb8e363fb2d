package config

import "time"

// Ingestion constants
const (
	// DefaultCandidateLimit is how many ranked ids are considered per ingestion cycle
	DefaultCandidateLimit = 100

	// RecencyWindow is how far back the relational store is consulted for dedup
	RecencyWindow = 5 * 24 * time.Hour

	// FlushThreshold is the accumulated line count that triggers a batch submission
	FlushThreshold = 100

	// ContentFetchTimeout bounds a single content fetch
	ContentFetchTimeout = 30 * time.Second
)

// Inference constants
const (
	// MaxAttempts bounds synchronous inference retries on rate limiting
	MaxAttempts = 8

	// DefaultMaxTokens caps the generated summary length
	DefaultMaxTokens = 512

	// AnthropicVersion is the messages API version expected by Bedrock
	AnthropicVersion = "bedrock-2023-05-31"

	// JobNamePrefix prefixes batch inference job names
	JobNamePrefix = "hn-enrich"
)

// Vector store constants
const (
	// VectorTTL is the age after which vector entries are evicted
	VectorTTL = 10 * 24 * time.Hour

	// EmbedChunkSize is the embedding service batch ceiling
	EmbedChunkSize = 96

	// DefaultCollection is the vector namespace holding enriched items
	DefaultCollection = "items"

	// DefaultEmbedModel is the Cohere model used for passages
	DefaultEmbedModel = "embed-multilingual-v3.0"
)

// Artifact constants
const (
	// InputArtifactFormat names a flushed batch artifact by unix timestamp
	InputArtifactFormat = "input-%d.jsonl"

	// ArtifactTTLSameDay evicts artifacts created before today (UTC)
	ArtifactTTLSameDay = "same-day"
)
