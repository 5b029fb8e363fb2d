package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"hnenricher/retry"
	"hnenricher/types"
)

// runtimeAPI is the subset of *bedrockruntime.Client used for single calls.
type runtimeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Runtime invokes the model synchronously for one record, retrying rate-limit errors.
type Runtime struct {
	api     runtimeAPI
	modelID string
	policy  retry.Policy
}

// NewRuntimeClient builds a bedrockruntime client with the SDK retryer
// disabled, so the Runtime policy alone bounds attempts.
func NewRuntimeClient(awsCfg aws.Config, optFns ...func(*bedrockruntime.Options)) *bedrockruntime.Client {
	opts := append([]func(*bedrockruntime.Options){func(o *bedrockruntime.Options) {
		o.Retryer = aws.NopRetryer{}
	}}, optFns...)
	return bedrockruntime.NewFromConfig(awsCfg, opts...)
}

// NewRuntime creates a Runtime. A nil sleep uses the real clock.
func NewRuntime(api runtimeAPI, modelID string, maxAttempts int, sleep retry.SleepFunc, logger *slog.Logger) (*Runtime, error) {
	if api == nil {
		return nil, errors.New("inference: runtime api must not be nil")
	}
	if modelID == "" {
		return nil, errors.New("inference: model id is required")
	}
	logger = logger.With("component", "inference")
	return &Runtime{
		api:     api,
		modelID: modelID,
		policy: retry.Policy{
			MaxAttempts: maxAttempts,
			Retryable:   IsRateLimited,
			Sleep:       sleep,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				logger.Warn("rate limited, backing off", "attempt", attempt+1, "delay", delay, "err", err)
			},
		},
	}, nil
}

// Invoke sends one model input and returns the generated text.
func (r *Runtime) Invoke(ctx context.Context, modelInput json.RawMessage) (string, error) {
	var out *bedrockruntime.InvokeModelOutput
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(r.modelID),
			Body:        modelInput,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("inference: InvokeModel: %w", err)
	}

	var body types.ModelOutput
	if err := json.Unmarshal(out.Body, &body); err != nil {
		return "", fmt.Errorf("inference: decode response: %w", err)
	}
	text := strings.TrimSpace(body.Text())
	if text == "" {
		return "", errors.New("inference: empty model output")
	}
	return text, nil
}
