package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/google/uuid"
)

// bedrockAPI is the subset of *bedrock.Client used to start batch jobs.
type bedrockAPI interface {
	CreateModelInvocationJob(ctx context.Context, in *bedrock.CreateModelInvocationJobInput, optFns ...func(*bedrock.Options)) (*bedrock.CreateModelInvocationJobOutput, error)
}

// Job describes a submitted batch inference job. Status is not tracked locally.
type Job struct {
	Name      string `json:"name"`
	ARN       string `json:"arn"`
	InputURI  string `json:"input_uri"`
	OutputURI string `json:"output_uri"`
}

// BatchSubmitter starts Bedrock model invocation jobs over S3 JSONL artifacts.
type BatchSubmitter struct {
	api        bedrockAPI
	modelID    string
	roleARN    string
	namePrefix string
}

// NewBatchSubmitter validates dependencies and creates a BatchSubmitter.
func NewBatchSubmitter(api bedrockAPI, modelID, roleARN, namePrefix string) (*BatchSubmitter, error) {
	if api == nil {
		return nil, errors.New("inference: bedrock api must not be nil")
	}
	if modelID == "" {
		return nil, errors.New("inference: model id is required")
	}
	if namePrefix == "" {
		namePrefix = "batch"
	}
	return &BatchSubmitter{api: api, modelID: modelID, roleARN: roleARN, namePrefix: namePrefix}, nil
}

// Submit starts one job reading inputURI and writing under outputURI.
func (s *BatchSubmitter) Submit(ctx context.Context, inputURI, outputURI string, unixTS int64) (*Job, error) {
	name := JobName(s.namePrefix, unixTS)
	out, err := s.api.CreateModelInvocationJob(ctx, &bedrock.CreateModelInvocationJobInput{
		JobName:            aws.String(name),
		ModelId:            aws.String(s.modelID),
		RoleArn:            aws.String(s.roleARN),
		ClientRequestToken: aws.String(uuid.NewString()),
		InputDataConfig: &types.ModelInvocationJobInputDataConfigMemberS3InputDataConfig{
			Value: types.ModelInvocationJobS3InputDataConfig{
				S3Uri:         aws.String(inputURI),
				S3InputFormat: types.S3InputFormatJsonl,
			},
		},
		OutputDataConfig: &types.ModelInvocationJobOutputDataConfigMemberS3OutputDataConfig{
			Value: types.ModelInvocationJobS3OutputDataConfig{
				S3Uri: aws.String(outputURI),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("inference: CreateModelInvocationJob %s: %w", name, err)
	}
	return &Job{
		Name:      name,
		ARN:       aws.ToString(out.JobArn),
		InputURI:  inputURI,
		OutputURI: outputURI,
	}, nil
}

// JobName derives a job name from the artifact timestamp. Bedrock job names
// allow letters, digits and hyphens.
func JobName(prefix string, unixTS int64) string {
	prefix = strings.Map(func(r rune) rune {
		if r == '-' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return '-'
	}, prefix)
	return fmt.Sprintf("%s-%d", prefix, unixTS)
}
