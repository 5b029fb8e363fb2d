package inference

import (
	"errors"

	"github.com/aws/smithy-go"
)

// rateLimitCodes is the closed set of service error codes treated as rate limiting.
var rateLimitCodes = map[string]bool{
	"ThrottlingException":           true,
	"TooManyRequestsException":      true,
	"ServiceQuotaExceededException": true,
	"ModelNotReadyException":        true,
	"RequestLimitExceeded":          true,
	"Throttling":                    true,
	"SlowDown":                      true,
}

// IsRateLimited reports whether err carries a rate-limit error code.
func IsRateLimited(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return rateLimitCodes[apiErr.ErrorCode()]
	}
	return false
}
