package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Failure causes recorded for remote errors
const (
	CauseThrottled          = "throttled"
	CauseAccessDenied       = "access-denied"
	CauseNotFound           = "not-found"
	CauseConflict           = "conflict"
	CausePreconditionFailed = "precondition-failed"
	CauseInvalidParameter   = "invalid-parameter"
	CauseTimeout            = "timeout"
	CauseCanceled           = "canceled"
	CauseTransport          = "transport"
)

// DiscoveryError means a region could not be enumerated; the rest of that region is skipped
type DiscoveryError struct {
	Region string
	Page   int
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("error listing Lambda functions in %s (page %d): %v", e.Region, e.Page, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Classify maps an error from the control plane to a failure cause
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException", "Throttling", "RequestLimitExceeded",
			"EC2ThrottledException", "LimitExceededException":
			return CauseThrottled
		case "AccessDeniedException", "AccessDenied", "UnauthorizedOperation", "UnrecognizedClientException",
			"ExpiredTokenException", "KMSAccessDeniedException":
			return CauseAccessDenied
		case "ResourceNotFoundException", "NoSuchBucket", "NotFound":
			return CauseNotFound
		case "ResourceConflictException", "ResourceInUseException", "ResourceAlreadyExistsException":
			return CauseConflict
		case "PreconditionFailedException", "PreconditionFailed":
			return CausePreconditionFailed
		case "InvalidParameterValueException", "InvalidRequestContentException", "InvalidParameterException":
			return CauseInvalidParameter
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.Is(err, context.Canceled):
		return CauseCanceled
	}

	if apiErr != nil {
		return apiErr.ErrorCode()
	}
	return CauseTransport
}
