package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "throttled", err: &lambdaTypes.TooManyRequestsException{}, want: CauseThrottled},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDeniedException"}, want: CauseAccessDenied},
		{name: "not found", err: &lambdaTypes.ResourceNotFoundException{}, want: CauseNotFound},
		{name: "conflict", err: &lambdaTypes.ResourceConflictException{}, want: CauseConflict},
		{name: "precondition", err: &lambdaTypes.PreconditionFailedException{}, want: CausePreconditionFailed},
		{name: "invalid parameter", err: &lambdaTypes.InvalidParameterValueException{}, want: CauseInvalidParameter},
		{
			name: "wrapped",
			err:  fmt.Errorf("error updating function configuration for orders: %w", &lambdaTypes.ResourceConflictException{}),
			want: CauseConflict,
		},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: CauseTimeout},
		{name: "canceled", err: context.Canceled, want: CauseCanceled},
		{name: "unknown code", err: &smithy.GenericAPIError{Code: "KMSDisabledException"}, want: "KMSDisabledException"},
		{name: "transport", err: errors.New("connection reset by peer"), want: CauseTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestDiscoveryErrorUnwrap(t *testing.T) {
	cause := &smithy.GenericAPIError{Code: "AccessDeniedException"}
	err := &DiscoveryError{Region: "eu-west-1", Page: 2, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "eu-west-1 (page 2)")
	assert.Equal(t, CauseAccessDenied, Classify(err))
}
