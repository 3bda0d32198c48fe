package aws

import (
	"context"
	"fmt"

	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/smithy-go/middleware"
	"golang.org/x/time/rate"
)

const callMiddlewareID = "AutoprotectCallControl"

// callMiddleware waits on the shared limiter before each operation and records the result.
// It runs in the initialize step, so a call retried by the SDK consumes a single token.
func callMiddleware(region string, limiter *rate.Limiter, stats *CallStats) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Initialize.Add(middleware.InitializeMiddlewareFunc(callMiddlewareID, func(
			ctx context.Context, in middleware.InitializeInput, next middleware.InitializeHandler,
		) (middleware.InitializeOutput, middleware.Metadata, error) {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return middleware.InitializeOutput{}, middleware.Metadata{}, waitError(ctx, err)
				}
			}

			out, metadata, err := next.HandleInitialize(ctx, in)
			if stats != nil {
				service := awsmiddleware.GetServiceID(ctx)
				operation := awsmiddleware.GetOperationName(ctx)
				stats.Record(region, service+":"+operation, err)
			}
			return out, metadata, err
		}), middleware.After)
	}
}

// waitError keeps a limiter refusal classifiable as the context failure it anticipates.
// Wait fails early, before the deadline passes, when the next token would arrive too late.
func waitError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("rate limit wait: %w", ctxErr)
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("rate limit wait: %w: %w", context.DeadlineExceeded, err)
	}
	return fmt.Errorf("rate limit wait: %w", err)
}
