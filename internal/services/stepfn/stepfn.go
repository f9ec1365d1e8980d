// Package stepfn delivers continuation callbacks through AWS Step Functions
// task tokens.
package stepfn

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"medley/internal/jobs"
)

// API is the Step Functions surface the client depends on.
type API interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

// Client implements continuation.Sender against Step Functions.
type Client struct {
	api API
}

// New wraps a Step Functions API client.
func New(api API) *Client {
	return &Client{api: api}
}

func (c *Client) SendSuccess(ctx context.Context, token string, output any) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return jobs.Wrap(jobs.ErrInternal, "", "send task success", "marshal output", err)
	}
	_, err = c.api.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(token),
		Output:    aws.String(string(payload)),
	})
	if err != nil {
		return classify(err, "send task success")
	}
	return nil
}

func (c *Client) SendFailure(ctx context.Context, token, errorKind, cause string) error {
	_, err := c.api.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(token),
		Error:     aws.String(errorKind),
		Cause:     aws.String(cause),
	})
	if err != nil {
		return classify(err, "send task failure")
	}
	return nil
}

// classify maps token errors onto the shared taxonomy. A token the engine no
// longer recognizes is permanent; everything else stays retryable.
func classify(err error, operation string) error {
	var invalidToken *sfntypes.InvalidToken
	if errors.As(err, &invalidToken) {
		return jobs.Wrap(jobs.ErrNotFound, "", operation, "task token not recognized", err)
	}
	var timedOut *sfntypes.TaskTimedOut
	if errors.As(err, &timedOut) {
		return jobs.Wrap(jobs.ErrNotFound, "", operation, "task already timed out", err)
	}
	return jobs.Wrap(jobs.ErrResolution, "", operation, "", err)
}
