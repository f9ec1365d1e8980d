package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	bdar "github.com/aws/aws-sdk-go-v2/service/bedrockdataautomationruntime"

	"medley/internal/jobs"
)

type stubAPI struct {
	input *bdar.InvokeDataAutomationAsyncInput
	arn   string
	err   error
}

func (s *stubAPI) InvokeDataAutomationAsync(_ context.Context, params *bdar.InvokeDataAutomationAsyncInput, _ ...func(*bdar.Options)) (*bdar.InvokeDataAutomationAsyncOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return &bdar.InvokeDataAutomationAsyncOutput{InvocationArn: aws.String(s.arn)}, nil
}

func TestBedrockStartPassesConfiguration(t *testing.T) {
	api := &stubAPI{arn: "arn:aws:bedrock:op/123"}
	invoker, err := NewBedrock(api, "arn:profile", "arn:project")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	operationID, err := invoker.Start(context.Background(), "s3://bucket/working/clip.mp4", "s3://bucket/analysis-output/j-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if operationID != "arn:aws:bedrock:op/123" {
		t.Errorf("operation id = %q", operationID)
	}
	if *api.input.InputConfiguration.S3Uri != "s3://bucket/working/clip.mp4" {
		t.Errorf("input uri = %q", *api.input.InputConfiguration.S3Uri)
	}
	if *api.input.DataAutomationConfiguration.DataAutomationProjectArn != "arn:project" {
		t.Errorf("project arn = %q", *api.input.DataAutomationConfiguration.DataAutomationProjectArn)
	}
	if !aws.ToBool(api.input.NotificationConfiguration.EventBridgeConfiguration.EventBridgeEnabled) {
		t.Error("event notifications not enabled")
	}
}

func TestNewBedrockRequiresARNs(t *testing.T) {
	if _, err := NewBedrock(&stubAPI{}, "", "arn:project"); !errors.Is(err, jobs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBedrockStartWithoutArnFails(t *testing.T) {
	api := &stubAPI{arn: ""}
	invoker, err := NewBedrock(api, "arn:profile", "arn:project")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := invoker.Start(context.Background(), "s3://b/in", "s3://b/out"); err == nil {
		t.Fatal("expected error for empty invocation arn")
	}
}

func TestManualMintsUniqueIDs(t *testing.T) {
	var invoker Manual
	first, err := invoker.Start(context.Background(), "file://media/working/a.mp4", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := invoker.Start(context.Background(), "file://media/working/b.mp4", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first == second {
		t.Error("operation ids should be unique")
	}
	if !strings.HasPrefix(first, "manual-") {
		t.Errorf("id = %q", first)
	}
}
