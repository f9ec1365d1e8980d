package stepfn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"medley/internal/jobs"
)

type stubAPI struct {
	successInput *sfn.SendTaskSuccessInput
	failureInput *sfn.SendTaskFailureInput
	err          error
}

func (s *stubAPI) SendTaskSuccess(_ context.Context, params *sfn.SendTaskSuccessInput, _ ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error) {
	s.successInput = params
	if s.err != nil {
		return nil, s.err
	}
	return &sfn.SendTaskSuccessOutput{}, nil
}

func (s *stubAPI) SendTaskFailure(_ context.Context, params *sfn.SendTaskFailureInput, _ ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error) {
	s.failureInput = params
	if s.err != nil {
		return nil, s.err
	}
	return &sfn.SendTaskFailureOutput{}, nil
}

func TestSendSuccessMarshalsOutput(t *testing.T) {
	api := &stubAPI{}
	client := New(api)

	if err := client.SendSuccess(context.Background(), "token-1", map[string]any{"job_id": "j-1", "status": "PREPROCESSED"}); err != nil {
		t.Fatalf("send success: %v", err)
	}
	if *api.successInput.TaskToken != "token-1" {
		t.Errorf("token = %q", *api.successInput.TaskToken)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(*api.successInput.Output), &payload); err != nil {
		t.Fatalf("output not json: %v", err)
	}
	if payload["job_id"] != "j-1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSendFailureCarriesKindAndCause(t *testing.T) {
	api := &stubAPI{}
	client := New(api)

	if err := client.SendFailure(context.Background(), "token-2", "AnalysisFailed", "segment decode error"); err != nil {
		t.Fatalf("send failure: %v", err)
	}
	if *api.failureInput.Error != "AnalysisFailed" || *api.failureInput.Cause != "segment decode error" {
		t.Errorf("failure input = %+v", api.failureInput)
	}
}

func TestInvalidTokenIsPermanent(t *testing.T) {
	api := &stubAPI{err: &sfntypes.InvalidToken{}}
	client := New(api)

	err := client.SendSuccess(context.Background(), "stale", nil)
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransportErrorIsRetryable(t *testing.T) {
	api := &stubAPI{err: errors.New("connection reset")}
	client := New(api)

	err := client.SendFailure(context.Background(), "t", "k", "c")
	if !errors.Is(err, jobs.ErrResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
}
