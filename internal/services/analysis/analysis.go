// Package analysis starts asynchronous media analysis operations. The
// Bedrock-backed invoker submits work to the managed data automation
// service; the manual invoker mints operation ids for deployments where an
// external system drives analysis and reports back through the
// notifications API.
package analysis

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	bdar "github.com/aws/aws-sdk-go-v2/service/bedrockdataautomationruntime"
	bdartypes "github.com/aws/aws-sdk-go-v2/service/bedrockdataautomationruntime/types"
	"github.com/google/uuid"

	"medley/internal/jobs"
)

// Invoker starts an analysis operation over the object at inputURI and
// directs results under outputURI. It returns the external operation id the
// completion notification will carry.
type Invoker interface {
	Start(ctx context.Context, inputURI, outputURI string) (string, error)
}

// API is the data automation runtime surface the Bedrock invoker depends on.
type API interface {
	InvokeDataAutomationAsync(ctx context.Context, params *bdar.InvokeDataAutomationAsyncInput, optFns ...func(*bdar.Options)) (*bdar.InvokeDataAutomationAsyncOutput, error)
}

// Bedrock invokes the managed data automation service asynchronously.
type Bedrock struct {
	api        API
	profileARN string
	projectARN string
}

// NewBedrock builds a Bedrock invoker. Both ARNs are required.
func NewBedrock(api API, profileARN, projectARN string) (*Bedrock, error) {
	if strings.TrimSpace(profileARN) == "" || strings.TrimSpace(projectARN) == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "", "configure analysis", "profile and project ARNs are required", nil)
	}
	return &Bedrock{api: api, profileARN: profileARN, projectARN: projectARN}, nil
}

func (b *Bedrock) Start(ctx context.Context, inputURI, outputURI string) (string, error) {
	out, err := b.api.InvokeDataAutomationAsync(ctx, &bdar.InvokeDataAutomationAsyncInput{
		InputConfiguration: &bdartypes.InputConfiguration{
			S3Uri: aws.String(inputURI),
		},
		OutputConfiguration: &bdartypes.OutputConfiguration{
			S3Uri: aws.String(outputURI),
		},
		DataAutomationConfiguration: &bdartypes.DataAutomationConfiguration{
			DataAutomationProjectArn: aws.String(b.projectARN),
			Stage:                    bdartypes.DataAutomationStageLive,
		},
		DataAutomationProfileArn: aws.String(b.profileARN),
		NotificationConfiguration: &bdartypes.NotificationConfiguration{
			EventBridgeConfiguration: &bdartypes.EventBridgeConfiguration{
				EventBridgeEnabled: aws.Bool(true),
			},
		},
	})
	if err != nil {
		return "", jobs.Wrap(jobs.ErrInternal, "", "invoke analysis", inputURI, err)
	}
	if out.InvocationArn == nil || *out.InvocationArn == "" {
		return "", jobs.Wrap(jobs.ErrInternal, "", "invoke analysis", "service returned no invocation arn", nil)
	}
	return *out.InvocationArn, nil
}

// Manual mints operation ids without contacting any service. An external
// analyzer is expected to pick up the working object and report completion
// through the notifications API using the returned id.
type Manual struct{}

func (Manual) Start(_ context.Context, inputURI, _ string) (string, error) {
	if strings.TrimSpace(inputURI) == "" {
		return "", jobs.Wrap(jobs.ErrValidation, "", "invoke analysis", "missing input location", nil)
	}
	return "manual-" + uuid.NewString(), nil
}
