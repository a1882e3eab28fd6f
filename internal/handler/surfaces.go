package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
)

// CustomResource adapts Handle to cfn.LambdaWrap. The physical resource id is
// passed through unchanged and no data is returned.
func (h *Handler) CustomResource(ctx context.Context, ev cfn.Event) (string, map[string]interface{}, error) {
	err := h.Handle(ctx, Event{
		RequestType:        string(ev.RequestType),
		ResourceProperties: ev.ResourceProperties,
	})
	if err != nil {
		err = fmt.Errorf("copy image failed: %w", err)
	}
	return ev.PhysicalResourceID, map[string]interface{}{}, err
}

// JobReporter records the outcome of a pipeline job.
type JobReporter interface {
	Succeed(ctx context.Context, jobID, summary string) error
	Fail(ctx context.Context, jobID, message string) error
}

// PipelineJob copies the image described by the job's UserParameters JSON and
// reports the outcome through reporter. Only a failure to report is returned.
func (h *Handler) PipelineJob(ctx context.Context, reporter JobReporter, ev events.CodePipelineJobEvent) error {
	job := ev.CodePipelineJob
	params := job.Data.ActionConfiguration.Configuration.UserParameters
	h.log.Info("pipeline job received", "jobID", job.ID)

	props := map[string]interface{}{}
	err := json.Unmarshal([]byte(params), &props)
	if err != nil {
		err = fmt.Errorf("parse UserParameters: %w", err)
	} else {
		h.log.Info("pipeline job parameters", "parameters", DumpEvent(Event{RequestType: "Pipeline", ResourceProperties: props}))
		err = h.CopyImage(ctx, props)
	}
	if err != nil {
		h.log.Error(err, "copy image failed", "jobID", job.ID)
		if reportErr := reporter.Fail(ctx, job.ID, err.Error()); reportErr != nil {
			return fmt.Errorf("report failure of job %s: %w", job.ID, reportErr)
		}
		return nil
	}
	if reportErr := reporter.Succeed(ctx, job.ID, "Copied image successfully"); reportErr != nil {
		return fmt.Errorf("report success of job %s: %w", job.ID, reportErr)
	}
	return nil
}

// CodePipelineAPI is the subset of the CodePipeline client used for reporting.
type CodePipelineAPI interface {
	PutJobSuccessResult(ctx context.Context, in *codepipeline.PutJobSuccessResultInput, optFns ...func(*codepipeline.Options)) (*codepipeline.PutJobSuccessResultOutput, error)
	PutJobFailureResult(ctx context.Context, in *codepipeline.PutJobFailureResultInput, optFns ...func(*codepipeline.Options)) (*codepipeline.PutJobFailureResultOutput, error)
}

// Service limits on the reported text.
const (
	maxSummary        = 2048
	maxFailureMessage = 5000
)

// CodePipelineReporter reports job results to AWS CodePipeline.
type CodePipelineReporter struct {
	client CodePipelineAPI
}

func NewCodePipelineReporter(client CodePipelineAPI) *CodePipelineReporter {
	return &CodePipelineReporter{client: client}
}

func (r *CodePipelineReporter) Succeed(ctx context.Context, jobID, summary string) error {
	_, err := r.client.PutJobSuccessResult(ctx, &codepipeline.PutJobSuccessResultInput{
		JobId: aws.String(jobID),
		ExecutionDetails: &types.ExecutionDetails{
			Summary: aws.String(truncate(summary, maxSummary)),
		},
	})
	return err
}

func (r *CodePipelineReporter) Fail(ctx context.Context, jobID, message string) error {
	_, err := r.client.PutJobFailureResult(ctx, &codepipeline.PutJobFailureResultInput{
		JobId: aws.String(jobID),
		FailureDetails: &types.FailureDetails{
			Message: aws.String(truncate(message, maxFailureMessage)),
			Type:    types.FailureTypeJobFailed,
		},
	})
	return err
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
