package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
)

type recordingReporter struct {
	succeeded map[string]string
	failed    map[string]string
	err       error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{succeeded: map[string]string{}, failed: map[string]string{}}
}

func (r *recordingReporter) Succeed(ctx context.Context, jobID, summary string) error {
	r.succeeded[jobID] = summary
	return r.err
}

func (r *recordingReporter) Fail(ctx context.Context, jobID, message string) error {
	r.failed[jobID] = message
	return r.err
}

func pipelineEvent(id, params string) events.CodePipelineJobEvent {
	var ev events.CodePipelineJobEvent
	ev.CodePipelineJob.ID = id
	ev.CodePipelineJob.Data.ActionConfiguration.Configuration.UserParameters = params
	return ev
}

func TestPipelineJobSuccess(t *testing.T) {
	f := newFixture(t, false)
	reporter := newRecordingReporter()
	params := `{"SrcImage":"docker.io/library/alpine","DestImage":"` + ecrImage + `"}`
	if err := f.handler.PipelineJob(context.Background(), reporter, pipelineEvent("job-1", params)); err != nil {
		t.Fatalf("PipelineJob: %v", err)
	}
	if _, ok := reporter.succeeded["job-1"]; !ok || len(reporter.failed) != 0 {
		t.Fatalf("expected success report, got %+v", reporter)
	}
	if len(f.runner.calls) != 2 {
		t.Fatalf("expected login and copy, got %v", f.runner.commands())
	}
}

func TestPipelineJobFailures(t *testing.T) {
	cases := map[string]string{
		"bad json":      `{"SrcImage":`,
		"missing image": `{"SrcImage":"alpine"}`,
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, false)
			reporter := newRecordingReporter()
			if err := f.handler.PipelineJob(context.Background(), reporter, pipelineEvent("job-2", params)); err != nil {
				t.Fatalf("PipelineJob: %v", err)
			}
			if reporter.failed["job-2"] == "" || len(reporter.succeeded) != 0 {
				t.Fatalf("expected failure report, got %+v", reporter)
			}
			if len(f.runner.calls) != 0 {
				t.Fatalf("no action expected, got %v", f.runner.calls)
			}
		})
	}
}

func TestPipelineJobReportError(t *testing.T) {
	f := newFixture(t, false)
	reporter := newRecordingReporter()
	reporter.err = errors.New("throttled")
	err := f.handler.PipelineJob(context.Background(), reporter, pipelineEvent("job-3", `{}`))
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected report error, got %v", err)
	}
}

func TestCodePipelineReporter(t *testing.T) {
	var targets []string
	var bodies []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		targets = append(targets, r.Header.Get("X-Amz-Target"))
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := codepipeline.New(codepipeline.Options{
		Region:       "us-west-2",
		BaseEndpoint: aws.String(server.URL),
		Credentials:  awscreds.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	})
	reporter := NewCodePipelineReporter(client)
	ctx := context.Background()
	if err := reporter.Succeed(ctx, "job-1", "Copied image successfully"); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if err := reporter.Fail(ctx, "job-2", strings.Repeat("x", maxFailureMessage+10)); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if len(targets) != 2 || !strings.HasSuffix(targets[0], ".PutJobSuccessResult") || !strings.HasSuffix(targets[1], ".PutJobFailureResult") {
		t.Fatalf("unexpected targets %v", targets)
	}
	if bodies[0]["jobId"] != "job-1" {
		t.Fatalf("unexpected success body %v", bodies[0])
	}
	details, _ := bodies[1]["failureDetails"].(map[string]interface{})
	message, _ := details["message"].(string)
	if details["type"] != "JobFailed" || len(message) != maxFailureMessage {
		t.Fatalf("unexpected failure details %v", details)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes, so a limit of 4 lands inside the second one.
	if got := truncate("aéé", 4); got != "aé" {
		t.Fatalf("truncate=%q", got)
	}
	if got := truncate("aéé", 5); got != "aéé" {
		t.Fatalf("truncate=%q", got)
	}
	msg := strings.Repeat("x", maxFailureMessage-1) + "日本"
	got := truncate(msg, maxFailureMessage)
	if !utf8.ValidString(got) || len(got) != maxFailureMessage-1 {
		t.Fatalf("len=%d valid=%v", len(got), utf8.ValidString(got))
	}
}
