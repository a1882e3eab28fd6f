package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/events"
	"github.com/example/ecrdeploy/internal/config"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// invokeDeps is replaced in tests.
var invokeDeps = deps{}

func newInvokeCommand(v *viper.Viper) *cobra.Command {
	var eventPath string
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run a single event from a JSON file against the handler",
		Long: "invoke decodes a CloudFormation custom-resource event (or a CodePipeline job event when " +
			"--invoker=CODEPIPELINE) and runs it locally. Results are printed instead of being sent back to AWS.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readEvent(cmd.InOrStdin(), eventPath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr(), invokeDeps)
			if err != nil {
				return err
			}
			return a.invoke(cmd.Context(), cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVarP(&eventPath, "event", "e", "-", "Path to the event JSON file, or - for stdin")
	return cmd
}

func readEvent(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(expanded)
}

func (a *app) invoke(ctx context.Context, out io.Writer, raw []byte) error {
	switch a.cfg.Invoker {
	case config.InvokerCodePipeline:
		var ev events.CodePipelineJobEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode pipeline event: %w", err)
		}
		reporter := &printReporter{out: out}
		if err := a.handler.PipelineJob(ctx, reporter, ev); err != nil {
			return err
		}
		return reporter.err
	default:
		var ev cfn.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode custom resource event: %w", err)
		}
		physicalID, _, err := a.handler.CustomResource(ctx, ev)
		status := cfn.StatusSuccess
		reason := ""
		if err != nil {
			status = cfn.StatusFailed
			reason = err.Error()
		}
		resp := map[string]string{
			"Status":             string(status),
			"PhysicalResourceId": physicalID,
			"RequestId":          ev.RequestID,
			"LogicalResourceId":  ev.LogicalResourceID,
		}
		if reason != "" {
			resp["Reason"] = reason
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil {
			return encErr
		}
		return err
	}
}

// printReporter writes pipeline job results instead of calling CodePipeline.
type printReporter struct {
	out io.Writer
	err error
}

func (r *printReporter) Succeed(ctx context.Context, jobID, summary string) error {
	_, err := fmt.Fprintf(r.out, "job %s succeeded: %s\n", jobID, summary)
	return err
}

func (r *printReporter) Fail(ctx context.Context, jobID, message string) error {
	r.err = fmt.Errorf("job %s failed: %s", jobID, message)
	_, err := fmt.Fprintln(r.out, r.err.Error())
	return err
}
