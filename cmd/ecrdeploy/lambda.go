package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/example/ecrdeploy/internal/config"
	"github.com/example/ecrdeploy/internal/handler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// startLambda hands a handler to the Lambda runtime; tests capture it instead.
var startLambda = func(h interface{}) { lambda.Start(h) }

var newPipelineReporter = func(ctx context.Context) (handler.JobReporter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return handler.NewCodePipelineReporter(codepipeline.NewFromConfig(awsCfg)), nil
}

func newLambdaCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:           "lambda",
		Short:         "Serve invocations from the AWS Lambda runtime",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLambda(cmd, v)
		},
	}
}

func runLambda(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), deps{})
	if err != nil {
		return err
	}
	a.log.Info("starting lambda handler", "invoker", cfg.Invoker)
	switch cfg.Invoker {
	case config.InvokerCodePipeline:
		reporter, err := newPipelineReporter(ctx)
		if err != nil {
			return err
		}
		startLambda(func(ctx context.Context, ev events.CodePipelineJobEvent) error {
			return a.handler.PipelineJob(ctx, reporter, ev)
		})
	default:
		startLambda(cfn.LambdaWrap(a.handler.CustomResource))
	}
	return nil
}
