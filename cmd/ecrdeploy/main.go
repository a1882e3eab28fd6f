// main.go bootstraps ecrdeploy: it builds the root Cobra command and executes it with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/smithy-go"
	"github.com/example/ecrdeploy/internal/config"
	"github.com/example/ecrdeploy/internal/credentials"
	"github.com/example/ecrdeploy/internal/handler"
	"github.com/example/ecrdeploy/internal/runner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(os.Stderr, err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:   "ecrdeploy",
		Short: "Copy container images between registries during stack deployments",
		Long: "ecrdeploy is a custom-resource handler that resolves registry credentials for a source and " +
			"destination image, logs in where needed and copies the image with crane.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLambda(cmd, v)
		},
	}
	config.BindFlags(cmd.PersistentFlags())
	cmd.AddCommand(
		newLambdaCommand(v),
		newInvokeCommand(v),
		newVersionCommand(),
	)
	cmd.Example = `  # Serve Lambda invocations (default when no subcommand is given)
  ecrdeploy lambda

  # Replay a CloudFormation event locally with the in-process runner
  ecrdeploy invoke --event event.json --runner crane --docker-config ~/.docker/config.json`
	return cmd
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (config.Config, error) {
	return config.Load(v, cmd.Flags())
}

func handleError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	var apiErr smithy.APIError
	var exitErr *runner.ExitError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("%s\nHint: the copy did not finish in time; raise the function timeout or use a closer registry.", err)
	case errors.Is(err, handler.ErrMissingProperty), errors.Is(err, handler.ErrInvalidImage):
		message = fmt.Sprintf("%s\nHint: %s and %s must be image references such as docker.io/library/alpine:3.", err, handler.PropSrcImage, handler.PropDestImage)
	case errors.Is(err, credentials.ErrMalformedSecret):
		message = fmt.Sprintf("%s\nHint: store registry secrets as username:password or pass usernameKey/passwordKey for JSON secrets.", err)
	case errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDeniedException":
		message = fmt.Sprintf("%s\nHint: the execution role is missing a permission for %s.", err, apiErr.ErrorCode())
	case errors.As(err, &exitErr) && len(exitErr.Output) > 0:
		message = fmt.Sprintf("%s\n%s", err, exitErr.Output)
	}
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), message)
}
