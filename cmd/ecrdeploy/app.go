// app.go wires configuration into the handler and its collaborators.
package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/example/ecrdeploy/internal/config"
	"github.com/example/ecrdeploy/internal/credentials"
	"github.com/example/ecrdeploy/internal/dockerconfig"
	"github.com/example/ecrdeploy/internal/ecrauth"
	"github.com/example/ecrdeploy/internal/handler"
	"github.com/example/ecrdeploy/internal/logging"
	"github.com/example/ecrdeploy/internal/runner"
	"github.com/example/ecrdeploy/internal/s3archive"
	"github.com/example/ecrdeploy/internal/secretstore"
	"github.com/example/ecrdeploy/internal/version"
	"github.com/go-logr/logr"
)

// deps lets tests replace collaborators that reach AWS or the filesystem.
type deps struct {
	tokens  credentials.TokenProvider
	secrets credentials.SecretStore
	runner  runner.Runner
}

type app struct {
	cfg     config.Config
	log     logr.Logger
	handler *handler.Handler
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer, d deps) (*app, error) {
	log, err := logging.New(cfg.LogLevel, logOut)
	if err != nil {
		return nil, err
	}
	log = log.WithValues("version", version.Version)

	if err := dockerconfig.EnsureConfigDir(cfg.DockerConfig); err != nil {
		return nil, fmt.Errorf("prepare docker config: %w", err)
	}
	if err := dockerconfig.ApplyAuthfileEnv(cfg.DockerConfig); err != nil {
		return nil, fmt.Errorf("prepare docker config: %w", err)
	}

	if d.tokens == nil {
		d.tokens = ecrauth.NewProvider(ecrauth.Options{})
	}
	if d.secrets == nil {
		baseDir := ""
		if cfg.ConfigFile != "" {
			baseDir = filepath.Dir(cfg.ConfigFile)
		}
		store, err := secretstore.New(ctx, cfg.Secrets, secretstore.Options{BaseDir: baseDir})
		if err != nil {
			return nil, fmt.Errorf("secret store: %w", err)
		}
		log.V(1).Info("secret providers", "default", store.DefaultProvider(), "providers", store.ProviderNames())
		d.secrets = store
	}
	if d.runner == nil {
		if d.runner, err = newRunner(cfg); err != nil {
			return nil, err
		}
	}

	h, err := handler.New(handler.Options{
		Resolver:        credentials.NewResolver(d.tokens, d.secrets, log.WithName("credentials")),
		Runner:          d.runner,
		Logger:          log.WithName("handler"),
		LogoutAfterCopy: cfg.LogoutAfterCopy,
		ResetLogins: func(ctx context.Context) error {
			return dockerconfig.Reset(cfg.DockerConfig)
		},
	})
	if err != nil {
		return nil, err
	}
	log.V(1).Info("handler ready", "invoker", cfg.Invoker, "runner", cfg.Runner, "dockerConfig", cfg.DockerConfig)
	return &app{cfg: cfg, log: log, handler: h}, nil
}

func newRunner(cfg config.Config) (runner.Runner, error) {
	archives := s3archive.NewFetcher(s3archive.Options{})
	switch cfg.Runner {
	case config.RunnerCrane:
		return &runner.CraneRunner{ConfigPath: cfg.DockerConfig, UserAgent: version.UserAgent(), Archives: archives}, nil
	case config.RunnerExec:
		r, err := runner.NewExecRunner(cfg.CraneCommand, cfg.DockerConfig)
		if err != nil {
			return nil, err
		}
		r.Archives = archives
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported runner %q", cfg.Runner)
	}
}
