package secretstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type secretsManagerProvider struct {
	client SecretsManagerAPI
}

// NewSecretsManagerProvider wraps an existing client.
func NewSecretsManagerProvider(client SecretsManagerAPI) Provider {
	return &secretsManagerProvider{client: client}
}

func newSecretsManagerProvider(ctx context.Context, cfg ProviderConfig) (*secretsManagerProvider, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region := strings.TrimSpace(cfg.Region); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &secretsManagerProvider{client: client}, nil
}

func (p *secretsManagerProvider) Resolve(ctx context.Context, id string) (string, error) {
	resp, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("secrets manager %s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}
		return "", fmt.Errorf("secrets manager: %w", err)
	}
	if resp.SecretString != nil {
		return aws.ToString(resp.SecretString), nil
	}
	if len(resp.SecretBinary) > 0 {
		return string(resp.SecretBinary), nil
	}
	return "", fmt.Errorf("secret %q has no value", id)
}
