// Package ecrauth detects managed (ECR) registry references and exchanges the
// runtime's AWS identity for short-lived registry login tokens.
package ecrauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
)

const managedRegistryMarker = "dkr.ecr"

var regionPattern = regexp.MustCompile(`dkr\.ecr\.(.+?)\.`)

// ErrNoAuthorizationData is returned when the token service answers without any token.
var ErrNoAuthorizationData = errors.New("empty ECR authorization data")

// IsManagedRegistry reports whether uri points at a private ECR registry.
func IsManagedRegistry(uri string) bool {
	return strings.Contains(uri, managedRegistryMarker)
}

// RegionFromURI extracts the region label that follows "dkr.ecr." in uri.
func RegionFromURI(uri string) (string, bool) {
	m := regionPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Token is a decoded ECR authorization token.
type Token struct {
	Username  string
	Password  string
	Endpoint  string
	ExpiresAt time.Time
}

// API is the subset of the ECR client used by Provider.
type API interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// Options customize how the ECR client is built.
type Options struct {
	// Endpoint overrides the service endpoint (local stacks, tests).
	Endpoint string
	// Credentials replaces the default credential chain when set.
	Credentials aws.CredentialsProvider
	// NewClient builds the API client for a resolved config. Defaults to ecr.NewFromConfig.
	NewClient func(cfg aws.Config, endpoint string) API
}

// Provider resolves login tokens through ECR GetAuthorizationToken.
type Provider struct {
	endpoint    string
	credentials aws.CredentialsProvider
	newClient   func(cfg aws.Config, endpoint string) API
}

// NewProvider returns a Provider with the given options.
func NewProvider(opts Options) *Provider {
	newClient := opts.NewClient
	if newClient == nil {
		newClient = defaultClient
	}
	return &Provider{
		endpoint:    strings.TrimSpace(opts.Endpoint),
		credentials: opts.Credentials,
		newClient:   newClient,
	}
}

func defaultClient(cfg aws.Config, endpoint string) API {
	return ecr.NewFromConfig(cfg, func(o *ecr.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// AuthorizationToken fetches a token scoped to region, or to the SDK's default
// region when region is empty.
func (p *Provider) AuthorizationToken(ctx context.Context, region string) (Token, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region = strings.TrimSpace(region); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if p.credentials != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(p.credentials))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return Token{}, fmt.Errorf("load aws config: %w", err)
	}
	client := p.newClient(cfg, p.endpoint)
	resp, err := client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return Token{}, fmt.Errorf("get ECR authorization token: %w", err)
	}
	if len(resp.AuthorizationData) == 0 {
		return Token{}, ErrNoAuthorizationData
	}
	auth := resp.AuthorizationData[0]
	tok, err := DecodeToken(aws.ToString(auth.AuthorizationToken), aws.ToString(auth.ProxyEndpoint))
	if err != nil {
		return Token{}, err
	}
	tok.ExpiresAt = aws.ToTime(auth.ExpiresAt)
	return tok, nil
}

// DecodeToken turns a base64 "user:password" blob and a proxy endpoint URL into a Token.
func DecodeToken(encoded, proxyEndpoint string) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Token{}, fmt.Errorf("decode ECR authorization token: %w", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Token{}, fmt.Errorf("ECR authorization token is not a user:password pair")
	}
	return Token{
		Username: user,
		Password: pass,
		Endpoint: StripScheme(proxyEndpoint),
	}, nil
}

// StripScheme removes a leading http:// or https:// from endpoint.
func StripScheme(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, scheme) {
			return strings.TrimPrefix(endpoint, scheme)
		}
	}
	return endpoint
}
