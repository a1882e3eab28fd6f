package secretstore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const (
	vaultAuthToken   = "token"
	vaultAuthAppRole = "approle"
	vaultAuthAWS     = "aws"
)

type vaultAuthConfig struct {
	method         string
	mount          string
	token          string
	roleID         string
	secretID       string
	awsRole        string
	awsRegion      string
	awsHeaderValue string
}

func buildVaultAuthConfig(cfg ProviderConfig) (vaultAuthConfig, error) {
	method, err := normalizeVaultAuthMethod(cfg.AuthMethod)
	if err != nil {
		return vaultAuthConfig{}, err
	}
	out := vaultAuthConfig{
		token:          strings.TrimSpace(cfg.Token),
		roleID:         strings.TrimSpace(cfg.RoleID),
		secretID:       strings.TrimSpace(cfg.SecretID),
		awsRole:        strings.TrimSpace(cfg.AWSRole),
		awsRegion:      strings.TrimSpace(cfg.AWSRegion),
		awsHeaderValue: strings.TrimSpace(cfg.AWSHeaderValue),
	}
	if method == "" {
		switch {
		case out.token != "":
			method = vaultAuthToken
		case out.awsRole != "":
			method = vaultAuthAWS
		case out.roleID != "" || out.secretID != "":
			method = vaultAuthAppRole
		default:
			method = vaultAuthToken
		}
	}
	out.method = method
	out.mount = strings.Trim(strings.TrimSpace(cfg.AuthMount), "/")
	if out.mount == "" && method != vaultAuthToken {
		out.mount = method
	}
	switch method {
	case vaultAuthToken:
		if out.token == "" {
			out.token = strings.TrimSpace(os.Getenv("VAULT_TOKEN"))
		}
		if out.token == "" {
			return vaultAuthConfig{}, fmt.Errorf("vault token is required")
		}
	case vaultAuthAppRole:
		if out.roleID == "" || out.secretID == "" {
			return vaultAuthConfig{}, fmt.Errorf("vault approle auth requires roleId and secretId")
		}
	case vaultAuthAWS:
		if out.awsRole == "" {
			return vaultAuthConfig{}, fmt.Errorf("vault aws auth requires awsRole")
		}
	}
	return out, nil
}

func normalizeVaultAuthMethod(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case "token":
		return vaultAuthToken, nil
	case "approle", "app-role", "app_role":
		return vaultAuthAppRole, nil
	case "aws", "aws-iam", "iam":
		return vaultAuthAWS, nil
	default:
		return "", fmt.Errorf("unsupported vault auth method %q", raw)
	}
}

func (p *vaultProvider) ensureAuth(ctx context.Context) error {
	if p.auth.method == vaultAuthToken {
		return nil
	}
	p.authOnce.Do(func() {
		p.authErr = p.login(ctx)
	})
	return p.authErr
}

func (p *vaultProvider) login(ctx context.Context) error {
	var data map[string]interface{}
	switch p.auth.method {
	case vaultAuthAppRole:
		data = map[string]interface{}{
			"role_id":   p.auth.roleID,
			"secret_id": p.auth.secretID,
		}
	case vaultAuthAWS:
		payload, err := buildAWSLoginPayload(ctx, p.auth)
		if err != nil {
			return err
		}
		data = payload
	default:
		return nil
	}
	path := fmt.Sprintf("auth/%s/login", p.auth.mount)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return fmt.Errorf("vault %s login: %w", p.auth.method, err)
	}
	if secret == nil || secret.Auth == nil || strings.TrimSpace(secret.Auth.ClientToken) == "" {
		return fmt.Errorf("vault auth %s did not return a client token", p.auth.method)
	}
	p.client.SetToken(secret.Auth.ClientToken)
	return nil
}

// buildAWSLoginPayload signs an STS GetCallerIdentity request with the runtime's
// credentials for Vault's aws auth method.
func buildAWSLoginPayload(ctx context.Context, cfg vaultAuthConfig) (map[string]interface{}, error) {
	region := cfg.awsRegion
	if region == "" {
		region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve aws credentials: %w", err)
	}
	body := "Action=GetCallerIdentity&Version=2011-06-15"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://sts.amazonaws.com/", strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	if cfg.awsHeaderValue != "" {
		req.Header.Set("X-Vault-AWS-IAM-Server-ID", cfg.awsHeaderValue)
	}
	payloadHash := sha256.Sum256([]byte(body))
	if err := v4.NewSigner().SignHTTP(ctx, creds, req, hex.EncodeToString(payloadHash[:]), "sts", region, time.Now()); err != nil {
		return nil, fmt.Errorf("sign sts request: %w", err)
	}
	headers := map[string][]string{}
	for key, values := range req.Header {
		headers[key] = values
	}
	headers["Host"] = []string{req.URL.Host}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encode aws headers: %w", err)
	}
	return map[string]interface{}{
		"role":                    cfg.awsRole,
		"iam_http_request_method": req.Method,
		"iam_request_url":         base64.StdEncoding.EncodeToString([]byte(req.URL.String())),
		"iam_request_body":        base64.StdEncoding.EncodeToString([]byte(body)),
		"iam_request_headers":     base64.StdEncoding.EncodeToString(headerJSON),
	}, nil
}
