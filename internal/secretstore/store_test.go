package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type staticProvider map[string]string

func (p staticProvider) Resolve(ctx context.Context, id string) (string, error) {
	v, ok := p[id]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func isolateAWS(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	t.Setenv("AWS_REGION", "us-west-2")
}

func TestStoreRoutesARNsToSecretsManager(t *testing.T) {
	arn := "arn:aws:secretsmanager:us-west-2:000000000000:secret:hub"
	store, err := New(context.Background(), Config{DefaultProvider: "local"}, Options{
		Providers: map[string]Provider{
			DefaultProviderName: staticProvider{arn: "sm:value"},
			"local":             staticProvider{"hub": "local:value"},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, err := store.Resolve(context.Background(), arn); err != nil || got != "sm:value" {
		t.Fatalf("arn resolve=%q err=%v", got, err)
	}
	if got, err := store.Resolve(context.Background(), "hub"); err != nil || got != "local:value" {
		t.Fatalf("name resolve=%q err=%v", got, err)
	}
	if store.DefaultProvider() != "local" {
		t.Fatalf("default provider=%q", store.DefaultProvider())
	}
	names := store.ProviderNames()
	if len(names) != 2 || names[0] != "local" || names[1] != DefaultProviderName {
		t.Fatalf("provider names=%v", names)
	}
}

func TestStoreRejectsUnknownDefault(t *testing.T) {
	_, err := New(context.Background(), Config{DefaultProvider: "missing"}, Options{
		Providers: map[string]Provider{DefaultProviderName: staticProvider{}},
	})
	if err == nil {
		t.Fatalf("expected error for unknown default provider")
	}
}

func TestStoreRejectsUnsupportedType(t *testing.T) {
	_, err := New(context.Background(), Config{Providers: map[string]ProviderConfig{"x": {Type: "ldap"}}}, Options{
		Providers: map[string]Provider{DefaultProviderName: staticProvider{}},
	})
	if err == nil || !strings.Contains(err.Error(), "ldap") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}

func TestStoreFileProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte("registry:\n  dockerhub: \"octocat:token\"\n  nested:\n    deep: 3\n"), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	store, err := New(context.Background(), Config{
		DefaultProvider: "local",
		Providers:       map[string]ProviderConfig{"local": {Type: TypeFile, Path: "secrets.yaml"}},
	}, Options{BaseDir: dir, Providers: map[string]Provider{DefaultProviderName: staticProvider{}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := store.Resolve(context.Background(), "registry/dockerhub")
	if err != nil || got != "octocat:token" {
		t.Fatalf("resolve=%q err=%v", got, err)
	}
	if _, err := store.Resolve(context.Background(), "registry/missing"); err == nil {
		t.Fatalf("expected not found error")
	}
	if _, err := store.Resolve(context.Background(), "registry/nested/deep"); err == nil {
		t.Fatalf("expected non-string error")
	}
}

func TestSecretsManagerProvider(t *testing.T) {
	isolateAWS(t)
	var target string
	var requested map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target = r.Header.Get("X-Amz-Target")
		_ = json.NewDecoder(r.Body).Decode(&requested)
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		if requested["SecretId"] != "dockerhub" {
			w.Header().Set("X-Amzn-Errortype", "ResourceNotFoundException")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"__type":"ResourceNotFoundException","Message":"Secrets Manager can't find the specified secret."}`))
			return
		}
		_, _ = w.Write([]byte(`{"ARN":"arn:aws:secretsmanager:us-west-2:000000000000:secret:dockerhub","Name":"dockerhub","SecretString":"octocat:token"}`))
	}))
	defer server.Close()

	provider, err := newSecretsManagerProvider(context.Background(), ProviderConfig{Type: TypeSecretsManager, Endpoint: server.URL})
	if err != nil {
		t.Fatalf("newSecretsManagerProvider: %v", err)
	}
	got, err := provider.Resolve(context.Background(), "dockerhub")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "octocat:token" {
		t.Fatalf("value=%q", got)
	}
	if !strings.HasSuffix(target, ".GetSecretValue") {
		t.Fatalf("unexpected target %q", target)
	}
	_, err = provider.Resolve(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "ResourceNotFoundException") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	wrapped := []byte("logLevel: debug\nsecrets:\n  defaultProvider: vault\n  providers:\n    vault:\n      type: vault\n      address: https://vault.example.com\n      awsRole: ecr-deploy\n")
	cfg, err := ParseConfig(wrapped)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.DefaultProvider != "vault" || cfg.Providers["vault"].AWSRole != "ecr-deploy" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	bare := []byte(`{"providers":{"local":{"type":"file","path":"s.yaml"}}}`)
	cfg, err = ParseConfig(bare)
	if err != nil {
		t.Fatalf("ParseConfig bare: %v", err)
	}
	if cfg.Providers["local"].Path != "s.yaml" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	cfg, err = ParseConfig([]byte("  \n"))
	if err != nil || !cfg.Empty() {
		t.Fatalf("expected empty config, got %+v err=%v", cfg, err)
	}
}
