package credentials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/ecrdeploy/internal/ecrauth"
	"github.com/go-logr/logr"
)

type fakeTokens struct {
	regions []string
	token   ecrauth.Token
	err     error
}

func (f *fakeTokens) AuthorizationToken(ctx context.Context, region string) (ecrauth.Token, error) {
	f.regions = append(f.regions, region)
	return f.token, f.err
}

type fakeSecrets struct {
	values map[string]string
	calls  []string
}

func (f *fakeSecrets) Resolve(ctx context.Context, id string) (string, error) {
	f.calls = append(f.calls, id)
	v, ok := f.values[id]
	if !ok {
		return "", errors.New("ResourceNotFoundException: secret not found")
	}
	return v, nil
}

func TestClassify(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
	}{
		{"arn:aws:secretsmanager:us-west-2:00000:secret:fake-secret", KindARN},
		{"arn:aws-cn:secretsmanager:cn-north-1:00000:secret:fake-secret", KindARN},
		{"arn:aws", KindARN},
		{"username:password", KindInline},
		{"arn:azure:thing", KindInline},
		{":", KindInline},
		{"fake-secret", KindName},
		{"", KindName},
	}
	for _, tc := range cases {
		if got := Classify(tc.in); got != tc.want {
			t.Fatalf("Classify(%q)=%s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestIsDomain(t *testing.T) {
	accept := []string{"docker.io", "public.ecr.aws", "registry-1.docker.io", "a.b.c.example.com"}
	reject := []string{"fluent", "localhost", "library", "example.c", "bad_label.com", "host.com:5000", ""}
	for _, s := range accept {
		if !IsDomain(s) {
			t.Fatalf("IsDomain(%q) should be true", s)
		}
	}
	for _, s := range reject {
		if IsDomain(s) {
			t.Fatalf("IsDomain(%q) should be false", s)
		}
	}
}

func TestImageDomain(t *testing.T) {
	cases := map[string]string{
		"fluent/fluent-bit":                   "docker.io",
		"public.ecr.aws/sam/build-python3.11": "public.ecr.aws",
		"ghcr.io/owner/app:1.0":               "ghcr.io",
		"alpine":                              "docker.io",
		"quay.io":                             "quay.io",
	}
	for uri, want := range cases {
		if got := ImageDomain(uri, DefaultDomain); got != want {
			t.Fatalf("ImageDomain(%q)=%q, want %q", uri, got, want)
		}
	}
	if got := ImageDomain("library/alpine", "registry.example.com"); got != "registry.example.com" {
		t.Fatalf("custom default not used, got %q", got)
	}
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference(nil)
	if err != nil || ref.Present() {
		t.Fatalf("nil should be absent, got %+v err=%v", ref, err)
	}
	ref, err = ParseReference("user:pass")
	if err != nil || ref.Kind != KindInline {
		t.Fatalf("string ref: %+v err=%v", ref, err)
	}
	ref, err = ParseReference(map[string]interface{}{
		"secretArn":   "arn:aws:secretsmanager:us-east-1:1:secret:x",
		"usernameKey": "username",
		"passwordKey": "password",
	})
	if err != nil {
		t.Fatalf("structured ref: %v", err)
	}
	if ref.Kind != KindARN || !ref.JSONKeys() {
		t.Fatalf("unexpected structured ref %+v", ref)
	}
	ref, err = ParseReference(map[string]interface{}{"plainText": "nocolon"})
	if err != nil || ref.Kind != KindInline {
		t.Fatalf("plainText should be inline regardless of shape: %+v err=%v", ref, err)
	}
	ref, err = ParseReference(map[string]interface{}{})
	if err != nil || ref.Present() {
		t.Fatalf("empty object should be absent: %+v err=%v", ref, err)
	}
	if _, err := ParseReference(42); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	if _, err := ParseReference(map[string]interface{}{"plainText": "a:b", "secretArn": "x"}); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	for _, keys := range []map[string]interface{}{
		{"secretArn": "arn:aws:secretsmanager:us-east-1:1:secret:x", "usernameKey": "username"},
		{"secretArn": "registry/ghcr", "passwordKey": "password"},
	} {
		if ref, err := ParseReference(keys); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("single JSON key %v should be rejected, got %+v err=%v", keys, ref, err)
		}
	}
}

func TestReferenceStringRedactsInline(t *testing.T) {
	if s := NewReference("user:hunter2").String(); strings.Contains(s, "hunter2") {
		t.Fatalf("inline secret leaked: %s", s)
	}
	if s := NewReference("my-secret").String(); s != "name:my-secret" {
		t.Fatalf("unexpected string %q", s)
	}
}

func TestResolveManagedRegistryIgnoresReference(t *testing.T) {
	tokens := &fakeTokens{token: ecrauth.Token{Username: "AWS", Password: "tok", Endpoint: "000000000000.dkr.ecr.us-west-2.amazonaws.com"}}
	secrets := &fakeSecrets{}
	r := NewResolver(tokens, secrets, logr.Discard())
	creds, err := r.Resolve(context.Background(), "000000000000.dkr.ecr.us-west-2.amazonaws.com/alpine", NewReference("some-secret"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds != (Credentials{Username: "AWS", Password: "tok", Endpoint: "000000000000.dkr.ecr.us-west-2.amazonaws.com"}) {
		t.Fatalf("unexpected creds %+v", creds)
	}
	if len(tokens.regions) != 1 || tokens.regions[0] != "us-west-2" {
		t.Fatalf("token regions=%v", tokens.regions)
	}
	if len(secrets.calls) != 0 {
		t.Fatalf("secret store should not be used, calls=%v", secrets.calls)
	}
}

func TestResolveInline(t *testing.T) {
	r := NewResolver(nil, nil, logr.Logger{})
	creds, err := r.Resolve(context.Background(), "ghcr.io/owner/app", NewReference("octocat:pa:ss"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds != (Credentials{Username: "octocat", Password: "pa:ss", Endpoint: "ghcr.io"}) {
		t.Fatalf("unexpected creds %+v", creds)
	}
}

func TestResolveSecretByNameAndARN(t *testing.T) {
	arn := "arn:aws:secretsmanager:us-west-2:00000:secret:hub"
	secrets := &fakeSecrets{values: map[string]string{"hub": "user:pass", arn: "user2:pass2"}}
	r := NewResolver(nil, secrets, logr.Discard())

	creds, err := r.Resolve(context.Background(), "fluent/fluent-bit", NewReference("hub"))
	if err != nil {
		t.Fatalf("Resolve by name: %v", err)
	}
	if creds != (Credentials{Username: "user", Password: "pass", Endpoint: "docker.io"}) {
		t.Fatalf("unexpected creds %+v", creds)
	}
	creds, err = r.Resolve(context.Background(), "docker.io/library/alpine", NewReference(arn))
	if err != nil {
		t.Fatalf("Resolve by arn: %v", err)
	}
	if creds.Username != "user2" || creds.Endpoint != "docker.io" {
		t.Fatalf("unexpected creds %+v", creds)
	}
}

func TestResolveJSONSecret(t *testing.T) {
	secrets := &fakeSecrets{values: map[string]string{"hub": `{"username":"userName","password":"passWord"}`}}
	r := NewResolver(nil, secrets, logr.Discard())
	ref := Reference{Value: "hub", Kind: KindName, UsernameKey: "username", PasswordKey: "password"}
	creds, err := r.Resolve(context.Background(), "quay.io/org/app", ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds != (Credentials{Username: "userName", Password: "passWord", Endpoint: "quay.io"}) {
		t.Fatalf("unexpected creds %+v", creds)
	}
}

func TestResolveNoReference(t *testing.T) {
	r := NewResolver(nil, nil, logr.Discard())
	creds, err := r.Resolve(context.Background(), "docker.io/library/alpine", Reference{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !creds.Empty() || creds.Complete() {
		t.Fatalf("expected empty creds, got %+v", creds)
	}
}

func TestResolveFailures(t *testing.T) {
	secrets := &fakeSecrets{values: map[string]string{"bad": "nocolon"}}
	r := NewResolver(&fakeTokens{err: errors.New("AccessDeniedException")}, secrets, logr.Discard())

	if _, err := r.Resolve(context.Background(), "docker.io/x", NewReference("bad")); !errors.Is(err, ErrMalformedSecret) {
		t.Fatalf("expected ErrMalformedSecret, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "docker.io/x", NewReference("missing")); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "1.dkr.ecr.eu-west-1.amazonaws.com/x", Reference{}); err == nil {
		t.Fatalf("expected token error")
	}
}

func TestParseJSONSecret(t *testing.T) {
	user, pass, err := ParseJSONSecret(`{"username":"user_val","password":"pass_val"}`, "username", "password")
	if err != nil || user != "user_val" || pass != "pass_val" {
		t.Fatalf("got %q/%q err=%v", user, pass, err)
	}
	if _, _, err := ParseJSONSecret(`{"user}`, "username", "password"); err == nil {
		t.Fatalf("expected json error")
	}
	if _, _, err := ParseJSONSecret(`{"password":"p"}`, "username", "password"); err == nil || !strings.Contains(err.Error(), "username") {
		t.Fatalf("expected username error, got %v", err)
	}
	if _, _, err := ParseJSONSecret(`{"username":"u"}`, "username", "password"); err == nil || !strings.Contains(err.Error(), "password") {
		t.Fatalf("expected password error, got %v", err)
	}
}
