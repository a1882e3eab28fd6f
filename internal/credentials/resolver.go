package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/example/ecrdeploy/internal/ecrauth"
	"github.com/go-logr/logr"
)

// ErrMalformedSecret is returned when a credential value is not a username:password pair.
var ErrMalformedSecret = errors.New("credential value is not in username:password form")

// Credentials is the login triple for one registry. The zero value means the
// image needs no authentication.
type Credentials struct {
	Username string
	Password string
	Endpoint string
}

// Empty reports whether no field is set.
func (c Credentials) Empty() bool {
	return c == Credentials{}
}

// Complete reports whether every field needed for a login is set.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != "" && c.Endpoint != ""
}

// TokenProvider exchanges the runtime identity for a managed-registry token.
type TokenProvider interface {
	AuthorizationToken(ctx context.Context, region string) (ecrauth.Token, error)
}

// SecretStore returns the string value of a secret by name or ARN.
type SecretStore interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Resolver implements the credential resolution rules for one image reference.
type Resolver struct {
	tokens  TokenProvider
	secrets SecretStore
	log     logr.Logger
}

// NewResolver builds a Resolver. A zero logger discards output.
func NewResolver(tokens TokenProvider, secrets SecretStore, log logr.Logger) *Resolver {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Resolver{tokens: tokens, secrets: secrets, log: log}
}

// Resolve returns the login triple for imageURI. Managed registries always use a
// fresh token and ignore ref; other registries use ref when present and need no
// login otherwise.
func (r *Resolver) Resolve(ctx context.Context, imageURI string, ref Reference) (Credentials, error) {
	if ecrauth.IsManagedRegistry(imageURI) {
		region, _ := ecrauth.RegionFromURI(imageURI)
		if ref.Present() {
			r.log.V(1).Info("ignoring credential reference for managed registry", "image", imageURI, "reference", ref.String())
		}
		r.log.Info("managed registry login", "image", imageURI, "region", region)
		if r.tokens == nil {
			return Credentials{}, fmt.Errorf("no token provider configured for %s", imageURI)
		}
		tok, err := r.tokens.AuthorizationToken(ctx, region)
		if err != nil {
			return Credentials{}, err
		}
		return Credentials{Username: tok.Username, Password: tok.Password, Endpoint: tok.Endpoint}, nil
	}
	if !ref.Present() {
		return Credentials{}, nil
	}
	endpoint := ImageDomain(imageURI, DefaultDomain)
	r.log.Info("credential login", "image", imageURI, "reference", ref.String(), "endpoint", endpoint)
	var (
		user, pass string
		err        error
	)
	if ref.Kind == KindInline {
		user, pass, err = SplitPair(ref.Value)
	} else {
		user, pass, err = r.fromSecret(ctx, ref)
	}
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: user, Password: pass, Endpoint: endpoint}, nil
}

func (r *Resolver) fromSecret(ctx context.Context, ref Reference) (string, string, error) {
	if r.secrets == nil {
		return "", "", fmt.Errorf("no secret store configured for %s", ref)
	}
	value, err := r.secrets.Resolve(ctx, ref.Value)
	if err != nil {
		return "", "", fmt.Errorf("fetch secret %s: %w", ref.Value, err)
	}
	if ref.JSONKeys() {
		return ParseJSONSecret(value, ref.UsernameKey, ref.PasswordKey)
	}
	user, pass, err := SplitPair(value)
	if err != nil {
		return "", "", fmt.Errorf("secret %s: %w", ref.Value, err)
	}
	return user, pass, nil
}

// SplitPair splits s on its first colon.
func SplitPair(s string) (string, string, error) {
	user, pass, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", ErrMalformedSecret
	}
	return user, pass, nil
}

// ParseJSONSecret reads a username and password from a JSON object secret.
func ParseJSONSecret(secret, usernameKey, passwordKey string) (string, string, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(secret), &fields); err != nil {
		return "", "", fmt.Errorf("parse json secret: %w", err)
	}
	user, ok := fields[usernameKey].(string)
	if !ok {
		return "", "", fmt.Errorf("json secret: missing string field %q", usernameKey)
	}
	pass, ok := fields[passwordKey].(string)
	if !ok {
		return "", "", fmt.Errorf("json secret: missing string field %q", passwordKey)
	}
	return user, pass, nil
}
