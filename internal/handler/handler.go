// Package handler dispatches infrastructure lifecycle events to credential
// resolution, registry logins and a single image copy.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/ecrdeploy/internal/credentials"
	"github.com/example/ecrdeploy/internal/runner"
	"github.com/example/ecrdeploy/internal/s3archive"
	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/name"
)

// Request types understood by Handle.
const (
	RequestCreate = "Create"
	RequestUpdate = "Update"
	RequestDelete = "Delete"
)

var (
	// ErrMissingProperty is returned when a required image property is absent or not a string.
	ErrMissingProperty = errors.New("missing required property")
	// ErrInvalidImage is returned when an image reference cannot be parsed.
	ErrInvalidImage = errors.New("invalid image reference")
	// ErrUnsupportedRequestType is returned for request types other than Create, Update and Delete.
	ErrUnsupportedRequestType = errors.New("unsupported request type")
)

// Event is a lifecycle request and its property bag.
type Event struct {
	RequestType        string                 `json:"RequestType"`
	ResourceProperties map[string]interface{} `json:"ResourceProperties"`
}

// CredentialResolver turns an image reference and optional credential reference
// into a login triple.
type CredentialResolver interface {
	Resolve(ctx context.Context, imageURI string, ref credentials.Reference) (credentials.Credentials, error)
}

// Options configures a Handler.
type Options struct {
	Resolver CredentialResolver
	Runner   runner.Runner
	Logger   logr.Logger
	// LogoutAfterCopy erases every login made for the invocation once the copy ends.
	LogoutAfterCopy bool
	// ResetLogins, when set, clears logins left by earlier invocations before
	// anything is resolved.
	ResetLogins func(ctx context.Context) error
}

// Handler processes one event at a time. It holds no per-invocation state.
type Handler struct {
	resolver        CredentialResolver
	runner          runner.Runner
	log             logr.Logger
	logoutAfterCopy bool
	resetLogins     func(ctx context.Context) error
}

// New validates opts and returns a Handler.
func New(opts Options) (*Handler, error) {
	if opts.Resolver == nil {
		return nil, errors.New("handler: credential resolver is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("handler: runner is required")
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Handler{
		resolver:        opts.Resolver,
		runner:          opts.Runner,
		log:             log,
		logoutAfterCopy: opts.LogoutAfterCopy,
		resetLogins:     opts.ResetLogins,
	}, nil
}

// Handle runs ev. Delete never touches a registry; Create and Update copy the
// source image to the destination.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	h.log.Info("event received", "event", DumpEvent(ev))
	switch ev.RequestType {
	case RequestDelete:
		h.log.Info("delete request, nothing to do")
		return nil
	case RequestCreate, RequestUpdate:
		return h.CopyImage(ctx, ev.ResourceProperties)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedRequestType, ev.RequestType)
	}
}

// CopyImage resolves credentials for both images from props, logs in where a
// full triple is available and copies the image once.
func (h *Handler) CopyImage(ctx context.Context, props map[string]interface{}) error {
	req, err := parseProperties(props)
	if err != nil {
		return err
	}
	h.log.Info("copying image", "src", req.src, "dest", req.dest)
	if h.resetLogins != nil {
		if err := h.resetLogins(ctx); err != nil {
			return fmt.Errorf("reset registry logins: %w", err)
		}
	}

	var srcCreds credentials.Credentials
	if s3archive.IsArchive(req.src) {
		if req.srcCreds.Present() {
			h.log.Info("ignoring source credentials for s3 archive", "image", req.src)
		}
	} else if srcCreds, err = h.resolver.Resolve(ctx, req.src, req.srcCreds); err != nil {
		h.log.Error(err, "resolve source credentials failed", "image", req.src)
		return fmt.Errorf("resolve credentials for %s: %w", req.src, err)
	}
	destCreds, err := h.resolver.Resolve(ctx, req.dest, req.destCreds)
	if err != nil {
		h.log.Error(err, "resolve destination credentials failed", "image", req.dest)
		return fmt.Errorf("resolve credentials for %s: %w", req.dest, err)
	}

	var servers []string
	if h.logoutAfterCopy {
		defer func() { h.logout(ctx, servers) }()
	}
	for _, creds := range []credentials.Credentials{srcCreds, destCreds} {
		if !creds.Complete() {
			continue
		}
		out, err := runner.Login(ctx, h.runner, creds.Username, creds.Password, creds.Endpoint)
		if err := h.report("login", out, err, "server", creds.Endpoint); err != nil {
			return fmt.Errorf("login to %s: %w", creds.Endpoint, err)
		}
		servers = appendUnique(servers, creds.Endpoint)
	}

	out, err := runner.Copy(ctx, h.runner, req.src, req.dest)
	if err := h.report("copy", out, err, "src", req.src, "dest", req.dest); err != nil {
		return fmt.Errorf("copy %s to %s: %w", req.src, req.dest, err)
	}
	return nil
}

func (h *Handler) logout(ctx context.Context, servers []string) {
	for _, server := range servers {
		out, err := runner.Logout(ctx, h.runner, server)
		// logout failures are logged, never returned
		_ = h.report("logout", out, err, "server", server)
	}
}

// report logs the output of one action, at error severity when it failed.
func (h *Handler) report(action string, out []byte, err error, kv ...interface{}) error {
	output := strings.TrimSpace(string(out))
	kv = append([]interface{}{"action", action, "output", output}, kv...)
	if err != nil {
		h.log.Error(err, "action failed", kv...)
		return err
	}
	h.log.Info("action completed", kv...)
	return nil
}

type copyRequest struct {
	src, dest           string
	srcCreds, destCreds credentials.Reference
}

func parseProperties(props map[string]interface{}) (copyRequest, error) {
	var req copyRequest
	var err error
	if req.src, err = imageProperty(props, PropSrcImage); err != nil {
		return req, err
	}
	if s3archive.IsArchive(req.src) {
		if _, err := s3archive.Parse(req.src); err != nil {
			return req, fmt.Errorf("%w: %s: %v", ErrInvalidImage, PropSrcImage, err)
		}
	}
	if req.dest, err = imageProperty(props, PropDestImage); err != nil {
		return req, err
	}
	if req.srcCreds, err = credentials.ParseReference(props[PropSrcCreds]); err != nil {
		return req, fmt.Errorf("%s: %w", PropSrcCreds, err)
	}
	if req.destCreds, err = credentials.ParseReference(props[PropDestCreds]); err != nil {
		return req, fmt.Errorf("%s: %w", PropDestCreds, err)
	}
	return req, nil
}

func imageProperty(props map[string]interface{}, key string) (string, error) {
	raw, ok := props[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingProperty, key)
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string, got %v", ErrMissingProperty, key, raw)
	}
	value = NormalizeImage(value)
	if s3archive.IsArchive(value) {
		if key != PropSrcImage {
			return "", fmt.Errorf("%w: %s %q: s3 archives can only be read", ErrInvalidImage, key, value)
		}
		return value, nil
	}
	if _, err := name.ParseReference(value); err != nil {
		return "", fmt.Errorf("%w: %s %q: %v", ErrInvalidImage, key, value, err)
	}
	return value, nil
}

// NormalizeImage trims whitespace and the optional docker:// transport prefix.
func NormalizeImage(image string) string {
	return strings.TrimPrefix(strings.TrimSpace(image), "docker://")
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
