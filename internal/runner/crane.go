package runner

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/example/ecrdeploy/internal/dockerconfig"
	"github.com/example/ecrdeploy/internal/s3archive"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// CraneRunner executes the crane argv protocol in-process with the
// go-containerregistry crane package. Logins are kept in the docker config at
// ConfigPath, exactly where the crane binary would write them.
type CraneRunner struct {
	ConfigPath string
	UserAgent  string
	// Archives opens s3:// sources, which are pushed instead of copied.
	Archives ArchiveSource
	// Copy replaces crane.Copy, mainly for tests.
	Copy func(src, dst string, opts ...crane.Option) error
	// Push replaces crane.Push, mainly for tests.
	Push func(img v1.Image, dst string, opts ...crane.Option) error
}

func (r *CraneRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	switch {
	case len(args) >= 2 && args[0] == "auth" && args[1] == "login":
		return r.login(args)
	case len(args) >= 2 && args[0] == "auth" && args[1] == "logout":
		return r.logout(args)
	case len(args) >= 1 && (args[0] == "cp" || args[0] == "copy"):
		return r.copy(ctx, args)
	default:
		return exitFailure(args, fmt.Sprintf("unknown command %q", strings.Join(args, " ")))
	}
}

func (r *CraneRunner) login(args []string) ([]byte, error) {
	fs := pflag.NewFlagSet("auth login", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.StringP("username", "u", "", "Username")
	password := fs.StringP("password", "p", "", "Password")
	if err := fs.Parse(args[2:]); err != nil {
		return exitFailure(args, err.Error())
	}
	if fs.NArg() != 1 {
		return exitFailure(args, "auth login requires exactly one registry")
	}
	server := fs.Arg(0)
	if err := dockerconfig.StoreLogin(r.ConfigPath, server, *username, *password); err != nil {
		return nil, errors.Wrapf(err, "store login for %s", server)
	}
	return []byte(fmt.Sprintf("logged in via %s\n", r.ConfigPath)), nil
}

func (r *CraneRunner) logout(args []string) ([]byte, error) {
	if len(args) != 3 {
		return exitFailure(args, "auth logout requires exactly one registry")
	}
	removed, err := dockerconfig.EraseLogin(r.ConfigPath, args[2])
	if err != nil {
		return nil, errors.Wrapf(err, "erase login for %s", args[2])
	}
	if !removed {
		return []byte(fmt.Sprintf("not logged in to %s\n", args[2])), nil
	}
	return []byte(fmt.Sprintf("logged out of %s\n", args[2])), nil
}

func (r *CraneRunner) copy(ctx context.Context, args []string) ([]byte, error) {
	if len(args) != 3 {
		return exitFailure(args, "cp requires a source and a destination")
	}
	src, dst := args[1], args[2]
	if s3archive.IsArchive(src) {
		p := archivePusher{archives: r.Archives, configPath: r.ConfigPath, userAgent: r.UserAgent, push: r.Push}
		return p.copy(ctx, args, src, dst)
	}
	opts := craneOptions(ctx, r.ConfigPath, r.UserAgent)
	copyFn := r.Copy
	if copyFn == nil {
		copyFn = crane.Copy
	}
	if err := copyFn(src, dst, opts...); err != nil {
		return exitFailure(args, err.Error())
	}
	return []byte(fmt.Sprintf("copied %s to %s\n", src, dst)), nil
}

func exitFailure(args []string, msg string) ([]byte, error) {
	out := []byte(msg + "\n")
	return out, &ExitError{Args: args, Status: 1, Output: out}
}

// ConfigKeychain resolves registry credentials from the docker config at Path,
// falling back to anonymous access.
type ConfigKeychain struct {
	Path string
}

func (k ConfigKeychain) Resolve(res authn.Resource) (authn.Authenticator, error) {
	auth, err := dockerconfig.Lookup(k.Path, res.RegistryStr())
	if err != nil {
		return nil, err
	}
	if auth.Username == "" && auth.Password == "" && auth.IdentityToken == "" && auth.RegistryToken == "" {
		return authn.Anonymous, nil
	}
	return authn.FromConfig(authn.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		IdentityToken: auth.IdentityToken,
		RegistryToken: auth.RegistryToken,
	}), nil
}
