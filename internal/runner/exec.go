package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/example/ecrdeploy/internal/s3archive"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
)

// DefaultCraneCommand is where the Lambda layer installs crane.
const DefaultCraneCommand = "/opt/crane/crane"

// ExecRunner runs the crane binary.
type ExecRunner struct {
	command []string
	env     []string
	config  string
	// Archives opens s3:// sources. Those copies run in-process against the
	// same docker config the binary uses.
	Archives ArchiveSource
}

// NewExecRunner parses command with shell word rules (so a wrapper or extra flags
// may precede the crane arguments). dockerConfig, when set, is the config.json
// crane reads and writes logins in.
func NewExecRunner(command string, dockerConfig string) (*ExecRunner, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCraneCommand
	}
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, errors.Wrapf(err, "parse crane command %q", command)
	}
	if len(argv) == 0 {
		return nil, errors.New("crane command must contain at least one argument")
	}
	var env []string
	if dockerConfig != "" {
		env = append(env, "DOCKER_CONFIG="+filepath.Dir(dockerConfig))
	}
	return &ExecRunner{command: argv, env: env, config: dockerConfig}, nil
}

// Command returns the parsed program and leading arguments.
func (r *ExecRunner) Command() []string {
	return append([]string(nil), r.command...)
}

func (r *ExecRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	if len(args) == 3 && (args[0] == "cp" || args[0] == "copy") && s3archive.IsArchive(args[1]) {
		p := archivePusher{archives: r.Archives, configPath: r.config}
		return p.copy(ctx, args, args[1], args[2])
	}
	argv := append(append([]string(nil), r.command[1:]...), args...)
	cmd := exec.CommandContext(ctx, r.command[0], argv...)
	cmd.Env = append(os.Environ(), r.env...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{Args: args, Status: exitErr.ExitCode(), Output: out}
	}
	return out, errors.Wrapf(err, "run %s", r.command[0])
}
