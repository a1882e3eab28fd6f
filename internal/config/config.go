// Package config loads handler settings from flags, environment variables and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/ecrdeploy/internal/logging"
	"github.com/example/ecrdeploy/internal/secretstore"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	InvokerCloudFormation = "CLOUDFORMATION"
	InvokerCodePipeline   = "CODEPIPELINE"

	RunnerExec  = "exec"
	RunnerCrane = "crane"

	// EnvPrefix prefixes every environment override, e.g. ECRDEPLOY_RUNNER.
	EnvPrefix = "ECRDEPLOY"

	// DefaultDockerConfig sits under /tmp, the only writable path in Lambda.
	DefaultDockerConfig = "/tmp/.docker/config.json"
	DefaultCraneCommand = "/opt/crane/crane"
)

// Flag names double as viper keys and config file keys.
const (
	FlagLogLevel        = "log-level"
	FlagConfig          = "config"
	FlagCrane           = "crane"
	FlagRunner          = "runner"
	FlagDockerConfig    = "docker-config"
	FlagInvoker         = "invoker"
	FlagLogoutAfterCopy = "logout-after-copy"
)

// legacyEnv lists unprefixed variables honoured for existing deployments.
var legacyEnv = map[string]string{
	FlagLogLevel: "LOG_LEVEL",
	FlagInvoker:  "INVOKER",
}

// Config is the resolved handler configuration.
type Config struct {
	LogLevel        string
	Invoker         string
	Runner          string
	CraneCommand    string
	DockerConfig    string
	LogoutAfterCopy bool
	// ConfigFile is the YAML file that was read, if any.
	ConfigFile string
	Secrets    secretstore.Config
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:     logging.DefaultLevel,
		Invoker:      InvokerCloudFormation,
		Runner:       RunnerExec,
		CraneCommand: DefaultCraneCommand,
		DockerConfig: DefaultDockerConfig,
	}
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String(FlagLogLevel, def.LogLevel, "Log level (debug, info, warn, error)")
	fs.String(FlagConfig, "", "Path to a YAML config file (also ECRDEPLOY_CONFIG)")
	fs.String(FlagCrane, def.CraneCommand, "crane command line used by the exec runner")
	fs.String(FlagRunner, def.Runner, "How crane actions run: exec (crane binary) or crane (in-process)")
	fs.String(FlagDockerConfig, def.DockerConfig, "Docker config.json that holds registry logins")
	fs.String(FlagInvoker, def.Invoker, "Event source: CLOUDFORMATION or CODEPIPELINE")
	fs.Bool(FlagLogoutAfterCopy, false, "Erase registry logins after each copy")
}

// NewViper returns a viper instance with environment bindings applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, "-", "_")), legacy)
	}
	return v
}

// Load resolves configuration with precedence flag > environment > file > default.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	if v == nil {
		v = NewViper()
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, err
		}
	}
	explicit, err := expandPath(v.GetString(FlagConfig))
	if err != nil {
		return Config{}, err
	}
	configureConfigFile(v, explicit)
	if err := readConfigFile(v, explicit != ""); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		LogLevel:        v.GetString(FlagLogLevel),
		Invoker:         strings.ToUpper(strings.TrimSpace(v.GetString(FlagInvoker))),
		Runner:          strings.ToLower(strings.TrimSpace(v.GetString(FlagRunner))),
		CraneCommand:    v.GetString(FlagCrane),
		LogoutAfterCopy: v.GetBool(FlagLogoutAfterCopy),
		ConfigFile:      v.ConfigFileUsed(),
	}
	applyDefaults(&cfg)
	if cfg.DockerConfig, err = expandPath(v.GetString(FlagDockerConfig)); err != nil {
		return Config{}, err
	}
	if cfg.DockerConfig == "" {
		cfg.DockerConfig = DefaultDockerConfig
	}
	if cfg.ConfigFile != "" {
		if cfg.Secrets, err = secretstore.LoadConfig(cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Invoker == "" {
		cfg.Invoker = def.Invoker
	}
	if cfg.Runner == "" {
		cfg.Runner = def.Runner
	}
	if strings.TrimSpace(cfg.CraneCommand) == "" {
		cfg.CraneCommand = def.CraneCommand
	}
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Invoker {
	case InvokerCloudFormation, InvokerCodePipeline:
	default:
		return fmt.Errorf("unsupported invoker %q (expected %s or %s)", c.Invoker, InvokerCloudFormation, InvokerCodePipeline)
	}
	switch c.Runner {
	case RunnerExec, RunnerCrane:
	default:
		return fmt.Errorf("unsupported runner %q (expected %s or %s)", c.Runner, RunnerExec, RunnerCrane)
	}
	return nil
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range searchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func searchDirs() []string {
	var dirs []string
	if root := os.Getenv("LAMBDA_TASK_ROOT"); root != "" {
		dirs = append(dirs, root)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "ecrdeploy"))
	} else if home, err := homedir.Dir(); err == nil && home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "ecrdeploy"))
	}
	return dirs
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return expanded, nil
}
