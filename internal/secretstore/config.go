package secretstore

// Provider types understood by New.
const (
	TypeSecretsManager = "secretsmanager"
	TypeVault          = "vault"
	TypeFile           = "file"
)

// DefaultProviderName is used for names when no default is configured. ARNs are
// always resolved by the provider registered under this name.
const DefaultProviderName = "secretsmanager"

// Config describes the secret providers available to the handler.
type Config struct {
	DefaultProvider string                    `yaml:"defaultProvider,omitempty" json:"defaultProvider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty"`
}

// ProviderConfig captures provider-specific settings.
type ProviderConfig struct {
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// secretsmanager
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// file
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// vault
	Address        string `yaml:"address,omitempty" json:"address,omitempty"`
	Token          string `yaml:"token,omitempty" json:"token,omitempty"`
	Namespace      string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Mount          string `yaml:"mount,omitempty" json:"mount,omitempty"`
	KVVersion      int    `yaml:"kvVersion,omitempty" json:"kvVersion,omitempty"`
	Key            string `yaml:"key,omitempty" json:"key,omitempty"`
	AuthMethod     string `yaml:"authMethod,omitempty" json:"authMethod,omitempty"`
	AuthMount      string `yaml:"authMount,omitempty" json:"authMount,omitempty"`
	RoleID         string `yaml:"roleId,omitempty" json:"roleId,omitempty"`
	SecretID       string `yaml:"secretId,omitempty" json:"secretId,omitempty"`
	AWSRole        string `yaml:"awsRole,omitempty" json:"awsRole,omitempty"`
	AWSRegion      string `yaml:"awsRegion,omitempty" json:"awsRegion,omitempty"`
	AWSHeaderValue string `yaml:"awsHeaderValue,omitempty" json:"awsHeaderValue,omitempty"`
}

// Empty reports whether the configuration declares any providers or defaults.
func (c Config) Empty() bool {
	return c.DefaultProvider == "" && len(c.Providers) == 0
}
