package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Policy values for notification recipients whose display name is not in
// the allowlist.
const (
	UnknownRecipientSkip = "skip"
	UnknownRecipientWarn = "warn"
)

// StorageConfig holds settings for the backing store.
type StorageConfig struct {
	// Path is the SQLite database file path.
	Path string `mapstructure:"path" yaml:"path"`
}

// HTTPConfig holds settings for the HTTP API.
type HTTPConfig struct {
	// Listen is the address the server binds to, e.g. ":8080".
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// AuthConfig holds session and token settings.
type AuthConfig struct {
	// JWTSecret signs HS256 session tokens for the HTTP API.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// TokenTTLMinutes is the session token lifetime.
	TokenTTLMinutes int `mapstructure:"token_ttl_minutes" yaml:"token_ttl_minutes"`
}

// SMTPConfig holds settings for the optional email mirror of in-app
// notifications. Delivery is disabled when Host is empty.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`

	// Redirect, when set, overrides every recipient address. Used with
	// sandboxed mail providers that only deliver to a verified inbox.
	Redirect string `mapstructure:"redirect" yaml:"redirect"`
}

// AIConfig holds settings for the demand classifier.
type AIConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// PolicyConfig surfaces behavior choices that were implicit in earlier
// versions of the system.
type PolicyConfig struct {
	// UnknownRecipient controls fan-out when a display name is not in
	// the allowlist: "skip" drops it silently, "warn" logs it.
	UnknownRecipient string `mapstructure:"unknown_recipient" yaml:"unknown_recipient"`

	// SelfDelete allows an assignee to delete their own tasks.
	// When false only the BOSS may delete.
	SelfDelete bool `mapstructure:"self_delete" yaml:"self_delete"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Users    []User        `mapstructure:"users" yaml:"users"`
	Projects []string      `mapstructure:"projects" yaml:"projects"`
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage"`
	HTTP     HTTPConfig    `mapstructure:"http" yaml:"http"`
	Auth     AuthConfig    `mapstructure:"auth" yaml:"auth"`
	SMTP     SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	AI       AIConfig      `mapstructure:"ai" yaml:"ai"`
	Policy   PolicyConfig  `mapstructure:"policy" yaml:"policy"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/demandboard/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "demandboard", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Storage: StorageConfig{Path: "demandboard.db"},
		HTTP:    HTTPConfig{Listen: ":8080"},
		Auth:    AuthConfig{TokenTTLMinutes: 12 * 60},
		AI: AIConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Policy: PolicyConfig{
			UnknownRecipient: UnknownRecipientWarn,
			SelfDelete:       false,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("storage.path", "demandboard.db")
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("auth.token_ttl_minutes", 12*60)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("ai.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("policy.unknown_recipient", UnknownRecipientWarn)
	v.SetDefault("policy.self_delete", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks structural requirements on the configuration:
// a non-empty allowlist with exactly one BOSS and unique emails.
func (c *AppConfig) Validate() error {
	if len(c.Users) == 0 {
		return fmt.Errorf("config: users allowlist is empty")
	}

	bosses := 0
	seen := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if u.Email == "" || u.Name == "" {
			return fmt.Errorf("config: user entry missing name or email")
		}
		if seen[u.Email] {
			return fmt.Errorf("config: duplicate user email %s", u.Email)
		}
		seen[u.Email] = true

		switch u.Role {
		case RoleBoss:
			bosses++
		case RoleEmployee:
		default:
			return fmt.Errorf("config: user %s has unknown role %q", u.Email, u.Role)
		}
	}
	if bosses != 1 {
		return fmt.Errorf("config: expected exactly one BOSS, found %d", bosses)
	}

	switch c.Policy.UnknownRecipient {
	case UnknownRecipientSkip, UnknownRecipientWarn:
	default:
		return fmt.Errorf(
			"config: policy.unknown_recipient must be %q or %q, got %q",
			UnknownRecipientSkip, UnknownRecipientWarn, c.Policy.UnknownRecipient,
		)
	}

	return nil
}
