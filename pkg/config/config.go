package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Database    DatabaseConfig
	Compare     CompareConfig
	PricingFile string
	Providers   map[string]ProviderConfig
	Aliases     *ModelAliases
	APIKeys     APIKeys

	// ConfigFile is the file that was read, empty when running on defaults.
	ConfigFile string
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr      string
	RateLimit RateLimitConfig
}

// RateLimitConfig is a per-client token bucket. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string
	Format string
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string
}

// CompareConfig configures the fan-out.
type CompareConfig struct {
	// Timeout bounds a whole comparison; zero means no bound.
	Timeout time.Duration
	// Providers is the ordered provider list, each "name" or "name:model".
	Providers []string
}

// ProviderConfig overrides one provider's defaults.
type ProviderConfig struct {
	Model     string
	BaseURL   string
	MaxTokens int
}

// APIKeys holds provider credentials.
type APIKeys struct {
	OpenAI    string
	Anthropic string
	XAI       string
	Google    string
	DeepSeek  string
}

// For returns the key for provider, or "" if none is configured.
func (k APIKeys) For(provider string) string {
	switch provider {
	case "openai":
		return k.OpenAI
	case "anthropic":
		return k.Anthropic
	case "xai":
		return k.XAI
	case "google":
		return k.Google
	case "deepseek":
		return k.DeepSeek
	default:
		return ""
	}
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	if name == "mock" {
		return true
	}
	return c.APIKeys.For(name) != ""
}

// DefaultProviders is the provider list used when none is configured.
var DefaultProviders = []string{"openai", "anthropic", "xai"}

// providerNames lists every provider that can be configured.
var providerNames = []string{"openai", "anthropic", "xai", "google", "deepseek", "mock"}

// NewViper returns a viper instance with defaults, file lookup and
// environment bindings. configPath may be empty.
func NewViper(configPath string) *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit.rps", 10)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", defaultDatabasePath())
	v.SetDefault("compare.timeout", "0s")
	v.SetDefault("compare.providers", DefaultProviders)
	v.SetDefault("pricing.file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("modelcompare")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".modelcompare"))
		}
	}

	// Environment variable support: MODELCOMPARE_SERVER_ADDR=:9090
	v.SetEnvPrefix("MODELCOMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("providers.xai.base_url", "MODELCOMPARE_PROVIDERS_XAI_BASE_URL", "XAI_API_BASE_URL")

	return v
}

// Load reads configuration from the config file (if any) and the
// environment. Environment variables take precedence over the file.
func Load(configPath string) (*Config, error) {
	v := NewViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
			RateLimit: RateLimitConfig{
				RPS:   v.GetFloat64("server.rate_limit.rps"),
				Burst: v.GetInt("server.rate_limit.burst"),
			},
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Compare: CompareConfig{
			Timeout:   v.GetDuration("compare.timeout"),
			Providers: splitList(v.GetStringSlice("compare.providers")),
		},
		PricingFile: v.GetString("pricing.file"),
		Providers:   make(map[string]ProviderConfig),
		Aliases:     DefaultAliases().Merge(v.GetStringMapString("models.aliases")),
		APIKeys:     apiKeysFromEnv(),
		ConfigFile:  v.ConfigFileUsed(),
	}

	if len(cfg.Compare.Providers) == 0 {
		cfg.Compare.Providers = append([]string(nil), DefaultProviders...)
	}
	if cfg.Compare.Timeout < 0 {
		return nil, fmt.Errorf("compare.timeout must not be negative, got %s", cfg.Compare.Timeout)
	}

	for _, name := range providerNames {
		prefix := "providers." + name + "."
		pc := ProviderConfig{
			Model:     v.GetString(prefix + "model"),
			BaseURL:   v.GetString(prefix + "base_url"),
			MaxTokens: v.GetInt(prefix + "max_tokens"),
		}
		if pc != (ProviderConfig{}) {
			cfg.Providers[name] = pc
		}
	}

	if _, err := cfg.ProviderSpecs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProviderSpecs resolves Compare.Providers into ordered provider/model
// pairs. A model given in the list wins over providers.<name>.model.
func (c *Config) ProviderSpecs() ([]ProviderSpec, error) {
	specs, err := ParseProviderSpecs(c.Compare.Providers, c.Aliases)
	if err != nil {
		return nil, err
	}
	for i, s := range specs {
		if s.Model == "" {
			specs[i].Model = c.Aliases.Resolve(c.Providers[s.Name].Model)
		}
	}
	return specs, nil
}

// apiKeysFromEnv reads credentials from the environment only; keys in the
// config file are ignored.
func apiKeysFromEnv() APIKeys {
	return APIKeys{
		OpenAI:    os.Getenv("OPENAI_API_KEY"),
		Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
		XAI:       os.Getenv("XAI_API_KEY"),
		Google:    os.Getenv("GOOGLE_API_KEY"),
		DeepSeek:  os.Getenv("DEEPSEEK_API_KEY"),
	}
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "modelcompare.db"
	}
	return filepath.Join(home, ".modelcompare", "modelcompare.db")
}
