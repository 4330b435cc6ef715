package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Extraction modes.
const (
	ExtractionLLM    = "llm"
	ExtractionRemote = "remote"
	ExtractionNone   = "none"
)

// Config holds all configuration for chravel
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Import     ImportConfig     `mapstructure:"import"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
	Security   SecurityConfig   `mapstructure:"security"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	BodyLimitMB  int    `mapstructure:"body_limit_mb"`
}

// LLMConfig holds language model settings
type LLMConfig struct {
	DefaultProvider string              `mapstructure:"default_provider"`
	Providers       map[string]Provider `mapstructure:"providers"`
}

// Provider holds individual LLM provider configuration
type Provider struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	VisionModel string `mapstructure:"vision_model"`
	Timeout     int    `mapstructure:"timeout"`
	MaxTokens   int    `mapstructure:"max_tokens"`
}

// StorageConfig holds database and temporary object settings
type StorageConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	BadgerPath    string `mapstructure:"badger_path"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	ObjectTTL     int    `mapstructure:"object_ttl_minutes"`
	GCSchedule    string `mapstructure:"gc_schedule"`
}

// ExtractionConfig selects and tunes the AI extraction service
type ExtractionConfig struct {
	Mode            string  `mapstructure:"mode"`
	Endpoint        string  `mapstructure:"endpoint"`
	APIKey          string  `mapstructure:"api_key"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	RatePerSecond   float64 `mapstructure:"rate_per_second"`
	Burst           int     `mapstructure:"burst"`
	BreakerFailures uint32  `mapstructure:"breaker_failures"`
	BreakerCooldown int     `mapstructure:"breaker_cooldown_seconds"`
}

// ScrapeConfig holds web page fetching settings
type ScrapeConfig struct {
	RenderJS     bool   `mapstructure:"render_js"`
	Timeout      int    `mapstructure:"timeout"`
	UserAgent    string `mapstructure:"user_agent"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	MaxTextChars int    `mapstructure:"max_text_chars"`
}

// ImportConfig holds parsing settings
type ImportConfig struct {
	Timezone   string `mapstructure:"timezone"`
	ScanWindow int    `mapstructure:"scan_window"`
}

// InboxConfig holds the watched drop directory
type InboxConfig struct {
	Dir      string `mapstructure:"dir"`
	TripID   string `mapstructure:"trip_id"`
	Commit   bool   `mapstructure:"commit"`
	Debounce int    `mapstructure:"debounce_ms"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	dataDir = expandPath(dataDir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "chravel.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "objects"))
	v.SetDefault("inbox.dir", filepath.Join(dataDir, "inbox"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "chravel.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (CHRAVEL_SERVER_PORT, CHRAVEL_EXTRACTION_MODE, etc.)
	v.SetEnvPrefix("CHRAVEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Viper does not bind env vars for keys inside nested maps
	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 120)
	v.SetDefault("server.body_limit_mb", 25)

	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.providers.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.vision_model", "gpt-4o")
	v.SetDefault("llm.providers.openai.timeout", 90)
	v.SetDefault("llm.providers.openai.max_tokens", 4096)

	v.SetDefault("storage.public_base_url", "http://localhost:8080")
	v.SetDefault("storage.object_ttl_minutes", 60)
	v.SetDefault("storage.gc_schedule", "@every 30m")

	v.SetDefault("extraction.mode", ExtractionLLM)
	v.SetDefault("extraction.timeout_seconds", 90)
	v.SetDefault("extraction.rate_per_second", 2.0)
	v.SetDefault("extraction.burst", 4)
	v.SetDefault("extraction.breaker_failures", 5)
	v.SetDefault("extraction.breaker_cooldown_seconds", 30)

	v.SetDefault("scrape.render_js", false)
	v.SetDefault("scrape.timeout", 30)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; ChravelImport/1.0)")
	v.SetDefault("scrape.max_body_bytes", 5<<20)
	v.SetDefault("scrape.max_text_chars", 40000)

	v.SetDefault("import.timezone", "Local")
	v.SetDefault("import.scan_window", 10)

	v.SetDefault("inbox.commit", false)
	v.SetDefault("inbox.debounce_ms", 500)

	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chravel")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "chravel")
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// loadEnvOverrides loads specific env vars that Viper doesn't handle well with nested maps
func loadEnvOverrides(cfg *Config) {
	cfg.LLM.DefaultProvider = GetEnvDefault("CHRAVEL_LLM_DEFAULT_PROVIDER", cfg.LLM.DefaultProvider)

	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]Provider)
	}

	for _, name := range []string{"openai", "openrouter", "kimi"} {
		prefix := "CHRAVEL_LLM_PROVIDERS_" + strings.ToUpper(name) + "_"
		apiKey := ResolveEnvWithAliases(prefix + "API_KEY")
		if apiKey == "" {
			continue
		}
		p := cfg.LLM.Providers[name]
		p.APIKey = apiKey
		p.BaseURL = GetEnvDefault(prefix+"BASE_URL", p.BaseURL)
		p.Model = GetEnvDefault(prefix+"MODEL", p.Model)
		p.VisionModel = GetEnvDefault(prefix+"VISION_MODEL", p.VisionModel)
		cfg.LLM.Providers[name] = p
	}

	cfg.Server.Address = GetEnvDefault("CHRAVEL_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("CHRAVEL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if key := ResolveEnvWithAliases("CHRAVEL_EXTRACTION_API_KEY"); key != "" {
		cfg.Extraction.APIKey = key
	}

	if secret := ResolveEnvWithAliases("CHRAVEL_SECURITY_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}
	if password := ResolveEnvWithAliases("CHRAVEL_SECURITY_ADMIN_PASSWORD"); password != "" {
		cfg.Security.AdminPassword = password
	}
}

func validate(cfg *Config) error {
	switch cfg.Extraction.Mode {
	case ExtractionLLM, ExtractionNone:
	case ExtractionRemote:
		if cfg.Extraction.Endpoint == "" {
			return fmt.Errorf("extraction.endpoint is required when extraction.mode is %q", ExtractionRemote)
		}
	default:
		return fmt.Errorf("extraction.mode must be one of llm, remote, none (got %q)", cfg.Extraction.Mode)
	}

	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("import.timezone: %w", err)
	}

	if cfg.Extraction.TimeoutSeconds <= 0 {
		cfg.Extraction.TimeoutSeconds = 90
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

func generateRandomString(n int) string {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

// Location resolves import.timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Import.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Import.Timezone)
}

// ExtractionTimeout is the bound applied to every extraction service call.
func (c *Config) ExtractionTimeout() time.Duration {
	return time.Duration(c.Extraction.TimeoutSeconds) * time.Second
}

// GetProvider returns the provider configuration by name
func (c *Config) GetProvider(name string) (Provider, bool) {
	p, ok := c.LLM.Providers[name]
	return p, ok
}

// DefaultProvider returns the default provider configuration
func (c *Config) DefaultProvider() (Provider, error) {
	p, ok := c.LLM.Providers[c.LLM.DefaultProvider]
	if !ok {
		return Provider{}, fmt.Errorf("default provider %s not found", c.LLM.DefaultProvider)
	}
	if p.APIKey == "" {
		return Provider{}, fmt.Errorf("llm.providers.%s.api_key is required", c.LLM.DefaultProvider)
	}
	return p, nil
}
