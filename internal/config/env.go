package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFilePaths lists the .env files LoadEnvFiles reads, most specific first.
func EnvFilePaths() []string {
	paths := []string{"./.env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".chravel", ".env"),
			filepath.Join(home, ".config", "chravel", ".env"),
		)
	}
	return paths
}

// LoadEnvFiles loads every existing .env file. Variables already set in the
// process environment are never overridden, and earlier files win over
// later ones.
func LoadEnvFiles() error {
	for _, path := range EnvFilePaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := loadEnvFile(path); err != nil {
			return err
		}
	}
	return nil
}

func loadEnvFile(path string) error {
	return godotenv.Load(path)
}

func GetEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

var envAliases = map[string][]string{
	"CHRAVEL_LLM_PROVIDERS_OPENAI_API_KEY":     {"OPENAI_API_KEY"},
	"CHRAVEL_LLM_PROVIDERS_OPENROUTER_API_KEY": {"OPENROUTER_API_KEY"},
	"CHRAVEL_LLM_PROVIDERS_KIMI_API_KEY":       {"KIMI_API_KEY", "MOONSHOT_API_KEY"},
	"CHRAVEL_EXTRACTION_API_KEY":               {"CHRAVEL_FUNCTIONS_KEY", "SUPABASE_ANON_KEY"},
	"CHRAVEL_SECURITY_JWT_SECRET":              {"CHRAVEL_JWT_SECRET"},
	"CHRAVEL_SECURITY_ADMIN_PASSWORD":          {"CHRAVEL_ADMIN_PASSWORD"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}

func GetRequiredEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", &MissingEnvError{Key: key}
	}
	return val, nil
}

type MissingEnvError struct {
	Key string
}

func (e *MissingEnvError) Error() string {
	return "required environment variable not set: " + e.Key
}
