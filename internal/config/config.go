package config

import (
	"os"
	"strings"
)

type Config struct {
	ProfilesDir   string
	CheckpointDB  string
	CheckpointDSN string
	LogLevel      string
	SourceDomain  string
	SourceToken   string
}

// Load reads configuration from the environment, falling back to a .env file
// in the working directory. Real environment variables win over .env entries.
func Load() *Config {
	dotenv := loadDotEnv(".env")
	get := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v, ok := dotenv[key]; ok && v != "" {
			return v
		}
		return def
	}

	return &Config{
		ProfilesDir:   get("LOGSHIP_PROFILES_DIR", "./profiles"),
		CheckpointDB:  get("LOGSHIP_CHECKPOINT_DB", "./logship-checkpoints.sqlite"),
		CheckpointDSN: get("LOGSHIP_CHECKPOINT_DSN", ""),
		LogLevel:      get("LOGSHIP_LOG_LEVEL", "info"),
		SourceDomain:  get("LOGSHIP_SOURCE_DOMAIN", ""),
		SourceToken:   get("LOGSHIP_SOURCE_TOKEN", ""),
	}
}

func loadDotEnv(path string) map[string]string {
	out := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			out[key] = value
		}
	}
	return out
}
