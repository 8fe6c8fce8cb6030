package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode   `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	AuthHMACSecret string `yaml:"auth_hmac_secret"`

	// Attempt lifecycle policy.
	AllowRetryAfterExpiry bool          `yaml:"allow_retry_after_expiry"`
	WarningMinutes        []int         `yaml:"warning_minutes"`
	SweepInterval         time.Duration `yaml:"sweep_interval"`

	CORSOriginsOnline  []string `yaml:"cors_origins_online"`
	CORSOriginsOffline []string `yaml:"cors_origins_offline"`
}

// Load builds the config from environment variables, optionally overlaid by
// a YAML file named in CONFIG_FILE. File values win over env defaults so a
// deployment can ship one file and override nothing else.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:                  mode,
		HTTPAddr:              envOr("HTTP_ADDR", ":8080"),
		DBDriver:              envOr("DB_DRIVER", "sqlite"),
		DBDSN:                 envOr("DB_DSN", ""),
		AuthHMACSecret:        envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AllowRetryAfterExpiry: envBool("ALLOW_RETRY_AFTER_EXPIRY", false),
		WarningMinutes:        intsOr("WARNING_MINUTES", []int{5, 1}),
		SweepInterval:         durOr("SWEEP_INTERVAL", time.Minute),
		CORSOriginsOnline:     csvOr("CORS_ORIGINS_ONLINE", "https://app.classpulse.io"),
		CORSOriginsOffline:    csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),
	}
}

func (c Config) Warnings() []time.Duration {
	out := make([]time.Duration, 0, len(c.WarningMinutes))
	for _, m := range c.WarningMinutes {
		if m > 0 {
			out = append(out, time.Duration(m)*time.Minute)
		}
	}
	return out
}

func overlayFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yaml.NewDecoder(f).Decode(cfg)
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func durOr(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func intsOr(k string, def []int) []int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []int
	for _, p := range strings.Split(v, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
