package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override. Nested keys use a double
	// underscore: ROOTS_SERVER__ENDPOINT_PREFIX sets server.endpoint_prefix.
	EnvPrefix = "ROOTS_"

	// EnvConfigPath overrides the location of the YAML config file.
	EnvConfigPath = "ROOTS_CONFIG"

	// DefaultPath is read when EnvConfigPath is unset. A missing file is not an error.
	DefaultPath = "config.yaml"
)

const (
	AuthModeJWT    = "jwt"
	AuthModeAPIKey = "apikey"
)

// DefaultBodyLimit matches the 100kb default of common JSON body parsers.
const DefaultBodyLimit = 100 << 10

// DefaultWhitelist is the set of browser origins admitted when cors.whitelist is unset.
var DefaultWhitelist = []string{
	"http://localhost",
	"http://127.0.0.1",
	"http://20.82.37.12",
	"http://bhd1roots.com",
}

// listKeys are split on commas when supplied through the environment.
var listKeys = map[string]bool{
	"cors.whitelist":    true,
	"auth.public_paths": true,
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	CORS      CORSConfig      `koanf:"cors"`
	Auth      AuthConfig      `koanf:"auth"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	EndpointPrefix string        `koanf:"endpoint_prefix"` // routes are mounted under /<endpoint_prefix>
	RequestTimeout time.Duration `koanf:"request_timeout"`
	BodyLimit      int64         `koanf:"body_limit"` // bytes
}

type CORSConfig struct {
	Whitelist []string `koanf:"whitelist"` // exact origins, no wildcards
}

type AuthConfig struct {
	Mode        string         `koanf:"mode"` // jwt, apikey
	CookieName  string         `koanf:"cookie_name"`
	PublicPaths []string       `koanf:"public_paths"`
	JWT         JWTConfig      `koanf:"jwt"`
	APIKeys     []APIKeyConfig `koanf:"api_keys"`
}

type JWTConfig struct {
	Secret   string `koanf:"secret"` // supports ${VAR} substitution
	Issuer   string `koanf:"issuer"`
	Audience string `koanf:"audience"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the file named by ROOTS_CONFIG, or config.yaml, and applies
// environment overrides on top.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path, then the environment, then defaults.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Server.EndpointPrefix = strings.Trim(cfg.Server.EndpointPrefix, "/")
	cfg.Auth.JWT.Secret = substituteEnvVars(cfg.Auth.JWT.Secret)

	return &cfg, nil
}

func envValue(key, value string) (string, interface{}) {
	key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".", -1)
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"server.port":            8080,
		"server.endpoint_prefix": "api",
		"server.request_timeout": "30s",
		"server.body_limit":      DefaultBodyLimit,
		"cors.whitelist":         DefaultWhitelist,
		"auth.mode":              AuthModeJWT,
		"auth.cookie_name":       "token",
		"telemetry.service_name": "roots-api",
		"log.level":              "info",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate reports configuration that cannot produce a working pipeline.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.EndpointPrefix == "" {
		errs = append(errs, errors.New("server.endpoint_prefix is required"))
	}
	if c.Server.BodyLimit <= 0 {
		errs = append(errs, errors.New("server.body_limit must be positive"))
	}
	for _, origin := range c.CORS.Whitelist {
		if origin == "" || origin == "*" {
			errs = append(errs, fmt.Errorf("cors.whitelist entry %q is not an exact origin", origin))
		}
	}

	switch c.Auth.Mode {
	case AuthModeJWT:
		if c.Auth.JWT.Secret == "" {
			errs = append(errs, errors.New("auth.jwt.secret is required in jwt mode"))
		}
	case AuthModeAPIKey:
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys is required in apikey mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not one of jwt, apikey", c.Auth.Mode))
	}

	return errors.Join(errs...)
}
