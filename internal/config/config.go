// Package config loads gateway configuration from a YAML file with
// environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Registry  RegistryConfig  `koanf:"registry"`
	Tenants   []TenantConfig  `koanf:"tenants"`
	Cache     CacheConfig     `koanf:"cache"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`

	// Prefix is the gateway's own routing prefix. The forwarded route is the
	// inbound path with this prefix removed.
	Prefix string `koanf:"prefix"`

	// AuthToken is the shared secret expected in the Authorization header.
	AuthToken string `koanf:"auth_token"`

	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type UpstreamConfig struct {
	BaseURL    string        `koanf:"base_url"`
	APIVersion string        `koanf:"api_version"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`

	// BlockPrivateIPs rejects upstream connections to private or loopback
	// ranges, for deployments where the base URL is operator-supplied.
	BlockPrivateIPs bool `koanf:"block_private_ips"`
}

type RegistryConfig struct {
	Type   string       `koanf:"type"` // static, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TenantConfig struct {
	ID    string `koanf:"id"`
	Name  string `koanf:"name"`
	Token string `koanf:"token"`
}

type CacheConfig struct {
	MaxClients int `koanf:"max_clients"`
}

type TelemetryConfig struct {
	Sink          string          `koanf:"sink"` // http, redis, none
	FlushInterval time.Duration   `koanf:"flush_interval"`
	BufferSize    int             `koanf:"buffer_size"`
	HTTP          HTTPSinkConfig  `koanf:"http"`
	Redis         RedisSinkConfig `koanf:"redis"`
}

type HTTPSinkConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

type RedisSinkConfig struct {
	Addr   string `koanf:"addr"`
	Stream string `koanf:"stream"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml (if present) and applies BOTGATE_ environment
// variable overrides, e.g. BOTGATE_SERVER__PORT=9090.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("BOTGATE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BOTGATE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Server.Prefix = normalizePrefix(cfg.Server.Prefix)

	// Substitute environment variables in secrets
	cfg.Server.AuthToken = substituteEnvVars(cfg.Server.AuthToken)
	cfg.Telemetry.HTTP.Token = substituteEnvVars(cfg.Telemetry.HTTP.Token)
	for i := range cfg.Tenants {
		cfg.Tenants[i].Token = substituteEnvVars(cfg.Tenants[i].Token)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"server.port":              8080,
		"server.prefix":            "/api",
		"server.request_timeout":   "30s",
		"upstream.api_version":     "v10",
		"upstream.timeout":         "15s",
		"upstream.max_retries":     3,
		"registry.type":            "static",
		"cache.max_clients":        256,
		"telemetry.sink":           "none",
		"telemetry.flush_interval": "30s",
		"telemetry.buffer_size":    1024,
		"telemetry.redis.stream":   "botgate:events",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// normalizePrefix gives the routing prefix a single canonical form: a leading
// "/" and no trailing "/", so route registration and path stripping agree.
// "/" (or "") means the gateway serves at the root.
func normalizePrefix(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
