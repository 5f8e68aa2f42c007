package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// UIDPlaceholder is substituted with the escaped username in LDAPConfig.SearchFilter.
const UIDPlaceholder = "{uid}"

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	Server ServerConfig      `yaml:"server"`
	LDAP   LDAPConfig        `yaml:"ldap"`
	HTML   map[string]string `yaml:"html"`
	Debug  bool              `yaml:"debug"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port int    `yaml:"port" default:"8080"`
}

// LDAPConfig describes the single directory server users authenticate against.
// There is deliberately no service account: every connection binds as the end user.
type LDAPConfig struct {
	Host         string `yaml:"host" default:"localhost"`
	Port         int    `yaml:"port"` // 0 means the scheme default (389 or 636)
	UseSSL       bool   `yaml:"use_ssl"`
	Base         string `yaml:"base"`
	SearchFilter string `yaml:"search_filter" default:"(uid={uid})"`
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Load builds a Config from struct defaults, the optional YAML file at path,
// an optional .env file and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// .env is optional; real environment variables take precedence over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.HTML == nil {
		cfg.HTML = map[string]string{}
	}
	if _, ok := cfg.HTML["page_title"]; !ok {
		cfg.HTML["page_title"] = "Change your password"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Host = getenv("SERVER_HOST", cfg.Server.Host)
	cfg.LDAP.Host = getenv("LDAP_HOST", cfg.LDAP.Host)
	cfg.LDAP.Base = getenv("LDAP_BASE", cfg.LDAP.Base)
	cfg.LDAP.SearchFilter = getenv("LDAP_SEARCH_FILTER", cfg.LDAP.SearchFilter)
	cfg.LDAP.UseSSL = boolFromEnv("LDAP_USE_SSL", cfg.LDAP.UseSSL)
	cfg.Debug = boolFromEnv("DEBUG", cfg.Debug)

	var err error
	if cfg.Server.Port, err = intFromEnv("SERVER_PORT", cfg.Server.Port); err != nil {
		return err
	}
	if cfg.LDAP.Port, err = intFromEnv("LDAP_PORT", cfg.LDAP.Port); err != nil {
		return err
	}
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.LDAP.Host == "" {
		return fmt.Errorf("ldap.host must be set")
	}
	if c.LDAP.Base == "" {
		return fmt.Errorf("ldap.base must be set")
	}
	if !strings.Contains(c.LDAP.SearchFilter, UIDPlaceholder) {
		return fmt.Errorf("ldap.search_filter must contain %s", UIDPlaceholder)
	}
	if c.LDAP.Port < 0 || c.LDAP.Port > 65535 {
		return fmt.Errorf("ldap.port out of range: %d", c.LDAP.Port)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

func boolFromEnv(key string, def bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return def
	}
	trimmed := strings.Trim(val, "\"'")
	b, err := strconv.ParseBool(trimmed)
	if err != nil {
		return def
	}
	return b
}

func intFromEnv(key string, def int) (int, error) {
	val := strings.Trim(os.Getenv(key), "\"'")
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
