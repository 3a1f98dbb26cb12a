package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL   = "http://127.0.0.1:3000"
	DefaultLogLevel = "info"

	DefaultFormMaxUploadBytes int64 = 20 * 1024 * 1024
	DefaultFormMaxFieldBytes  int64 = 10 * 1024 * 1024
	DefaultAvatarMaxBytes     int64 = 5 * 1024 * 1024

	configFileName = ".postboard.toml"
	dotEnvFileName = ".env"

	configDirEnvKey          = "POSTBOARD_CONFIG_DIR"
	trustProjectConfigEnvKey = "POSTBOARD_TRUST_PROJECT_CONFIG"
	dotEnvPathEnvKey         = "POSTBOARD_ENV_FILE"

	apiURLEnvKey        = "POSTBOARD_API_URL"
	dbDSNEnvKey         = "POSTBOARD_DB"
	avatarTimeoutEnvKey = "POSTBOARD_AVATAR_TIMEOUT"
	avatarRejectEnvKey  = "POSTBOARD_AVATAR_REJECT_NON_SUCCESS"
)

// FormConfig bounds incoming multipart submissions.
type FormConfig struct {
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
	MaxFieldBytes  int64 `toml:"max_field_bytes"`
}

// AvatarConfig controls remote avatar retrieval.
type AvatarConfig struct {
	Timeout                string `toml:"timeout"`
	MaxBytes               int64  `toml:"max_bytes"`
	RejectNonSuccessStatus bool   `toml:"reject_non_success_status"`
}

// PageConfig controls the home page shell.
type PageConfig struct {
	ShellPath string `toml:"shell_path"`
}

// Config defines runtime configuration for postboard.
type Config struct {
	APIURL                   string       `toml:"api_url"`
	DBDSN                    string       `toml:"db_dsn"`
	LogLevel                 string       `toml:"log_level"`
	Forms                    FormConfig   `toml:"forms"`
	Avatar                   AvatarConfig `toml:"avatar"`
	Page                     PageConfig   `toml:"page"`
	TrustedProjectConfigPath string       `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Forms: FormConfig{
			MaxUploadBytes: DefaultFormMaxUploadBytes,
			MaxFieldBytes:  DefaultFormMaxFieldBytes,
		},
		Avatar: AvatarConfig{
			MaxBytes: DefaultAvatarMaxBytes,
		},
	}
}

// AvatarTimeout parses avatar.timeout. Zero means the transport default.
func (c *Config) AvatarTimeout() (time.Duration, error) {
	return parseTimeout(c.Avatar.Timeout)
}

func parseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("avatar.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("avatar.timeout must not be negative")
	}
	return d, nil
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set are left alone; a missing file is not an error.
func LoadDotEnv() error {
	path := strings.TrimSpace(os.Getenv(dotEnvPathEnvKey))
	explicit := path != ""
	if !explicit {
		path = dotEnvFileName
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_dsn",
	"log_level",
	"forms.max_upload_bytes",
	"forms.max_field_bytes",
	"avatar.timeout",
	"avatar.max_bytes",
	"avatar.reject_non_success_status",
	"page.shell_path",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_dsn":
		return c.DBDSN, nil
	case "log_level":
		return c.LogLevel, nil
	case "forms.max_upload_bytes":
		return strconv.FormatInt(c.Forms.MaxUploadBytes, 10), nil
	case "forms.max_field_bytes":
		return strconv.FormatInt(c.Forms.MaxFieldBytes, 10), nil
	case "avatar.timeout":
		return c.Avatar.Timeout, nil
	case "avatar.max_bytes":
		return strconv.FormatInt(c.Avatar.MaxBytes, 10), nil
	case "avatar.reject_non_success_status":
		return strconv.FormatBool(c.Avatar.RejectNonSuccessStatus), nil
	case "page.shell_path":
		return c.Page.ShellPath, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dsn := os.Getenv(dbDSNEnvKey); dsn != "" {
		cfg.DBDSN = dsn
	}
	if raw := strings.TrimSpace(os.Getenv(avatarTimeoutEnvKey)); raw != "" {
		cfg.Avatar.Timeout = raw
	}
	if raw := strings.TrimSpace(os.Getenv(avatarRejectEnvKey)); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			cfg.Avatar.RejectNonSuccessStatus = parsed
		}
	}

	cfg.normalize()
	if _, err := cfg.AvatarTimeout(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "forms.max_upload_bytes", "forms.max_field_bytes", "avatar.max_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "avatar.reject_non_success_status":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "avatar.timeout":
		if _, err := parseTimeout(value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Forms.MaxUploadBytes <= 0 {
		c.Forms.MaxUploadBytes = DefaultFormMaxUploadBytes
	}
	if c.Forms.MaxFieldBytes <= 0 {
		c.Forms.MaxFieldBytes = DefaultFormMaxFieldBytes
	}
	if c.Avatar.MaxBytes <= 0 {
		c.Avatar.MaxBytes = DefaultAvatarMaxBytes
	}
	c.DBDSN = strings.TrimSpace(c.DBDSN)
	c.Page.ShellPath = strings.TrimSpace(c.Page.ShellPath)
}
