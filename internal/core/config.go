package core

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	defaultSendRate   = 5.0
	defaultSendBurst  = 10
	defaultPageSize   = 50
	configDirName     = "huddle"
	configFileName    = "config.yaml"
	defaultCacheFile  = "cache.db"
	envPrefix         = "HUDDLE_"
	defaultUploadTags = "chat"
)

// ErrNoServer is returned when an operation needs the chat backend but no
// server URL is configured.
var ErrNoServer = errors.New("server_url not configured")

// Config stores client settings.
type Config struct {
	ServerURL      string   `yaml:"server_url"`
	WebsocketURL   string   `yaml:"websocket_url"`
	UploadURL      string   `yaml:"upload_url"`
	UploadFolder   string   `yaml:"upload_folder"`
	UploadTags     []string `yaml:"upload_tags"`
	Token          string   `yaml:"token,omitempty"`
	UserID         string   `yaml:"user_id"`
	DisplayName    string   `yaml:"display_name"`
	Conversation   string   `yaml:"conversation"`
	CachePath      string   `yaml:"cache_path"`
	DropFolder     string   `yaml:"drop_folder"`
	RecordingsDir  string   `yaml:"recordings_dir"`
	SendRate       float64  `yaml:"send_rate"`
	SendBurst      int      `yaml:"send_burst"`
	PageSize       int      `yaml:"page_size"`
	LogLevel       string   `yaml:"log_level"`
	LogSink        string   `yaml:"log_sink"`
	Notifications  bool     `yaml:"notifications"`
	MetricsAddress string   `yaml:"metrics_address"`
}

// ConfigDir returns ~/.config/huddle.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", configDirName), nil
}

// DefaultConfigPath returns the config file used when none is given.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadConfig reads the YAML file at path (missing is fine), overlays a .env
// file from the working directory and HUDDLE_* variables, then validates.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		resolved, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	cfg, err := ReadConfigFile(path)
	if err != nil {
		return nil, err
	}

	_ = godotenv.Load(".env")
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfigFile reads only the YAML file at path, without env overlays or
// defaults. A missing file yields an empty config.
func ReadConfigFile(path string) (*Config, error) {
	cfg := &Config{Notifications: true}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating the directory if needed.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		resolved, err := DefaultConfigPath()
		if err != nil {
			return err
		}
		path = resolved
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"SERVER_URL":      &c.ServerURL,
		"WEBSOCKET_URL":   &c.WebsocketURL,
		"UPLOAD_URL":      &c.UploadURL,
		"UPLOAD_FOLDER":   &c.UploadFolder,
		"TOKEN":           &c.Token,
		"USER_ID":         &c.UserID,
		"DISPLAY_NAME":    &c.DisplayName,
		"CONVERSATION":    &c.Conversation,
		"CACHE_PATH":      &c.CachePath,
		"DROP_FOLDER":     &c.DropFolder,
		"RECORDINGS_DIR":  &c.RecordingsDir,
		"LOG_LEVEL":       &c.LogLevel,
		"LOG_SINK":        &c.LogSink,
		"METRICS_ADDRESS": &c.MetricsAddress,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(getenv(envPrefix + "UPLOAD_TAGS")); v != "" {
		c.UploadTags = splitList(v)
	}
	if v := strings.TrimSpace(getenv(envPrefix + "SEND_RATE")); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sSEND_RATE: %w", envPrefix, err)
		}
		c.SendRate = rate
	}
	if v := strings.TrimSpace(getenv(envPrefix + "PAGE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPAGE_SIZE: %w", envPrefix, err)
		}
		c.PageSize = n
	}
	if v := strings.TrimSpace(getenv(envPrefix + "NOTIFICATIONS")); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sNOTIFICATIONS: %w", envPrefix, err)
		}
		c.Notifications = on
	}
	return nil
}

// Validate fills defaults and checks URL fields.
func (c *Config) Validate() error {
	if c.SendRate <= 0 {
		c.SendRate = defaultSendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = defaultSendBurst
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if len(c.UploadTags) == 0 {
		c.UploadTags = []string{defaultUploadTags}
	}
	if c.UploadFolder == "" {
		c.UploadFolder = "huddle"
	}
	if c.CachePath == "" {
		dir, err := ConfigDir()
		if err == nil {
			c.CachePath = filepath.Join(dir, defaultCacheFile)
		}
	}
	if c.RecordingsDir == "" {
		c.RecordingsDir = filepath.Join(os.TempDir(), "huddle-recordings")
	}

	for name, raw := range map[string]string{
		"server_url":    c.ServerURL,
		"websocket_url": c.WebsocketURL,
		"upload_url":    c.UploadURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid url %q", name, raw)
		}
	}
	if c.WebsocketURL == "" && c.ServerURL != "" {
		c.WebsocketURL = deriveWebsocketURL(c.ServerURL)
	}
	return nil
}

// RequireServer reports ErrNoServer when no backend is configured.
func (c *Config) RequireServer() error {
	if c.ServerURL == "" {
		return ErrNoServer
	}
	if c.UserID == "" {
		return errors.New("user_id not configured")
	}
	return nil
}

func deriveWebsocketURL(server string) string {
	u, err := url.Parse(server)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
