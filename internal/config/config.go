package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

// AppName names the config, cache and data directories.
const AppName = "scrobbler"

// Config holds application configuration
type Config struct {
	// Log level for the daemon (debug, info, warn, error)
	LogLevel string

	// How often pending tracks are written to disk
	StoreInterval time.Duration

	// HTTP proxy for all services; empty uses the environment
	Proxy string

	// Address for the Prometheus endpoint; empty disables it
	MetricsAddr string

	// How long accepted scrobbles are kept in the history database
	HistoryRetention time.Duration

	Client   ClientConfig
	MPD      MPDConfig
	Services []ServiceConfig
}

// ClientConfig identifies this client to the submission servers
type ClientConfig struct {
	ID      string
	Version string
}

// MPDConfig holds the connection settings for the player
type MPDConfig struct {
	Address      string
	Password     string
	PollInterval time.Duration
	Channel      string // Client-to-client channel carrying love commands
}

// ServiceConfig holds the settings for one remote service
type ServiceConfig struct {
	ID           string
	Enabled      bool
	Username     string
	Password     string
	PasswordHash string
	SessionKey   string
	URL          string
	APIURL       string
	APIKey       string
	APISecret    string
}

// Hash returns the password hash, deriving it from a plaintext password
// when only that is configured.
func (s ServiceConfig) Hash() string {
	if s.PasswordHash != "" {
		return s.PasswordHash
	}
	if s.Password != "" {
		return audioscrobbler.HashPassword(s.Password)
	}
	return ""
}

// Configured reports whether the service has enough settings to handshake.
func (s ServiceConfig) Configured() bool {
	return s.Enabled && s.URL != "" && s.Username != "" && s.Hash() != ""
}

// CredentialsEqual reports whether two configs would authenticate the same way.
func (s ServiceConfig) CredentialsEqual(o ServiceConfig) bool {
	return s.Username == o.Username && s.Hash() == o.Hash() && s.URL == o.URL
}

// KnownServices returns the built-in service endpoints.
func KnownServices() []ServiceConfig {
	return []ServiceConfig{
		{
			ID:      "lastfm",
			Enabled: true,
			URL:     "http://post.audioscrobbler.com/",
			APIURL:  "http://ws.audioscrobbler.com/2.0/",
		},
		{
			ID:      "librefm",
			Enabled: true,
			URL:     "http://turtle.libre.fm/",
			APIURL:  "https://libre.fm/2.0/",
		},
	}
}

// Service returns the service with the given id.
func (c *Config) Service(id string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	// A .env file in the working directory is optional
	_ = godotenv.Load()

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v), nil
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	// Set defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("store_interval", "10m")
	v.SetDefault("proxy", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("history_retention", "2160h")
	v.SetDefault("client.id", "tst")
	v.SetDefault("client.version", "1.0")
	v.SetDefault("mpd.address", "localhost:6600")
	v.SetDefault("mpd.password", "")
	v.SetDefault("mpd.poll_interval", "5s")
	v.SetDefault("mpd.channel", "scrobbler")
	for _, s := range KnownServices() {
		setServiceDefaults(v, s)
	}

	// Read from environment variables, e.g. SCROBBLER_SERVICES_LASTFM_USERNAME
	v.SetEnvPrefix("SCROBBLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func setServiceDefaults(v *viper.Viper, s ServiceConfig) {
	prefix := "services." + s.ID + "."
	v.SetDefault(prefix+"enabled", s.Enabled)
	v.SetDefault(prefix+"url", s.URL)
	v.SetDefault(prefix+"api_url", s.APIURL)
	for _, key := range []string{"username", "password", "password_hash", "session_key", "api_key", "api_secret"} {
		v.SetDefault(prefix+key, "")
	}
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		LogLevel:         v.GetString("log_level"),
		StoreInterval:    v.GetDuration("store_interval"),
		Proxy:            v.GetString("proxy"),
		MetricsAddr:      v.GetString("metrics_addr"),
		HistoryRetention: v.GetDuration("history_retention"),
		Client: ClientConfig{
			ID:      v.GetString("client.id"),
			Version: v.GetString("client.version"),
		},
		MPD: MPDConfig{
			Address:      v.GetString("mpd.address"),
			Password:     v.GetString("mpd.password"),
			PollInterval: v.GetDuration("mpd.poll_interval"),
			Channel:      v.GetString("mpd.channel"),
		},
	}

	ids := make([]string, 0)
	for id := range v.GetStringMap("services") {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		prefix := "services." + id + "."
		if v.IsSet(prefix+"enabled") && !v.GetBool(prefix+"enabled") {
			cfg.Services = append(cfg.Services, ServiceConfig{ID: id})
			continue
		}
		cfg.Services = append(cfg.Services, ServiceConfig{
			ID:           id,
			Enabled:      true,
			Username:     v.GetString(prefix + "username"),
			Password:     v.GetString(prefix + "password"),
			PasswordHash: v.GetString(prefix + "password_hash"),
			SessionKey:   v.GetString(prefix + "session_key"),
			URL:          v.GetString(prefix + "url"),
			APIURL:       v.GetString(prefix + "api_url"),
			APIKey:       v.GetString(prefix + "api_key"),
			APISecret:    v.GetString(prefix + "api_secret"),
		})
	}

	return cfg
}

// Watch calls onChange with the reloaded configuration every time the
// config file is written or recreated.
func Watch(onChange func(*Config)) error {
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("no config file to watch: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(fromViper(v))
	})
	v.WatchConfig()
	return nil
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	configDir := filepath.Join(xdg.ConfigHome, AppName)

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// GetConfigFile returns the path configuration is saved to
func GetConfigFile() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetDataDir returns the directory for the history database and playback state
func GetDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// CachePath returns the pending-track file for a service
func CachePath(id string) (string, error) {
	return xdg.CacheFile(filepath.Join(AppName, id))
}

// SaveSessionKey stores a web-service session key for a service
func SaveSessionKey(id, key string) error {
	return update(func(v *viper.Viper) {
		v.Set("services."+id+".session_key", key)
	})
}

// SaveCredentials stores a username and password hash for a service
func SaveCredentials(id, username, passwordHash string) error {
	return update(func(v *viper.Viper) {
		prefix := "services." + id + "."
		v.Set(prefix+"enabled", true)
		v.Set(prefix+"username", username)
		v.Set(prefix+"password", "")
		v.Set(prefix+"password_hash", passwordHash)
	})
}

// update applies fn to the settings stored in the config file and writes
// them back. Defaults and environment values are not persisted.
func update(fn func(v *viper.Viper)) error {
	configFile := GetConfigFile()

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	fn(v)

	// Write to file
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
