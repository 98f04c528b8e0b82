// Package config handles Hausgeist configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/hausgeist/config.yaml, /etc/hausgeist/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hausgeist", "config.yaml"))
	}

	paths = append(paths, "/etc/hausgeist/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Hausgeist configuration.
type Config struct {
	Telegram TelegramConfig  `yaml:"telegram"`
	OpenAI   OpenAIConfig    `yaml:"openai"`
	Engine   EngineConfig    `yaml:"engine"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	Triggers []TriggerConfig `yaml:"triggers"`
	Tools    ToolsConfig     `yaml:"tools"`
	Home     HomeConfig      `yaml:"home"`
	DataDir  string          `yaml:"data_dir"`
	Persona  string          `yaml:"persona"`
	LogLevel string          `yaml:"log_level"`
}

// TelegramConfig defines the bot transport settings.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// PollTimeoutSec is the getUpdates long-poll timeout (default 50).
	PollTimeoutSec int `yaml:"poll_timeout_sec"`
}

// OpenAIConfig defines the model provider settings.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the API endpoint, e.g. for a local proxy.
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// TranscribeModel handles voice messages (default whisper-1).
	TranscribeModel    string `yaml:"transcribe_model"`
	TranscribeLanguage string `yaml:"transcribe_language"`
}

// EngineConfig tunes the conversation loop.
type EngineConfig struct {
	// MaxToolRounds caps model/tool round-trips per turn (default 6).
	MaxToolRounds int `yaml:"max_tool_rounds"`
	// ProviderRetries is the number of retries after a failed model call.
	ProviderRetries int `yaml:"provider_retries"`
	RetryDelaySec   int `yaml:"retry_delay_sec"`
	ModelTimeoutSec int `yaml:"model_timeout_sec"`
	ToolTimeoutSec  int `yaml:"tool_timeout_sec"`
}

// MQTTConfig defines the optional Home Assistant presence publisher.
type MQTTConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Broker             string `yaml:"broker"` // mqtt://host:1883 or mqtts://
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	DeviceName         string `yaml:"device_name"`
	DiscoveryPrefix    string `yaml:"discovery_prefix"`
	PublishIntervalSec int    `yaml:"publish_interval_sec"`
}

// TriggerConfig defines one scheduled notification trigger.
type TriggerConfig struct {
	Name string `yaml:"name"`
	Cron string `yaml:"cron"`
	// Prompt is the synthetic user prompt sent for every known user.
	Prompt string `yaml:"prompt"`
	// MisfireGraceSec is how late a missed firing may still run. Zero
	// means it runs no matter how late.
	MisfireGraceSec int `yaml:"misfire_grace_sec"`
	// Precheck names a registered tool; when it reports nothing to say,
	// the firing is skipped for all users.
	Precheck string `yaml:"precheck"`
}

// ToolsConfig groups per-tool-suite settings. A suite with an empty
// URL/key/path is not registered.
type ToolsConfig struct {
	Energy     EnergyConfig    `yaml:"energy"`
	Appliances ApplianceConfig `yaml:"appliances"`
	Weather    WeatherConfig   `yaml:"weather"`
	Trash      TrashConfig     `yaml:"trash"`
	News       NewsConfig      `yaml:"news"`
}

// EnergyConfig points at the evcc instance.
type EnergyConfig struct {
	EVCCURL string `yaml:"evcc_url"`
}

// ApplianceConfig points at the Shelly plugs metering the machines.
type ApplianceConfig struct {
	WasherURL string `yaml:"washer_url"`
	DryerURL  string `yaml:"dryer_url"`
}

// WeatherConfig holds the OpenWeatherMap credentials.
type WeatherConfig struct {
	APIKey string `yaml:"api_key"`
}

// TrashConfig points at the municipal collection calendar.
type TrashConfig struct {
	CalendarFile string `yaml:"calendar_file"`
}

// NewsConfig lists the feeds and interests behind the news digest.
// The suite is registered only when at least one feed is configured.
type NewsConfig struct {
	Feeds     []NewsFeedConfig `yaml:"feeds"`
	Interests []string         `yaml:"interests"`
	// MaxAgeHours filters headlines to the last N hours (default 24).
	MaxAgeHours int `yaml:"max_age_hours"`
	// TopCount is how many headlines the digest asks for (default 12).
	TopCount int `yaml:"top_count"`
}

// NewsFeedConfig is one RSS/Atom feed.
type NewsFeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// HomeConfig locates the house for weather and time formatting.
type HomeConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Timezone  string  `yaml:"timezone"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all tunables at their defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeoutSec: 50},
		OpenAI: OpenAIConfig{
			Model:              "gpt-4o-mini",
			TranscribeModel:    "whisper-1",
			TranscribeLanguage: "de",
		},
		Engine: EngineConfig{
			MaxToolRounds:   6,
			ProviderRetries: 2,
			RetryDelaySec:   2,
			ModelTimeoutSec: 120,
			ToolTimeoutSec:  30,
		},
		MQTT: MQTTConfig{
			DeviceName:         "hausgeist",
			DiscoveryPrefix:    "homeassistant",
			PublishIntervalSec: 60,
		},
		Tools: ToolsConfig{
			News: NewsConfig{MaxAgeHours: 24, TopCount: 12},
		},
		Home:     HomeConfig{Timezone: "Europe/Berlin"},
		DataDir:  "data",
		LogLevel: "info",
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Home.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Home.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
