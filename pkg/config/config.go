package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Store StoreConfig `yaml:"store"`
	Mock  MockConfig  `yaml:"mock"`
	Feed  FeedConfig  `yaml:"feed"`
	HTTP  HTTPConfig  `yaml:"http"`
	Kafka KafkaConfig `yaml:"kafka"`
	SMTP  SMTPConfig  `yaml:"smtp"`
	Log   LogConfig   `yaml:"log"`
}

// StoreConfig holds the connection values for the remote sensor store.
// All seven named values must be present for live mode.
type StoreConfig struct {
	APIKey            string `yaml:"api_key"`
	AuthDomain        string `yaml:"auth_domain"`
	DatabaseURL       string `yaml:"database_url"`
	ProjectID         string `yaml:"project_id"`
	StorageBucket     string `yaml:"storage_bucket"`
	MessagingSenderID string `yaml:"messaging_sender_id"`
	AppID             string `yaml:"app_id"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
	CurrentPath string        `yaml:"current_path"`
	HistoryPath string        `yaml:"history_path"`
}

// Environment variable names of the required store values.
const (
	EnvAPIKey            = "STORE_API_KEY"
	EnvAuthDomain        = "STORE_AUTH_DOMAIN"
	EnvDatabaseURL       = "STORE_DATABASE_URL"
	EnvProjectID         = "STORE_PROJECT_ID"
	EnvStorageBucket     = "STORE_STORAGE_BUCKET"
	EnvMessagingSenderID = "STORE_MESSAGING_SENDER_ID"
	EnvAppID             = "STORE_APP_ID"
)

func (s StoreConfig) required() []struct{ env, value string } {
	return []struct{ env, value string }{
		{EnvAPIKey, s.APIKey},
		{EnvAuthDomain, s.AuthDomain},
		{EnvDatabaseURL, s.DatabaseURL},
		{EnvProjectID, s.ProjectID},
		{EnvStorageBucket, s.StorageBucket},
		{EnvMessagingSenderID, s.MessagingSenderID},
		{EnvAppID, s.AppID},
	}
}

// Missing returns the names of required store values that are absent or empty.
func (s StoreConfig) Missing() []string {
	var missing []string
	for _, r := range s.required() {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.env)
		}
	}
	return missing
}

// Complete reports whether every required store value is set.
func (s StoreConfig) Complete() bool {
	return len(s.Missing()) == 0
}

// Key namespaces a store path under the project id.
func (s StoreConfig) Key(path string) string {
	if s.ProjectID == "" {
		return path
	}
	return s.ProjectID + ":" + path
}

// CurrentKey is the key holding the latest sensor record.
func (s StoreConfig) CurrentKey() string {
	return s.Key(s.CurrentPath)
}

// HistoryKey is the key holding the historical record collection.
func (s StoreConfig) HistoryKey() string {
	return s.Key(s.HistoryPath)
}

type MockConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type FeedConfig struct {
	Port              int           `yaml:"port"`
	MaxConnections    int           `yaml:"max_connections"`
	IdentifyTimeout   time.Duration `yaml:"identify_timeout"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
}

type HTTPConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	DefaultLimit int    `yaml:"default_limit"`
}

func (h HTTPConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	TopicAlerts string   `yaml:"topic_alerts"`
	TopicFrames string   `yaml:"topic_frames"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Defaults returns the configuration used when neither a config file nor
// the environment sets a value.
func Defaults() *Config {
	return &Config{
		Store: StoreConfig{
			DialTimeout: 5 * time.Second,
			CurrentPath: "sensor_data:current",
			HistoryPath: "sensor_data:history",
		},
		Mock: MockConfig{
			Interval: 2 * time.Second,
		},
		Feed: FeedConfig{
			Port:              8080,
			MaxConnections:    1000,
			IdentifyTimeout:   10 * time.Second,
			InactivityTimeout: 2 * time.Minute,
		},
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8081,
			DefaultLimit: 300,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			TopicAlerts: "sensors.alerts",
			TopicFrames: "sensors.frames",
		},
		SMTP: SMTPConfig{
			Host: "smtp.gmail.com",
			Port: 587,
			From: "sensor-dashboard@example.com",
			To:   "admin@example.com",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE when set, then environment variables (including .env).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := Defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	config.Store.APIKey = getEnv(EnvAPIKey, config.Store.APIKey)
	config.Store.AuthDomain = getEnv(EnvAuthDomain, config.Store.AuthDomain)
	config.Store.DatabaseURL = getEnv(EnvDatabaseURL, config.Store.DatabaseURL)
	config.Store.ProjectID = getEnv(EnvProjectID, config.Store.ProjectID)
	config.Store.StorageBucket = getEnv(EnvStorageBucket, config.Store.StorageBucket)
	config.Store.MessagingSenderID = getEnv(EnvMessagingSenderID, config.Store.MessagingSenderID)
	config.Store.AppID = getEnv(EnvAppID, config.Store.AppID)
	config.Store.DialTimeout = getEnvAsDuration("STORE_DIAL_TIMEOUT", config.Store.DialTimeout)
	config.Store.CurrentPath = getEnv("STORE_CURRENT_PATH", config.Store.CurrentPath)
	config.Store.HistoryPath = getEnv("STORE_HISTORY_PATH", config.Store.HistoryPath)

	config.Mock.Interval = getEnvAsDuration("MOCK_INTERVAL", config.Mock.Interval)

	config.Feed.Port = getEnvAsInt("FEED_PORT", config.Feed.Port)
	config.Feed.MaxConnections = getEnvAsInt("FEED_MAX_CONNECTIONS", config.Feed.MaxConnections)
	config.Feed.IdentifyTimeout = getEnvAsDuration("FEED_IDENTIFY_TIMEOUT", config.Feed.IdentifyTimeout)
	config.Feed.InactivityTimeout = getEnvAsDuration("FEED_INACTIVITY_TIMEOUT", config.Feed.InactivityTimeout)

	config.HTTP.Host = getEnv("HTTP_HOST", config.HTTP.Host)
	config.HTTP.Port = getEnvAsInt("HTTP_PORT", config.HTTP.Port)
	config.HTTP.DefaultLimit = getEnvAsInt("HTTP_DEFAULT_LIMIT", config.HTTP.DefaultLimit)

	config.Kafka.Enabled = getEnvAsBool("KAFKA_ENABLED", config.Kafka.Enabled)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}
	config.Kafka.TopicAlerts = getEnv("KAFKA_TOPIC_ALERTS", config.Kafka.TopicAlerts)
	config.Kafka.TopicFrames = getEnv("KAFKA_TOPIC_FRAMES", config.Kafka.TopicFrames)

	config.SMTP.Host = getEnv("SMTP_HOST", config.SMTP.Host)
	config.SMTP.Port = getEnvAsInt("SMTP_PORT", config.SMTP.Port)
	config.SMTP.Username = getEnv("SMTP_USERNAME", config.SMTP.Username)
	config.SMTP.Password = getEnv("SMTP_PASSWORD", config.SMTP.Password)
	config.SMTP.From = getEnv("SMTP_FROM", config.SMTP.From)
	config.SMTP.To = getEnv("SMTP_TO", config.SMTP.To)

	config.Log.Level = getEnv("LOG_LEVEL", config.Log.Level)
	config.Log.Development = getEnvAsBool("LOG_DEVELOPMENT", config.Log.Development)

	if config.Mock.Interval <= 0 {
		return nil, fmt.Errorf("MOCK_INTERVAL must be positive, got %s", config.Mock.Interval)
	}

	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
