package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var storeEnv = []string{
	EnvAPIKey,
	EnvAuthDomain,
	EnvDatabaseURL,
	EnvProjectID,
	EnvStorageBucket,
	EnvMessagingSenderID,
	EnvAppID,
}

func setCompleteStore(t *testing.T) {
	t.Helper()
	for _, env := range storeEnv {
		t.Setenv(env, "value-"+env)
	}
}

func TestLoad_CompleteStore(t *testing.T) {
	setCompleteStore(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Store.Complete())
	require.Empty(t, cfg.Store.Missing())
}

func TestLoad_OneEmptyValueIsIncomplete(t *testing.T) {
	setCompleteStore(t)
	t.Setenv(EnvStorageBucket, "")

	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.Store.Complete())
	require.Equal(t, []string{EnvStorageBucket}, cfg.Store.Missing())
}

func TestStoreConfig_WhitespaceCountsAsMissing(t *testing.T) {
	s := StoreConfig{
		APIKey:            "k",
		AuthDomain:        "d",
		DatabaseURL:       "redis://localhost:6379/0",
		ProjectID:         "p",
		StorageBucket:     "b",
		MessagingSenderID: "  ",
		AppID:             "a",
	}
	require.False(t, s.Complete())
	require.Equal(t, []string{EnvMessagingSenderID}, s.Missing())
}

func TestStoreConfig_EmptyReportsAllMissing(t *testing.T) {
	require.Len(t, StoreConfig{}.Missing(), len(storeEnv))
}

func TestStoreConfig_Keys(t *testing.T) {
	s := StoreConfig{ProjectID: "garden", CurrentPath: "sensor_data:current", HistoryPath: "sensor_data:history"}
	require.Equal(t, "garden:sensor_data:current", s.CurrentKey())
	require.Equal(t, "garden:sensor_data:history", s.HistoryKey())

	s.ProjectID = ""
	require.Equal(t, "sensor_data:current", s.CurrentKey())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MOCK_INTERVAL", "")
	t.Setenv("KAFKA_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Mock.Interval)
	require.False(t, cfg.Kafka.Enabled)
	require.Equal(t, "sensor_data:current", cfg.Store.CurrentPath)
	require.Equal(t, "0.0.0.0:8081", cfg.HTTP.ListenAddr())
}

func TestLoad_RejectsNonPositiveMockInterval(t *testing.T) {
	t.Setenv("MOCK_INTERVAL", "-1s")

	_, err := Load()
	require.Error(t, err)
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfigFile(t, `
store:
  database_url: redis://store:6379/2
  project_id: garden
  dial_timeout: 3s
mock:
  interval: 500ms
kafka:
  enabled: true
  brokers: [kafka-1:9092, kafka-2:9092]
`))
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvProjectID, "")
	t.Setenv("STORE_DIAL_TIMEOUT", "")
	t.Setenv("MOCK_INTERVAL", "")
	t.Setenv("KAFKA_ENABLED", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "redis://store:6379/2", cfg.Store.DatabaseURL)
	require.Equal(t, "garden:sensor_data:current", cfg.Store.CurrentKey())
	require.Equal(t, 3*time.Second, cfg.Store.DialTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.Mock.Interval)
	require.True(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 8080, cfg.Feed.Port)
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfigFile(t, `
store:
  project_id: garden
feed:
  port: 9000
`))
	t.Setenv(EnvProjectID, "orchard")
	t.Setenv("FEED_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "orchard", cfg.Store.ProjectID)
	require.Equal(t, 9100, cfg.Feed.Port)
}

func TestLoad_BadConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)

	t.Setenv("CONFIG_FILE", writeConfigFile(t, "store: [not, a, map]"))
	_, err = Load()
	require.Error(t, err)
}
