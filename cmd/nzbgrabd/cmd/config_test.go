package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadCoreConfigParsesDistinctDurations(t *testing.T) {
	path := writeConfigFile(t, `{
		"servers": [{"id":1,"name":"primary","host":"news.example.com","port":563,"tls":true,"maxConnections":10,"active":true}],
		"articleTimeout": "90s",
		"articleInterval": "90s",
		"propagationDelay": "45s",
		"urlInterval": "10s",
		"urlTimeout": "30s"
	}`)

	cfg, err := loadCoreConfig(path)
	require.NoError(t, err)

	// articleTimeout and articleInterval intentionally share the same text
	// ("90s") to catch the map-key-collision regression: both fields must
	// still be set independently.
	require.Equal(t, "1m30s", cfg.ArticleTimeout.String())
	require.Equal(t, "1m30s", cfg.ArticleInterval.String())
	require.Equal(t, "45s", cfg.PropagationDelay.String())
	require.Equal(t, "10s", cfg.UrlInterval.String())
	require.Equal(t, "30s", cfg.UrlTimeout.String())
	require.Len(t, cfg.Servers, 1)
	require.Equal(t, "news.example.com", cfg.Servers[0].Host)
}

func TestLoadCoreConfigRejectsInvalidDuration(t *testing.T) {
	path := writeConfigFile(t, `{
		"servers": [{"id":1,"name":"primary","host":"news.example.com","port":563,"maxConnections":10,"active":true}],
		"articleTimeout": "not-a-duration"
	}`)

	_, err := loadCoreConfig(path)
	require.Error(t, err)
}

func TestLoadCoreConfigMissingFile(t *testing.T) {
	_, err := loadCoreConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
