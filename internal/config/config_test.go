package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NAILBOOK_API_KEY", "secret-key")

	raw := `
server:
  api_key: ${NAILBOOK_API_KEY}
database:
  path: ` + filepath.Join(dir, "data", "test.db") + `
schedule:
  slot_minutes: 15
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Server.APIKey)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "09:00", cfg.Schedule.DayStart)
	assert.Equal(t, "18:00", cfg.Schedule.DayEnd)
	assert.Equal(t, 15, cfg.Schedule.SlotMinutes)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
