package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"FORMLOGIC_ADDR", "DATABASE_URL", "LOG_LEVEL", "LOG_FORMAT",
	"FORMLOGIC_MAX_ITERATIONS", "FORMLOGIC_PARALLELISM", "FORMLOGIC_VALIDATION_TYPES",
}

// clearEnv unsets every key for the test; t.Setenv restores the originals.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "", cfg.Database.URL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Engine.MaxIterations)
	assert.Equal(t, 0, cfg.Engine.Parallelism)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORMLOGIC_ADDR", "127.0.0.1:9000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("FORMLOGIC_MAX_ITERATIONS", "25")
	t.Setenv("FORMLOGIC_PARALLELISM", "4")
	t.Setenv("FORMLOGIC_VALIDATION_TYPES", "types.yaml")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 25, cfg.Engine.MaxIterations)
	assert.Equal(t, 4, cfg.Engine.Parallelism)
	assert.Equal(t, "types.yaml", cfg.Engine.ValidationTypes)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"FORMLOGIC_MAX_ITERATIONS": "0",
		"FORMLOGIC_PARALLELISM":    "-1",
		"LOG_FORMAT":               "xml",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	clearEnv(t)
	t.Setenv("FORMLOGIC_MAX_ITERATIONS", "ten")
	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgres://forms@localhost/forms\nFORMLOGIC_MAX_ITERATIONS=7\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://forms@localhost/forms", cfg.Database.URL)
	assert.Equal(t, 7, cfg.Engine.MaxIterations)
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
