package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("ISSUENERD_DB_PATH overrides database path", func(t *testing.T) {
		t.Setenv("ISSUENERD_DB_PATH", "/var/lib/issuenerd/attempts.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/var/lib/issuenerd/attempts.db", cfg.Store.DatabasePath)
	})

	t.Run("ISSUENERD_STRICT_TERMINAL parses booleans", func(t *testing.T) {
		t.Setenv("ISSUENERD_STRICT_TERMINAL", "true")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Store.StrictTerminal)
	})

	t.Run("invalid boolean is ignored", func(t *testing.T) {
		t.Setenv("ISSUENERD_STRICT_TERMINAL", "sure")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.False(t, cfg.Store.StrictTerminal)
	})

	t.Run("ISSUENERD_LOOKUP_TIMEOUT overrides duration", func(t *testing.T) {
		t.Setenv("ISSUENERD_LOOKUP_TIMEOUT", "45s")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		timeout, err := cfg.LookupTimeout()
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, timeout)
	})

	t.Run("ISSUENERD_LOG_LEVEL overrides level", func(t *testing.T) {
		t.Setenv("ISSUENERD_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}
