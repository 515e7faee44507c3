package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("examiner and history", func(t *testing.T) {
		t.Setenv("EXAMINER", "moriarty")
		t.Setenv("HISTORY_FILE", "/var/log/shell.hist")
		t.Setenv("HISTORY_MAX", "42")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, "moriarty", cfg.Examiner)
		assert.Equal(t, "/var/log/shell.hist", cfg.HistoryFile)
		assert.Equal(t, 42, cfg.HistoryMax)
	})

	t.Run("lookup credentials", func(t *testing.T) {
		t.Setenv("ABUSE_API_KEY", "abuse-key")
		t.Setenv("ACH_API_KEY", "ach-key")
		t.Setenv("LOOKUP_TIMEOUT", "5s")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, "abuse-key", cfg.Lookup.AbuseIPDBKey)
		assert.Equal(t, "ach-key", cfg.Lookup.AbuseCHKey)
		assert.Equal(t, "5s", cfg.Lookup.Timeout)
	})

	t.Run("booleans", func(t *testing.T) {
		t.Setenv("FOLLOW_CASE_DIR", "true")
		t.Setenv("STRICT_CASE_CREATE", "1")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.FollowCaseDir)
		assert.True(t, cfg.StrictCaseCreate)
	})

	t.Run("malformed numbers are ignored", func(t *testing.T) {
		t.Setenv("HISTORY_MAX", "many")
		t.Setenv("FOLLOW_CASE_DIR", "yes please")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, 200, cfg.HistoryMax)
		assert.False(t, cfg.FollowCaseDir)
	})

	t.Run("env beats config file", func(t *testing.T) {
		ws := t.TempDir()
		t.Setenv("WORKSPACE_PATH", ws)
		t.Setenv("EXAMINER", "env-examiner")

		writeConfigFile(t, ws, "examiner: file-examiner\n")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "env-examiner", cfg.Examiner)
	})
}
