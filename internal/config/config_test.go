package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envDir, envMaxTiles, envFormat, envLocalFrameRangeM, envLogLevel} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresDir(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail without DEMSTACK_DIR set")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(envDir, "/tmp/tiles")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultMaxTiles, cfg.MaxTiles)
	assert.Equal(t, defaultLocalFrameRangeM, cfg.LocalFrameRangeM)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
}

func TestLoadRejectsMalformedMaxTiles(t *testing.T) {
	clearEnv(t)
	t.Setenv(envDir, "/tmp/tiles")
	t.Setenv(envMaxTiles, "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject a malformed DEMSTACK_MAX_TILES")
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv(envDir, "/tmp/tiles")
	t.Setenv(envLogLevel, "verbose")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject an unrecognized log level")
	}
}
