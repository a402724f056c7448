// Package config reads the environment-variable configuration surface of
// SPEC_FULL.md §13, following the teacher's pattern throughout cmd/* of
// reading os.Getenv directly with fail-fast validation rather than a
// config-file or struct-tag binding library.
package config

import (
	"os"
	"strconv"

	"github.com/jcom-dev/demstack/internal/demerr"
	"github.com/jcom-dev/demstack/internal/loader"
)

// Config is the resolved set of environment-driven settings for the
// demstep CLI and any long-running process embedding this module.
type Config struct {
	Dir              string
	MaxTiles         int
	Format           loader.Format
	LocalFrameRangeM float64
	LogLevel         string
}

const (
	envDir              = "DEMSTACK_DIR"
	envMaxTiles         = "DEMSTACK_MAX_TILES"
	envFormat           = "DEMSTACK_FORMAT"
	envLocalFrameRangeM = "DEMSTACK_LOCAL_FRAME_RANGE_M"
	envLogLevel         = "DEMSTACK_LOG_LEVEL"

	defaultMaxTiles         = 64
	defaultLocalFrameRangeM = 100.0
	defaultLogLevel         = "info"
)

// Load reads and validates the environment, failing fast on a malformed
// (but present) value rather than silently falling back to a default.
func Load() (*Config, error) {
	dir := os.Getenv(envDir)
	if dir == "" {
		return nil, demerr.New(demerr.BadAddress, demerr.OpStackCreate, "%s is required", envDir)
	}

	maxTiles := defaultMaxTiles
	if v := os.Getenv(envMaxTiles); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, demerr.New(demerr.BadFormat, demerr.OpStackCreate, "%s must be a positive integer, got %q", envMaxTiles, v)
		}
		maxTiles = n
	}

	format := loader.FormatGDEM2
	if v := os.Getenv(envFormat); v != "" {
		switch loader.Format(v) {
		case loader.FormatGDEM2:
			format = loader.FormatGDEM2
		default:
			return nil, demerr.New(demerr.BadFormat, demerr.OpStackCreate, "%s: unsupported format %q", envFormat, v)
		}
	}

	rangeM := defaultLocalFrameRangeM
	if v := os.Getenv(envLocalFrameRangeM); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, demerr.New(demerr.BadFormat, demerr.OpStackCreate, "%s must be a number, got %q", envLocalFrameRangeM, v)
		}
		rangeM = f
	}

	logLevel := defaultLogLevel
	if v := os.Getenv(envLogLevel); v != "" {
		switch v {
		case "debug", "info", "warn", "error":
			logLevel = v
		default:
			return nil, demerr.New(demerr.BadFormat, demerr.OpStackCreate, "%s must be one of debug|info|warn|error, got %q", envLogLevel, v)
		}
	}

	return &Config{
		Dir:              dir,
		MaxTiles:         maxTiles,
		Format:           format,
		LocalFrameRangeM: rangeM,
		LogLevel:         logLevel,
	}, nil
}
