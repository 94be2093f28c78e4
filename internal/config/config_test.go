package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsConversion(t *testing.T) {
	cfg := &Config{
		DATA_DIR:        "./data",
		MAX_FILE_SIZE:   1024,
		READ_WRITE:      true,
		SYNC_ON_PUT:     true,
		KEYDIR_CAPACITY: 128,
		LOG_LEVEL:       "debug",
	}

	opts := cfg.Options()
	require.True(t, opts.ReadWrite)
	require.True(t, opts.SyncOnPut)
	require.Equal(t, int64(1024), opts.MaxFileSize)
	require.Equal(t, 128, opts.KeydirCapacity)
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		cfg := &Config{LOG_LEVEL: tc.level}
		require.Equal(t, tc.want, cfg.SlogLevel())
	}
}
