package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureStderr redirects stderr for fn and returns everything written,
// all constructors in this package log there.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stderr
	defer func() { os.Stderr = orig }()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

func TestParseLevel(t *testing.T) {
	known := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"Info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"ERROR": slog.LevelError,
	}
	for input, want := range known {
		got, err := parseLevel(input)

		require.NoError(t, err, "level %q", input)
		require.Equal(t, want, got, "level %q", input)
	}

	for _, input := range []string{"", "trace", "warning!", "infodebug"} {
		_, err := parseLevel(input)

		require.Error(t, err, "level %q must be rejected", input)
	}
}

func TestNew(t *testing.T) {
	t.Run("dev logs text", func(t *testing.T) {
		out := captureStderr(t, func() {
			log, err := New(EnvDevelopment, LevelInfo)
			require.NoError(t, err)

			log.Info("rate refresh finished", "currencies", 3)
		})

		require.Contains(t, out, "rate refresh finished")
		require.Contains(t, out, "currencies=3")
	})

	t.Run("prod logs json", func(t *testing.T) {
		out := captureStderr(t, func() {
			log, err := New(EnvProduction, LevelInfo)
			require.NoError(t, err)

			log.Info("rate refresh finished", "currencies", 3)
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &entry))
		require.Equal(t, "rate refresh finished", entry["msg"])
		require.Equal(t, "INFO", entry["level"])
		require.EqualValues(t, 3, entry["currencies"])
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)

		require.Error(t, err)
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := New(EnvDevelopment, "loud")

		require.Error(t, err)
	})
}

func TestLevelFiltering(t *testing.T) {
	emit := map[string]func(Logger){
		LevelDebug: func(l Logger) { l.Debug("x") },
		LevelInfo:  func(l Logger) { l.Info("x") },
		LevelWarn:  func(l Logger) { l.Warn("x") },
		LevelError: func(l Logger) { l.Error("x") },
	}
	rank := map[string]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

	for configured := range rank {
		for emitted, logFn := range emit {
			t.Run(configured+" logger, "+emitted+" record", func(t *testing.T) {
				out := captureStderr(t, func() {
					log, err := NewTextLogger(configured)
					require.NoError(t, err)

					logFn(log)
				})

				if rank[emitted] >= rank[configured] {
					require.NotEmpty(t, out)
				} else {
					require.Empty(t, out, "%s record must be filtered out", emitted)
				}
			})
		}
	}
}

func TestNoOpLogger(t *testing.T) {
	out := captureStderr(t, func() {
		log := NewNoOpLogger()
		log.Debug("quiet")
		log.Info("quiet")
		log.Warn("quiet")
		log.Error("quiet")
		log.With("k", "v").WithGroup("g").Error("still quiet")
	})

	require.Empty(t, out)
}

func TestWith(t *testing.T) {
	out := captureStderr(t, func() {
		log, err := NewTextLogger(LevelInfo)
		require.NoError(t, err)

		log.With("component", "settlement").Info("payment settled", "entries", 2)
	})

	require.Contains(t, out, "component=settlement")
	require.Contains(t, out, "entries=2")
	require.Contains(t, out, "payment settled")
}

func TestWithGroup(t *testing.T) {
	out := captureStderr(t, func() {
		log, err := NewJSONLogger(LevelInfo)
		require.NoError(t, err)

		log.WithGroup("rates").Info("loaded", "base", "USD")
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	group, ok := entry["rates"].(map[string]any)
	require.True(t, ok, "grouped attrs nest under the group key")
	require.Equal(t, "USD", group["base"])
}
