package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should write to the configured file", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "logger-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, "logs", "nalar.log")
		l, err := New(Config{Level: "info", File: path})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Info().Str("key", "value").Msg("hello")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello")
		assert.Contains(t, string(data), "value")
	})

	t.Run("should fall back to info on an unknown level", func(t *testing.T) {
		l, err := New(Config{Level: "chatty", Console: true})
		require.NoError(t, err)
		defer l.Close()
		assert.Equal(t, "info", l.GetZerolog().GetLevel().String())
	})

	t.Run("should redact credentials when enabled", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "logger-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, "nalar.log")
		l, err := New(Config{Level: "info", File: path, Redaction: true})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Info().Msg("key is sk-ant-REDACTED")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "[REDACTED]")
		assert.NotContains(t, string(data), "sk-ant-REDACTED")
	})
}

func TestRedactor(t *testing.T) {
	t.Run("should redact known credential shapes", func(t *testing.T) {
		r := NewRedactor()

		cases := []string{
			"sk-abcdefghijklmnopqrstuv",
			"sk-ant-REDACTED",
			"Bearer abc.def.ghi",
			`token="abcdefghijklmnopqrstuv"`,
			`secret=hunter2hunter2`,
		}
		for _, input := range cases {
			assert.Contains(t, r.Redact(input), "[REDACTED]", "input: %s", input)
		}
	})

	t.Run("should leave ordinary text alone", func(t *testing.T) {
		r := NewRedactor()
		assert.Equal(t, "nothing to see here", r.Redact("nothing to see here"))
	})

	t.Run("should accept custom patterns", func(t *testing.T) {
		r := NewRedactor()
		require.NoError(t, r.AddPattern(`internal-[0-9]+`))
		assert.Equal(t, "[REDACTED]", r.Redact("internal-42"))
	})

	t.Run("should reject an invalid pattern", func(t *testing.T) {
		r := NewRedactor()
		assert.Error(t, r.AddPattern("(unclosed"))
	})
}
