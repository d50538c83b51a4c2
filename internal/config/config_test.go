package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("OLLAMA_HOST", "")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/home/tester/.local/share/finbot/finbot.db", cfg.DatabasePath)
	assert.InDelta(t, 0.5, cfg.Classification.ReviewThreshold, 0.0001)
	assert.InDelta(t, 0.9, cfg.Classification.RuleConfidence, 0.0001)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 20, cfg.LLM.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{".pdf", ".txt", ".ofx", ".qfx"}, cfg.Ingest.Extensions)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: ~/finbot/test.db
classification:
  review_threshold: 0.7
llm:
  provider: openai
  api_key: sk-test
  batch_size: 10
  timeout: 5s
ingest:
  extensions: [PDF, "txt"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "finbot/test.db"), cfg.DatabasePath)
	assert.InDelta(t, 0.7, cfg.Classification.ReviewThreshold, 0.0001)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 10, cfg.LLM.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Ingest.Extensions)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		set     map[string]any
		name    string
		wantErr error
	}{
		{
			name:    "batch larger than service limit",
			set:     map[string]any{"llm.batch_size": 50},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "threshold out of range",
			set:     map[string]any{"classification.review_threshold": 1.5},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "unknown provider",
			set:     map[string]any{"llm.provider": "mystery"},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "gemini without key",
			set:     map[string]any{"llm.provider": "gemini"},
			wantErr: common.ErrMissingConfig,
		},
		{
			name: "disabled provider is not validated",
			set:  map[string]any{"llm.provider": "mystery", "llm.enabled": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("GOOGLE_API_KEY", "")

			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("FINBOT_TEST_DIR", "/data")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "statements"), ExpandPath("~/statements"))
	assert.Equal(t, "/data/finbot.db", ExpandPath("$FINBOT_TEST_DIR/finbot.db"))
	assert.Equal(t, "gs://bucket/estados", ExpandPath("gs://bucket/estados"))
}
