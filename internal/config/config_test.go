package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks variables a developer machine may carry.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GITHUB_TOKEN", "GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "OLLAMA_HOST",
		"REPOLENS_LLM_DEFAULT", "REPOLENS_GITHUB_TOKEN", "REPOLENS_LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repolens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10*time.Second, cfg.Gather.PerProvider)
	assert.Equal(t, 45*time.Second, cfg.Gather.Deadline)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 3, cfg.GitHub.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.GitHub.RetryBase)
	assert.Equal(t, "memory", cfg.Archive.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)

	assert.Equal(t, []string{"fake"}, cfg.LLM.Enabled())
	assert.Equal(t, "fake", cfg.LLM.DefaultBackend())
}

func TestFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  addr: ":9999"
log:
  format: Console
gather:
  deadline: 5s
llm:
  default: claude
  claude:
    api_key: from-file
    model: claude-test
archive:
  driver: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Gather.Deadline)
	assert.Equal(t, "claude", cfg.LLM.DefaultBackend())
	assert.Equal(t, "from-file", cfg.LLM.Claude.APIKey)
	assert.Equal(t, "claude-test", cfg.LLM.Claude.Model)
	assert.Equal(t, "none", cfg.Archive.Driver)
}

func TestEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "gh-plain")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("OLLAMA_HOST", "http://ollama:11434")
	t.Setenv("REPOLENS_GATHER_MODE", "FAST")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gh-plain", cfg.GitHub.Token)
	assert.Equal(t, "groq-key", cfg.LLM.Groq.APIKey)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.Ollama.BaseURL)
	assert.Equal(t, "fast", cfg.Gather.Mode)
	assert.Equal(t, []string{"groq", "ollama", "fake"}, cfg.LLM.Enabled())
	assert.Equal(t, "groq", cfg.LLM.DefaultBackend())

	t.Setenv("REPOLENS_GITHUB_TOKEN", "gh-prefixed")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "gh-prefixed", cfg.GitHub.Token)
}

func TestEnvBeatsFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "log:\n  format: console\n")
	t.Setenv("REPOLENS_LOG_FORMAT", "json")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("ANTHROPIC_API_KEY")
	require.NoError(t, os.WriteFile(".env", []byte("ANTHROPIC_API_KEY=dotenv-key\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ANTHROPIC_API_KEY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.LLM.Claude.APIKey)
	assert.Contains(t, cfg.LLM.Enabled(), "claude")
}

func TestMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"log format":     "log:\n  format: xml\n",
		"archive driver": "archive:\n  driver: redis\n",
		"postgres dsn":   "archive:\n  driver: postgres\n",
		"s3 endpoint":    "archive:\n  driver: s3\n",
		"deadline":       "gather:\n  deadline: 0s\n",
		"backend":        "llm:\n  default: hal9000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestBackend(t *testing.T) {
	l := LLMConfig{Claude: BackendConfig{APIKey: "k"}}
	b, ok := l.Backend("anthropic")
	require.True(t, ok)
	assert.Equal(t, "k", b.APIKey)
	_, ok = l.Backend("nope")
	assert.False(t, ok)
}
