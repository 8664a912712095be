package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/concierge-go/internal/paramstore"
)

const sampleConfig = `
llm:
  api: chat_completions
  base_url: https://api.example.com/v1
  api_key: dummy
  model: gpt-4o
  timeout: 30s
server:
  host: 127.0.0.1
  port: "8080"
chat:
  history_window: 4
prompt:
  system: be brief
`

// clearEnv blanks every variable Load consults so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
		}
	}
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("VERCEL", "")
	t.Setenv("VERCEL_ENV", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, APIResponses, cfg.LLM.API)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	require.False(t, cfg.LLM.Configured())
	require.Equal(t, "8300", cfg.Server.Port)
	require.Equal(t, 12, cfg.Chat.HistoryWindow)
	require.Equal(t, DefaultSystemPrompt, cfg.Prompt.System)
	require.Equal(t, "/uploads", cfg.Assets.RoutePrefix)
	require.Equal(t, "*", cfg.CORS.FrontendOrigin)

	driver, dsn := cfg.Database.Backend()
	require.Equal(t, BackendSQLite, driver)
	require.Equal(t, "app.sqlite3", filepath.Base(dsn))
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, APIChatCompletions, cfg.LLM.API)
	require.Equal(t, "https://api.example.com/v1", cfg.LLM.BaseURL)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	require.True(t, cfg.LLM.Configured())
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	require.Equal(t, 4, cfg.Chat.HistoryWindow)
	require.Equal(t, "be brief", cfg.Prompt.System)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))
	t.Setenv("OPENAI_MODEL", "gpt-4.1")
	t.Setenv("PORT", "9000")
	t.Setenv("CHAT_HISTORY_WINDOW", "0")
	t.Setenv("ASSET_ROUTE_PREFIX", "static/")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gpt-4.1", cfg.LLM.Model)
	require.Equal(t, "9000", cfg.Server.Port)
	require.Equal(t, 1, cfg.Chat.HistoryWindow, "window is clamped to at least one")
	require.Equal(t, "/static", cfg.Assets.RoutePrefix)
}

func TestLoad_DatabaseURLPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_PRISMA_URL", "postgres://prisma/db")
	t.Setenv("POSTGRES_URL", "postgres://vercel/db")

	cfg, err := Load()
	require.NoError(t, err)
	driver, dsn := cfg.Database.Backend()
	require.Equal(t, BackendPostgres, driver)
	require.Equal(t, "postgres://vercel/db", dsn)

	t.Setenv("DATABASE_URL", "sqlite:///var/data/app.db")
	cfg, err = Load()
	require.NoError(t, err)
	driver, dsn = cfg.Database.Backend()
	require.Equal(t, BackendSQLite, driver)
	require.Equal(t, "/var/data/app.db", dsn)
}

func TestLoad_ServerlessStorageBase(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	t.Setenv("VERCEL", "1")
	t.Setenv("TMPDIR", tmp)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "app.sqlite3"), cfg.Database.SQLitePath)
	require.Equal(t, filepath.Join(tmp, "uploads"), cfg.Assets.LocalDir)
}

func TestLoad_ReferenceDocumentFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ref.md")
	require.NoError(t, os.WriteFile(path, []byte("Breakfast is served 6-10."), 0o600))
	t.Setenv("REFERENCE_DOCUMENT_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Breakfast is served 6-10.", cfg.Prompt.ReferenceDocument)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_MODE", "completions_v0")
	_, err := Load()
	require.ErrorContains(t, err, "unsupported llm.api")

	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	require.Error(t, err)
}

type fakeGetter map[string]string

func (f fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	if name == "/broken/system_prompt" {
		return "", errors.New("throttled")
	}
	v, ok := f[name]
	if !ok {
		return "", paramstore.ErrNotFound
	}
	return v, nil
}

func TestWithParameters(t *testing.T) {
	base := Config{
		LLM:    LLMConfig{APIKey: "env-key"},
		Prompt: PromptConfig{System: "env prompt", ParamPrefix: "/concierge/"},
	}
	getter := fakeGetter{
		"/concierge/system_prompt":  "ssm prompt",
		"/concierge/openai_api_key": "ssm-key",
	}

	got, err := base.WithParameters(context.Background(), getter)
	require.NoError(t, err)
	require.Equal(t, "ssm prompt", got.Prompt.System)
	require.Equal(t, "ssm-key", got.LLM.APIKey)
	require.Empty(t, got.Prompt.ReferenceDocument)
	require.Equal(t, "env prompt", base.Prompt.System, "receiver is not mutated")

	base.Prompt.ParamPrefix = ""
	got, err = base.WithParameters(context.Background(), getter)
	require.NoError(t, err)
	require.Equal(t, base, got)

	base.Prompt.ParamPrefix = "/broken"
	_, err = base.WithParameters(context.Background(), getter)
	require.ErrorContains(t, err, "throttled")
}
