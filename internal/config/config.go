package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSystemPrompt is the concierge instruction used when SYSTEM_PROMPT is unset.
const DefaultSystemPrompt = `You are the virtual concierge for Stellar International Hotel. Provide information only about this property and follow these principles:
1. Cover room types, rates, add-on packages, check-in/out, dining & bar venues, events, facilities, transportation, and loyalty benefits.
2. Politely decline topics unrelated to the hotel (e.g., other attractions or politics) and suggest calling +886-2-1234-5678 or emailing concierge@stellarhotel.tw for further help.
3. Answer in Traditional Chinese with a warm, professional tone. Use lists or step-by-step guidance when it improves clarity and highlight 24/7 concierge support.
4. When details are uncertain, invite guests to confirm with on-duty staff to ensure accuracy.
5. Protect privacy: request only contact details required for bookings or service follow-up.
Maintain these guidelines so every guest receives an exceptional stay experience.`

// API modes supported by the completion provider.
const (
	APIResponses       = "responses"
	APIChatCompletions = "chat_completions"
)

// Config holds the application configuration. It is built once by Load and
// never mutated afterwards.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Server   ServerConfig   `mapstructure:"server"`
	Prompt   PromptConfig   `mapstructure:"prompt"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Database DatabaseConfig `mapstructure:"database"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	CORS     CORSConfig     `mapstructure:"cors"`
	LogLevel string         `mapstructure:"log_level"`
}

// LLMConfig holds the completion provider configuration
type LLMConfig struct {
	API     string        `mapstructure:"api"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Configured reports whether a provider credential is present.
func (c LLMConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// PromptConfig holds the fixed prompt context.
type PromptConfig struct {
	System                string `mapstructure:"system"`
	ReferenceDocument     string `mapstructure:"reference_document"`
	ReferenceDocumentPath string `mapstructure:"reference_document_path"`
	ParamPrefix           string `mapstructure:"param_prefix"`
}

type ChatConfig struct {
	HistoryWindow int `mapstructure:"history_window"`
}

// DatabaseConfig selects the storage backend. URL wins when set; otherwise
// SQLite at SQLitePath is used.
type DatabaseConfig struct {
	URL        string `mapstructure:"url"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Backend names for DatabaseConfig.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backend returns the storage driver and its DSN.
func (d DatabaseConfig) Backend() (string, string) {
	url := strings.TrimSpace(d.URL)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return BackendPostgres, url
	case strings.HasPrefix(url, "sqlite://"):
		return BackendSQLite, strings.TrimPrefix(url, "sqlite://")
	case url != "":
		return BackendSQLite, url
	}
	return BackendSQLite, d.SQLitePath
}

type AssetsConfig struct {
	RoutePrefix string `mapstructure:"route_prefix"`
	LocalDir    string `mapstructure:"local_dir"`
}

type CORSConfig struct {
	FrontendOrigin string `mapstructure:"frontend_origin"`
}

// envBindings maps config keys to the environment variables that override them,
// in precedence order.
var envBindings = map[string][]string{
	"llm.api":                        {"OPENAI_API_MODE"},
	"llm.base_url":                   {"OPENAI_BASE_URL"},
	"llm.api_key":                    {"OPENAI_API_KEY"},
	"llm.model":                      {"OPENAI_MODEL"},
	"llm.timeout":                    {"LLM_TIMEOUT"},
	"server.host":                    {"HOST"},
	"server.port":                    {"PORT"},
	"prompt.system":                  {"SYSTEM_PROMPT"},
	"prompt.reference_document":      {"REFERENCE_DOCUMENT"},
	"prompt.reference_document_path": {"REFERENCE_DOCUMENT_PATH"},
	"prompt.param_prefix":            {"PROMPT_PARAM_PREFIX"},
	"chat.history_window":            {"CHAT_HISTORY_WINDOW"},
	"database.url":                   {"DATABASE_URL", "POSTGRES_URL", "POSTGRES_PRISMA_URL", "POSTGRES_URL_NON_POOLING"},
	"database.sqlite_path":           {"SQLITE_PATH"},
	"assets.route_prefix":            {"ASSET_ROUTE_PREFIX"},
	"assets.local_dir":               {"ASSET_LOCAL_DIR"},
	"cors.frontend_origin":           {"FRONTEND_ORIGIN"},
	"log_level":                      {"LOG_LEVEL"},
}

func setDefaults(v *viper.Viper, storageBase string) {
	v.SetDefault("llm.api", APIResponses)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8300")
	v.SetDefault("prompt.system", DefaultSystemPrompt)
	v.SetDefault("prompt.reference_document", "")
	v.SetDefault("prompt.reference_document_path", "")
	v.SetDefault("prompt.param_prefix", "")
	v.SetDefault("chat.history_window", 12)
	v.SetDefault("database.url", "")
	v.SetDefault("database.sqlite_path", filepath.Join(storageBase, "app.sqlite3"))
	v.SetDefault("assets.route_prefix", "/uploads")
	v.SetDefault("assets.local_dir", filepath.Join(storageBase, "uploads"))
	v.SetDefault("cors.frontend_origin", "*")
	v.SetDefault("log_level", "info")
}

// StorageBase is where writable artifacts live. Serverless platforms get a tmp dir.
func StorageBase() string {
	if os.Getenv("VERCEL") != "" || os.Getenv("VERCEL_ENV") != "" {
		for _, key := range []string{"TMPDIR", "TEMP"} {
			if dir := os.Getenv(key); dir != "" {
				return dir
			}
		}
		return "/tmp"
	}
	return "."
}

// Load reads .env, an optional YAML file (CONFIG_PATH or ./config.yaml) and the
// environment, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	setDefaults(v, StorageBase())
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) normalize() error {
	c.LLM.API = strings.ToLower(strings.TrimSpace(c.LLM.API))
	switch c.LLM.API {
	case "", APIResponses:
		c.LLM.API = APIResponses
	case APIChatCompletions:
	default:
		return fmt.Errorf("unsupported llm.api %q", c.LLM.API)
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.Chat.HistoryWindow < 1 {
		c.Chat.HistoryWindow = 1
	}
	if c.Prompt.ReferenceDocument == "" && c.Prompt.ReferenceDocumentPath != "" {
		raw, err := os.ReadFile(c.Prompt.ReferenceDocumentPath)
		if err != nil {
			return fmt.Errorf("read reference document: %w", err)
		}
		c.Prompt.ReferenceDocument = string(raw)
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(c.Assets.RoutePrefix), "/")
	if prefix == "/" {
		prefix = "/uploads"
	}
	c.Assets.RoutePrefix = prefix
	if strings.TrimSpace(c.CORS.FrontendOrigin) == "" {
		c.CORS.FrontendOrigin = "*"
	}
	return nil
}
