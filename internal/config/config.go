package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvPreview     = "preview"
	EnvProduction  = "production"

	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Port    int
	AppEnv  string // development, preview or production
	DataDir string // base directory for runtime data (default: "data")

	GeminiAPIKey   string
	ChatModel      string
	EmbeddingModel string
	LLMBackend     string // "gemini" or "echo"

	NewsAPIKey   string
	SerperAPIKey string

	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	DatabaseURL            string // when empty the local SQLite store is used
	AuthDisabled           bool

	MemoryThreshold    float64
	MaxMemories        int
	MaxResponseSeconds int
	EnableRealtimeData bool
	EnableMemory       bool

	TrendsRefreshCron    string
	TrendsSeedIndustries []string
	PromptsFile          string

	LogLevel        string
	LogVerbose      bool
	OTELEnabled     bool
	OTELEndpoint    string
	OTELServiceName string
	OTELEnvironment string
	OTELInsecure    bool
}

// IsDevelopment reports whether debug behavior should be on.
func (c *Config) IsDevelopment() bool { return c.AppEnv == EnvDevelopment }

func (c *Config) IsPreview() bool { return c.AppEnv == EnvPreview }

// StoreBackend picks postgres when a database URL is configured.
func (c *Config) StoreBackend() string {
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return BackendPostgres
	}
	return BackendSQLite
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first without overriding real variables, and an
// optional TOML file (TRENDSEER_CONFIG, default trendseer.toml) fills keys
// the environment leaves unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("TRENDSEER_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "trendseer.toml"
	}
	file, err := loadFile(path, explicit)
	if err != nil {
		return nil, err
	}
	return load(source{file: file})
}

func load(src source) (*Config, error) {
	var errs []error

	backend := strings.ToLower(src.str("LLM_BACKEND", "gemini"))
	geminiKey := src.str("GEMINI_API_KEY", "")
	if geminiKey == "" && backend != "echo" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	port, err := src.integer("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PORT must be a number: %w", err)
	}

	supabaseURL := src.str("SUPABASE_URL", "")
	if supabaseURL == "" {
		supabaseURL = src.str("NEXT_PUBLIC_SUPABASE_URL", "")
	}
	anonKey := src.str("SUPABASE_ANON_KEY", "")
	if anonKey == "" {
		anonKey = src.str("NEXT_PUBLIC_SUPABASE_ANON_KEY", "")
	}

	threshold, err := src.float("MEMORY_THRESHOLD", 0.7)
	errs = append(errs, err)
	maxMemories, err := src.integer("MAX_MEMORIES", 5)
	errs = append(errs, err)
	maxResponse, err := src.integer("MAX_RESPONSE_SECONDS", 300)
	errs = append(errs, err)
	realtime, err := src.boolean("ENABLE_REALTIME_DATA", true)
	errs = append(errs, err)
	enableMemory, err := src.boolean("ENABLE_MEMORY", true)
	errs = append(errs, err)
	authDisabled, err := src.boolean("AUTH_DISABLED", false)
	errs = append(errs, err)
	logVerbose, err := src.boolean("LOG_VERBOSE", false)
	errs = append(errs, err)
	otelEnabled, err := src.boolean("OTEL_ENABLED", false)
	errs = append(errs, err)
	otelInsecure, err := src.boolean("OTEL_INSECURE", false)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	appEnv := strings.ToLower(src.str("APP_ENV", EnvProduction))
	switch appEnv {
	case EnvDevelopment, EnvPreview, EnvProduction:
	default:
		return nil, fmt.Errorf("APP_ENV must be development, preview or production, got %q", appEnv)
	}

	return &Config{
		Port:                   port,
		AppEnv:                 appEnv,
		DataDir:                src.str("DATA_DIR", "data"),
		GeminiAPIKey:           geminiKey,
		ChatModel:              src.str("CHAT_MODEL", "gemini-1.5-pro"),
		EmbeddingModel:         src.str("EMBEDDING_MODEL", "embedding-001"),
		LLMBackend:             backend,
		NewsAPIKey:             src.str("NEWS_API_KEY", ""),
		SerperAPIKey:           src.str("SERPER_API_KEY", ""),
		SupabaseURL:            strings.TrimRight(supabaseURL, "/"),
		SupabaseAnonKey:        anonKey,
		SupabaseServiceRoleKey: src.str("SUPABASE_SERVICE_ROLE_KEY", ""),
		DatabaseURL:            src.str("DATABASE_URL", ""),
		AuthDisabled:           authDisabled,
		MemoryThreshold:        threshold,
		MaxMemories:            maxMemories,
		MaxResponseSeconds:     maxResponse,
		EnableRealtimeData:     realtime,
		EnableMemory:           enableMemory,
		TrendsRefreshCron:      src.str("TRENDS_REFRESH_CRON", "@every 1h"),
		TrendsSeedIndustries:   splitList(src.str("TRENDS_SEED_INDUSTRIES", "technology,marketing")),
		PromptsFile:            src.str("PROMPTS_FILE", ""),
		LogLevel:               src.str("LOG_LEVEL", "info"),
		LogVerbose:             logVerbose,
		OTELEnabled:            otelEnabled,
		OTELEndpoint:           src.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELServiceName:        src.str("OTEL_SERVICE_NAME", "trendseer"),
		OTELEnvironment:        src.str("OTEL_ENVIRONMENT", appEnv),
		OTELInsecure:           otelInsecure,
	}, nil
}

// loadFile decodes a flat TOML table. Keys are matched case-insensitively
// against the environment variable names, so `port = 3000` and
// `PORT = 3000` are equivalent.
func loadFile(path string, required bool) (map[string]string, error) {
	raw := map[string]any{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		case map[string]any:
			// nested tables are not part of the format
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}

type source struct {
	file map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok && v != ""
}

func (s source) str(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (s source) integer(key string, def int) (int, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func (s source) float(key string, def float64) (float64, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func (s source) boolean(key string, def bool) (bool, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s: invalid boolean %q", key, v)
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
