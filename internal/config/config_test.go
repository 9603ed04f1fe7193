package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var managedKeys = []string{
	"GEMINI_API_KEY", "LLM_BACKEND", "PORT", "APP_ENV", "DATA_DIR",
	"SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL", "SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY",
	"DATABASE_URL", "MEMORY_THRESHOLD", "MAX_MEMORIES", "MAX_RESPONSE_SECONDS",
	"ENABLE_REALTIME_DATA", "ENABLE_MEMORY", "AUTH_DISABLED", "LOG_VERBOSE",
	"OTEL_ENABLED", "OTEL_INSECURE", "TRENDS_SEED_INDUSTRIES", "CHAT_MODEL",
	"TRENDSEER_CONFIG",
}

// clearEnv blanks every key Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_MinimalValid(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := load(source{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.ChatModel != "gemini-1.5-pro" {
		t.Errorf("chat model = %q, want %q", cfg.ChatModel, "gemini-1.5-pro")
	}
	if cfg.EmbeddingModel != "embedding-001" {
		t.Errorf("embedding model = %q, want %q", cfg.EmbeddingModel, "embedding-001")
	}
	if cfg.MemoryThreshold != 0.7 {
		t.Errorf("threshold = %v, want 0.7", cfg.MemoryThreshold)
	}
	if cfg.MaxMemories != 5 || cfg.MaxResponseSeconds != 300 {
		t.Errorf("limits = %d/%d, want 5/300", cfg.MaxMemories, cfg.MaxResponseSeconds)
	}
	if !cfg.EnableRealtimeData || !cfg.EnableMemory {
		t.Error("realtime data and memory should default on")
	}
	if cfg.StoreBackend() != BackendSQLite {
		t.Errorf("store backend = %q, want sqlite", cfg.StoreBackend())
	}
	if cfg.IsDevelopment() {
		t.Error("default env should not be development")
	}
}

func TestLoad_MissingGeminiKey(t *testing.T) {
	clearEnv(t)
	if _, err := load(source{}); err == nil {
		t.Fatal("expected error for missing GEMINI_API_KEY")
	}
}

func TestLoad_EchoBackendNeedsNoKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BACKEND", "echo")
	cfg, err := load(source{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLMBackend != "echo" {
		t.Errorf("backend = %q, want echo", cfg.LLMBackend)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("PORT", "abc")
	if _, err := load(source{}); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestLoad_InvalidNumbersNameTheKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("MEMORY_THRESHOLD", "high")
	t.Setenv("ENABLE_MEMORY", "maybe")

	_, err := load(source{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"MEMORY_THRESHOLD", "ENABLE_MEMORY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestLoad_SupabaseAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "anon")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")

	cfg, err := load(source{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SupabaseURL != "https://abc.supabase.co" {
		t.Errorf("supabase url = %q", cfg.SupabaseURL)
	}
	if cfg.SupabaseAnonKey != "anon" {
		t.Errorf("anon key = %q", cfg.SupabaseAnonKey)
	}
	if cfg.StoreBackend() != BackendPostgres {
		t.Errorf("store backend = %q, want postgres", cfg.StoreBackend())
	}
}

func TestLoad_AppEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("APP_ENV", "Preview")
	cfg, err := load(source{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsPreview() {
		t.Errorf("app env = %q, want preview", cfg.AppEnv)
	}

	t.Setenv("APP_ENV", "staging")
	if _, err := load(source{}); err == nil {
		t.Fatal("expected error for unknown APP_ENV")
	}
}

func TestLoad_TomlFileFillsUnsetKeys(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "trendseer.toml")
	body := `
gemini_api_key = "from-file"
port = 3000
trends_seed_industries = ["fashion", "gaming"]
enable_memory = false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "4000")

	file, err := loadFile(path, true)
	if err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	cfg, err := load(source{file: file})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GeminiAPIKey != "from-file" {
		t.Errorf("key = %q, want from-file", cfg.GeminiAPIKey)
	}
	if cfg.Port != 4000 {
		t.Errorf("port = %d, want env value 4000", cfg.Port)
	}
	if !reflect.DeepEqual(cfg.TrendsSeedIndustries, []string{"fashion", "gaming"}) {
		t.Errorf("industries = %v", cfg.TrendsSeedIndustries)
	}
	if cfg.EnableMemory {
		t.Error("enable_memory from file should be false")
	}
}

func TestLoadFile_MissingOptional(t *testing.T) {
	file, err := loadFile(filepath.Join(t.TempDir(), "nope.toml"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file != nil {
		t.Errorf("file = %v, want nil", file)
	}
	if _, err := loadFile(filepath.Join(t.TempDir(), "nope.toml"), true); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" tech , ,marketing,")
	want := []string{"tech", "marketing"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %v, want %v", got, want)
	}
}
