package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunker.Size != 300 || cfg.Chunker.Overlap != 50 {
		t.Errorf("chunker = %+v, want 300/50", cfg.Chunker)
	}
	if cfg.Retrieval.AnswerK != 4 || cfg.Retrieval.SummaryK != 5 || cfg.Retrieval.FetchK != 20 || *cfg.Retrieval.Diversity != 0.5 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if *cfg.LLM.Temperature != 0.3 || cfg.LLM.Language != "en" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Embedder.Type != "hashing" || cfg.Embedder.Hashing.Dimension != 512 {
		t.Errorf("embedder = %+v", cfg.Embedder)
	}
	if cfg.Timeouts.LLM() != 90*time.Second || cfg.Timeouts.Embed() != 30*time.Second || cfg.Timeouts.Ingest() != 5*time.Minute {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
data_dir: /tmp/docs
chunker:
  size: 500
embedder:
  type: openai
  openai:
    model: nomic-embed-text
    dimension: 768
llm:
  language: ru
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/docs" || cfg.Chunker.Size != 500 || cfg.Chunker.Overlap != 50 {
		t.Errorf("unexpected %+v %+v", cfg.DataDir, cfg.Chunker)
	}
	o := cfg.Embedder.OpenAI
	if o == nil || o.Model != "nomic-embed-text" || o.Dimension != 768 || o.APIKeyEnv != "OPENAI_API_KEY" || o.MaxRetries != 5 {
		t.Errorf("openai = %+v", o)
	}
	if cfg.LLM.Language != "ru" || *cfg.LLM.Temperature != 0.3 {
		t.Errorf("llm = %q %v", cfg.LLM.Language, *cfg.LLM.Temperature)
	}
	if *cfg.Retrieval.Diversity != 0.5 {
		t.Errorf("diversity = %v, want 0.5", *cfg.Retrieval.Diversity)
	}
	if cfg.Drive.TokenFile != filepath.Join("/tmp/docs", "drive_token.json") {
		t.Errorf("token file = %q", cfg.Drive.TokenFile)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{"unknown embedder", "embedder:\n  type: word2vec\n", "embedder.type"},
		{"overlap too large", "chunker:\n  size: 100\n  overlap: 100\n", "chunker.overlap"},
		{"diversity out of range", "retrieval:\n  diversity: 1.5\n", "retrieval.diversity"},
		{"index dir is data dir", "data_dir: ./kb\nindex_dir: ./kb\n", "index_dir"},
		{"index dir contains data dir", "data_dir: ./kb/docs\nindex_dir: ./kb\n", "index_dir"},
		{"index dir is cwd", "index_dir: .\n", "index_dir"},
		{"index dir holds drive token", "drive:\n  token_file: ./index/token.json\n", "drive.token_file"},
		{"not yaml", "chunker: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yml), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ExplicitZeroDiversity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("retrieval:\n  diversity: 0\nllm:\n  temperature: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg.Retrieval.Diversity != 0 || *cfg.LLM.Temperature != 0 {
		t.Fatalf("diversity = %v, temperature = %v; want explicit zeros kept", *cfg.Retrieval.Diversity, *cfg.LLM.Temperature)
	}
}

func TestLoad_SeparateDirsAccepted(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config.yaml")
	yml := "data_dir: " + filepath.Join(root, "kb") + "\nindex_dir: " + filepath.Join(root, "kb-index") + "\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:9000"
	cfg.Retrieval.Diversity = floatPtr(0.25)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HTTP.Addr != "127.0.0.1:9000" || *got.Retrieval.Diversity != 0.25 {
		t.Fatalf("Load() = %+v", got)
	}
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	want := filepath.Join(home, ".config", "ragbot", "config.yaml")
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("defaults not written: %v", err)
	}
	if cfg.Chunker.Size != 300 {
		t.Fatalf("chunker size = %d", cfg.Chunker.Size)
	}
}
