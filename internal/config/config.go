package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                `yaml:"type"`
	Hashing HashingEmbedderConfig `yaml:"hashing"`
	OpenAI  *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks. Sizes are in
// characters.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig tunes maximal marginal relevance search. Diversity 0 is a
// valid setting (pure relevance ranking), so unset is nil.
type RetrievalConfig struct {
	AnswerK   int      `yaml:"answer_k"`
	SummaryK  int      `yaml:"summary_k"`
	FetchK    int      `yaml:"fetch_k"`
	Diversity *float64 `yaml:"diversity"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	// SystemPrompt overrides the persona of the selected language.
	SystemPrompt string `yaml:"system_prompt,omitempty"`
	Language     string `yaml:"language"`
	Referer      string `yaml:"referer"`
	Title        string `yaml:"title"`
}

// TimeoutsConfig bounds the long-running operations.
type TimeoutsConfig struct {
	IngestSecs int `yaml:"ingest_secs"`
	EmbedSecs  int `yaml:"embed_secs"`
	LLMSecs    int `yaml:"llm_secs"`
}

func (t TimeoutsConfig) Ingest() time.Duration { return time.Duration(t.IngestSecs) * time.Second }
func (t TimeoutsConfig) Embed() time.Duration  { return time.Duration(t.EmbedSecs) * time.Second }
func (t TimeoutsConfig) LLM() time.Duration    { return time.Duration(t.LLMSecs) * time.Second }

// IngestConfig sizes the embedding worker pool.
type IngestConfig struct {
	Workers int `yaml:"workers"`
}

// SummarizerConfig configures the local digest shown after ingestion.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
	MaxRunes     int `yaml:"max_runes"`
}

// DriveConfig locates the Google Drive OAuth client and token files.
type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	RedirectURL     string `yaml:"redirect_url,omitempty"`
	PageSize        int64  `yaml:"page_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir    string           `yaml:"data_dir"`
	IndexDir   string           `yaml:"index_dir"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	LLM        LLMConfig        `yaml:"llm"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Drive      DriveConfig      `yaml:"drive"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragbot/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragbot/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can work with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		return fmt.Errorf("embedder.type %q is not one of hashing, openai", c.Embedder.Type)
	}
	if c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.size (%d)", c.Chunker.Overlap, c.Chunker.Size)
	}
	if d := c.Retrieval.Diversity; d != nil && (*d < 0 || *d > 1) {
		return fmt.Errorf("retrieval.diversity %v must be within [0, 1]", *d)
	}
	// index_dir belongs to the index alone.
	for _, other := range []struct{ key, dir string }{
		{"data_dir", c.DataDir},
		{"drive.token_file", filepath.Dir(c.Drive.TokenFile)},
	} {
		inside, err := within(other.dir, c.IndexDir)
		if err != nil {
			return err
		}
		if inside {
			return fmt.Errorf("index_dir %q must not be or contain %s %q", c.IndexDir, other.key, other.dir)
		}
	}
	return nil
}

// within reports whether dir is root or lies below it.
func within(dir, root string) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("resolve %q: %w", dir, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, fmt.Errorf("resolve %q: %w", root, err)
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil {
		return false, nil
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))), nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragbot", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{Embedder: EmbedderConfig{Type: "hashing"}}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = "./index"
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 300
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 50
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Hashing.Dimension == 0 {
		cfg.Embedder.Hashing.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.Dimension == 0 {
			cfg.Embedder.OpenAI.Dimension = 1536
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
	}
	if cfg.Retrieval.AnswerK == 0 {
		cfg.Retrieval.AnswerK = 4
	}
	if cfg.Retrieval.SummaryK == 0 {
		cfg.Retrieval.SummaryK = 5
	}
	if cfg.Retrieval.FetchK == 0 {
		cfg.Retrieval.FetchK = 20
	}
	if cfg.Retrieval.Diversity == nil {
		cfg.Retrieval.Diversity = floatPtr(0.5)
	}
	if cfg.LLM.Temperature == nil {
		cfg.LLM.Temperature = floatPtr(0.3)
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "deepseek/deepseek-chat-v3-0324:free"
	}
	if cfg.LLM.Language == "" {
		cfg.LLM.Language = "en"
	}
	if cfg.LLM.Referer == "" {
		cfg.LLM.Referer = "http://localhost"
	}
	if cfg.LLM.Title == "" {
		cfg.LLM.Title = "ragbot"
	}
	if cfg.Timeouts.IngestSecs == 0 {
		cfg.Timeouts.IngestSecs = 300
	}
	if cfg.Timeouts.EmbedSecs == 0 {
		cfg.Timeouts.EmbedSecs = 30
	}
	if cfg.Timeouts.LLMSecs == 0 {
		cfg.Timeouts.LLMSecs = 90
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Summarizer.MaxRunes == 0 {
		cfg.Summarizer.MaxRunes = 400
	}
	if cfg.Drive.CredentialsFile == "" {
		cfg.Drive.CredentialsFile = "credentials.json"
	}
	if cfg.Drive.TokenFile == "" {
		cfg.Drive.TokenFile = filepath.Join(cfg.DataDir, "drive_token.json")
	}
	if cfg.Drive.PageSize == 0 {
		cfg.Drive.PageSize = 10
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Log.Mode == "" {
		cfg.Log.Mode = "dev"
	}
}

func floatPtr(v float64) *float64 { return &v }
