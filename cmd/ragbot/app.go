package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ragbot/internal/chunker"
	"ragbot/internal/config"
	"ragbot/internal/docstore"
	"ragbot/internal/domain"
	"ragbot/internal/drive"
	"ragbot/internal/embedding"
	"ragbot/internal/embedding/openai"
	"ragbot/internal/extractor"
	"ragbot/internal/index"
	"ragbot/internal/llm"
	"ragbot/internal/logger"
	"ragbot/internal/prompt"
	"ragbot/internal/retriever"
	"ragbot/internal/service"
	"ragbot/internal/summarizer"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg  *config.AppConfig
	log  *logger.Logger
	svc  *service.RAGServiceImpl
	auth *drive.Auth
}

type appOptions struct {
	configPath string
	// logFile sends logs to a file in the data dir instead of stderr.
	logFile  bool
	progress index.ProgressFunc
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", domain.ErrStorage, err)
	}

	var logPaths []string
	if opts.logFile {
		logPaths = []string{filepath.Join(cfg.DataDir, "ragbot.log")}
	}
	log, err := logger.New(cfg.Log.Mode, logPaths...)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	embOpts := embedding.Options{Type: cfg.Embedder.Type, HashingDimension: cfg.Embedder.Hashing.Dimension}
	if o := cfg.Embedder.OpenAI; o != nil {
		embOpts.OpenAI = openai.Config{
			BaseURL:    o.BaseURL,
			APIKey:     os.Getenv(o.APIKeyEnv),
			Model:      o.Model,
			Dimension:  o.Dimension,
			Timeout:    time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries: o.MaxRetries,
		}
	}
	emb, err := embedding.New(embOpts)
	if err != nil {
		return nil, err
	}

	ix, err := index.New(cfg.IndexDir, emb, index.Options{
		Workers:      cfg.Ingest.Workers,
		EmbedTimeout: cfg.Timeouts.Embed(),
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	docs, err := docstore.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	prompts, err := prompt.New(cfg.LLM.Language)
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		log.Warn("llm api key is not set", "env", cfg.LLM.APIKeyEnv)
	}
	persona := cfg.LLM.SystemPrompt
	if persona == "" {
		persona = prompts.Persona()
	}
	model := llm.New(llm.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       apiKey,
		Model:        cfg.LLM.Model,
		Temperature:  *cfg.LLM.Temperature,
		SystemPrompt: persona,
		Referer:      cfg.LLM.Referer,
		Title:        cfg.LLM.Title,
		Timeout:      cfg.Timeouts.LLM(),
	})

	deps := service.Deps{
		Extractor: extractor.New(),
		Chunker:   chunker.NewRecursiveChunker(cfg.Chunker.Size, cfg.Chunker.Overlap),
		Index:     ix,
		Retriever: retriever.New(ix, emb, retriever.Options{
			FetchK:       cfg.Retrieval.FetchK,
			Diversity:    *cfg.Retrieval.Diversity,
			EmbedTimeout: cfg.Timeouts.Embed(),
		}),
		Prompts:    prompts,
		LLM:        model,
		Summarizer: summarizer.NewFrequencySummarizer(cfg.Summarizer.MaxRunes),
		Documents:  docs,
	}

	a := &app{cfg: cfg, log: log}
	auth, err := drive.NewAuth(cfg.Drive.CredentialsFile, cfg.Drive.TokenFile, cfg.Drive.RedirectURL)
	if err != nil {
		log.Debug("google drive disabled", "error", err)
	} else {
		a.auth = auth
		deps.Drive = drive.New(auth, cfg.Drive.PageSize)
	}

	a.svc, err = service.NewRAGService(deps, service.Options{
		AnswerK:         cfg.Retrieval.AnswerK,
		SummaryK:        cfg.Retrieval.SummaryK,
		DigestSentences: cfg.Summarizer.MaxSentences,
		IngestTimeout:   cfg.Timeouts.Ingest(),
		LLMTimeout:      cfg.Timeouts.LLM(),
		Progress:        opts.progress,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("app wired", "embedder", emb.Identity(), "llm_model", cfg.LLM.Model, "index_dir", cfg.IndexDir, "drive", a.auth != nil)
	return a, nil
}

func (a *app) close() { a.log.Sync() }

// driveAuth returns the drive auth or an error when credentials are missing.
func (a *app) driveAuth() (*drive.Auth, error) {
	if a.auth == nil {
		return nil, fmt.Errorf("%w: no OAuth client at %s", domain.ErrDriveUnavailable, a.cfg.Drive.CredentialsFile)
	}
	return a.auth, nil
}
