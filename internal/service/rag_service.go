package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"ragbot/internal/docstore"
	"ragbot/internal/domain"
	"ragbot/internal/drive"
	"ragbot/internal/extractor"
	"ragbot/internal/index"
	"ragbot/internal/logger"
	"ragbot/internal/prompt"
	"ragbot/internal/retriever"
	"ragbot/internal/vectorstore/memory"
)

// NoKnowledgeBaseMessage is returned instead of an answer when nothing has
// been ingested yet.
const NoKnowledgeBaseMessage = "Knowledge base not found. Please upload a document first."

var (
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrRemoteFileNotFound = errors.New("remote file not found")
)

// KnowledgeBase is the single-slot index the service rebuilds and resets.
type KnowledgeBase interface {
	retriever.Loader
	Rebuild(ctx context.Context, chunks []domain.Chunk, progress index.ProgressFunc) (*memory.Storage, error)
	Reset(ctx context.Context) (bool, error)
}

// Searcher finds the context for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) (retriever.Result, error)
}

// Deps are the collaborators of the service. Drive may be nil when no remote
// drive is configured.
type Deps struct {
	Extractor  domain.Extractor
	Chunker    domain.Chunker
	Index      KnowledgeBase
	Retriever  Searcher
	Prompts    *prompt.Assembler
	LLM        domain.LLM
	Summarizer domain.Summarizer
	Documents  *docstore.Store
	Drive      domain.RemoteDrive
}

type Options struct {
	AnswerK         int
	SummaryK        int
	DigestSentences int
	IngestTimeout   time.Duration
	LLMTimeout      time.Duration
	// Progress receives embedding progress during ingestion.
	Progress index.ProgressFunc
	Logger   *logger.Logger
}

type RAGServiceImpl struct {
	deps Deps
	opts Options
	log  *logger.Logger
}

var _ domain.RAGService = (*RAGServiceImpl)(nil)

func NewRAGService(deps Deps, opts Options) (*RAGServiceImpl, error) {
	switch {
	case deps.Extractor == nil, deps.Chunker == nil, deps.Index == nil, deps.Retriever == nil:
		return nil, errors.New("service: extractor, chunker, index and retriever are required")
	case deps.Prompts == nil, deps.LLM == nil, deps.Documents == nil:
		return nil, errors.New("service: prompts, llm and document store are required")
	}
	if opts.AnswerK <= 0 {
		opts.AnswerK = 4
	}
	if opts.SummaryK <= 0 {
		opts.SummaryK = 5
	}
	if opts.DigestSentences <= 0 {
		opts.DigestSentences = 3
	}
	if opts.IngestTimeout <= 0 {
		opts.IngestTimeout = 5 * time.Minute
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 90 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &RAGServiceImpl{deps: deps, opts: opts, log: opts.Logger.With("component", "service")}, nil
}

// Ingest replaces the knowledge base with the document at path. The format is
// taken from the file extension.
func (s *RAGServiceImpl) Ingest(ctx context.Context, path string) (domain.IngestReport, error) {
	doc := domain.Document{
		Path: path,
		Name: filepath.Base(path),
		Kind: extractor.KindFromName(path),
	}
	return s.ingest(ctx, doc)
}

// IngestUpload stores the uploaded bytes in the data dir and ingests them.
// Unsupported names are rejected before anything is written.
func (s *RAGServiceImpl) IngestUpload(ctx context.Context, name string, r io.Reader) (domain.IngestReport, error) {
	if extractor.KindFromName(name) == domain.KindUnknown {
		return domain.IngestReport{}, unsupported(name)
	}
	doc, err := s.deps.Documents.Save(name, r)
	if err != nil {
		return domain.IngestReport{}, err
	}
	s.log.Info("document stored", "name", doc.Name, "path", doc.Path)
	return s.ingest(ctx, doc)
}

// ListRemote lists the supported files of the connected drive.
func (s *RAGServiceImpl) ListRemote(ctx context.Context) ([]domain.RemoteFile, error) {
	if s.deps.Drive == nil {
		return nil, fmt.Errorf("%w: no drive configured", domain.ErrDriveUnavailable)
	}
	return s.deps.Drive.ListFiles(ctx)
}

// IngestRemote downloads a listed drive file into the data dir and ingests it.
func (s *RAGServiceImpl) IngestRemote(ctx context.Context, id string) (domain.IngestReport, error) {
	files, err := s.ListRemote(ctx)
	if err != nil {
		return domain.IngestReport{}, err
	}
	var file *domain.RemoteFile
	for i := range files {
		if files[i].ID == id {
			file = &files[i]
			break
		}
	}
	if file == nil {
		return domain.IngestReport{}, fmt.Errorf("%w: %q", ErrRemoteFileNotFound, id)
	}
	name := remoteName(*file)
	if extractor.KindFromName(name) == domain.KindUnknown {
		return domain.IngestReport{}, unsupported(file.Name)
	}

	pr, pw := io.Pipe()
	dlErr := make(chan error, 1)
	go func() {
		err := s.deps.Drive.Download(ctx, id, pw)
		pw.CloseWithError(err)
		dlErr <- err
	}()
	doc, saveErr := s.deps.Documents.Save(name, pr)
	_ = pr.Close()
	if err := <-dlErr; err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return domain.IngestReport{}, err
	}
	if saveErr != nil {
		return domain.IngestReport{}, saveErr
	}
	s.log.Info("drive file downloaded", "id", id, "name", doc.Name)
	return s.ingest(ctx, doc)
}

// remoteName gives the file an extension matching its mime type when its own
// name has none the extractor knows.
func remoteName(f domain.RemoteFile) string {
	if extractor.KindFromName(f.Name) != domain.KindUnknown {
		return f.Name
	}
	if kind, ok := drive.MimeTypes[f.MimeType]; ok {
		return f.Name + "." + kind.String()
	}
	return f.Name
}

func (s *RAGServiceImpl) ingest(ctx context.Context, doc domain.Document) (domain.IngestReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.IngestTimeout)
	defer cancel()

	started := time.Now()
	text, err := s.deps.Extractor.Extract(doc.Path, doc.Kind)
	if err != nil {
		s.log.Warn("extraction failed", "name", doc.Name, "error", err)
		return domain.IngestReport{}, err
	}
	chunks := s.deps.Chunker.Split(text)
	if _, err := s.deps.Index.Rebuild(ctx, chunks, s.opts.Progress); err != nil {
		s.log.Warn("index rebuild failed", "name", doc.Name, "error", err)
		return domain.IngestReport{}, err
	}

	report := domain.IngestReport{
		Document: doc,
		Chars:    utf8.RuneCountInString(text),
		Chunks:   len(chunks),
	}
	if s.deps.Summarizer != nil && len(chunks) > 0 {
		digest, err := s.deps.Summarizer.Summarize(text, s.opts.DigestSentences)
		if err != nil {
			s.log.Warn("digest failed", "name", doc.Name, "error", err)
		}
		report.Digest = strings.TrimSpace(digest)
	}
	s.log.Info("document ingested", "name", doc.Name, "kind", doc.Kind.String(), "chars", report.Chars, "chunks", report.Chunks, "took", time.Since(started))
	return report, nil
}

// Answer retrieves context for question and asks the model. Without a
// knowledge base it returns NoKnowledgeBaseMessage and never calls the model.
func (s *RAGServiceImpl) Answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	res, err := s.deps.Retriever.Search(ctx, question, s.opts.AnswerK)
	if errors.Is(err, domain.ErrNoIndex) {
		return NoKnowledgeBaseMessage, nil
	}
	if err != nil {
		return "", err
	}
	return s.complete(ctx, "answer", s.deps.Prompts.Answer(res.Context, question), len(res.Chunks))
}

// Summarize asks the model to retell the main content of the knowledge base.
func (s *RAGServiceImpl) Summarize(ctx context.Context) (string, error) {
	res, err := s.deps.Retriever.Search(ctx, s.deps.Prompts.SummaryQuery(), s.opts.SummaryK)
	if errors.Is(err, domain.ErrNoIndex) {
		return NoKnowledgeBaseMessage, nil
	}
	if err != nil {
		return "", err
	}
	return s.complete(ctx, "summary", s.deps.Prompts.Summary(res.Context), len(res.Chunks))
}

func (s *RAGServiceImpl) complete(ctx context.Context, op, p string, chunks int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.LLMTimeout)
	defer cancel()
	started := time.Now()
	out, err := s.deps.LLM.Complete(ctx, p)
	if err != nil {
		s.log.Warn("llm call failed", "op", op, "error", err)
		return "", err
	}
	s.log.Debug("llm call", "op", op, "context_chunks", chunks, "took", time.Since(started))
	return strings.TrimSpace(out), nil
}

// Reset discards the knowledge base. It reports whether one existed.
func (s *RAGServiceImpl) Reset(ctx context.Context) (bool, error) {
	return s.deps.Index.Reset(ctx)
}

func unsupported(name string) error {
	return fmt.Errorf("%w: %q (supported: .pdf, .docx, .txt)", domain.ErrUnsupportedFormat, filepath.Ext(name))
}
