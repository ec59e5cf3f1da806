package domain

import (
	"context"
	"io"
)

// DocumentKind is the closed set of document formats the extractor accepts.
type DocumentKind int

const (
	KindUnknown DocumentKind = iota
	KindPDF
	KindDOCX
	KindPlainText
)

func (k DocumentKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindPlainText:
		return "txt"
	default:
		return "unknown"
	}
}

// Document is a stored upload awaiting ingestion.
type Document struct {
	Path string
	Name string
	Kind DocumentKind
}

// Chunk is a contiguous slice of extracted text. Start and End are rune
// offsets into the source text; Text is exactly the runes in [Start, End).
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// IngestReport describes a successfully rebuilt knowledge base.
type IngestReport struct {
	Document Document
	Chars    int
	Chunks   int
	Digest   string
}

// RemoteFile is a candidate file offered by a remote drive.
type RemoteFile struct {
	ID       string
	Name     string
	MimeType string
}

// Extractor converts a stored document into plain text.
type Extractor interface {
	Extract(path string, kind DocumentKind) (string, error)
}

// Chunker splits extracted text into overlapping chunks.
type Chunker interface {
	Split(text string) []Chunk
}

// Embedder converts free text into a fixed-length vector. Identity names the
// model so persisted indexes can detect a mismatched provider.
type Embedder interface {
	Identity() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Summarizer produces a brief extractive digest of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// LLM sends a single prompt to a chat-completion model.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RemoteDrive lists and downloads documents from a cloud drive.
type RemoteDrive interface {
	ListFiles(ctx context.Context) ([]RemoteFile, error)
	Download(ctx context.Context, id string, dst io.Writer) error
}

// RAGService defines the operations exposed by the application core.
type RAGService interface {
	Ingest(ctx context.Context, path string) (IngestReport, error)
	IngestUpload(ctx context.Context, name string, r io.Reader) (IngestReport, error)
	ListRemote(ctx context.Context) ([]RemoteFile, error)
	IngestRemote(ctx context.Context, id string) (IngestReport, error)
	Answer(ctx context.Context, question string) (string, error)
	Summarize(ctx context.Context) (string, error)
	Reset(ctx context.Context) (bool, error)
}
