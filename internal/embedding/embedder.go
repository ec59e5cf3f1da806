package embedding

import (
	"fmt"

	"ragbot/internal/domain"
	"ragbot/internal/embedding/hashing"
	"ragbot/internal/embedding/openai"
)

// Supported embedder types.
const (
	TypeHashing = "hashing"
	TypeOpenAI  = "openai"
)

// Options selects and configures an embedder implementation.
type Options struct {
	Type             string
	HashingDimension int
	OpenAI           openai.Config
}

// New builds the embedder named by opts.Type. An empty type selects the
// offline hashing embedder.
func New(opts Options) (domain.Embedder, error) {
	switch opts.Type {
	case "", TypeHashing:
		return hashing.NewEmbedder(opts.HashingDimension), nil
	case TypeOpenAI:
		return openai.NewClient(opts.OpenAI), nil
	default:
		return nil, fmt.Errorf("unknown embedder type %q (want %s or %s)", opts.Type, TypeHashing, TypeOpenAI)
	}
}
