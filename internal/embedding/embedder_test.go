package embedding

import (
	"strings"
	"testing"

	"ragbot/internal/embedding/openai"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		identity string
		wantErr  bool
	}{
		{"default is hashing", Options{}, "hash-bow/512", false},
		{"hashing with dimension", Options{Type: TypeHashing, HashingDimension: 64}, "hash-bow/64", false},
		{"openai", Options{Type: TypeOpenAI, OpenAI: openai.Config{Model: "nomic-embed-text", Dimension: 768}}, "openai/nomic-embed-text", false},
		{"unknown", Options{Type: "word2vec"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.opts)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "word2vec") {
					t.Fatalf("expected unknown type error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if e.Identity() != tt.identity {
				t.Errorf("Identity() = %q, want %q", e.Identity(), tt.identity)
			}
		})
	}
}
