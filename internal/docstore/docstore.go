package docstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ragbot/internal/domain"
	"ragbot/internal/extractor"
)

// Store saves incoming documents under a data directory. Every file gets a
// fresh "<uuid>_<name>" so uploads never collide.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", domain.ErrStorage, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save copies r into a new file named after name and returns the stored
// document. The kind comes from the name's extension.
func (s *Store) Save(name string, r io.Reader) (domain.Document, error) {
	name = sanitizeName(name)
	doc := domain.Document{
		Path: filepath.Join(s.dir, uuid.NewString()+"_"+name),
		Name: name,
		Kind: extractor.KindFromName(name),
	}
	f, err := os.OpenFile(doc.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: create %s: %w", domain.ErrStorage, doc.Name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(doc.Path)
		return domain.Document{}, fmt.Errorf("%w: write %s: %w", domain.ErrStorage, doc.Name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(doc.Path)
		return domain.Document{}, fmt.Errorf("%w: close %s: %w", domain.ErrStorage, doc.Name, err)
	}
	return doc, nil
}

// sanitizeName keeps only the base name so a client cannot escape the data dir.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "document"
	}
	return name
}
