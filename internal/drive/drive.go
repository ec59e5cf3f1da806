package drive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"ragbot/internal/domain"
)

// DefaultPageSize is how many files a listing returns.
const DefaultPageSize = 10

// MimeTypes maps the Drive mime types offered for ingestion to document kinds.
var MimeTypes = map[string]domain.DocumentKind{
	"application/pdf": domain.KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": domain.KindDOCX,
	"text/plain": domain.KindPlainText,
}

// Drive lists and downloads supported files from Google Drive. The API client
// is created on first use, so a process can start before the user authorizes.
type Drive struct {
	auth     *Auth
	pageSize int64
	opts     []option.ClientOption

	mu  sync.Mutex
	svc *drive.Service
}

// New returns a Drive that authorizes through auth. Extra options are passed
// to the API client.
func New(auth *Auth, pageSize int64, opts ...option.ClientOption) *Drive {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Drive{auth: auth, pageSize: pageSize, opts: opts}
}

// NewWithService wraps an already configured API client.
func NewWithService(svc *drive.Service, pageSize int64) *Drive {
	d := New(nil, pageSize)
	d.svc = svc
	return d
}

func (d *Drive) service(ctx context.Context) (*drive.Service, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.svc != nil {
		return d.svc, nil
	}
	if d.auth == nil {
		return nil, fmt.Errorf("%w: drive credentials are not configured", domain.ErrDriveUnavailable)
	}
	hc, err := d.auth.HTTPClient()
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, d.opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create drive client: %w", domain.ErrDriveUnavailable, err)
	}
	d.svc = svc
	return svc, nil
}

// ListFiles returns up to the page size of non-trashed PDF, DOCX and text files.
func (d *Drive) ListFiles(ctx context.Context) ([]domain.RemoteFile, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return nil, err
	}
	res, err := svc.Files.List().
		Q(mimeQuery()).
		PageSize(d.pageSize).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %w", domain.ErrDriveUnavailable, err)
	}
	out := make([]domain.RemoteFile, 0, len(res.Files))
	for _, f := range res.Files {
		out = append(out, domain.RemoteFile{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
	}
	return out, nil
}

// Download streams the content of file id into dst.
func (d *Drive) Download(ctx context.Context, id string, dst io.Writer) error {
	svc, err := d.service(ctx)
	if err != nil {
		return err
	}
	resp, err := svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("%w: download %s: %w", domain.ErrDriveUnavailable, id, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("%w: download %s: %w", domain.ErrDriveUnavailable, id, err)
	}
	return nil
}

func mimeQuery() string {
	types := make([]string, 0, len(MimeTypes))
	for t := range MimeTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("mimeType='%s'", t)
	}
	return "(" + strings.Join(parts, " or ") + ") and trashed=false"
}
