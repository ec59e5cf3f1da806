package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragbot/internal/domain"
	"ragbot/internal/logger"
	"ragbot/internal/service"
)

// DriveAuth runs the OAuth consent flow for the remote drive.
type DriveAuth interface {
	URL() string
	Exchange(ctx context.Context, code string) error
	Authorized() bool
}

type Handler struct {
	log  *logger.Logger
	svc  domain.RAGService
	auth DriveAuth
}

// NewHandler returns the API handlers. auth may be nil when no drive is
// configured.
func NewHandler(log *logger.Logger, svc domain.RAGService, auth DriveAuth) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{log: log.With("handler", "Handler"), svc: svc, auth: auth}
}

type reportResponse struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Chars  int    `json:"chars"`
	Chunks int    `json:"chunks"`
	Digest string `json:"digest,omitempty"`
}

func toReport(r domain.IngestReport) reportResponse {
	return reportResponse{
		Name:   r.Document.Name,
		Kind:   r.Document.Kind.String(),
		Chars:  r.Chars,
		Chunks: r.Chunks,
		Digest: r.Digest,
	}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "op", op, "code", code, "error", err)
	} else {
		h.log.Warn("request rejected", "op", op, "code", code, "error", err)
	}
	RespondError(c, status, code, err)
}

// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// POST /documents
// Multipart upload in the "file" field. Replaces the knowledge base.
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	report, err := h.svc.IngestUpload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		h.fail(c, "upload", err)
		return
	}
	RespondOK(c, toReport(report))
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// POST /ask
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	answer, err := h.svc.Answer(c.Request.Context(), req.Question)
	if err != nil {
		h.fail(c, "ask", err)
		return
	}
	RespondOK(c, gin.H{"answer": answer, "knowledge_base": answer != service.NoKnowledgeBaseMessage})
}

// POST /summary
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.svc.Summarize(c.Request.Context())
	if err != nil {
		h.fail(c, "summary", err)
		return
	}
	RespondOK(c, gin.H{"summary": summary, "knowledge_base": summary != service.NoKnowledgeBaseMessage})
}

// DELETE /knowledge-base
func (h *Handler) Reset(c *gin.Context) {
	existed, err := h.svc.Reset(c.Request.Context())
	if err != nil {
		h.fail(c, "reset", err)
		return
	}
	RespondOK(c, gin.H{"existed": existed})
}

type fileResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// GET /drive/files
func (h *Handler) ListDriveFiles(c *gin.Context) {
	files, err := h.svc.ListRemote(c.Request.Context())
	if err != nil {
		h.fail(c, "drive_list", err)
		return
	}
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, fileResponse{ID: f.ID, Name: f.Name, MimeType: f.MimeType})
	}
	RespondOK(c, gin.H{"files": out})
}

// POST /drive/files/:id/ingest
func (h *Handler) IngestDriveFile(c *gin.Context) {
	report, err := h.svc.IngestRemote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "drive_ingest", err)
		return
	}
	RespondOK(c, toReport(report))
}

// GET /drive/auth-url
func (h *Handler) DriveAuthURL(c *gin.Context) {
	if h.auth == nil {
		RespondError(c, http.StatusServiceUnavailable, "drive_unavailable", domain.ErrDriveUnavailable)
		return
	}
	RespondOK(c, gin.H{"url": h.auth.URL(), "authorized": h.auth.Authorized()})
}

type authRequest struct {
	Code string `json:"code" binding:"required"`
}

// POST /drive/auth
func (h *Handler) DriveAuth(c *gin.Context) {
	if h.auth == nil {
		RespondError(c, http.StatusServiceUnavailable, "drive_unavailable", domain.ErrDriveUnavailable)
		return
	}
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.auth.Exchange(c.Request.Context(), req.Code); err != nil {
		h.fail(c, "drive_auth", err)
		return
	}
	RespondOK(c, gin.H{"authorized": true})
}
