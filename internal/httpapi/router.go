package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ragbot/internal/logger"
)

// NewRouter mounts the API. Each request runs on its own goroutine, so a slow
// ingest or model call does not hold up other requests.
func NewRouter(log *logger.Logger, h *Handler) *gin.Engine {
	if log == nil {
		log = logger.Nop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.With("component", "http")))
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", h.Health)
	r.POST("/documents", h.Upload)
	r.POST("/ask", h.Ask)
	r.POST("/summary", h.Summary)
	r.DELETE("/knowledge-base", h.Reset)

	drive := r.Group("/drive")
	{
		drive.GET("/auth-url", h.DriveAuthURL)
		drive.POST("/auth", h.DriveAuth)
		drive.GET("/files", h.ListDriveFiles)
		drive.POST("/files/:id/ingest", h.IngestDriveFile)
	}
	return r
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"took", time.Since(started),
		)
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
