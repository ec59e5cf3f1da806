package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragbot/internal/domain"
	"ragbot/internal/service"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// classify maps a service failure to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var herr *domain.HTTPError
	switch {
	case errors.As(err, &herr):
		return http.StatusBadGateway, "llm_http_error"
	case errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway, "llm_malformed_response"
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.Is(err, domain.ErrCorruptFile):
		return http.StatusUnprocessableEntity, "corrupt_file"
	case errors.Is(err, domain.ErrEncoding):
		return http.StatusUnprocessableEntity, "encoding_error"
	case errors.Is(err, domain.ErrIndexIncompatible):
		return http.StatusConflict, "index_incompatible"
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable"
	case errors.Is(err, domain.ErrDriveUnavailable):
		return http.StatusServiceUnavailable, "drive_unavailable"
	case errors.Is(err, service.ErrRemoteFileNotFound):
		return http.StatusNotFound, "remote_file_not_found"
	case errors.Is(err, service.ErrEmptyQuestion):
		return http.StatusBadRequest, "empty_question"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrStorage):
		return http.StatusInternalServerError, "storage_error"
	}
	return http.StatusInternalServerError, "internal"
}
