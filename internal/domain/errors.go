package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptFile       = errors.New("corrupt document")
	ErrEncoding          = errors.New("document is not valid UTF-8")
	ErrModelUnavailable  = errors.New("embedding model unavailable")
	ErrIndexIncompatible = errors.New("index was built with a different embedding model")
	ErrNoIndex           = errors.New("knowledge base not found")
	ErrMalformedResponse = errors.New("malformed LLM response")
	ErrStorage           = errors.New("storage error")
	ErrDriveUnavailable  = errors.New("remote drive not connected")
)

// HTTPError is a non-success reply from a remote API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Body == "" {
		return fmt.Sprintf("llm request failed: status %d", e.Status)
	}
	return fmt.Sprintf("llm request failed: status %d: %s", e.Status, e.Body)
}
