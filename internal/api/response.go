package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Error codes carried in failed responses.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeConflict         = "CONFLICT"
	CodeValidation       = "VALIDATION_ERROR"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeUnsupported      = "UNSUPPORTED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// Meta accompanies successful responses.
type Meta struct {
	RequestID  string           `json:"requestId,omitempty"`
	Timestamp  string           `json:"timestamp"`
	Pagination *devlog.PageMeta `json:"pagination,omitempty"`
}

// ErrorBody describes a failure.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// respond writes a success envelope. GET responses carry a strong ETag
// over the data, and a matching If-None-Match gets 304 with no body.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, data any, page *devlog.PageMeta) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if r.Method == http.MethodGet && status == http.StatusOK {
		tag := etag(raw, page)
		w.Header().Set("ETag", tag)
		if r.Header.Get("If-None-Match") == tag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	writeJSON(w, status, Response{
		Success: true,
		Data:    raw,
		Meta: &Meta{
			RequestID:  RequestID(r.Context()),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Pagination: page,
		},
	})
}

// etag hashes the data and the pagination, so two pages with the same
// items but different totals differ.
func etag(data []byte, page *devlog.PageMeta) string {
	hasher := blake3.New()
	_, _ = hasher.Write(data)
	if page != nil {
		p, _ := json.Marshal(page)
		_, _ = hasher.Write(p)
	}
	sum := hasher.Sum(nil)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// fail maps err to a status and code and writes the error envelope.
// Internal errors are logged and their text is not sent.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, Response{Error: &ErrorBody{Code: code, Message: msg, RequestID: RequestID(r.Context())}})
}

func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, storage.ErrInvalid):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, storage.ErrUnsupported):
		return http.StatusNotImplemented, CodeUnsupported
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
