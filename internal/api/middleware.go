package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// withRequestID keeps a caller-supplied id when it is sane and assigns a
// UUID otherwise. The id is echoed in the response header.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// statusRecorder captures what a handler wrote for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// withAccessLog logs one line per request. Server errors log at warn.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := h.now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("elapsed", h.now().Sub(start)),
			zap.String("request_id", RequestID(r.Context())),
		}
		if rec.status >= http.StatusInternalServerError {
			h.logger.Warn("request", fields...)
			return
		}
		h.logger.Debug("request", fields...)
	})
}

// withRecovery turns a handler panic into a 500 envelope.
func (h *Handler) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			h.logger.Error("handler panic",
				zap.Any("panic", rv),
				zap.String("path", r.URL.Path),
				zap.String("request_id", RequestID(r.Context())),
				zap.Stack("stack"))
			writeJSON(w, http.StatusInternalServerError, Response{
				Error: &ErrorBody{Code: CodeInternal, Message: "internal error", RequestID: RequestID(r.Context())},
			})
		}()
		next.ServeHTTP(w, r)
	})
}


// withRouteErrors answers requests that match no route with the error
// envelope instead of ServeMux's plain-text 404 and 405.
func (h *Handler) withRouteErrors(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallback, pattern := mux.Handler(r)
		if pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}
		sink := &discardWriter{header: http.Header{}}
		fallback.ServeHTTP(sink, r)

		status, code := http.StatusNotFound, CodeNotFound
		msg := "no route for " + r.Method + " " + r.URL.Path
		if sink.status == http.StatusMethodNotAllowed {
			status, code = http.StatusMethodNotAllowed, CodeMethodNotAllowed
			msg = "method " + r.Method + " not allowed on " + r.URL.Path
			if allow := sink.header.Get("Allow"); allow != "" {
				w.Header().Set("Allow", allow)
			}
		}
		writeJSON(w, status, Response{Error: &ErrorBody{Code: code, Message: msg, RequestID: RequestID(r.Context())}})
	})
}

// discardWriter keeps the status and headers a handler writes and drops
// the body.
type discardWriter struct {
	header http.Header
	status int
}

func (d *discardWriter) Header() http.Header { return d.header }

func (d *discardWriter) WriteHeader(code int) {
	if d.status == 0 {
		d.status = code
	}
}

func (d *discardWriter) Write(b []byte) (int, error) {
	d.WriteHeader(http.StatusOK)
	return len(b), nil
}
