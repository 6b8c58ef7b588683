package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecovery_PanicBecomesEnvelope(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := &Handler{logger: zap.New(core)}
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	withRequestID(h.withRecovery(boom)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, CodeInternal, body.Error.Code)
	assert.Equal(t, "internal error", body.Error.Message)
	assert.NotEmpty(t, body.Error.RequestID)

	require.Equal(t, 1, logs.FilterMessage("handler panic").Len())
}

func TestAccessLog_RecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := &Handler{logger: zap.New(core), now: time.Now}
	teapot := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	rec := httptest.NewRecorder()
	h.withAccessLog(teapot).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pot", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, int64(len("short and stout")), fields["bytes"])
	assert.Equal(t, "/api/pot", fields["path"])
}

func TestInternalErrorsHideDetails(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := &Handler{logger: zap.New(core)}

	rec := httptest.NewRecorder()
	h.fail(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil), assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	assert.Equal(t, 1, logs.Len())
}
