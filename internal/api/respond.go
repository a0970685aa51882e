package api

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/export"
	"github.com/sells-group/afm-api/internal/listcache"
	"github.com/sells-group/afm-api/internal/resolve"
	"github.com/sells-group/afm-api/internal/service"
	"github.com/sells-group/afm-api/internal/store"
)

// Error classifications carried in the "error" field.
const (
	errNotFound       = "not_found"
	errBadRequest     = "bad_request"
	errRateLimited    = "rate_limited"
	errRebuildFailed  = "rebuild_failed"
	errStorageFailure = "storage_failure"
)

var errThrottled = eris.New("api: rebuild throttled")

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Total   *int   `json:"total,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func intp(n int) *int { return &n }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, body envelope) {
	body.Success = true
	writeJSON(w, http.StatusOK, body)
}

// classify maps an error onto an HTTP status and classification.
func classify(err error) (int, string) {
	switch {
	case eris.Is(err, resolve.ErrNotFound), eris.Is(err, listcache.ErrNoArtifact):
		return http.StatusNotFound, errNotFound
	case eris.Is(err, store.ErrInvalidTool),
		eris.Is(err, service.ErrInvalidArgument),
		eris.Is(err, resolve.ErrInvalidName),
		eris.Is(err, export.ErrUnsupported):
		return http.StatusBadRequest, errBadRequest
	case eris.Is(err, errThrottled):
		return http.StatusTooManyRequests, errRateLimited
	case eris.Is(err, listcache.ErrNoSurvivors):
		return http.StatusUnprocessableEntity, errRebuildFailed
	default:
		return http.StatusInternalServerError, errStorageFailure
	}
}

// writeError writes the error body for err. Server-side failures are
// logged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, tool string, err error) {
	status, class := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, envelope{
		Error:   class,
		Message: err.Error(),
		Tool:    tool,
	})
}
