package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "certexport/pkg/domain-errors"
)

// MaxBodyBytes caps JSON request bodies. Certificates with embedded
// templates stay well below it.
const MaxBodyBytes = 4 << 20

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// DecodeJSON decodes and validates a JSON request body. On failure it
// writes the error response and returns nil, false.
//
// Usage:
//
//	req, ok := httputil.DecodeJSON[ImportRequest](w, r, h.logger)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	ctx := r.Context()
	var req T
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body", "error", err)
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return nil, false
	}

	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request", "error", err)
			var domainErr *dErrors.Error
			if errors.As(err, &domainErr) {
				WriteError(w, err)
			} else {
				WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
			}
			return nil, false
		}
	}
	return &req, true
}
