// Package httputil writes JSON responses and the error envelope shared by
// every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "certexport/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into its status and envelope.
// Server-side failures omit the description so internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: string(dErrors.CodeInternal)})
		return
	}

	status := dErrors.ToHTTPStatus(domainErr.Code)
	response := ErrorResponse{Error: string(domainErr.Code)}
	if status < http.StatusInternalServerError || status == http.StatusGatewayTimeout {
		response.Description = domainErr.Message
	}
	WriteJSON(w, status, response)
}
