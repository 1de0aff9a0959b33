package testutil

import (
	"net/http"

	"certexport/pkg/requestcontext"
)

// WithSubject adds an authenticated subject and its scopes to the request
// context, the way RequireAuth does after validating a bearer token.
func WithSubject(req *http.Request, subject string, scopes ...string) *http.Request {
	ctx := requestcontext.WithSubject(req.Context(), subject)
	ctx = requestcontext.WithScopes(ctx, scopes)
	return req.WithContext(ctx)
}
