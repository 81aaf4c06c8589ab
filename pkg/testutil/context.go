package testutil

import (
	"net/http"

	"treasury/pkg/requestcontext"
)

// WithCaller marks the request as authenticated by caller, which is what the
// auth middleware does for a verified bearer token.
func WithCaller(req *http.Request, caller string) *http.Request {
	if caller == "" {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}
