package httpmw

import "net/http"

// MaxBody caps how much of a request body a handler can read. Requests are
// never rejected up front: the app routes ignore bodies, so an oversized one
// must not stop a mutation from running.
func MaxBody(bytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, bytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
