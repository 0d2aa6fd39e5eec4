package httpx

import (
	"net/http"

	"github.com/valyala/fasthttp"
)

// HealthHandler reports liveness and readiness in one payload, written
// against the adapter-neutral handler signature so the same handler
// serves both engines.
func HealthHandler(version string, ready func() bool) HandlerFunc {
	return func(w ResponseWriter, r *Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Path == "/readyz" && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","version":"` + version + `"}`))
	}
}

// ListenAndServe runs a standalone health listener on addr. Engine is
// "fasthttp" or "nethttp"; anything else falls back to net/http. Blocks
// until the listener fails.
func ListenAndServe(engine, addr string, h HandlerFunc) error {
	if engine == "fasthttp" {
		return fasthttp.ListenAndServe(addr, FastHTTPAdapter(h))
	}
	return http.ListenAndServe(addr, NetHTTPAdapter(h))
}
