package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"gptchat/pkg/api/handlers"
)

// Handler returns the chat API router. Everything lives under /v1
// except the login page the route guard redirects to.
func Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/login", loginPage).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterAuth(v1)
	// events routes must register ahead of /threads/{id} so the literal
	// "events" segment is not captured as a thread id
	handlers.RegisterEvents(v1)
	handlers.RegisterThreads(v1)
	handlers.RegisterChat(v1)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	return r
}

const loginHTML = `<!doctype html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<p>POST your email to <code>/v1/auth/login</code> to receive a session.</p>
</body>
</html>
`

// loginPage is the neutral landing route unauthenticated visitors are
// redirected to.
func loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loginHTML))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"not found"}`))
}
