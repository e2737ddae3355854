package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	MCP       http.HandlerFunc
	ToolCall  http.HandlerFunc
	Users     http.HandlerFunc
	Sessions  http.HandlerFunc
	ExportCSV http.HandlerFunc
	Health    http.HandlerFunc

	// Auth, when set, wraps the tool-call endpoints.
	Auth func(http.Handler) http.Handler

	// StaticDir, when set, is served at the web root.
	StaticDir string
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	guard := routes.Auth
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}

	if routes.MCP != nil {
		mux.Handle("/mcp", guard(method(http.MethodPost, routes.MCP)))
	}
	if routes.ToolCall != nil {
		mux.Handle("/api/tools/call", guard(method(http.MethodPost, routes.ToolCall)))
	}
	if routes.Users != nil {
		mux.Handle("/api/users", method(http.MethodGet, routes.Users))
	}
	if routes.Sessions != nil {
		mux.Handle("/api/sessions", method(http.MethodGet, routes.Sessions))
	}
	if routes.ExportCSV != nil {
		mux.Handle("/export.csv", method(http.MethodGet, routes.ExportCSV))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(routes.StaticDir)))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
