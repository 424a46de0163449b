package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saransh1220/s3files/internal/gateway/middleware"
	events_http "github.com/saransh1220/s3files/internal/modules/events/interfaces/http"
	files_http "github.com/saransh1220/s3files/internal/modules/storedfile/interfaces/http"
)

// RouterConfig holds all the handlers and middleware needed for routing
type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleWare
	FileHandler    *files_http.FileHandler
	EventHandler   *events_http.EventHandler
}

// SetupRoutes creates and configures all application routes
func SetupRoutes(config RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()
	auth := config.AuthMiddleware
	required := func(h http.HandlerFunc) http.Handler { return auth.RequireAuth(h) }
	optional := func(h http.HandlerFunc) http.Handler { return auth.FlexibleAuth(h) }

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Files
	files := config.FileHandler
	mux.Handle("POST /files", required(files.Upload))
	mux.Handle("POST /files/import", required(files.Import))
	mux.Handle("GET /files", required(files.List))
	mux.Handle("GET /files/{hash}", optional(files.Get))
	mux.Handle("GET /files/{hash}/content", optional(files.Content))
	mux.Handle("GET /files/{hash}/derivations/{name}", optional(files.GetDerivation))
	mux.Handle("POST /files/{hash}/derivations/{name}", required(files.GenerateDerivation))
	mux.Handle("POST /files/{hash}/keep", required(files.Keep))
	mux.Handle("DELETE /files/{hash}", required(files.Delete))

	// Events
	mux.Handle("GET /ws", auth.RequireAuthWebSocket(http.HandlerFunc(config.EventHandler.Subscribe)))
	mux.Handle("GET /events", required(config.EventHandler.List))

	return mux
}
