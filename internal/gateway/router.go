package gateway

import (
	"net/http"

	"github.com/saransh1220/s3files/internal/gateway/middleware"
)

// Router owns the route table and the middleware wrapped around it.
type Router struct {
	mux            *http.ServeMux
	allowedOrigins string
}

func NewRouter(config RouterConfig, allowedOrigins string) *Router {
	return &Router{mux: SetupRoutes(config), allowedOrigins: allowedOrigins}
}

// Handler returns the route table behind CORS and request metrics. CORS is
// outermost so preflight requests never reach the mux.
func (r *Router) Handler() http.Handler {
	return middleware.CORSMiddleware(middleware.PrometheusMiddleware(r.mux), r.allowedOrigins)
}
