package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRouter(t *testing.T) {
	router := NewRouter(testRouterConfig(), "http://localhost:4200")

	assert.NotNil(t, router.Handler())
}

func TestRouter_HandlerAppliesCORS(t *testing.T) {
	router := NewRouter(testRouterConfig(), "http://localhost:4200")

	req := httptest.NewRequest(http.MethodOptions, "/files", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_HandlerServesRoutes(t *testing.T) {
	router := NewRouter(testRouterConfig(), "*")

	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
