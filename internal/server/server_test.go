package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wabiz/internal/auth"
)

type routes struct{}

func (routes) Register(e *echo.Echo) {
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/health", ok)
	e.GET("/webhook", ok)
	e.GET("/api/contacts", ok)
}

func TestServerGuardsAPIRoutes(t *testing.T) {
	srv := NewServer(nil, Options{JWTSecret: "secret", CORSOrigins: []string{"https://app.example.com"}}, routes{}, nil)
	e := srv.Echo()

	for _, path := range []string{"/health", "/webhook"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contacts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := auth.GenerateToken("operator", "secret", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
