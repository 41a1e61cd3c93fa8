package api_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"library-api/internal/api"
	mw "library-api/internal/api/middleware"
	"library-api/internal/config"
	"library-api/internal/domain/book"
	"library-api/internal/domain/loan"
	"library-api/internal/infrastructure/database/memory"
	"library-api/internal/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, auth config.AuthConfig) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	books := book.NewService(memory.NewBookRepository(store), logger)
	loans := loan.NewService(memory.NewLoanRepository(store), logger)
	svc := library.NewService(books, loans, logger)

	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimit: config.RateLimitConfig{Enabled: false},
			Auth:      auth,
		},
		Metrics: config.MetricsConfig{Path: "/metrics"},
	}
	return api.SetupRouter(svc, mw.NewMemoryLimiter(100, 100), cfg, logger)
}

func send(t *testing.T, h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, config.AuthConfig{})

	rec := send(t, router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = send(t, router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLendingFlow(t *testing.T) {
	router := newTestRouter(t, config.AuthConfig{})

	rec := send(t, router, http.MethodPost, "/api/v1/books", `{"title":"As Aventuras","author":"Artur","isbn":"001"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1,"title":"As Aventuras","author":"Artur","isbn":"001"}`, rec.Body.String())

	rec = send(t, router, http.MethodPost, "/api/v1/loans", `{"isbn":"001","customer":"Fulano","email":"fulano@email.com"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())

	rec = send(t, router, http.MethodPost, "/api/v1/loans", `{"isbn":"001","customer":"Beltrano"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"errors":["Book is currently loaned!"]}`, rec.Body.String())

	rec = send(t, router, http.MethodGet, "/api/v1/books/1/availability", "", "")
	assert.JSONEq(t, `{"bookId":1,"available":false}`, rec.Body.String())

	rec = send(t, router, http.MethodPatch, "/api/v1/loans/1", `{"returned":true}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, router, http.MethodGet, "/api/v1/books/1/availability", "", "")
	assert.JSONEq(t, `{"bookId":1,"available":true}`, rec.Body.String())

	rec = send(t, router, http.MethodGet, "/api/v1/loans?customer=Fulano", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalElements":1`)

	rec = send(t, router, http.MethodGet, "/api/v1/books?title=aven", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"As Aventuras"`)

	rec = send(t, router, http.MethodPatch, "/api/v1/loans/99", `{"returned":true}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"errors":["Book referred to by 99 does not exist!"]}`, rec.Body.String())

	rec = send(t, router, http.MethodPost, "/api/v1/loans", `{"isbn":"123","customer":"Fulano"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"errors":["Book not found for provided Isbn!"]}`, rec.Body.String())
}

func TestAuthProtectsApiRoutes(t *testing.T) {
	router := newTestRouter(t, config.AuthConfig{Enabled: true, JWTSecret: "secret", TokenTTL: time.Hour})

	rec := send(t, router, http.MethodGet, "/api/v1/books", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := mw.IssueToken("secret", "alice", time.Hour, time.Now())
	require.NoError(t, err)
	rec = send(t, router, http.MethodGet, "/api/v1/books", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, router, http.MethodPost, "/api/v1/auth/token", `{"username":"alice"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code, "token endpoint is public")

	rec = send(t, router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
