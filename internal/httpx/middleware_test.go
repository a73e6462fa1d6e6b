package httpx

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
	log.SetOutput(io.Discard)
}

func TestRequestID_MintsWhenAbsent(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	echoed := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, echoed)
	_, err := uuid.Parse(echoed)
	assert.NoError(t, err)
	assert.Equal(t, echoed, seen)
}

func TestRequestID_EchoesCallerID(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "trace-me-7")
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-me-7", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "trace-me-7", seen)
}

func TestRequestIDFrom_EmptyWithoutMiddleware(t *testing.T) {
	r := gin.New()
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, seen)
}

func TestLogger_PassesRequestThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/sweets", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/healthz", "/api/sweets"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
