package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kiwix-monitor-go/api/middleware"
)

func withServer(t *testing.T, secret string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.BearerAuth(secret))
	r.GET("/api/v1/thing", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": middleware.SubjectFrom(c)})
	})
	r.POST("/api/v1/thing", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"error": "session coordinator stopped"})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	prevURL, prevSecret := serverURL, authSecret
	serverURL, authSecret = server.URL, secret
	t.Cleanup(func() { serverURL, authSecret = prevURL, prevSecret })
}

func TestAPIRequestSignsToken(t *testing.T) {
	withServer(t, "s3cret")

	var out struct {
		Subject string `json:"subject"`
	}
	require.NoError(t, apiRequest(http.MethodGet, "/api/v1/thing", nil, &out))
	assert.Equal(t, "cli", out.Subject)
}

func TestAPIRequestSurfacesError(t *testing.T) {
	withServer(t, "")

	err := apiRequest(http.MethodPost, "/api/v1/thing", map[string]string{"action": "x"}, nil, http.StatusAccepted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session coordinator stopped")
	assert.Contains(t, err.Error(), "409")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("4294967296")
	assert.Error(t, err)
	_, err = parseID("abc")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
