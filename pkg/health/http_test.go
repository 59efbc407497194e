package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker_HealthyEndpointCarriesBodyPreview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<title>Antminer S19</title>"))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())

	require.True(t, result.Healthy, result.Message)
	assert.Contains(t, result.Body, "Antminer")
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestHTTPChecker_ServerErrorIsUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "expected 200-399")
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithStatusRange(200, 299).Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
}

func TestHTTPChecker_BodyPreviewIsBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		big := make([]byte, 64*1024)
		_, _ = w.Write(big)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())
	require.True(t, result.Healthy)
	assert.LessOrEqual(t, len(result.Body), defaultBodyLimit)
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewHTTPChecker(server.URL).Check(ctx)
	assert.False(t, result.Healthy)
}

func TestHTTPChecker_Type(t *testing.T) {
	assert.Equal(t, CheckTypeHTTP, NewHTTPChecker("http://example.com").Type())
}
