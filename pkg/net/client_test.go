package net

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cellenum/pkg/core"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestClient_StatusAndExcerpt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	c := NewClient(quietLog())
	res := c.Request(core.Target{URL: srv.URL + "/config.json"}, time.Second)

	assert.Empty(t, res.RawError)
	assert.Equal(t, 403, res.StatusCode)
	assert.Len(t, res.BodyExcerpt, bodyExcerptLimit)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(quietLog())
	res := c.Request(core.Target{URL: srv.URL}, 50*time.Millisecond)

	assert.Equal(t, "timeout", res.RawError)
	assert.Zero(t, res.StatusCode)
}

func TestClient_ConnectFailureIsRetryableData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(quietLog())
	res := c.Request(core.Target{URL: url}, time.Second)

	assert.True(t, strings.HasPrefix(res.RawError, "connect:"), "got %q", res.RawError)
	assert.Zero(t, res.StatusCode)
}
