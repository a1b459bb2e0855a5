package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomearr/tomearr/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Database.Path = filepath.Join(dir, "tomearr.db")
	cfg.Library.Root = dir
	cfg.Library.WorkDir = filepath.Join(dir, "work")
	cfg.Scheduler.Interval = config.Duration(2 * time.Second)
	cfg.Indexers = map[string]config.IndexerConfig{
		"nzb-one": {URL: "http://127.0.0.1:1", APIKey: "key", Protocol: "usenet"},
	}
	return cfg
}

func TestRunner_StartsAndStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewRunner(testConfig(t), logger)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()

	// Give components time to start.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for runner to stop")
	}
}

func TestNewRunner_DefaultLogger(t *testing.T) {
	runner := NewRunner(testConfig(t), nil)
	require.NotNil(t, runner)
	require.NotNil(t, runner.logger)
}

func TestResponseRecorder_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := &responseRecorder{ResponseWriter: rec}

	wrapped.WriteHeader(http.StatusNotFound)
	wrapped.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusNotFound, wrapped.status)
}

func TestLogRequests_PassesThrough(t *testing.T) {
	handler := logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
