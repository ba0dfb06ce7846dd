package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jx-codes/lootbox/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.ProjectToolDir = filepath.Join(dir, "tools")
	cfg.UserToolDir = ""
	cfg.DataDir = filepath.Join(dir, ".lootbox")
	return cfg
}

func TestNewConstructsWithoutStartingAnything(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, a.functionList())
}

func TestStartWithNoToolFilesReconcilesCleanly(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.ProjectToolDir, 0o755))

	a, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer a.Shutdown()

	assert.Empty(t, a.functionList())
}

func TestMuxServesHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientModuleURLIncludesToolVersion(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)

	url := a.clientModuleURL()
	assert.Contains(t, url, "/client.ts?v=")
}
