package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GriffinCanCode/proxyview/internal/guard"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const page = `<html><head><title>Example</title><script src="/app.js"></script></head>
<body><a href="/about" target="_blank">About</a><img src="y.jpg"></body></html>`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp(strings.NewReader(stdin), &out)
	err := app.Run(append([]string{"proxyview"}, args...))
	return out.String(), err
}

func TestRewriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o644))

	out, err := run(t, "", "rewrite", "--base", "https://ex.com/page", path)
	require.NoError(t, err)

	assert.Contains(t, out, `href="https://ex.com/about"`)
	assert.Contains(t, out, `src="https://ex.com/y.jpg"`)
	assert.Contains(t, out, "<!-- Script disabled for CORS prevention: https://ex.com/app.js -->")
	assert.Contains(t, out, guard.Script())
	assert.NotContains(t, out, "target=")
}

func TestRewriteStdin(t *testing.T) {
	out, err := run(t, page, "rewrite", "-b", "ex.com/dir/")
	require.NoError(t, err)
	assert.Contains(t, out, `<base href="https://ex.com/dir/"/>`)
	assert.Contains(t, out, `src="https://ex.com/dir/y.jpg"`)
}

func TestRewriteTitle(t *testing.T) {
	out, err := run(t, page, "rewrite", "--base", "https://ex.com/", "--title")
	require.NoError(t, err)
	assert.Equal(t, "Example\n", out)
}

func TestRewriteRequiresBase(t *testing.T) {
	_, err := run(t, page, "rewrite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base")
}

func TestFetch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page))
		case "/file.bin":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte{0, 1, 2})
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	t.Run("rewritten", func(t *testing.T) {
		out, err := run(t, "", "fetch", upstream.URL+"/")
		require.NoError(t, err)
		assert.Contains(t, out, `href="`+upstream.URL+`/about"`)
		assert.Contains(t, out, guard.Script())
	})

	t.Run("raw", func(t *testing.T) {
		out, err := run(t, "", "fetch", "--raw", upstream.URL+"/")
		require.NoError(t, err)
		assert.Equal(t, page, out)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := run(t, "", "fetch", upstream.URL+"/missing")
		require.Error(t, err)
		assert.Equal(t, "HTTP 404", err.Error())
	})

	t.Run("binary", func(t *testing.T) {
		_, err := run(t, "", "fetch", upstream.URL+"/file.bin")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported content type")
	})

	t.Run("needs one url", func(t *testing.T) {
		_, err := run(t, "", "fetch")
		require.Error(t, err)
	})
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxyview.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = \"9000\"\n\n[render]\nmax_documents = 7\n"), 0o644))

	var cfg *config.Config
	app := &cli.App{
		Flags: serveFlags(),
		Action: func(c *cli.Context) error {
			var err error
			cfg, err = loadConfig(c)
			return err
		},
	}
	require.NoError(t, app.Run([]string{"proxyview", "--config", path, "--port", "9100", "--dev", "--open", "ex.com", "--no-external"}))

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 7, cfg.Render.MaxDocuments)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "ex.com", cfg.Navigation.StartURL)
	assert.False(t, cfg.Navigation.OpenExternal)
}

func TestServeRejectsUnknownCommand(t *testing.T) {
	_, err := run(t, "", "extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "extra"`)
}
