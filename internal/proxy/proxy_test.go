package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_yamlMixedForms(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "serverProxy.yaml", `
/api: http://localhost:3000
/auth:
  target: https://auth.example.com
  changeOrigin: true
  secure: false
  pathRewrite:
    "^/auth": ""
`)

	table, err := Load(path)
	require.NoError(t, err)
	require.Len(t, table, 2)
	require.Equal(t, Rule{Target: "http://localhost:3000"}, table["/api"])

	auth := table["/auth"]
	require.Equal(t, "https://auth.example.com", auth.Target)
	require.True(t, auth.ChangeOrigin)
	require.False(t, auth.VerifyTLS())
	require.Equal(t, map[string]string{"^/auth": ""}, auth.PathRewrite)
}

func TestLoad_json(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "serverProxy.json", `{"/api": {"target": "http://127.0.0.1:8080", "changeOrigin": true}}`)

	table, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Table{"/api": {Target: "http://127.0.0.1:8080", ChangeOrigin: true}}, table)
	require.True(t, table["/api"].VerifyTLS())
}

func TestLoad_missingTarget(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "serverProxy.yaml", "/api:\n  changeOrigin: true\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidTable)
}

func TestLoad_malformed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "serverProxy.yaml", "/api: [unterminated\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	t.Run("no table file", func(t *testing.T) {
		table, path, err := LoadDir(t.TempDir())
		require.NoError(t, err)
		require.Empty(t, path)
		require.Empty(t, table)
	})

	t.Run("yaml preferred over json", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "serverProxy.json", `{"/json": "http://localhost:1"}`)
		yamlPath := writeFile(t, dir, "serverProxy.yaml", "/yaml: http://localhost:2\n")

		table, path, err := LoadDir(dir)
		require.NoError(t, err)
		require.Equal(t, yamlPath, path)
		require.Contains(t, table, "/yaml")
	})
}

func TestRouter_Match(t *testing.T) {
	router, err := NewRouter(Table{
		"/api":          {Target: "http://localhost:3000"},
		"/api/v2":       {Target: "http://localhost:3002"},
		"/static/**.js": {Target: "http://localhost:4000"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, router.Len())

	tests := []struct {
		name    string
		path    string
		pattern string
		found   bool
	}{
		{name: "prefix", path: "/api/users", pattern: "/api", found: true},
		{name: "longest prefix wins", path: "/api/v2/users", pattern: "/api/v2", found: true},
		{name: "glob", path: "/static/js/app.js", pattern: "/static/**.js", found: true},
		{name: "glob mismatch", path: "/static/css/app.css", found: false},
		{name: "no match", path: "/index.html", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern, _, ok := router.Match(tt.path)
			require.Equal(t, tt.found, ok)
			require.Equal(t, tt.pattern, pattern)
		})
	}
}

func TestNewRouter_invalid(t *testing.T) {
	_, err := NewRouter(Table{"/api": {Target: "not a url"}})
	require.ErrorIs(t, err, ErrInvalidTable)

	_, err = NewRouter(Table{"/api": {Target: "http://localhost", PathRewrite: map[string]string{"(": ""}}})
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestRouter_Handler(t *testing.T) {
	var gotPath, gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHost = r.Host
		_, _ = io.WriteString(w, "upstream")
	}))
	defer upstream.Close()

	router, err := NewRouter(Table{
		"/api": {Target: upstream.URL, ChangeOrigin: true, PathRewrite: map[string]string{"^/api": ""}},
	})
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "local")
	})
	handler := router.Handler(next)

	t.Run("proxied with rewrite", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "upstream", rec.Body.String())
		require.Equal(t, "/users", gotPath)
		require.Equal(t, upstream.Listener.Addr().String(), gotHost)
	})

	t.Run("falls through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
		require.Equal(t, "local", rec.Body.String())
	})
}

func TestRouter_upstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	router, err := NewRouter(Table{"/api": {Target: target}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.Handler(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWatch_reloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "serverProxy.yaml", "/api: http://localhost:1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Table, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(table Table) {
			select {
			case changes <- table:
			default:
			}
		})
	}()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "serverProxy.yaml", "/api: http://localhost:2\n")

	// a truncate may surface as its own write event, so wait for the final content
	timeout := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case table := <-changes:
			reloaded = table["/api"].Target == "http://localhost:2"
		case <-timeout:
			t.Fatal("timed out waiting for proxy table reload")
		}
	}

	cancel()
	require.NoError(t, <-done)
}
