package devserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
	"github.com/wolfeidau/assetpack/internal/proxy"
)

func newTestServer(t *testing.T, table proxy.Table) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	dist := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html>shell</html>"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "app_ABC.js"), []byte(strings.Repeat("console.log('x');\n", 512)), 0600))

	s, err := New(buildconfig.Build(root, buildconfig.Development, table), zerolog.Nop())
	require.NoError(t, err)
	return s, dist
}

func TestNew_production(t *testing.T) {
	_, err := New(buildconfig.Build(t.TempDir(), buildconfig.Production, nil), zerolog.Nop())
	require.ErrorIs(t, err, ErrNotDevelopment)
}

func TestNew_invalidProxyTable(t *testing.T) {
	_, err := New(buildconfig.Build(t.TempDir(), buildconfig.Development, proxy.Table{"/api": {Target: "nope"}}), zerolog.Nop())
	require.ErrorIs(t, err, proxy.ErrInvalidTable)
}

func TestServer_Addr(t *testing.T) {
	s, _ := newTestServer(t, nil)
	require.Equal(t, "127.0.0.1:9999", s.Addr())
	require.Equal(t, "http://127.0.0.1:9999", s.URL())
}

func TestServer_static(t *testing.T) {
	s, _ := newTestServer(t, nil)
	handler := s.Handler()

	tests := []struct {
		name     string
		path     string
		accept   string
		status   int
		contains string
	}{
		{name: "bundle", path: "/app_ABC.js", status: http.StatusOK, contains: "console.log"},
		{name: "history fallback", path: "/dashboard/settings", accept: "text/html,application/xhtml+xml", status: http.StatusOK, contains: "shell"},
		{name: "missing asset", path: "/missing.js", accept: "text/html", status: http.StatusNotFound},
		{name: "api style request", path: "/dashboard", accept: "application/json", status: http.StatusNotFound},
		{name: "root", path: "/", accept: "text/html", status: http.StatusOK, contains: "shell"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.contains != "" {
				require.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestServer_gzip(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/app_ABC.js", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestServer_proxy(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "first:"+r.URL.Path)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "second:"+r.URL.Path)
	}))
	defer second.Close()

	s, _ := newTestServer(t, proxy.Table{"/api": {Target: first.URL}})
	handler := s.Handler()

	get := func(path string) string {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Body.String()
	}

	require.Equal(t, "first:/api/users", get("/api/users"))

	require.NoError(t, s.SetProxyTable(proxy.Table{"/api": {Target: second.URL}}))
	require.Equal(t, "second:/api/users", get("/api/users"))

	require.Error(t, s.SetProxyTable(proxy.Table{"/api": {}}))
	require.Equal(t, "second:/api/users", get("/api/users"), "failed swap keeps previous routes")
}

func TestServer_cors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/app_ABC.js", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/app_ABC.js", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_hotReload(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + assets.ReloadPath
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Reload(&assets.Result{BuildID: "build-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, Message{Type: "reload", Build: "build-1"}, msg)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_ListenAndServeShutdown(t *testing.T) {
	s, _ := newTestServer(t, nil)
	// use an ephemeral port so the test does not collide with a running dev server
	s.config.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("dev server did not shut down")
	}
}

func TestSameHostOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:9999/__assetpack/ws", nil)
	require.True(t, sameHostOrigin(req))

	req.Header.Set("Origin", "http://127.0.0.1:9999")
	require.True(t, sameHostOrigin(req))

	req.Header.Set("Origin", "http://evil.example.com")
	require.False(t, sameHostOrigin(req))
}
