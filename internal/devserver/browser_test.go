package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func stubLauncher(t *testing.T) *[]string {
	t.Helper()
	var opened []string
	prev := launchBrowser
	launchBrowser = func(url string) error {
		opened = append(opened, url)
		return nil
	}
	t.Cleanup(func() { launchBrowser = prev })
	return &opened
}

func TestOpenBrowser_waitsForServer(t *testing.T) {
	opened := stubLauncher(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, OpenBrowser(context.Background(), srv.URL, 2*time.Second))
	require.Equal(t, []string{srv.URL}, *opened)
}

func TestOpenBrowser_serverNeverReady(t *testing.T) {
	opened := stubLauncher(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := OpenBrowser(context.Background(), url, 200*time.Millisecond)
	require.ErrorIs(t, err, ErrServerNotReady)
	require.Empty(t, *opened)
}

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos string
		want []string
	}{
		{goos: "darwin", want: []string{"open", "http://127.0.0.1:9999"}},
		{goos: "windows", want: []string{"rundll32", "url.dll,FileProtocolHandler", "http://127.0.0.1:9999"}},
		{goos: "linux", want: []string{"xdg-open", "http://127.0.0.1:9999"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd := browserCommand(tt.goos, "http://127.0.0.1:9999")
			require.Equal(t, tt.want, cmd.Args)
		})
	}
}
