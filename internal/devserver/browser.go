package devserver

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// launchBrowser starts the platform browser for url, replaced in tests.
var launchBrowser = func(url string) error {
	cmd := browserCommand(runtime.GOOS, url)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func browserCommand(goos, url string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return exec.Command("xdg-open", url)
	}
}

// OpenBrowser waits for url to answer, then opens it in the default browser.
func OpenBrowser(ctx context.Context, url string, maxWait time.Duration) error {
	client := &http.Client{Timeout: time.Second}

	operation := func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond

	status, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(maxWait),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerNotReady, err)
	}

	log.Info().Str("url", url).Int("status", status).Msg("Opening browser")
	return launchBrowser(url)
}
