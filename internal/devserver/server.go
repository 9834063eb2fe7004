package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
	"github.com/wolfeidau/assetpack/internal/logger"
	"github.com/wolfeidau/assetpack/internal/proxy"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server hosts the build output of a development configuration.
type Server struct {
	config *buildconfig.DevServerConfig
	router atomic.Pointer[proxy.Router]
	hub    *Hub
	logger zerolog.Logger
}

// New creates a dev server for cfg, which must be a development configuration.
func New(cfg *buildconfig.BuildConfig, logger zerolog.Logger) (*Server, error) {
	if cfg.DevServer == nil || !cfg.Mode.IsDevelopment() {
		return nil, ErrNotDevelopment
	}

	s := &Server{
		config: cfg.DevServer,
		hub:    NewHub(),
		logger: logger,
	}

	if err := s.SetProxyTable(cfg.DevServer.Proxy); err != nil {
		return nil, err
	}

	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// URL returns the address browsers should open.
func (s *Server) URL() string {
	return (&url.URL{Scheme: "http", Host: s.Addr()}).String()
}

// SetProxyTable compiles table and swaps it in for subsequent requests.
func (s *Server) SetProxyTable(table proxy.Table) error {
	router, err := proxy.NewRouter(table)
	if err != nil {
		return fmt.Errorf("failed to compile proxy table: %w", err)
	}
	s.router.Store(router)
	return nil
}

// Reload tells connected browsers a new build is available.
func (s *Server) Reload(res *assets.Result) {
	if !s.config.HotReload || res == nil {
		return
	}
	s.hub.Broadcast(Message{Type: "reload", Build: res.BuildID})
}

// Hub returns the hot reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the root handler: hot reload socket, proxy routes, then the
// content root with history fallback.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.config.HotReload {
		mux.Handle(assets.ReloadPath, s.hub)
	}

	static := gzhttp.GzipHandler(s.staticHandler())
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.router.Load().ServeOrNext(w, r, static)
	}))

	corsHandler := cors.New(cors.Options{
		AllowOriginFunc:  localOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return logger.HTTPRequests(s.logger)(otelhttp.NewHandler(corsHandler.Handler(mux), "assetpack.devserver"))
}

func localOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func (s *Server) staticHandler() http.Handler {
	files := http.FileServer(http.Dir(s.config.ContentRoot))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.HistoryFallback && wantsHTML(r) && !s.exists(r.URL.Path) {
			s.serveIndex(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) exists(urlPath string) bool {
	name := filepath.Join(s.config.ContentRoot, filepath.FromSlash(path.Clean("/"+urlPath)))
	_, err := os.Stat(name)
	return err == nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(s.config.ContentRoot, "index.html")

	f, err := os.Open(index)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}

// wantsHTML reports whether the request is a browser navigation that should fall
// back to the index page: a GET or HEAD accepting HTML whose last path segment has
// no file extension.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if !strings.Contains(r.Header.Get("Accept"), "text/html") {
		return false
	}
	return !strings.Contains(path.Base(r.URL.Path), ".")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := configureHTTPServer(s.Addr(), s.Handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.URL()).Str("root", s.config.ContentRoot).Msg("Starting dev server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dev server: %w", err)
	}

	log.Info().Msg("Dev server stopped")
	return nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
