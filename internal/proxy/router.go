package proxy

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpack/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type rewrite struct {
	from *regexp.Regexp
	to   string
}

type route struct {
	pattern  string
	rule     Rule
	matcher  glob.Glob // nil for plain prefix patterns
	target   *url.URL
	rewrites []rewrite
	proxy    *httputil.ReverseProxy
}

func (r *route) match(path string) bool {
	if r.matcher != nil {
		return r.matcher.Match(path)
	}
	return strings.HasPrefix(path, r.pattern)
}

// Router dispatches requests to upstreams according to a Table. The longest pattern
// wins, ties are broken lexically.
type Router struct {
	routes []*route
}

// NewRouter compiles the given table.
func NewRouter(table Table) (*Router, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	patterns := make([]string, 0, len(table))
	for pattern := range table {
		patterns = append(patterns, pattern)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	router := &Router{routes: make([]*route, 0, len(patterns))}
	for _, pattern := range patterns {
		rt, err := compileRoute(pattern, table[pattern])
		if err != nil {
			return nil, err
		}
		router.routes = append(router.routes, rt)
	}

	return router, nil
}

func compileRoute(pattern string, rule Rule) (*route, error) {
	target, err := url.Parse(rule.Target)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%w: pattern %q has invalid target %q", ErrInvalidTable, pattern, rule.Target)
	}

	rt := &route{pattern: pattern, rule: rule, target: target}

	if strings.ContainsAny(pattern, "*?[{") {
		rt.matcher, err = glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
		}
	}

	froms := make([]string, 0, len(rule.PathRewrite))
	for from := range rule.PathRewrite {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		re, err := regexp.Compile(from)
		if err != nil {
			return nil, fmt.Errorf("%w: path rewrite %q: %w", ErrInvalidPattern, from, err)
		}
		rt.rewrites = append(rt.rewrites, rewrite{from: re, to: rule.PathRewrite[from]})
	}

	rt.proxy = rt.newReverseProxy()
	return rt, nil
}

func (r *route) rewritePath(path string) string {
	for _, rw := range r.rewrites {
		if rw.from.MatchString(path) {
			return rw.from.ReplaceAllString(path, rw.to)
		}
	}
	return path
}

func (r *route) newReverseProxy() *httputil.ReverseProxy {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = r.rewritePath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetURL(r.target)
			pr.SetXForwarded()
			if !r.rule.ChangeOrigin {
				pr.Out.Host = pr.In.Host
			}
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			telemetry.GetMetrics().ProxyErrorsTotal.Add(req.Context(), 1,
				metric.WithAttributes(attribute.String("pattern", r.pattern)))
			zerolog.Ctx(req.Context()).Error().
				Err(err).
				Str("pattern", r.pattern).
				Str("target", r.rule.Target).
				Str("path", req.URL.Path).
				Msg("Proxy request failed")
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		},
	}

	var transport http.RoundTripper = http.DefaultTransport
	if !r.rule.VerifyTLS() {
		insecure := http.DefaultTransport.(*http.Transport).Clone()
		insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		transport = insecure
	}
	rp.Transport = otelhttp.NewTransport(transport)

	return rp
}

// Match returns the pattern and rule the path is routed to.
func (r *Router) Match(path string) (string, Rule, bool) {
	if rt := r.lookup(path); rt != nil {
		return rt.pattern, rt.rule, true
	}
	return "", Rule{}, false
}

func (r *Router) lookup(path string) *route {
	if r == nil {
		return nil
	}
	for _, rt := range r.routes {
		if rt.match(path) {
			return rt
		}
	}
	return nil
}

// Len returns the number of compiled routes.
func (r *Router) Len() int {
	if r == nil {
		return 0
	}
	return len(r.routes)
}

// Handler proxies matching requests and hands everything else to next.
func (r *Router) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.ServeOrNext(w, req, next)
	})
}

// ServeOrNext proxies req when it matches a route, otherwise calls next.
func (r *Router) ServeOrNext(w http.ResponseWriter, req *http.Request, next http.Handler) {
	rt := r.lookup(req.URL.Path)
	if rt == nil {
		next.ServeHTTP(w, req)
		return
	}

	log.Debug().Str("path", req.URL.Path).Str("target", rt.rule.Target).Msg("Proxying request")
	telemetry.GetMetrics().ProxyRequestsTotal.Add(req.Context(), 1,
		metric.WithAttributes(attribute.String("pattern", rt.pattern)))
	rt.proxy.ServeHTTP(w, req)
}
