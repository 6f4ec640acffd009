package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/vyrodovalexey/openapigw/internal/observability"
)

type startKey struct{}

// Forwarder proxies every request to a single backend.
type Forwarder struct {
	target        *url.URL
	proxy         *httputil.ReverseProxy
	logger        observability.Logger
	transport     http.RoundTripper
	timeout       time.Duration
	flushInterval time.Duration
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTransport sets the transport used to reach the backend.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithTimeout bounds each forwarded request.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Forwarder) {
		f.timeout = timeout
	}
}

// WithFlushInterval sets the response flush interval. Negative flushes after
// every write.
func WithFlushInterval(interval time.Duration) Option {
	return func(f *Forwarder) {
		f.flushInterval = interval
	}
}

// NewForwarder returns a Forwarder for target, e.g. "http://localhost:8123".
func NewForwarder(target string, opts ...Option) (*Forwarder, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &ProxyError{Op: "parse", Target: target, Cause: fmt.Errorf("%w: %w", ErrInvalidTargetURL, err)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ProxyError{Op: "parse", Target: target, Cause: ErrInvalidTargetURL}
	}

	f := &Forwarder{
		target:        u,
		logger:        observability.NopLogger(),
		flushInterval: -1,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.proxy = &httputil.ReverseProxy{
		Rewrite:        f.rewrite,
		Transport:      f.transport,
		FlushInterval:  f.flushInterval,
		ErrorHandler:   f.errorHandler,
		ModifyResponse: f.modifyResponse,
	}
	return f, nil
}

// Target returns the backend URL.
func (f *Forwarder) Target() *url.URL {
	return f.target
}

// ServeHTTP implements http.Handler.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithValue(r.Context(), startKey{}, time.Now())
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	f.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(f.target)
	pr.SetXForwarded()
	pr.Out.Host = f.target.Host
}

func (f *Forwarder) modifyResponse(resp *http.Response) error {
	if start, ok := resp.Request.Context().Value(startKey{}).(time.Time); ok {
		class := strconv.Itoa(resp.StatusCode/100) + "xx"
		getProxyMetrics().backendDuration.WithLabelValues(class).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (f *Forwarder) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	errType, sentinel := classify(err)
	getProxyMetrics().errorsTotal.WithLabelValues(errType).Inc()

	perr := &ProxyError{Op: "forward", Target: f.target.String(), Cause: fmt.Errorf("%w: %w", sentinel, err)}
	f.logger.WithContext(r.Context()).Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(perr),
	)

	status, body := http.StatusBadGateway, `{"error":"bad gateway","message":"failed to proxy request"}`
	if sentinel == ErrUpstreamTimeout {
		status, body = http.StatusGatewayTimeout, `{"error":"gateway timeout","message":"upstream request timed out"}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
