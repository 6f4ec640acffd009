package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/openapigw/internal/health"
	"github.com/vyrodovalexey/openapigw/internal/middleware"
	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ErrNoHandler is returned by New when no request handler is given.
var ErrNoHandler = errors.New("gateway request handler is required")

var ginModeOnce sync.Once

// Config holds the listener settings of a Gateway.
type Config struct {
	Public          ListenerConfig
	Admin           ListenerConfig
	AdminEnabled    bool
	ShutdownTimeout time.Duration
}

// Gateway runs the public and admin listeners.
type Gateway struct {
	config   Config
	logger   observability.Logger
	handler  http.Handler
	checker  *health.Checker
	gatherer prometheus.Gatherer

	engine    *gin.Engine
	public    *Listener
	admin     *Listener
	state     atomic.Int32
	startTime time.Time
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithHealthChecker sets the checker behind the admin probes.
func WithHealthChecker(checker *health.Checker) Option {
	return func(g *Gateway) {
		g.checker = checker
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(g *Gateway) {
		g.gatherer = gatherer
	}
}

// New creates a Gateway serving handler for every path on the public listener.
func New(cfg Config, handler http.Handler, opts ...Option) (*Gateway, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}

	g := &Gateway{
		config:   cfg,
		handler:  handler,
		logger:   observability.NopLogger(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.checker == nil {
		g.checker = health.NewChecker("", g.logger)
	}
	if g.config.ShutdownTimeout <= 0 {
		g.config.ShutdownTimeout = 30 * time.Second
	}
	if g.config.Public.Name == "" {
		g.config.Public.Name = "public"
	}
	if g.config.Admin.Name == "" {
		g.config.Admin.Name = "admin"
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})
	g.engine = g.newPublicEngine()
	g.state.Store(int32(StateStopped))

	return g, nil
}

// newPublicEngine routes every request through the middleware chain and the
// handler. The gateway exposes no routes of its own on this listener. The
// catch-all route keeps gin from substituting its 404 body for an empty
// upstream 404; NoRoute only sees methods Any does not register.
func (g *Gateway) newPublicEngine() *gin.Engine {
	engine := gin.New()
	chain := middleware.RequestID()(
		middleware.Logging(g.logger)(
			middleware.Recovery(g.logger)(g.handler),
		),
	)
	engine.Any("/*path", gin.WrapH(chain))
	engine.NoRoute(gin.WrapH(chain))
	return engine
}

// AdminHandler returns the admin router: liveness, readiness and metrics.
func (g *Gateway) AdminHandler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", gin.WrapF(g.checker.HealthHandler()))
	engine.GET("/livez", gin.WrapF(g.checker.LivenessHandler()))
	engine.GET("/readyz", gin.WrapF(g.checker.ReadinessHandler()))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{})))
	return engine
}

// Handler returns the public handler.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Start starts the listeners.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("gateway is not in stopped state")
	}

	g.logger.Info("starting gateway", observability.String("address", g.config.Public.Address))

	g.public = NewListener(g.config.Public, g.engine, WithListenerLogger(g.logger))
	if err := g.public.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener %s: %w", g.public.Name(), err)
	}

	if g.config.AdminEnabled {
		g.admin = NewListener(g.config.Admin, g.AdminHandler(), WithListenerLogger(g.logger))
		if err := g.admin.Start(ctx); err != nil {
			_ = g.public.Stop(ctx)
			g.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to start listener %s: %w", g.admin.Name(), err)
		}
	}

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))
	g.logger.Info("gateway started",
		observability.String("public", g.public.Addr()),
		observability.Bool("admin", g.config.AdminEnabled),
	)
	return nil
}

// Stop marks the instance unready, then drains the public listener before
// the admin listener so probes keep answering during the drain.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("gateway is not running")
	}

	g.logger.Info("stopping gateway")
	g.checker.SetDraining(true)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := g.public.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if g.admin != nil {
		if err := g.admin.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	g.state.Store(int32(StateStopped))
	g.logger.Info("gateway stopped")
	return errors.Join(errs...)
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// PublicAddr returns the bound public address; useful with ":0".
func (g *Gateway) PublicAddr() string {
	if g.public == nil {
		return g.config.Public.Address
	}
	return g.public.Addr()
}

// AdminAddr returns the bound admin address.
func (g *Gateway) AdminAddr() string {
	if g.admin == nil {
		return g.config.Admin.Address
	}
	return g.admin.Addr()
}
