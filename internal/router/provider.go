package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/af-corp/aegis-moderation/internal/config"
	"github.com/af-corp/aegis-moderation/internal/router/adapters"
	"github.com/af-corp/aegis-moderation/internal/telemetry"
)

// Roles an upstream route can serve.
const (
	RoleText   = "text"
	RoleVision = "vision"
)

// ErrNoRoute is returned when no registered, healthy provider serves a role.
var ErrNoRoute = errors.New("no available upstream route")

// Registry manages provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapters.ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]adapters.ProviderAdapter),
	}
}

func (r *Registry) Register(name string, adapter adapters.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (adapters.ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// BuildFromConfig builds provider adapters sharing one pooled transport.
func BuildFromConfig(provCfg *config.ProvidersConfig, transport http.RoundTripper) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		}

		var adapter adapters.ProviderAdapter
		switch cfg.Type {
		case "anthropic":
			adapter = adapters.NewAnthropicAdapter(cfg, client)
		default:
			// OpenAI-compatible is the lingua franca for self-hosted models.
			adapter = adapters.NewOpenAIAdapter(cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}

// Route is a resolved upstream for one call.
type Route struct {
	Provider string
	Model    string
	Adapter  adapters.ProviderAdapter
}

// ResolveRoute finds the first registered provider for role whose circuit is
// not open, trying the primary route before fallbacks in order.
func ResolveRoute(modelsCfg *config.ModelsConfig, registry *Registry, health *HealthTracker, role string) (Route, error) {
	mapping, ok := modelsCfg.Roles[role]
	if !ok {
		return Route{}, fmt.Errorf("%w: role %s is not configured", ErrNoRoute, role)
	}

	candidates := append([]config.ProviderRoute{mapping.Primary}, mapping.Fallback...)
	for _, c := range candidates {
		adapter, ok := registry.Get(c.Provider)
		if !ok {
			continue
		}
		if health != nil && !health.IsAvailable(c.Provider) {
			continue
		}
		return Route{Provider: c.Provider, Model: c.Model, Adapter: adapter}, nil
	}

	return Route{}, fmt.Errorf("%w: role %s", ErrNoRoute, role)
}

// Router sends completion requests to the route serving a role. It never
// retries; a failed call is reported to the caller and to the provider's
// circuit breaker.
type Router struct {
	models   *config.ModelsConfig
	registry *Registry
	health   *HealthTracker
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewRouter(models *config.ModelsConfig, registry *Registry, health *HealthTracker, metrics *telemetry.Metrics, logger *slog.Logger) *Router {
	if health == nil {
		health = NewHealthTracker(5, 15*time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		models:   models,
		registry: registry,
		health:   health,
		metrics:  metrics,
		logger:   logger,
	}
}

// Complete sends req to the route serving role. req.Model is overwritten with
// the route's model.
func (r *Router) Complete(ctx context.Context, role string, req adapters.ChatRequest) (*adapters.ChatResponse, error) {
	route, err := ResolveRoute(r.models, r.registry, r.health, role)
	if err != nil {
		return nil, err
	}
	req.Model = route.Model

	start := time.Now()
	resp, err := r.send(ctx, route, &req)
	durationMs := float64(time.Since(start).Milliseconds())

	switch {
	case err == nil:
		r.health.RecordSuccess(route.Provider)
		r.metrics.RecordUpstream(route.Provider, "ok", durationMs)
	case errors.Is(ctx.Err(), context.Canceled):
		// Caller cancellation says nothing about provider health.
		r.health.Release(route.Provider)
		r.metrics.RecordUpstream(route.Provider, "cancelled", durationMs)
	default:
		outcome := "error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		r.health.RecordFailure(route.Provider)
		r.metrics.RecordUpstream(route.Provider, outcome, durationMs)
		r.logger.Warn("upstream completion failed",
			"provider", route.Provider,
			"model", route.Model,
			"role", role,
			"duration_ms", durationMs,
			"error", err,
		)
	}
	return resp, err
}

func (r *Router) send(ctx context.Context, route Route, req *adapters.ChatRequest) (*adapters.ChatResponse, error) {
	httpReq, err := route.Adapter.TransformRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transform %s request: %w", route.Provider, err)
	}
	httpResp, err := route.Adapter.SendRequest(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", route.Provider, err)
	}
	return route.Adapter.TransformResponse(ctx, httpResp)
}
