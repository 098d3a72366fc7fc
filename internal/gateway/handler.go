package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/aegis-moderation/internal/cache"
	"github.com/af-corp/aegis-moderation/internal/httputil"
	"github.com/af-corp/aegis-moderation/internal/telemetry"
	"github.com/af-corp/aegis-moderation/internal/types"
)

// maxBodyBytes bounds a request body: 20000 characters of text plus 64 refs.
const maxBodyBytes = 1 << 20

// Moderator is the decision engine.
type Moderator interface {
	Moderate(ctx context.Context, req *types.ModerationRequest) (*types.ModerationVerdict, error)
}

// Auditor records finished verdicts off the request path.
type Auditor interface {
	RecordAsync(requestID string, v *types.ModerationVerdict)
}

// HealthReporter exposes upstream circuit states.
type HealthReporter interface {
	Snapshot() map[string]string
}

// Handler holds dependencies for the moderation HTTP handlers. Cache, audit,
// and health are optional.
type Handler struct {
	engine  Moderator
	cache   cache.Cache
	audit   Auditor
	health  HealthReporter
	metrics *telemetry.Metrics
	timeout time.Duration
	version string
	logger  *slog.Logger
}

type Option func(*Handler)

func WithCache(c cache.Cache) Option { return func(h *Handler) { h.cache = c } }

func WithAuditor(a Auditor) Option { return func(h *Handler) { h.audit = a } }

func WithHealth(r HealthReporter) Option { return func(h *Handler) { h.health = r } }

func WithMetrics(m *telemetry.Metrics) Option { return func(h *Handler) { h.metrics = m } }

// WithTimeout bounds each Moderate call; 0 leaves only the client's deadline.
func WithTimeout(d time.Duration) Option { return func(h *Handler) { h.timeout = d } }

func WithVersion(v string) Option { return func(h *Handler) { h.version = v } }

func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.logger = l } }

func NewHandler(engine Moderator, opts ...Option) *Handler {
	h := &Handler{engine: engine, version: "dev", logger: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Moderations handles POST /v1/moderations.
func (h *Handler) Moderations(w http.ResponseWriter, r *http.Request) {
	reqID := httputil.RequestIDFromContext(r.Context())
	receivedAt := time.Now()

	var req types.ModerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	key := cache.Key(&req)
	if v := h.lookup(r.Context(), reqID, key); v != nil {
		h.writeVerdict(w, reqID, v, true, receivedAt)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	v, err := h.engine.Moderate(ctx, &req)
	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("moderation timed out", "request_id", reqID, "duration_ms", time.Since(receivedAt).Milliseconds())
		httputil.WriteTimeoutError(w, reqID, "Moderation did not complete in time")
		return
	case errors.Is(err, context.Canceled):
		h.logger.Info("client went away before verdict", "request_id", reqID)
		return
	case err != nil:
		h.logger.Error("moderation failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Moderation failed")
		return
	}

	// Degraded verdicts are never cached.
	if h.cache != nil && !v.Degraded {
		if err := h.cache.Set(r.Context(), key, v); err != nil {
			h.logger.Warn("verdict cache write failed", "request_id", reqID, "error", err)
		}
	}
	if h.audit != nil {
		h.audit.RecordAsync(reqID, v)
	}
	h.writeVerdict(w, reqID, v, false, receivedAt)
}

// lookup returns a cached verdict or nil. Cache failures fall through.
func (h *Handler) lookup(ctx context.Context, reqID, key string) *types.ModerationVerdict {
	if h.cache == nil {
		return nil
	}
	v, err := h.cache.Get(ctx, key)
	switch {
	case err != nil:
		h.logger.Warn("verdict cache read failed", "request_id", reqID, "error", err)
		h.metrics.RecordCacheLookup("error")
		return nil
	case v == nil:
		h.metrics.RecordCacheLookup("miss")
		return nil
	default:
		h.metrics.RecordCacheLookup("hit")
		return v
	}
}

func (h *Handler) writeVerdict(w http.ResponseWriter, reqID string, v *types.ModerationVerdict, cached bool, receivedAt time.Time) {
	h.logger.Info("request completed",
		"request_id", reqID,
		"action", v.Action,
		"score", v.Score,
		"categories", v.Categories.Strings(),
		"images", len(v.Images.Images),
		"cached", cached,
		"duration_ms", time.Since(receivedAt).Milliseconds(),
	)
	if cached {
		w.Header().Set("X-Moderation-Cache", "hit")
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "healthy",
		"version": h.version,
	}
	if h.health != nil {
		body["providers"] = h.health.Snapshot()
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}
