package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/confluence/internal/core"
	"github.com/newthinker/confluence/internal/metrics"
	"github.com/newthinker/confluence/internal/sink"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	MinConfidence    float64       `mapstructure:"min_confidence" default:"0.55" validate:"gte=0,lte=1"`
	CooldownDuration time.Duration `mapstructure:"cooldown" default:"5m" validate:"gte=0"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval" default:"1m" validate:"gte=0"`
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.55,
		CooldownDuration: 5 * time.Minute,
		CleanupInterval:  time.Minute,
	}
}

// Drop reasons reported to metrics
const (
	DropConfidence = "router_confidence"
	DropExpired    = "router_expired"
	DropCooldown   = "router_cooldown"
)

// Router routes candidates to sinks with filtering
type Router struct {
	cfg       Config
	registry  *sink.Registry
	logger    *zap.Logger
	metrics   *metrics.Registry
	cooldowns map[string]cooldown  // symbol|direction
	seen      map[string]time.Time // symbol -> latest routing instant
	mu        sync.Mutex
}

type cooldown struct {
	symbol string
	at     time.Time
}

// SetMetrics attaches a metrics registry
func (r *Router) SetMetrics(m *metrics.Registry) {
	r.metrics = m
}

// New creates a new candidate router. A nil sink registry routes nowhere
// but still applies filters and cooldowns.
func New(cfg Config, registry *sink.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		cooldowns: make(map[string]cooldown),
		seen:      make(map[string]time.Time),
	}
}

// Route filters c and delivers it to every sink. It reports whether the
// candidate passed the filters. An error is returned only when every
// registered sink failed.
func (r *Router) Route(ctx context.Context, c core.SignalCandidate, now time.Time) (bool, error) {
	if reason, ok := r.admit(c, now); !ok {
		r.metrics.RecordSuppressed(reason)
		r.logger.Debug("candidate filtered out",
			zap.String("symbol", c.Symbol),
			zap.String("direction", string(c.Direction)),
			zap.Float64("confidence", c.Confidence),
			zap.String("reason", reason),
		)
		return false, nil
	}

	if r.registry == nil || r.registry.Len() == 0 {
		return true, nil
	}

	env := sink.NewEnvelope(c, now)
	errs := r.registry.DeliverAll(ctx, env)

	for _, name := range r.registry.Names() {
		if err, failed := errs[name]; failed {
			r.metrics.RecordRouted(name, "failed")
			r.logger.Error("sink failed",
				zap.String("sink", name),
				zap.String("envelope", env.ID),
				zap.Error(err),
			)
			continue
		}
		r.metrics.RecordRouted(name, "success")
	}

	r.logger.Info("candidate routed",
		zap.String("envelope", env.ID),
		zap.String("symbol", c.Symbol),
		zap.String("direction", string(c.Direction)),
		zap.Float64("confidence", c.Confidence),
		zap.Int("sinks", r.registry.Len()),
		zap.Int("errors", len(errs)),
	)

	if len(errs) == r.registry.Len() {
		return true, core.WrapError(core.ErrSinkFailed, fmt.Errorf("all %d sinks failed for %s", len(errs), env.ID))
	}
	return true, nil
}

// admit applies the filters and claims the cooldown slot on success
func (r *Router) admit(c core.SignalCandidate, now time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.After(r.seen[c.Symbol]) {
		r.seen[c.Symbol] = now
	}

	if c.Confidence < r.cfg.MinConfidence {
		return DropConfidence, false
	}
	if !c.IsValid(now) {
		return DropExpired, false
	}

	key := cooldownKey(c)
	if last, exists := r.cooldowns[key]; exists && now.Sub(last.at) < r.cfg.CooldownDuration {
		return DropCooldown, false
	}
	r.cooldowns[key] = cooldown{symbol: c.Symbol, at: now}
	return "", true
}

func cooldownKey(c core.SignalCandidate) string {
	return c.Symbol + "|" + string(c.Direction)
}

// ClearAllCooldowns removes all cooldowns and forgets every symbol's
// latest routing instant
func (r *Router) ClearAllCooldowns() {
	r.mu.Lock()
	r.cooldowns = make(map[string]cooldown)
	r.seen = make(map[string]time.Time)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the
// cooldown duration. Age is measured against the latest instant the entry's
// own symbol was routed at, not the wall clock.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	expiry := r.cfg.CooldownDuration * 2
	removed := 0

	for key, entry := range r.cooldowns {
		if r.seen[entry.symbol].Sub(entry.at) > expiry {
			delete(r.cooldowns, key)
			removed++
		}
	}

	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically cleans up expired cooldowns.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := r.CleanupExpiredCooldowns()
				if removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]any{
		"cooldowns_active": len(r.cooldowns),
		"symbols_seen":     len(r.seen),
		"min_confidence":   r.cfg.MinConfidence,
		"cooldown_seconds": r.cfg.CooldownDuration.Seconds(),
	}
}
