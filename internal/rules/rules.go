// Package rules evaluates gamification rules against stored events.
package rules

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scrumgame/internal/domain"
)

var tracer = otel.Tracer("scrumgame/internal/rules")

// Rule reacts to events of its trigger types. Action may return a follow-up
// event; it must not publish on its own.
type Rule interface {
	Name() string
	Triggers() []string
	Condition(e domain.Event) bool
	Action(ctx context.Context, e domain.Event) (*domain.CreateEventInput, error)
}

// Engine dispatches events to registered rules in registration order.
type Engine struct {
	mu     sync.RWMutex
	rules  []Rule
	logger *slog.Logger
}

type Option func(*Engine)

// WithLogger sets the logger used for failed rule actions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Register(rules ...Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rules...)
}

// Rules returns the registered rules in order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// Run evaluates every matching rule and collects their follow-up events.
// A failing action is logged and skipped.
func (e *Engine) Run(ctx context.Context, ev domain.Event) []domain.CreateEventInput {
	var out []domain.CreateEventInput
	for _, r := range e.Rules() {
		if !slices.Contains(r.Triggers(), ev.Type) || !r.Condition(ev) {
			continue
		}
		follow, err := e.action(ctx, r, ev)
		if err != nil {
			e.logger.Error("rule action failed",
				"rule", r.Name(),
				"event_id", ev.ID,
				"event_type", ev.Type,
				"error", err,
			)
			continue
		}
		if follow != nil {
			out = append(out, *follow)
		}
	}
	return out
}

func (e *Engine) action(ctx context.Context, r Rule, ev domain.Event) (*domain.CreateEventInput, error) {
	ctx, span := tracer.Start(ctx, "rules.Action", trace.WithAttributes(
		attribute.String("rule.name", r.Name()),
		attribute.String("event.type", ev.Type),
	))
	defer span.End()
	follow, err := r.Action(ctx, ev)
	if err != nil {
		span.RecordError(err)
	}
	return follow, err
}
