// Package orchestration answers user queries end to end.
//
// Information Hiding:
// - Per-query tool scoping and source collection hidden
// - History read and atomic exchange append hidden
// - Error origin classification hidden behind Error
package orchestration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/coursebot/agent"
	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/internal/metrics"
	"github.com/richinex/coursebot/model"
	"github.com/richinex/coursebot/storage"
	"github.com/richinex/coursebot/tools"
)

// Generator produces an answer for one request. *agent.Engine implements it.
type Generator interface {
	Generate(ctx context.Context, req agent.Request) (agent.Answer, error)
}

// Result is a successful answer.
type Result struct {
	SessionID string               `json:"session_id"`
	Answer    string               `json:"answer"`
	Sources   []model.SourceRecord `json:"sources"`
	Rounds    int                  `json:"rounds"`
}

// Orchestrator ties the store, the tool registry, and the engine together.
// It holds no per-query state; concurrent Answer calls are independent.
type Orchestrator struct {
	store        storage.ConversationStore
	registry     *tools.Registry
	engine       Generator
	log          *logging.Logger
	newSessionID func() string
}

// New creates an orchestrator. registry is the prototype; each query runs
// against its own ForQuery copy.
func New(store storage.ConversationStore, registry *tools.Registry, engine Generator, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{
		store:        store,
		registry:     registry,
		engine:       engine,
		log:          log.Sub("orchestrator"),
		newSessionID: uuid.NewString,
	}
}

// Answer answers query within sessionID, creating a session id when empty.
// History is only changed when the whole query succeeds. Failures are *Error.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, query string) (Result, error) {
	start := time.Now()

	result, err := o.answer(ctx, sessionID, query)
	metrics.RecordQuery(err == nil, time.Since(start))
	if err != nil {
		var oe *Error
		errors.As(err, &oe)
		metrics.RecordError(oe.Component, oe.Kind)
		o.log.Error().
			Str("session_id", sessionID).
			Str("component", oe.Component).
			Str("kind", oe.Kind).
			Dur("elapsed", time.Since(start)).
			Msg(oe.Message)
		return Result{}, err
	}

	o.log.Info().
		Str("session_id", result.SessionID).
		Int("rounds", result.Rounds).
		Int("sources", len(result.Sources)).
		Dur("elapsed", time.Since(start)).
		Msg("query answered")
	return result, nil
}

func (o *Orchestrator) answer(ctx context.Context, sessionID, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, &Error{
			Kind:      KindInvalidQuery,
			Message:   "validating query failed: query must not be empty",
			Component: ComponentOrchestrator,
		}
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = o.newSessionID()
	}

	history, err := o.store.History(ctx, sessionID)
	if err != nil {
		return Result{}, classify("loading history", err)
	}

	reg := o.registry.ForQuery()
	// Clears the accumulator on every path, including failures.
	defer reg.CollectSources()

	ans, err := o.engine.Generate(ctx, agent.Request{
		Query:   query,
		History: history,
		Tools:   reg,
	})
	if err != nil {
		return Result{}, classify("generating answer", err)
	}
	sources := reg.CollectSources()

	if err := o.store.Append(ctx, sessionID, query, ans.Text); err != nil {
		return Result{}, classify("saving exchange", err)
	}

	return Result{
		SessionID: sessionID,
		Answer:    ans.Text,
		Sources:   sources,
		Rounds:    ans.Rounds,
	}, nil
}
