// Bounded tool-use loop.
//
// Information Hiding:
// - Message assembly from history hidden
// - Tool round bookkeeping and the forced final call hidden
// - State machine transitions hidden

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/internal/metrics"
	"github.com/richinex/coursebot/llm"
	"github.com/richinex/coursebot/model"
)

// Engine answers a query by letting the model call tools for at most
// MaxRounds rounds, then forcing a final answer without tools.
// Engine holds no per-query state and is safe for concurrent use.
type Engine struct {
	config Config
	client *llm.Client
	log    *logging.Logger
}

// New creates an engine.
func New(config Config, client *llm.Client, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	return &Engine{config: config, client: client, log: log.Sub("engine")}
}

// MaxRounds returns the configured tool-use round limit.
func (e *Engine) MaxRounds() int {
	return e.config.MaxRounds
}

// Generate runs the loop for one request.
// On failure the returned Answer carries the partial trace and counters.
func (e *Engine) Generate(ctx context.Context, req Request) (Answer, error) {
	start := time.Now()
	m := newMachine()
	var ans Answer

	finish := func(err error) (Answer, error) {
		if err != nil {
			m.fail()
		}
		ans.Trace = m.trace
		ans.ExecutionTimeMs = uint64(time.Since(start).Milliseconds())
		metrics.RecordRounds(ans.Rounds)
		return ans, err
	}

	messages := e.buildMessages(req)
	var defs []llm.ToolDefinition
	if req.Tools != nil {
		for _, d := range req.Tools.Definitions() {
			defs = append(defs, llm.ToolDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema(),
			})
		}
	}

	if err := m.to(StateAwaitingModel); err != nil {
		return finish(err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("generation stopped after %d rounds: %w", ans.Rounds, err))
		}

		forced := ans.Rounds >= e.config.MaxRounds || len(defs) == 0
		var resp llm.LLMResponse
		var err error
		if forced {
			resp, err = e.client.Chat(ctx, messages)
		} else {
			resp, err = e.client.ChatWithTools(ctx, messages, defs)
		}
		ans.LLMCalls++
		if err != nil {
			return finish(err)
		}
		ans.Usage.Add(resp.Usage)

		if forced || !resp.HasToolCalls() {
			if forced && resp.HasToolCalls() {
				e.log.Warn().
					Int("tool_calls", len(resp.ToolCalls)).
					Int("rounds", ans.Rounds).
					Msg("ignoring tool calls on final answer")
			}
			text := strings.TrimSpace(resp.Content)
			if text == "" {
				return finish(llm.NewError(e.client.Provider().Name(), llm.KindMalformedResponse,
					errors.New("model returned an empty answer")))
			}
			if err := m.to(StateDone); err != nil {
				return finish(err)
			}
			ans.Text = text
			e.log.Debug().
				Int("rounds", ans.Rounds).
				Int("llm_calls", ans.LLMCalls).
				Bool("forced", forced && len(defs) > 0).
				Msg("answer generated")
			return finish(nil)
		}

		if err := m.to(StateToolRequested); err != nil {
			return finish(err)
		}
		messages = append(messages, llm.AssistantToolCallMessage(resp.Content, resp.ToolCalls))

		// Sequential, all-or-nothing: the first failing call ends the query.
		for _, call := range resp.ToolCalls {
			output, err := e.runTool(ctx, req.Tools, call, &ans)
			if err != nil {
				return finish(err)
			}
			messages = append(messages, llm.ToolResultMessage(call, output))
		}

		if err := m.to(StateToolExecuted); err != nil {
			return finish(err)
		}
		ans.Rounds++
		if err := m.to(StateAwaitingModel); err != nil {
			return finish(err)
		}
	}
}

func (e *Engine) runTool(ctx context.Context, dispatcher Dispatcher, call llm.ToolCall, ans *Answer) (string, error) {
	start := time.Now()
	result, err := dispatcher.Execute(ctx, call.Name, call.Arguments)

	ans.ToolCalls = append(ans.ToolCalls, model.ToolCall{
		Name:       call.Name,
		InputSize:  len(call.Arguments),
		OutputSize: len(result.Text),
		DurationMs: uint64(time.Since(start).Milliseconds()),
		Success:    err == nil,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (e *Engine) buildMessages(req Request) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(req.History)+2)
	messages = append(messages, llm.SystemMessage(e.config.SystemPrompt))
	for _, turn := range req.History {
		switch turn.Role {
		case model.RoleUser:
			messages = append(messages, llm.UserMessage(turn.Content))
		case model.RoleAssistant:
			messages = append(messages, llm.AssistantMessage(turn.Content))
		}
	}
	return append(messages, llm.UserMessage(req.Query))
}
