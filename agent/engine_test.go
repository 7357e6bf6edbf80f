package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/richinex/coursebot/llm"
	"github.com/richinex/coursebot/model"
	"github.com/richinex/coursebot/tools"
)

// scriptedProvider replays canned responses and records each request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.LLMResponse
	errs      []error
	calls     []recordedCall
	onCall    func(n int)
}

type recordedCall struct {
	messages  []llm.ChatMessage
	tools     []llm.ToolDefinition
	withTools bool
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.next(messages, nil, false)
}

func (p *scriptedProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition) (llm.LLMResponse, error) {
	return p.next(messages, defs, true)
}

func (p *scriptedProvider) next(messages []llm.ChatMessage, defs []llm.ToolDefinition, withTools bool) (llm.LLMResponse, error) {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, recordedCall{
		messages:  append([]llm.ChatMessage(nil), messages...),
		tools:     defs,
		withTools: withTools,
	})
	p.mu.Unlock()

	if p.onCall != nil {
		p.onCall(n)
	}
	if n < len(p.errs) && p.errs[n] != nil {
		return llm.LLMResponse{}, p.errs[n]
	}
	if n >= len(p.responses) {
		return llm.LLMResponse{}, errors.New("script exhausted")
	}
	return p.responses[n], nil
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func toolUse(calls ...llm.ToolCall) llm.LLMResponse {
	return llm.LLMResponse{ToolCalls: calls, Usage: &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
}

func text(s string) llm.LLMResponse {
	return llm.LLMResponse{Content: s, Usage: &llm.TokenUsage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28}}
}

type invocation struct {
	name string
	args string
}

func newRegistry(t *testing.T, log *[]invocation, failing map[string]error) *tools.Registry {
	t.Helper()
	var mu sync.Mutex
	reg := tools.NewRegistry(tools.NewExecutor(time.Second), nil)
	for _, name := range []string{"search_course_content", "get_course_outline"} {
		name := name
		def := tools.Definition{
			Name:        name,
			Description: "test tool " + name,
			Params: []tools.Param{
				{Name: "query", Type: tools.TypeString},
				{Name: "course_name", Type: tools.TypeString},
			},
		}
		require.NoError(t, reg.RegisterFunc(def, func(ctx context.Context, p tools.Params) (tools.Result, error) {
			raw, _ := json.Marshal(p)
			mu.Lock()
			*log = append(*log, invocation{name: name, args: string(raw)})
			mu.Unlock()
			if err := failing[name]; err != nil {
				return tools.Result{}, err
			}
			return tools.Result{
				Text:    "result of " + name,
				Sources: []model.SourceRecord{{Course: "MCP"}},
			}, nil
		}))
	}
	return reg
}

func newEngine(p llm.Provider, maxRounds int) *Engine {
	return New(Config{SystemPrompt: "system", MaxRounds: maxRounds}, llm.NewClient(p, 0, nil), nil)
}

func TestDirectAnswerWithoutTools(t *testing.T) {
	var calls []invocation
	p := &scriptedProvider{responses: []llm.LLMResponse{text("  Paris.  ")}}
	e := newEngine(p, 2)

	ans, err := e.Generate(context.Background(), Request{
		Query: "Capital of France?",
		History: []model.Turn{
			model.UserTurn("hi"),
			model.AssistantTurn("hello"),
		},
		Tools: newRegistry(t, &calls, nil),
	})
	require.NoError(t, err)
	require.Equal(t, "Paris.", ans.Text)
	require.Zero(t, ans.Rounds)
	require.Equal(t, 1, ans.LLMCalls)
	require.Empty(t, calls)
	require.Equal(t, []State{StateInit, StateAwaitingModel, StateDone}, ans.Trace)

	msgs := p.calls[0].messages
	require.Len(t, msgs, 4)
	require.Equal(t, llm.SystemMessage("system"), msgs[0])
	require.Equal(t, llm.UserMessage("hi"), msgs[1])
	require.Equal(t, llm.AssistantMessage("hello"), msgs[2])
	require.Equal(t, llm.UserMessage("Capital of France?"), msgs[3])

	require.True(t, p.calls[0].withTools)
	require.Len(t, p.calls[0].tools, 2)
	require.Equal(t, "search_course_content", p.calls[0].tools[0].Name)
}

func TestSingleToolRound(t *testing.T) {
	var calls []invocation
	p := &scriptedProvider{responses: []llm.LLMResponse{
		toolUse(toolCall("t1", "search_course_content", `{"query":"MCP"}`)),
		text("MCP is a protocol."),
	}}
	e := newEngine(p, 2)

	ans, err := e.Generate(context.Background(), Request{Query: "What is MCP?", Tools: newRegistry(t, &calls, nil)})
	require.NoError(t, err)
	require.Equal(t, "MCP is a protocol.", ans.Text)
	require.Equal(t, 1, ans.Rounds)
	require.Equal(t, 2, ans.LLMCalls)
	require.Equal(t, uint32(43), ans.Usage.TotalTokens)
	require.Len(t, calls, 1)
	require.Equal(t, []State{
		StateInit, StateAwaitingModel, StateToolRequested, StateToolExecuted, StateAwaitingModel, StateDone,
	}, ans.Trace)

	require.Len(t, ans.ToolCalls, 1)
	require.True(t, ans.ToolCalls[0].Success)
	require.Equal(t, len(`{"query":"MCP"}`), ans.ToolCalls[0].InputSize)

	// Second request carries the tool exchange.
	second := p.calls[1].messages
	require.Len(t, second, 4)
	require.Equal(t, llm.RoleAssistant, second[2].Role)
	require.Len(t, second[2].ToolCalls, 1)
	require.Equal(t, llm.RoleTool, second[3].Role)
	require.Equal(t, "t1", second[3].ToolCallID)
	require.Equal(t, "result of search_course_content", second[3].Content)
	require.True(t, p.calls[1].withTools)
}

func TestRoundLimitForcesFinalCallWithoutTools(t *testing.T) {
	var calls []invocation
	p := &scriptedProvider{responses: []llm.LLMResponse{
		toolUse(toolCall("t1", "get_course_outline", `{"course_name":"MCP"}`)),
		toolUse(toolCall("t2", "search_course_content", `{"query":"lesson 4"}`)),
		{Content: "Lesson 4 covers prompts.", ToolCalls: []llm.ToolCall{toolCall("t3", "search_course_content", `{}`)}},
	}}
	e := newEngine(p, 2)

	ans, err := e.Generate(context.Background(), Request{Query: "What does lesson 4 cover?", Tools: newRegistry(t, &calls, nil)})
	require.NoError(t, err)
	require.Equal(t, "Lesson 4 covers prompts.", ans.Text)
	require.Equal(t, 2, ans.Rounds)
	require.Equal(t, 3, ans.LLMCalls)
	require.Len(t, calls, 2, "tool calls on the forced answer are ignored")

	require.Len(t, p.calls, 3)
	require.True(t, p.calls[0].withTools)
	require.True(t, p.calls[1].withTools)
	require.False(t, p.calls[2].withTools)
	require.Nil(t, p.calls[2].tools)
	require.Equal(t, StateDone, ans.Trace[len(ans.Trace)-1])
}

func TestZeroRoundsAnswersWithoutTools(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{text("ok")}}
	var calls []invocation

	ans, err := newEngine(p, 0).Generate(context.Background(), Request{Query: "q", Tools: newRegistry(t, &calls, nil)})
	require.NoError(t, err)
	require.Equal(t, "ok", ans.Text)
	require.False(t, p.calls[0].withTools)
}

func TestSequentialCallsAbortOnFirstFailure(t *testing.T) {
	var calls []invocation
	boom := errors.New("index unavailable")
	p := &scriptedProvider{responses: []llm.LLMResponse{
		toolUse(
			toolCall("t1", "get_course_outline", `{"course_name":"MCP"}`),
			toolCall("t2", "search_course_content", `{"query":"x"}`),
			toolCall("t3", "get_course_outline", `{"course_name":"Other"}`),
		),
	}}
	e := newEngine(p, 2)

	ans, err := e.Generate(context.Background(), Request{
		Query: "q",
		Tools: newRegistry(t, &calls, map[string]error{"search_course_content": boom}),
	})
	require.ErrorIs(t, err, boom)
	var execErr *tools.ToolExecutionError
	require.ErrorAs(t, err, &execErr)

	require.Len(t, calls, 2, "third call never runs")
	require.Equal(t, "get_course_outline", calls[0].name)
	require.Equal(t, "search_course_content", calls[1].name)
	require.Len(t, p.calls, 1, "no further model calls")
	require.Equal(t, StateFailed, ans.Trace[len(ans.Trace)-1])
	require.False(t, ans.ToolCalls[1].Success)
}

func TestUnknownToolAndBadParamsAbort(t *testing.T) {
	var calls []invocation
	p := &scriptedProvider{responses: []llm.LLMResponse{
		toolUse(toolCall("t1", "drop_tables", `{}`)),
	}}
	_, err := newEngine(p, 2).Generate(context.Background(), Request{Query: "q", Tools: newRegistry(t, &calls, nil)})
	var notFound *tools.ToolNotFoundError
	require.ErrorAs(t, err, &notFound)

	p = &scriptedProvider{responses: []llm.LLMResponse{
		toolUse(toolCall("t1", "search_course_content", `{"query":42}`)),
	}}
	_, err = newEngine(p, 2).Generate(context.Background(), Request{Query: "q", Tools: newRegistry(t, &calls, nil)})
	var invalid *tools.InvalidParametersError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "query", invalid.Field)
	require.Empty(t, calls)
}

func TestLLMFaultFailsFast(t *testing.T) {
	var calls []invocation
	p := &scriptedProvider{
		responses: []llm.LLMResponse{toolUse(toolCall("t1", "search_course_content", `{"query":"x"}`))},
		errs:      []error{nil, llm.NewError("scripted", llm.KindRateLimit, errors.New("429"))},
	}

	ans, err := newEngine(p, 2).Generate(context.Background(), Request{Query: "q", Tools: newRegistry(t, &calls, nil)})
	require.True(t, llm.IsKind(err, llm.KindRateLimit))
	require.Len(t, p.calls, 2, "the loop never retries")
	require.Equal(t, 1, ans.Rounds)
	require.Equal(t, StateFailed, ans.Trace[len(ans.Trace)-1])
}

func TestEmptyAnswerIsMalformed(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{text("   ")}}

	_, err := newEngine(p, 2).Generate(context.Background(), Request{Query: "q"})
	require.True(t, llm.IsKind(err, llm.KindMalformedResponse), "got %v", err)
}

func TestCancellationBetweenRounds(t *testing.T) {
	var calls []invocation
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{
		responses: []llm.LLMResponse{
			toolUse(toolCall("t1", "get_course_outline", `{"course_name":"MCP"}`)),
			text("never"),
		},
		onCall: func(n int) {
			if n == 0 {
				cancel()
			}
		},
	}
	reg := tools.NewRegistry(tools.NewExecutor(time.Second), nil)
	require.NoError(t, reg.RegisterFunc(tools.Definition{
		Name:   "get_course_outline",
		Params: []tools.Param{{Name: "course_name", Type: tools.TypeString}},
	}, func(ctx context.Context, p tools.Params) (tools.Result, error) {
		calls = append(calls, invocation{name: "get_course_outline"})
		return tools.TextResult("outline"), nil
	}))

	_, err := newEngine(p, 2).Generate(ctx, Request{Query: "q", Tools: reg})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, p.calls, 1)
}

func TestStateMachineRejectsIllegalEdges(t *testing.T) {
	m := newMachine()
	require.ErrorIs(t, m.to(StateDone), ErrIllegalTransition)
	require.NoError(t, m.to(StateAwaitingModel))
	require.ErrorIs(t, m.to(StateToolExecuted), ErrIllegalTransition)
	require.NoError(t, m.to(StateDone))
	require.ErrorIs(t, m.to(StateAwaitingModel), ErrIllegalTransition)

	m.fail()
	require.Equal(t, StateDone, m.state, "terminal states stay put")
	require.Equal(t, "tool_requested", StateToolRequested.String())
}

func TestBuilder(t *testing.T) {
	_, err := NewBuilder(nil).Build()
	require.Error(t, err)

	client := llm.NewClient(&scriptedProvider{}, 0, nil)
	_, err = NewBuilder(client).MaxRounds(-1).Build()
	require.Error(t, err)

	e, err := NewBuilder(client).MaxRounds(3).SystemPrompt("custom").Build()
	require.NoError(t, err)
	require.Equal(t, 3, e.MaxRounds())
}
