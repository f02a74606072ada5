// Package agent implements a tool-using reasoning loop. Each run alternates
// between asking the model for the next move, executing the chosen tool, and
// feeding the observation back, until the model produces a final answer or
// the step budget runs out.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/llm"
	"quill/internal/logging"
	"quill/internal/observability"
	"quill/pkg/types"
)

const systemPromptTemplate = `You are a research assistant that answers questions by reasoning step by step and calling tools.

Available tools:
%s
Respond with exactly one JSON object per turn and nothing else.

To call a tool:
  {"thought": "<why this tool helps>", "action": "<tool name>", "action_input": "<input for the tool>"}

To finish:
  {"thought": "<brief wrap-up>", "final_answer": "<complete answer for the user>"}

Call at most one tool per turn. After each call you receive its output as an observation. Finish as soon as you can answer confidently.`

// stepLimitAnswer opens the reply returned when the budget runs out with at
// least one observation gathered.
const stepLimitAnswer = "I ran out of reasoning steps before reaching a confident answer. Here is what I found so far:\n\n"

// stepLimitEmptyAnswer is returned when the budget runs out with nothing
// gathered at all.
const stepLimitEmptyAnswer = "I was unable to find an answer within the allowed number of reasoning steps. Please try rephrasing the question."

// Result is the outcome of one agent run: the answer plus the full trace of
// steps that produced it.
type Result struct {
	Answer string
	Steps  []types.Step
}

// Engine drives the reasoning loop.
type Engine struct {
	client   llm.Client
	registry *Registry

	maxSteps         int
	observationLimit int
	toolTimeout      time.Duration

	metrics *observability.MetricsCollector
	logger  logging.Logger
}

// New creates an agent engine.
func New(client llm.Client, registry *Registry, cfg config.AgentConfig, metrics *observability.MetricsCollector) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = config.DefaultMaxAgentSteps
	}
	if cfg.ObservationLimit <= 0 {
		cfg.ObservationLimit = config.DefaultObservationLimit
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = config.DefaultToolTimeout
	}

	return &Engine{
		client:           client,
		registry:         registry,
		maxSteps:         cfg.MaxSteps,
		observationLimit: cfg.ObservationLimit,
		toolTimeout:      cfg.ToolTimeout,
		metrics:          metrics,
		logger:           logging.NewComponentLogger("agent"),
	}
}

// Run answers one question. The returned Result always carries the steps
// taken, also when the budget is exhausted. An error is returned only when
// the model itself becomes unreachable.
func (e *Engine) Run(ctx context.Context, question string, history []types.Message) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, e.registry.Describe())},
	}
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: types.RoleUser, Content: question})

	var steps []types.Step

	for iteration := 0; iteration < e.maxSteps; iteration++ {
		// Thinking: ask the model for its next move.
		resp, err := e.client.Complete(ctx, llm.CompletionRequest{Messages: messages})
		if err != nil {
			return nil, fmt.Errorf("agent step %d: %w", iteration+1, err)
		}

		decision, err := ParseDecision(resp.Content)
		if err != nil {
			return nil, fmt.Errorf("agent step %d: %w", iteration+1, err)
		}

		if decision.IsFinal() {
			e.logger.Debug("Final answer after %d tool calls", len(steps))
			return &Result{
				Answer: strings.TrimSpace(decision.FinalAnswer),
				Steps:  steps,
			}, nil
		}

		// Acting: run the chosen tool. Failures become observations so the
		// model can route around them.
		observation := e.executeTool(ctx, decision.Action, decision.ActionInput)

		// Observing: record the step and feed the observation back.
		observation = truncateRunes(observation, e.observationLimit)
		steps = append(steps, types.Step{
			Tool:        decision.Action,
			Input:       decision.ActionInput,
			Log:         decision.Thought,
			Observation: observation,
		})

		messages = append(messages,
			llm.Message{Role: types.RoleAssistant, Content: resp.Content},
			llm.Message{Role: types.RoleUser, Content: "Observation: " + observation},
		)
	}

	e.logger.Warn("Step budget of %d exhausted without a final answer", e.maxSteps)
	return &Result{
		Answer: bestPartialAnswer(steps),
		Steps:  steps,
	}, nil
}

// executeTool runs one tool call under its own timeout and never lets a tool
// failure escape as an error.
func (e *Engine) executeTool(ctx context.Context, name, input string) (observation string) {
	tool, ok := e.registry.Get(name)
	if !ok {
		return fmt.Sprintf("Unknown tool %q. Available tools: %s.",
			name, strings.Join(e.registry.Names(), ", "))
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	start := time.Now()
	status := "success"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			observation = fmt.Sprintf("Tool %s failed: %v", name, r)
		}
		e.metrics.RecordToolExecution(ctx, name, status, time.Since(start))
		e.logger.Debug("Tool %s finished in %s (%s)", name, time.Since(start), status)
	}()

	output, err := tool.Run(toolCtx, input)
	if err != nil {
		status = "error"
		return fmt.Sprintf("Tool %s failed: %v", name, err)
	}
	if strings.TrimSpace(output) == "" {
		return fmt.Sprintf("Tool %s returned no results.", name)
	}
	return output
}

// bestPartialAnswer builds a reply from gathered observations when the step
// budget runs out.
func bestPartialAnswer(steps []types.Step) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if strings.TrimSpace(steps[i].Observation) != "" {
			return stepLimitAnswer + steps[i].Observation
		}
	}
	return stepLimitEmptyAnswer
}

// truncateRunes caps s to limit runes.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
