package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
	"quill/internal/llm"
	"quill/pkg/types"
)

type stubTool struct {
	name string
	desc string
	fn   func(ctx context.Context, input string) (string, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.desc }
func (s *stubTool) Run(ctx context.Context, input string) (string, error) {
	return s.fn(ctx, input)
}

func echoTool(name string) *stubTool {
	return &stubTool{
		name: name,
		desc: "echoes its input",
		fn: func(_ context.Context, input string) (string, error) {
			return "result for " + input, nil
		},
	}
}

func newTestEngine(t *testing.T, client llm.Client, tools ...Tool) *Engine {
	t.Helper()
	registry, err := NewRegistry(tools...)
	require.NoError(t, err)
	return New(client, registry, config.AgentConfig{}, nil)
}

func toolCall(tool, input string) string {
	return fmt.Sprintf(`{"thought": "use %s", "action": "%s", "action_input": "%s"}`, tool, tool, input)
}

func finalAnswer(answer string) string {
	return fmt.Sprintf(`{"thought": "done", "final_answer": "%s"}`, answer)
}

func TestRunDirectFinalAnswer(t *testing.T) {
	client := llm.NewMockClient(finalAnswer("Paris"))
	engine := newTestEngine(t, client, echoTool("lookup"))

	result, err := engine.Run(context.Background(), "capital of France?", nil)
	require.NoError(t, err)

	assert.Equal(t, "Paris", result.Answer)
	assert.Empty(t, result.Steps)
	assert.Equal(t, 1, client.Calls())
}

func TestRunToolThenAnswer(t *testing.T) {
	client := llm.NewMockClient(
		toolCall("lookup", "weather tokyo"),
		finalAnswer("It is sunny in Tokyo."),
	)
	engine := newTestEngine(t, client, echoTool("lookup"))

	result, err := engine.Run(context.Background(), "weather in tokyo?", nil)
	require.NoError(t, err)

	assert.Equal(t, "It is sunny in Tokyo.", result.Answer)
	require.Len(t, result.Steps, 1)

	step := result.Steps[0]
	assert.Equal(t, "lookup", step.Tool)
	assert.Equal(t, "weather tokyo", step.Input)
	assert.Equal(t, "use lookup", step.Log)
	assert.Equal(t, "result for weather tokyo", step.Observation)

	// The observation was fed back before the final call.
	req, err := client.LastRequest()
	require.NoError(t, err)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, types.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Observation: result for weather tokyo")
}

func TestRunToolErrorBecomesObservation(t *testing.T) {
	failing := &stubTool{
		name: "lookup",
		desc: "always fails",
		fn: func(context.Context, string) (string, error) {
			return "", errors.New("upstream timed out")
		},
	}
	client := llm.NewMockClient(
		toolCall("lookup", "anything"),
		finalAnswer("I could not verify this."),
	)
	engine := newTestEngine(t, client, failing)

	result, err := engine.Run(context.Background(), "question", nil)
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Contains(t, result.Steps[0].Observation, "upstream timed out")
	assert.Equal(t, "I could not verify this.", result.Answer)
}

func TestRunToolPanicBecomesObservation(t *testing.T) {
	panicking := &stubTool{
		name: "lookup",
		desc: "panics",
		fn: func(context.Context, string) (string, error) {
			panic("nil dereference")
		},
	}
	client := llm.NewMockClient(
		toolCall("lookup", "x"),
		finalAnswer("done"),
	)
	engine := newTestEngine(t, client, panicking)

	result, err := engine.Run(context.Background(), "question", nil)
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Contains(t, result.Steps[0].Observation, "failed")
	assert.NotEmpty(t, result.Steps[0].Observation)
}

func TestRunUnknownToolName(t *testing.T) {
	client := llm.NewMockClient(
		toolCall("no-such-tool", "x"),
		finalAnswer("answered anyway"),
	)
	engine := newTestEngine(t, client, echoTool("lookup"))

	result, err := engine.Run(context.Background(), "question", nil)
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Contains(t, result.Steps[0].Observation, "Unknown tool")
	assert.Contains(t, result.Steps[0].Observation, "lookup")
}

func TestRunStepBudgetExhaustion(t *testing.T) {
	// The model never produces a final answer.
	client := llm.NewMockClient(toolCall("lookup", "again"))
	engine := newTestEngine(t, client, echoTool("lookup"))

	result, err := engine.Run(context.Background(), "question", nil)
	require.NoError(t, err)

	assert.Len(t, result.Steps, config.DefaultMaxAgentSteps)
	assert.Equal(t, config.DefaultMaxAgentSteps, client.Calls())
	assert.True(t, strings.HasPrefix(result.Answer, stepLimitAnswer))
	assert.Contains(t, result.Answer, "result for again")
}

func TestRunObservationTruncated(t *testing.T) {
	verbose := &stubTool{
		name: "lookup",
		desc: "returns a wall of text",
		fn: func(context.Context, string) (string, error) {
			return strings.Repeat("x", 5000), nil
		},
	}
	client := llm.NewMockClient(
		toolCall("lookup", "x"),
		finalAnswer("done"),
	)
	engine := newTestEngine(t, client, verbose)

	result, err := engine.Run(context.Background(), "question", nil)
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Len(t, []rune(result.Steps[0].Observation), config.DefaultObservationLimit)
}

func TestRunModelFailurePropagates(t *testing.T) {
	client := llm.NewMockClient()
	client.Err = errors.New("connection refused")
	engine := newTestEngine(t, client, echoTool("lookup"))

	_, err := engine.Run(context.Background(), "question", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunEmptyQuestionRejected(t *testing.T) {
	engine := newTestEngine(t, llm.NewMockClient(), echoTool("lookup"))
	_, err := engine.Run(context.Background(), "  ", nil)
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(echoTool("lookup"), echoTool("lookup"))
	assert.Error(t, err)
}
