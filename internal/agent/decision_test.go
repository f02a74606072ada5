package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionToolCall(t *testing.T) {
	d, err := ParseDecision(`{"thought": "need fresh data", "action": "general-web-search", "action_input": "go 1.24 release date"}`)
	require.NoError(t, err)

	assert.False(t, d.IsFinal())
	assert.Equal(t, "need fresh data", d.Thought)
	assert.Equal(t, "general-web-search", d.Action)
	assert.Equal(t, "go 1.24 release date", d.ActionInput)
}

func TestParseDecisionFinalAnswer(t *testing.T) {
	d, err := ParseDecision(`{"thought": "done", "final_answer": "Go 1.24 was released in February 2025."}`)
	require.NoError(t, err)

	assert.True(t, d.IsFinal())
	assert.Equal(t, "Go 1.24 was released in February 2025.", d.FinalAnswer)
}

func TestParseDecisionCodeFence(t *testing.T) {
	content := "```json\n{\"thought\": \"t\", \"action\": \"encyclopedia-lookup\", \"action_input\": \"Alan Turing\"}\n```"
	d, err := ParseDecision(content)
	require.NoError(t, err)

	assert.Equal(t, "encyclopedia-lookup", d.Action)
	assert.Equal(t, "Alan Turing", d.ActionInput)
}

func TestParseDecisionSurroundingProse(t *testing.T) {
	content := `Sure, here is my next step:
{"thought": "search first", "action": "general-web-search", "action_input": "weather tokyo"}
Let me know if that works.`
	d, err := ParseDecision(content)
	require.NoError(t, err)

	assert.Equal(t, "general-web-search", d.Action)
	assert.Equal(t, "weather tokyo", d.ActionInput)
}

func TestParseDecisionRepairsBrokenJSON(t *testing.T) {
	// Single quotes and a trailing comma are the usual model slip-ups.
	d, err := ParseDecision(`{'thought': 'look it up', 'action': 'academic-paper-search', 'action_input': 'attention is all you need',}`)
	require.NoError(t, err)

	assert.Equal(t, "academic-paper-search", d.Action)
	assert.Equal(t, "attention is all you need", d.ActionInput)
}

func TestParseDecisionProseFallsBackToFinalAnswer(t *testing.T) {
	d, err := ParseDecision("The capital of France is Paris.")
	require.NoError(t, err)

	assert.True(t, d.IsFinal())
	assert.Equal(t, "The capital of France is Paris.", d.FinalAnswer)
}

func TestParseDecisionEmptyIsError(t *testing.T) {
	_, err := ParseDecision("   \n")
	assert.Error(t, err)
}

func TestParseDecisionObjectWithoutActionOrAnswer(t *testing.T) {
	d, err := ParseDecision(`{"thought": "hmm, not sure"}`)
	require.NoError(t, err)

	assert.True(t, d.IsFinal())
	assert.Equal(t, "hmm, not sure", d.FinalAnswer)
}
