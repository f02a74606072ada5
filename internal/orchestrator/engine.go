// Package orchestrator is the engine's top-level entry point. It classifies
// each incoming message, dispatches it to document retrieval or the reasoning
// agent, and persists the resulting turns.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quill/internal/agent"
	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/rag"
	"quill/internal/store"
	"quill/pkg/types"
)

// agentFailureAnswer wraps an unrecoverable agent error into a reply, so the
// conversation degrades instead of surfacing an internal error.
const agentFailureAnswer = "Sorry, I ran into an error while processing your request: %v"

// RouteResult is the outcome of one conversational turn.
type RouteResult struct {
	Answer string
	Route  Route
	Steps  []types.Step
}

// QueryResult is the outcome of a direct document query, carrying the chat
// history that grounded the answer.
type QueryResult struct {
	Answer  string
	History []types.Message
}

// Engine wires routing, retrieval, reasoning and persistence together.
type Engine struct {
	store store.Store
	index *rag.Manager
	agent *agent.Engine

	historyWindow int
	logger        logging.Logger
}

// New creates the orchestration engine.
func New(st store.Store, index *rag.Manager, agentEngine *agent.Engine, historyWindow int) *Engine {
	if historyWindow <= 0 {
		historyWindow = config.DefaultHistoryWindow
	}
	return &Engine{
		store:         st,
		index:         index,
		agent:         agentEngine,
		historyWindow: historyWindow,
		logger:        logging.NewComponentLogger("orchestrator"),
	}
}

// Route handles one user message end to end: classify, dispatch, persist.
// Persistence is best-effort logging of the conversation, a store failure
// never withholds the answer from the caller.
func (e *Engine) Route(ctx context.Context, sessionID, userMessage string) (*RouteResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, fmt.Errorf("message is required")
	}

	history := e.loadHistory(ctx, sessionID)
	route := Classify(userMessage)
	e.logger.Debug("Session %s routed to %s", sessionID, route)

	var (
		answer string
		steps  []types.Step
	)

	switch route {
	case RouteRetrieval:
		var err error
		answer, err = e.index.Query(ctx, sessionID, userMessage, history)
		if err != nil {
			return nil, fmt.Errorf("retrieval route: %w", err)
		}
	default:
		result, err := e.agent.Run(ctx, userMessage, recent(history, e.historyWindow))
		if err != nil {
			e.logger.Error("Agent run failed for session %s: %v", sessionID, err)
			answer = fmt.Sprintf(agentFailureAnswer, err)
		} else {
			answer = result.Answer
			steps = result.Steps
		}
	}

	now := time.Now().UTC()
	e.persist(ctx, types.Message{
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   userMessage,
		Timestamp: now,
	})
	e.persist(ctx, types.Message{
		SessionID: sessionID,
		Role:      types.RoleAssistant,
		Content:   answer,
		Steps:     steps,
		Timestamp: now.Add(time.Millisecond),
	})

	return &RouteResult{
		Answer: answer,
		Route:  route,
		Steps:  steps,
	}, nil
}

// Query answers a question from the session's documents without routing,
// returning the history that grounded the answer.
func (e *Engine) Query(ctx context.Context, sessionID, question string) (*QueryResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	history := e.loadHistory(ctx, sessionID)
	answer, err := e.index.Query(ctx, sessionID, question, history)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Answer: answer, History: history}, nil
}

// IndexDocuments adds uploaded files to the session's document index.
func (e *Engine) IndexDocuments(ctx context.Context, sessionID string, files []rag.File) (*rag.IndexReport, error) {
	return e.index.IndexDocuments(ctx, sessionID, files)
}

// DeleteSession removes the session, its messages, and its document index.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	if err := e.index.ClearSession(ctx, sessionID); err != nil {
		e.logger.Warn("Dropping index for deleted session %s failed: %v", sessionID, err)
	}
	return nil
}

// Store exposes session and message CRUD to callers.
func (e *Engine) Store() store.Store {
	return e.store
}

func (e *Engine) loadHistory(ctx context.Context, sessionID string) []types.Message {
	history, err := e.store.ListMessages(ctx, sessionID)
	if err != nil {
		e.logger.Warn("Loading history for session %s failed: %v", sessionID, err)
		return nil
	}
	return history
}

func (e *Engine) persist(ctx context.Context, msg types.Message) {
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		e.logger.Warn("Persisting %s message for session %s failed: %v", msg.Role, msg.SessionID, err)
	}
}

func recent(history []types.Message, window int) []types.Message {
	if len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}
