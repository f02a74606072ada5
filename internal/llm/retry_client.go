package llm

import (
	"context"
	"time"

	quillerrors "quill/internal/errors"
	"quill/internal/logging"
)

// retryClient wraps an LLM client with retry logic and a circuit breaker
type retryClient struct {
	underlying     Client
	retryConfig    quillerrors.RetryConfig
	circuitBreaker *quillerrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient wraps an LLM client with retry and circuit breaker logic
func NewRetryClient(client Client, retryConfig quillerrors.RetryConfig, circuitBreaker *quillerrors.CircuitBreaker) Client {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// Complete executes LLM completion with retry logic
func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := quillerrors.RetryWithResult(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		if c.circuitBreaker != nil {
			if allowErr := c.circuitBreaker.Allow(); allowErr != nil {
				return nil, allowErr
			}
		}
		response, err := c.underlying.Complete(ctx, req)
		if c.circuitBreaker != nil && !quillerrors.IsDegraded(err) {
			c.circuitBreaker.Mark(err)
		}
		return response, err
	})

	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", duration, err)
		return nil, err
	}
	if duration > 5*time.Second {
		c.logger.Debug("LLM request succeeded after %v", duration)
	}
	return resp, nil
}
