package triage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/go-core/log"
)

const tracerName = "github.com/linnemanlabs/triagebot/internal/triage"

// RetryPolicy bounds the classifier's attempts against transient failures.
type RetryPolicy struct {
	// MaxAttempts counts the first call, 3 means two retries.
	MaxAttempts int
	// BaseBackoff is the wait after the first failure, doubled after each
	// further failure.
	BaseBackoff time.Duration
	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 4s and 8s waits between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 4 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	return p.BaseBackoff << (attempt - 1)
}

// Classifier wraps a Provider with retry, validation and fallback. It never
// fails for issue-specific reasons: the worst outcome is a needs-triage
// fallback. Only authorization failures are returned as errors.
type Classifier struct {
	provider Provider
	retry    RetryPolicy
	logger   log.Logger
	hooks    EngineHooks

	// backoff waits block the run and are not cancellable
	sleep func(time.Duration)
}

// NewClassifier creates a classifier around the given provider.
func NewClassifier(provider Provider, retry RetryPolicy, logger log.Logger, hooks EngineHooks) *Classifier {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Classifier{
		provider: provider,
		retry:    retry,
		logger:   logger,
		hooks:    hooks,
		sleep:    time.Sleep,
	}
}

// Classify asks the provider for exactly one of categories. Results below
// threshold, unknown categories, malformed answers and exhausted transient
// failures all degrade to needs-triage with source fallback.
func (c *Classifier) Classify(ctx context.Context, title, body string, categories []string, threshold float64) (Classification, error) {
	req := &ClassifyRequest{
		MaxTokens:  classifyMaxTokens,
		System:     systemPrompt,
		Prompt:     buildPrompt(title, body, categories),
		Categories: categories,
	}

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		resp, err := c.call(ctx, req, attempt)
		if err == nil {
			return c.validate(ctx, resp, categories, threshold), nil
		}

		switch {
		case errors.Is(err, ErrUnauthorized):
			c.logger.Error(ctx, err, "classifier rejected credentials")
			return Classification{}, fmt.Errorf("classify: %w", err)
		case errors.Is(err, ErrMalformedResponse):
			c.logger.Warn(ctx, "classifier returned malformed response, using fallback", "error", err)
			return fallback(0), nil
		case !errors.Is(err, ErrTransient):
			c.logger.Warn(ctx, "classifier failed with non-retryable error, using fallback", "error", err)
			return fallback(0), nil
		}

		if attempt == c.retry.MaxAttempts {
			c.logger.Warn(ctx, "classifier retries exhausted, using fallback",
				"attempts", attempt,
				"error", err,
			)
			break
		}

		wait := c.retry.backoff(attempt)
		c.logger.Warn(ctx, "transient classifier failure, retrying",
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"backoff", wait.String(),
			"error", err,
		)
		c.sleep(wait)
	}

	return fallback(0), nil
}

// call performs one provider attempt under its own timeout and span.
func (c *Classifier) call(ctx context.Context, req *ClassifyRequest, attempt int) (*ClassifyResponse, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "classify.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("triage.classify.attempt", attempt))

	if c.retry.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.retry.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.provider.Classify(ctx, req)
	dur := time.Since(start).Seconds()

	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTransient) {
		err = fmt.Errorf("%w: %w", ErrTransient, err)
	}

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized):
		outcome = "unauthorized"
	case errors.Is(err, ErrTransient):
		outcome = "transient"
	case errors.Is(err, ErrMalformedResponse):
		outcome = "malformed"
	default:
		outcome = "error"
	}
	if c.hooks.OnClassifyAttempt != nil {
		c.hooks.OnClassifyAttempt(outcome, dur)
	}
	span.SetAttributes(attribute.String("triage.classify.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Int("llm.tokens.input", resp.Usage.InputTokens),
		attribute.Int("llm.tokens.output", resp.Usage.OutputTokens),
	)
	return resp, nil
}

func (c *Classifier) validate(ctx context.Context, resp *ClassifyResponse, categories []string, threshold float64) Classification {
	category := strings.ToLower(strings.TrimSpace(resp.Category))
	if !slices.Contains(categories, category) {
		c.logger.Warn(ctx, "classifier returned unknown category, using fallback",
			"category", resp.Category,
			"valid", categories,
		)
		return fallback(0)
	}

	conf := resp.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		c.logger.Warn(ctx, "classifier returned confidence out of range, using fallback", "confidence", conf)
		return fallback(0)
	}

	if conf < threshold {
		c.logger.Info(ctx, "classification below confidence threshold",
			"category", category,
			"confidence", conf,
			"threshold", threshold,
		)
		return fallback(conf)
	}

	return Classification{Category: category, Confidence: conf, Source: SourceLLM}
}

func fallback(conf float64) Classification {
	return Classification{Category: LabelNeedsTriage, Confidence: conf, Source: SourceFallback}
}
