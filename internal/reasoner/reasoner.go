// Package reasoner runs the budgeted two-phase exchange behind every chat completion:
// a reasoning call stopped at the closing think marker, then an answer call seeded with the
// finished reasoning.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"adaptive-reasoner/internal/metrics"
	"adaptive-reasoner/internal/models"
	"adaptive-reasoner/internal/provider/openai"
	"adaptive-reasoner/internal/queue"
	"adaptive-reasoner/internal/translator"
)

const outcomeCancelled = "cancelled"

// Reasoner orchestrates both phases against the upstream of a route.
// It keeps no per-request state and is safe for concurrent use.
type Reasoner struct {
	client           *openai.Client
	metrics          *metrics.Collector
	queueCapacity    int
	defaultMaxTokens int
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithMetrics records request, upstream and token metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Reasoner) { r.metrics = c }
}

// WithQueueCapacity sets how many SSE frames a stream buffers before the producer blocks.
func WithQueueCapacity(n int) Option {
	return func(r *Reasoner) {
		if n > 0 {
			r.queueCapacity = n
		}
	}
}

// WithDefaultMaxTokens sets the completion allowance used when a request has no max_tokens.
func WithDefaultMaxTokens(n int) Option {
	return func(r *Reasoner) {
		if n > 0 {
			r.defaultMaxTokens = n
		}
	}
}

// New creates a Reasoner sending upstream calls through client.
func New(client *openai.Client, opts ...Option) *Reasoner {
	r := &Reasoner{
		client:           client,
		queueCapacity:    queue.DefaultCapacity,
		defaultMaxTokens: models.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Complete answers req with a single completion. Any failure aborts the whole exchange; no
// partial result is returned.
func (r *Reasoner) Complete(ctx context.Context, req models.ChatCompletionRequest, route models.Route) (*models.ChatCompletion, error) {
	completion, err := r.complete(ctx, req, route)
	r.metrics.RecordRequest(req.Model, metrics.ModeDirect, outcomeOf(err))
	if err != nil {
		log.Error().Err(err).Str("model", req.Model).Msg("chat completion failed")
		return nil, err
	}
	return completion, nil
}

func (r *Reasoner) complete(ctx context.Context, req models.ChatCompletionRequest, route models.Route) (*models.ChatCompletion, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	mode := renderingMode(route)

	reasoningResp, err := r.callComplete(ctx, metrics.PhaseReasoning, route,
		translator.ReasoningRequest(req, route.ReasoningBudget, false))
	if err != nil {
		return nil, err
	}
	reasoningChoice, ok := firstChoice(reasoningResp)
	if !ok {
		return nil, models.NewAPIError(0, "", "reasoning response has no choices")
	}

	out := translator.Outcome{
		Reasoning:       trimmedContent(reasoningChoice.Message),
		PromptTokens:    reasoningResp.Usage.PromptTokens,
		ReasoningTokens: reasoningResp.Usage.CompletionTokens,
	}
	log.Debug().
		Str("model", req.Model).
		Int("prompt_tokens", out.PromptTokens).
		Int("reasoning_tokens", out.ReasoningTokens).
		Int("reasoning_chars", len(out.Reasoning)).
		Str("finish_reason", string(reasoningChoice.FinishReason)).
		Msg("reasoning phase finished")

	if reasoningChoice.FinishReason == models.FinishReasonLength {
		r.metrics.RecordReasoningCutoff(req.Model)
	}

	remaining := translator.Remaining(r.maxTokens(req), out.ReasoningTokens)
	if remaining > 0 {
		if reasoningChoice.FinishReason == models.FinishReasonLength {
			out.Reasoning += translator.CutoffSuffix()
		}

		answerResp, err := r.callComplete(ctx, metrics.PhaseAnswer, route,
			translator.AnswerRequest(req, out.Reasoning, remaining, false))
		if err != nil {
			return nil, err
		}
		answerChoice, ok := firstChoice(answerResp)
		if !ok {
			return nil, models.NewAPIError(0, "", "answer response has no choices")
		}

		out.Answer = trimmedContent(answerChoice.Message)
		out.ToolCalls = answerChoice.Message.ToolCalls
		out.AnswerTokens = answerResp.Usage.CompletionTokens
		out.FinishReason = answerChoice.FinishReason
		log.Debug().
			Str("model", req.Model).
			Int("answer_tokens", out.AnswerTokens).
			Int("answer_chars", len(out.Answer)).
			Msg("answer phase finished")
	} else {
		out.FinishReason = models.FinishReasonLength
		r.metrics.RecordAnswerSkipped(req.Model)
		log.Debug().Str("model", req.Model).Int("remaining", remaining).Msg("reasoning used the whole allowance, skipping answer phase")
	}

	r.metrics.RecordTokens(req.Model, out.PromptTokens, out.ReasoningTokens, out.AnswerTokens)
	completion := translator.MergeCompletion(reasoningResp, req.Model, mode, out)
	return &completion, nil
}

func (r *Reasoner) callComplete(ctx context.Context, phase metrics.Phase, route models.Route, req models.ChatCompletionRequest) (*models.ChatCompletion, error) {
	start := time.Now()
	resp, err := r.client.Complete(ctx, route, req)
	r.metrics.RecordUpstream(phase, outcomeOf(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s phase: %w", phase, err)
	}
	return resp, nil
}

func (r *Reasoner) maxTokens(req models.ChatCompletionRequest) int {
	return req.MaxTokensOr(r.defaultMaxTokens)
}

func renderingMode(route models.Route) models.RenderingMode {
	if route.RenderingMode.Valid() {
		return route.RenderingMode
	}
	return models.RenderInlineMarkers
}

func firstChoice(resp *models.ChatCompletion) (models.Choice, bool) {
	if resp == nil || len(resp.Choices) == 0 {
		return models.Choice{}, false
	}
	return resp.Choices[0], true
}

func trimmedContent(msg models.AssistantMessage) string {
	if msg.Content == nil {
		return ""
	}
	return strings.TrimSpace(*msg.Content)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, queue.ErrConsumerGone), errors.Is(err, context.Canceled):
		return outcomeCancelled
	}
	if kind := models.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
