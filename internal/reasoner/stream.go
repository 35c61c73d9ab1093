package reasoner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"adaptive-reasoner/internal/metrics"
	"adaptive-reasoner/internal/models"
	"adaptive-reasoner/internal/queue"
	"adaptive-reasoner/internal/sse"
	"adaptive-reasoner/internal/translator"
)

// Stream validates req and starts a producer goroutine that runs both phases as upstream
// streams, pushing ready-to-write SSE frames into the returned queue.
//
// The queue is closed when the producer stops. A nil Err means the stream completed and its
// last frame is the [DONE] terminator; otherwise the frames end wherever the failure
// happened. The consumer must call Cancel if it stops draining early.
func (r *Reasoner) Stream(ctx context.Context, req models.ChatCompletionRequest, route models.Route) (*queue.Queue[[]byte], error) {
	if err := Validate(req); err != nil {
		r.metrics.RecordRequest(req.Model, metrics.ModeStream, outcomeOf(err))
		return nil, err
	}

	q := queue.New[[]byte](r.queueCapacity)
	p := &producer{
		r:     r,
		q:     q,
		req:   req,
		route: route,
		mode:  renderingMode(route),
		env:   translator.NewEnvelope(req.Model),
	}
	go p.run(ctx)
	return q, nil
}

// producer holds the state of one streamed exchange. It is owned by a single goroutine.
type producer struct {
	r     *Reasoner
	q     *queue.Queue[[]byte]
	req   models.ChatCompletionRequest
	route models.Route
	mode  models.RenderingMode
	env   *translator.Envelope

	opened          bool
	reasoning       strings.Builder
	reasoningFinish models.FinishReason
	promptTokens    int
	reasoningTokens int
	answerTokens    int
}

func (p *producer) run(ctx context.Context) {
	err := p.exchange(ctx)
	p.q.Close(err)
	p.r.metrics.RecordRequest(p.req.Model, metrics.ModeStream, outcomeOf(err))

	switch {
	case err == nil:
		p.r.metrics.RecordTokens(p.req.Model, p.promptTokens, p.reasoningTokens, p.answerTokens)
	case errors.Is(err, queue.ErrConsumerGone), errors.Is(err, context.Canceled):
		log.Info().Str("model", p.req.Model).Msg("client went away, stream aborted")
	default:
		log.Error().Err(err).Str("model", p.req.Model).Msg("chat completion stream failed")
	}
}

func (p *producer) exchange(ctx context.Context) error {
	reasoningReq := translator.ReasoningRequest(p.req, p.route.ReasoningBudget, true)
	if err := p.streamPhase(ctx, metrics.PhaseReasoning, reasoningReq, p.onReasoningChunk); err != nil {
		return err
	}
	if err := p.open(ctx); err != nil {
		return err
	}
	log.Debug().
		Str("model", p.req.Model).
		Int("prompt_tokens", p.promptTokens).
		Int("reasoning_tokens", p.reasoningTokens).
		Str("finish_reason", string(p.reasoningFinish)).
		Msg("reasoning stream finished")

	if p.reasoningFinish == models.FinishReasonLength {
		p.r.metrics.RecordReasoningCutoff(p.req.Model)
	}

	remaining := translator.Remaining(p.r.maxTokens(p.req), p.reasoningTokens)
	if remaining > 0 {
		if err := p.answer(ctx, remaining); err != nil {
			return err
		}
	} else {
		p.r.metrics.RecordAnswerSkipped(p.req.Model)
		log.Debug().Str("model", p.req.Model).Int("remaining", remaining).Msg("reasoning used the whole allowance, skipping answer phase")
		if err := p.send(ctx, p.env.LengthChunk()); err != nil {
			return err
		}
	}

	if p.req.IncludeUsage() {
		usage := models.NewUsage(p.promptTokens, p.reasoningTokens+p.answerTokens)
		if err := p.send(ctx, p.env.UsageChunk(usage)); err != nil {
			return err
		}
	}
	return p.q.Send(ctx, sse.Done)
}

func (p *producer) answer(ctx context.Context, remaining int) error {
	if p.reasoningFinish == models.FinishReasonLength {
		suffix := translator.CutoffSuffix()
		p.reasoning.WriteString(suffix)
		if err := p.send(ctx, p.env.DeltaChunk(translator.ReasoningDelta(p.mode, suffix))); err != nil {
			return err
		}
	}
	if delta, ok := translator.ThinkingEndDelta(p.mode); ok {
		if err := p.send(ctx, p.env.DeltaChunk(delta)); err != nil {
			return err
		}
	}

	p.env.StartPhase()
	answerReq := translator.AnswerRequest(p.req, p.reasoning.String(), remaining, true)
	if err := p.streamPhase(ctx, metrics.PhaseAnswer, answerReq, p.onAnswerChunk); err != nil {
		return err
	}
	log.Debug().Str("model", p.req.Model).Int("answer_tokens", p.answerTokens).Msg("answer stream finished")
	return nil
}

func (p *producer) onReasoningChunk(ctx context.Context, chunk *models.ChatCompletionChunk) error {
	p.env.Observe(chunk)
	if err := p.open(ctx); err != nil {
		return err
	}

	if chunk.Usage != nil {
		p.promptTokens = chunk.Usage.PromptTokens
		p.reasoningTokens = chunk.Usage.CompletionTokens
	}

	choice, ok := chunk.FirstChoice()
	if !ok {
		return nil
	}
	if choice.FinishReason != nil {
		p.reasoningFinish = *choice.FinishReason
	}
	if choice.Delta.Content == nil || *choice.Delta.Content == "" {
		return nil
	}
	p.reasoning.WriteString(*choice.Delta.Content)
	return p.send(ctx, p.env.DeltaChunk(translator.ReasoningDelta(p.mode, *choice.Delta.Content)))
}

func (p *producer) onAnswerChunk(ctx context.Context, chunk *models.ChatCompletionChunk) error {
	p.env.Observe(chunk)
	if chunk.Usage != nil {
		p.answerTokens = chunk.Usage.CompletionTokens
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	return p.send(ctx, p.env.Forward(chunk))
}

// open emits the opening delta once, before any other frame.
func (p *producer) open(ctx context.Context) error {
	if p.opened {
		return nil
	}
	p.opened = true
	return p.send(ctx, p.env.DeltaChunk(translator.OpeningDelta(p.mode)))
}

func (p *producer) streamPhase(ctx context.Context, phase metrics.Phase, req models.ChatCompletionRequest, handle func(context.Context, *models.ChatCompletionChunk) error) error {
	start := time.Now()
	stream, err := p.r.client.Stream(ctx, p.route, req)
	if err != nil {
		p.r.metrics.RecordUpstream(phase, outcomeOf(err), time.Since(start))
		return fmt.Errorf("%s phase: %w", phase, err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.r.metrics.RecordUpstream(phase, outcomeOf(err), time.Since(start))
			return fmt.Errorf("%s phase: %w", phase, err)
		}
		if err := handle(ctx, chunk); err != nil {
			p.r.metrics.RecordUpstream(phase, outcomeOf(err), time.Since(start))
			return err
		}
	}

	p.r.metrics.RecordUpstream(phase, metrics.OutcomeOK, time.Since(start))
	return nil
}

func (p *producer) send(ctx context.Context, chunk models.ChatCompletionChunk) error {
	frame, err := sse.Encode(chunk)
	if err != nil {
		return models.NewParseError("encode outgoing chunk", err)
	}
	return p.q.Send(ctx, frame)
}
