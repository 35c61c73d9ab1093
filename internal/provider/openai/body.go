package openai

import (
	"context"
	"errors"
	"io"
	"time"
)

// deadlineBody bounds how long a single Read of an upstream body may block. When the timer
// fires the request context is cancelled with ErrReadTimeout, which unblocks the read.
// Time spent between reads is not counted.
type deadlineBody struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
}

func newDeadlineBody(ctx context.Context, cancel context.CancelCauseFunc, body io.ReadCloser, timeout time.Duration) *deadlineBody {
	b := &deadlineBody{ctx: ctx, cancel: cancel, body: body, timeout: timeout}
	if timeout > 0 {
		b.timer = time.AfterFunc(timeout, func() { cancel(ErrReadTimeout) })
		b.timer.Stop()
	}
	return b
}

func (b *deadlineBody) Read(p []byte) (int, error) {
	if b.timer != nil {
		b.timer.Reset(b.timeout)
		defer b.timer.Stop()
	}

	n, err := b.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && errors.Is(context.Cause(b.ctx), ErrReadTimeout) {
		return n, ErrReadTimeout
	}
	return n, err
}

func (b *deadlineBody) Close() error {
	if b.timer != nil {
		b.timer.Stop()
	}
	err := b.body.Close()
	b.cancel(nil)
	return err
}
