package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"adaptive-reasoner/internal/queue"
)

// writeStream copies SSE frames from q to the client. Headers are committed only once the
// first frame is ready, so a failure before any output still gets a JSON error response.
// After that, a failure or a client disconnect just ends the body.
func writeStream(c echo.Context, q *queue.Queue[[]byte]) error {
	ctx := c.Request().Context()
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	var first []byte
	select {
	case frame, ok := <-q.Items():
		if !ok {
			if err := q.Err(); err != nil {
				return toHTTPError(err)
			}
		}
		first = frame
	case <-ctx.Done():
		q.Cancel()
		return nil
	}

	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		q.Cancel()
		log.Error().Msg("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	frame, open := first, first != nil
	for open {
		if _, err := c.Response().Write(frame); err != nil {
			q.Cancel()
			log.Info().Err(err).Str("request_id", requestID).Msg("client write failed, cancelling stream")
			return nil
		}
		flusher.Flush()

		select {
		case frame, open = <-q.Items():
		case <-ctx.Done():
			q.Cancel()
			log.Info().Str("request_id", requestID).Msg("client disconnected, cancelling stream")
			return nil
		}
	}

	if err := q.Err(); err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("stream ended early")
	}
	return nil
}
