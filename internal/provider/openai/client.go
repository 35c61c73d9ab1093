// Package openai talks to OpenAI-compatible chat completion upstreams.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"adaptive-reasoner/internal/models"
	"adaptive-reasoner/internal/sse"
)

const (
	// ContentTypeJSON is expected from non-streamed completions.
	ContentTypeJSON = "application/json"
	// ContentTypeEventStream is expected from streamed completions.
	ContentTypeEventStream = "text/event-stream"

	userAgent         = "adaptive-reasoner/0.1"
	chatCompletionsEP = "/chat/completions"
	maxErrorBodyBytes = 64 * 1024
)

// ErrReadTimeout is reported when an upstream body yields no data within the read timeout.
var ErrReadTimeout = errors.New("upstream read timeout")

// Client sends chat completion requests to the upstream named by a route.
// It holds no per-route state and is safe for concurrent use.
type Client struct {
	http        *http.Client
	readTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithReadTimeout aborts a request when a single read of its response body blocks longer
// than d. Zero disables the limit.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// New creates a client on top of the shared HTTP client.
func New(httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client must not be nil")
	}
	c := &Client{http: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends req to route and returns the raw response once its status and content type have
// been checked. The caller owns the response body.
//
// The upstream model name replaces req.Model, and route extra fields override any field of
// the same name in the request.
func (c *Client) Do(ctx context.Context, route models.Route, req models.ChatCompletionRequest, expectedContentType string) (*http.Response, error) {
	payload, err := buildPayload(route, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(ctx)

	url := strings.TrimRight(route.APIURL, "/") + chatCompletionsEP
	httpReq, err := newRequest(ctx, url, route.APIKey, payload, expectedContentType)
	if err != nil {
		cancel(nil)
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		cancel(nil)
		return nil, models.NewNetworkError("send request to "+url, err)
	}
	httpResp.Body = newDeadlineBody(ctx, cancel, httpResp.Body, c.readTimeout)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		return nil, parseAPIError(httpResp)
	}

	if err := checkContentType(httpResp.Header.Get("Content-Type"), expectedContentType); err != nil {
		httpResp.Body.Close()
		return nil, err
	}

	return httpResp, nil
}

// Complete performs a non-streamed request and decodes the single completion it returns.
func (c *Client) Complete(ctx context.Context, route models.Route, req models.ChatCompletionRequest) (*models.ChatCompletion, error) {
	req = req.Clone()
	stream := false
	req.Stream = &stream
	req.StreamOptions = nil

	httpResp, err := c.Do(ctx, route, req, ContentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var completion models.ChatCompletion
	if err := decodeJSON(httpResp.Body, &completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

// Stream performs a streamed request and returns the decoded event sequence.
// The caller must Close the stream.
func (c *Client) Stream(ctx context.Context, route models.Route, req models.ChatCompletionRequest) (*Stream, error) {
	httpResp, err := c.Do(ctx, route, req, ContentTypeEventStream)
	if err != nil {
		return nil, err
	}
	return &Stream{
		decoder: sse.NewDecoder(httpResp.Body),
		body:    httpResp.Body,
	}, nil
}

// Stream is an open upstream event stream.
type Stream struct {
	decoder *sse.Decoder
	body    io.Closer
}

// Next returns the next chunk, or io.EOF once the stream has ended.
func (s *Stream) Next() (*models.ChatCompletionChunk, error) {
	return s.decoder.Next()
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

func buildPayload(route models.Route, req models.ChatCompletionRequest) ([]byte, error) {
	req.Model = route.ModelName
	body, err := json.Marshal(req)
	if err != nil {
		return nil, models.NewParseError("encode upstream request", err)
	}
	body, err = models.MergeFields(body, route.Extra, true)
	if err != nil {
		return nil, models.NewParseError("merge route fields", err)
	}
	return body, nil
}

func newRequest(ctx context.Context, url, apiKey string, body []byte, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, models.NewNetworkError("construct request", err)
	}

	req.Header.Set("Content-Type", ContentTypeJSON)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return models.NewNetworkError(fmt.Sprintf("upstream error status %d and failed to read body", resp.StatusCode), err)
	}
	text := strings.TrimSpace(string(body))

	message := "upstream returned an error"
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		message = "upstream error: " + msg.String()
	}
	return models.NewAPIError(resp.StatusCode, text, message)
}

func checkContentType(header, expected string) error {
	if header == "" {
		return models.NewParseError(fmt.Sprintf("upstream response has no content type, expected %s", expected), nil)
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return models.NewParseError(fmt.Sprintf("upstream content type %q", header), err)
	}
	if !strings.EqualFold(mediaType, expected) {
		return models.NewParseError(fmt.Sprintf("upstream content type %s, expected %s", mediaType, expected), nil)
	}
	return nil
}

// decodeJSON reads one JSON value. Malformed or mistyped JSON is a parse error; anything
// else, including a body cut short, is a failure of the transport.
func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	err := decoder.Decode(target)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.EOF):
		return models.NewParseError("decode upstream response", err)
	default:
		return models.NewNetworkError("read upstream response", err)
	}
}
