package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const defaultBaseURL = "https://api.openai.com/v1/"

// Responses API stream event types.
const (
	eventOutputTextDelta = "response.output_text.delta"
	eventResponseError   = "response.error"
	eventError           = "error"
	eventFailed          = "response.failed"
	eventCompleted       = "response.completed"
	eventIncomplete      = "response.incomplete"
)

// InputItem is one entry of a Responses API input list.
type InputItem struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// ToResponsesInput maps messages 1:1 onto the Responses input shape.
// Assistant-authored entries are tagged output_text, all others input_text.
func ToResponsesInput(messages []Message) []InputItem {
	out := make([]InputItem, 0, len(messages))
	for _, m := range messages {
		kind := ContentInputText
		if m.Role == RoleAssistant {
			kind = ContentOutputText
		}
		out = append(out, InputItem{Role: m.Role, Content: []ContentPart{{Type: kind, Text: m.Text}}})
	}
	return out
}

// ResponsesClient streams from the OpenAI Responses API.
type ResponsesClient struct {
	client openai.Client
}

var _ Provider = (*ResponsesClient)(nil)

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*clientOptions)

func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
			o.baseURL = u + "/"
		}
	}
}

// WithHTTPClient overrides the transport. The client should not set a total
// Timeout; stream duration is bounded by the request context.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) {
		if httpClient != nil {
			o.httpClient = httpClient
		}
	}
}

func NewResponsesClient(apiKey string, opts ...Option) (*ResponsesClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	o := clientOptions{baseURL: defaultBaseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	// Streams are never retried; deltas may already have reached the client.
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(o.baseURL),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(0),
	)
	return &ResponsesClient{client: client}, nil
}

func (c *ResponsesClient) OpenStream(ctx context.Context, model string, messages []Message) (Stream, error) {
	stream := c.client.Responses.NewStreaming(ctx,
		responses.ResponseNewParams{Model: shared.ResponsesModel(model)},
		option.WithJSONSet("input", ToResponsesInput(messages)),
	)
	if err := stream.Err(); err != nil {
		return nil, statusError(err)
	}
	return &responsesStream{stream: stream}, nil
}

func statusError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("llm: request failed: %w", err)
	}
	statusErr := &HTTPStatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
	if apiErr.Request != nil {
		statusErr.URL = apiErr.Request.URL.String()
	}
	return statusErr
}

type streamEvent struct {
	Type     string         `json:"type"`
	Delta    string         `json:"delta"`
	Message  string         `json:"message"`
	Error    *ResponseError `json:"error"`
	Response *Response      `json:"response"`
}

type responsesStream struct {
	stream *ssestream.Stream[responses.ResponseStreamEventUnion]
	done   bool
}

// Recv returns the next mapped event. The stream must end with a completed,
// incomplete or failed response; anything shorter is io.ErrUnexpectedEOF.
func (s *responsesStream) Recv() (Event, error) {
	for !s.done {
		if !s.stream.Next() {
			s.done = true
			if err := s.stream.Err(); err != nil {
				return Event{}, fmt.Errorf("llm: read stream: %w", err)
			}
			return Event{}, fmt.Errorf("llm: stream closed before a final response: %w", io.ErrUnexpectedEOF)
		}
		ev, ok, err := s.mapEvent(s.stream.Current().RawJSON())
		if err != nil {
			s.done = true
			return Event{}, err
		}
		if ok {
			return ev, nil
		}
	}
	return Event{}, io.EOF
}

// mapEvent translates one raw stream event. Unrelated event types are
// skipped.
func (s *responsesStream) mapEvent(raw string) (Event, bool, error) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return Event{}, false, fmt.Errorf("llm: malformed stream event: %w", err)
	}

	switch ev.Type {
	case eventOutputTextDelta:
		return Delta(ev.Delta), true, nil
	case eventResponseError, eventError:
		s.done = true
		msg := ev.Message
		if msg == "" && ev.Error != nil {
			msg = ev.Error.Message
		}
		if msg == "" {
			msg = "AI model error."
		}
		return ErrorUnit(msg), true, nil
	case eventFailed:
		s.done = true
		msg := "AI model error."
		if ev.Response != nil && ev.Response.Error != nil && ev.Response.Error.Message != "" {
			msg = ev.Response.Error.Message
		}
		return ErrorUnit(msg), true, nil
	case eventCompleted, eventIncomplete:
		s.done = true
		return Done(ev.Response), true, nil
	}
	return Event{}, false, nil
}

func (s *responsesStream) Close() error {
	return s.stream.Close()
}
