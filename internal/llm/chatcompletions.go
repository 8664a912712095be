package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/concierge-go/internal/config"
)

// chatStreamer is the subset of *openai.Client used here.
type chatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// ChatCompletionsClient streams through the chat completions endpoint.
type ChatCompletionsClient struct {
	client chatStreamer
}

var _ Provider = (*ChatCompletionsClient)(nil)

func NewChatCompletionsClient(cfg config.LLMConfig) *ChatCompletionsClient {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &ChatCompletionsClient{client: openai.NewClientWithConfig(c)}
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return out
}

func (c *ChatCompletionsClient) OpenStream(ctx context.Context, model string, messages []Message) (Stream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toChatMessages(messages),
		Stream:   true,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, URL: "chat/completions", Body: apiErr.Message}
		}
		return nil, fmt.Errorf("llm: open chat stream: %w", err)
	}
	return &chatStream{stream: stream}, nil
}

type chatStream struct {
	stream *openai.ChatCompletionStream
	text   strings.Builder
	id       string
	finished bool
	done     bool
}

func (s *chatStream) Recv() (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.done = true
		if !s.finished {
			return Event{}, fmt.Errorf("llm: chat stream ended without a finish reason: %w", io.ErrUnexpectedEOF)
		}
		return Done(s.aggregate()), nil
	}
	if err != nil {
		s.done = true
		return Event{}, fmt.Errorf("llm: chat stream: %w", err)
	}
	if s.id == "" {
		s.id = resp.ID
	}
	if len(resp.Choices) == 0 {
		return Delta(""), nil
	}
	if resp.Choices[0].FinishReason != "" {
		s.finished = true
	}
	delta := resp.Choices[0].Delta.Content
	s.text.WriteString(delta)
	return Delta(delta), nil
}

// aggregate folds the streamed text into a single output_text part so the
// salvage path works the same for both APIs.
func (s *chatStream) aggregate() *Response {
	return &Response{
		ID:     s.id,
		Status: "completed",
		Output: []OutputItem{{
			Type:    "message",
			Role:    string(RoleAssistant),
			Content: []ContentPart{{Type: ContentOutputText, Text: s.text.String()}},
		}},
	}
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
