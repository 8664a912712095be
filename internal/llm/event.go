package llm

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one provider-facing prompt entry.
type Message struct {
	Role Role
	Text string
}

// EventKind tags the closed set of stream events.
type EventKind int

const (
	// EventDelta carries an incremental chunk of text in Text.
	EventDelta EventKind = iota + 1
	// EventError is a provider-reported failure; Text holds its message.
	EventError
	// EventDone ends the stream; Final holds the aggregate result when available.
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

type Event struct {
	Kind  EventKind
	Text  string
	Final *Response
}

func Delta(text string) Event { return Event{Kind: EventDelta, Text: text} }

func ErrorUnit(message string) Event { return Event{Kind: EventError, Text: message} }

func Done(final *Response) Event { return Event{Kind: EventDone, Final: final} }

// Response is the aggregate result of a completed stream.
type Response struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Output []OutputItem   `json:"output"`
	Error  *ResponseError `json:"error,omitempty"`
}

type OutputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is a typed text fragment. Type is input_text or output_text.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ContentInputText  = "input_text"
	ContentOutputText = "output_text"
)

// OutputText returns the first non-empty output_text part, trimmed. It is
// the salvage path when no deltas were streamed.
func (r *Response) OutputText() string {
	if r == nil {
		return ""
	}
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Type != ContentOutputText {
				continue
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				return text
			}
		}
	}
	return ""
}

// ProviderError is an error unit reported inside the stream.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return "llm: provider error: " + e.Message
}

// HTTPStatusError captures non-2xx provider responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}
