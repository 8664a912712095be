package llm

import "context"

// Stream yields provider events in order. Recv returns io.EOF once the stream
// has delivered its terminal event.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider opens a streaming completion over an ordered message sequence.
type Provider interface {
	OpenStream(ctx context.Context, model string, messages []Message) (Stream, error)
}
