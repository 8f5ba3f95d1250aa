package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends one inference request and returns the complete response.
	Chat(ctx context.Context, req *Request) (*Response, error)
}
