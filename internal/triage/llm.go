// internal/triage/llm.go
package triage

import "context"

// Provider is the interface for any classification backend. Implementations
// wrap errors with ErrTransient, ErrUnauthorized or ErrMalformedResponse so
// the Classifier can apply its retry policy.
type Provider interface {
	Classify(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error)
}

// ClassifyRequest is a single closed-choice categorization request.
type ClassifyRequest struct {
	MaxTokens  int
	System     string
	Prompt     string
	Categories []string
}

// ClassifyResponse is the provider's parsed answer.
type ClassifyResponse struct {
	Category   string
	Confidence float64
	Model      string
	Usage      Usage
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
