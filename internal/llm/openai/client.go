// Package openai implements triage.Provider for OpenAI and OpenAI-compatible
// chat completion endpoints in JSON mode.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/triagebot/internal/llm"
	"github.com/linnemanlabs/triagebot/internal/triage"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// jsonInstruction is appended to the system prompt; JSON mode requires the
// word JSON to appear in the conversation.
const jsonInstruction = `Return ONLY a JSON object with two fields: "category" (string, one of the listed categories) and "confidence" (number between 0.0 and 1.0).`

// Client implements triage.Provider for chat completion APIs.
type Client struct {
	client openai.Client
	model  string
}

// New creates a new client. baseURL may be empty for the OpenAI API. SDK
// retries are disabled, the classifier owns the retry policy.
func New(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Classify sends one classification request.
func (c *Client) Classify(ctx context.Context, req *triage.ClassifyRequest) (*triage.ClassifyResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, buildParams(c.model, req))
	if err != nil {
		return nil, wrapSDKError(err)
	}
	return fromCompletion(resp)
}

func buildParams(model string, req *triage.ClassifyRequest) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System + "\n" + jsonInstruction),
			openai.UserMessage(req.Prompt),
		},
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
}

func fromCompletion(resp *openai.ChatCompletion) (*triage.ClassifyResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", triage.ErrMalformedResponse)
	}
	content := stripFence(resp.Choices[0].Message.Content)
	category, confidence, err := llm.DecodeAnswer([]byte(content))
	if err != nil {
		return nil, err
	}
	return &triage.ClassifyResponse{
		Category:   category,
		Confidence: confidence,
		Model:      resp.Model,
		Usage: triage.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// stripFence removes a markdown code fence some compatible servers wrap
// around JSON answers.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func wrapSDKError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.WrapError(fmt.Errorf("openai api: %w", err), apiErr.StatusCode)
	}
	return llm.WrapError(fmt.Errorf("openai api: %w", err), 0)
}
