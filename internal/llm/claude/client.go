package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/triagebot/internal/llm"
	"github.com/linnemanlabs/triagebot/internal/triage"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5"

const toolName = "classify_issue"

// Client implements triage.Provider for the Claude API. The answer is
// forced through a single tool call whose input schema restricts the
// category to the configured set.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a new Claude API client. baseURL may be empty. SDK retries are
// disabled, the classifier owns the retry policy.
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
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Classify sends one classification request.
func (c *Client) Classify(ctx context.Context, req *triage.ClassifyRequest) (*triage.ClassifyResponse, error) {
	msg, err := c.client.Messages.New(ctx, buildParams(c.model, req))
	if err != nil {
		return nil, wrapSDKError(err)
	}
	return fromSDKResponse(msg)
}

func buildParams(model string, req *triage.ClassifyRequest) anthropic.MessageNewParams {
	props, required := llm.AnswerSchema(req.Categories)
	return anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        toolName,
				Description: anthropic.String("Record the category and confidence for the issue."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(toolName),
	}
}

func fromSDKResponse(msg *anthropic.Message) (*triage.ClassifyResponse, error) {
	for _, block := range msg.Content {
		if block.Type != "tool_use" || block.Name != toolName {
			continue
		}
		category, confidence, err := llm.DecodeAnswer(block.Input)
		if err != nil {
			return nil, err
		}
		return &triage.ClassifyResponse{
			Category:   category,
			Confidence: confidence,
			Model:      string(msg.Model),
			Usage: triage.Usage{
				InputTokens:  int(msg.Usage.InputTokens),
				OutputTokens: int(msg.Usage.OutputTokens),
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: no %s tool call in response (stop reason %q)",
		triage.ErrMalformedResponse, toolName, msg.StopReason)
}

func wrapSDKError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.WrapError(fmt.Errorf("claude api: %w", err), apiErr.StatusCode)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("%w: %w", triage.ErrMalformedResponse, err)
	}
	return llm.WrapError(fmt.Errorf("claude api: %w", err), 0)
}
