// Package llm holds what the classification providers share: the answer
// schema, answer decoding and the mapping of provider failures onto the
// triage error taxonomy.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/linnemanlabs/triagebot/internal/triage"
)

// Answer is the structured reply both providers are asked for.
type Answer struct {
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
}

// AnswerSchema returns the JSON schema properties and required list for an
// answer restricted to categories.
func AnswerSchema(categories []string) (properties map[string]any, required []string) {
	return map[string]any{
		"category": map[string]any{
			"type":        "string",
			"enum":        categories,
			"description": "The single best-fit category.",
		},
		"confidence": map[string]any{
			"type":        "number",
			"minimum":     0,
			"maximum":     1,
			"description": "How clearly the issue fits the category, 0.0 to 1.0.",
		},
	}, []string{"category", "confidence"}
}

// DecodeAnswer parses a raw JSON answer. Anything that is not an object
// with a string category and a numeric confidence is malformed. Range and
// membership checks are left to the classifier.
func DecodeAnswer(raw []byte) (string, float64, error) {
	var a Answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return "", 0, fmt.Errorf("%w: %w", triage.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(a.Category) == "" {
		return "", 0, fmt.Errorf("%w: missing category", triage.ErrMalformedResponse)
	}
	if a.Confidence == nil {
		return "", 0, fmt.Errorf("%w: missing confidence", triage.ErrMalformedResponse)
	}
	return a.Category, *a.Confidence, nil
}

// WrapError tags a provider error with ErrUnauthorized or ErrTransient.
// status is the HTTP status of the failed call, 0 when no response arrived.
// Errors matching neither are returned unchanged.
func WrapError(err error, status int) error {
	if err == nil {
		return nil
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", triage.ErrUnauthorized, err)
	case IsTransientStatus(status):
		return fmt.Errorf("%w: %w", triage.ErrTransient, err)
	case status == 0 && isTransportError(err):
		return fmt.Errorf("%w: %w", triage.ErrTransient, err)
	}
	return err
}

// IsTransientStatus reports whether a failed call with this status is
// worth repeating.
func IsTransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests, 529:
		return true
	}
	return status >= 500 && status <= 599
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
