// Package authmw provides HTTP middleware authenticating API callers by
// bearer token and GitHub webhook deliveries by payload signature.
package authmw

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v84/github"
)

// MaxWebhookBytes is the largest webhook body accepted. Issue and comment
// payloads stay far below GitHub's 25 MB delivery cap. The server applies
// the same limit to every request.
const MaxWebhookBytes = 1 << 20

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. Comparison is
// constant-time.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing or malformed authorization header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[len("Bearer "):]), expected) != 1 {
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GitHubSignature returns middleware that verifies the X-Hub-Signature-256
// HMAC of a webhook delivery against secret, falling back to the legacy
// SHA-1 header. On success the handler sees the verified JSON payload as
// the request body, also for form-encoded deliveries.
func GitHubSignature(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(gh.SHA256SignatureHeader)
			if sig == "" {
				sig = r.Header.Get(gh.SHA1SignatureHeader)
			}
			if sig == "" {
				unauthorized(w, "missing webhook signature")
				return
			}

			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
					return
				}
				writeError(w, http.StatusBadRequest, "unreadable payload")
				return
			}
			payload, err := gh.ValidatePayloadFromBody(r.Header.Get("Content-Type"), bytes.NewReader(raw), sig, key)
			if err != nil {
				unauthorized(w, "invalid webhook signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(payload))
			r.ContentLength = int64(len(payload))
			next.ServeHTTP(w, r)
		})
	}
}
