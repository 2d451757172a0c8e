// Package github implements triage.Tracker on the GitHub REST API.
package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v84/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Auth selects how the client authenticates. Exactly one of Token or the
// App fields must be set.
type Auth struct {
	Token string

	AppID          int64
	InstallationID int64
	PrivateKeyFile string
}

// NewClient builds a go-github client for the given auth. baseURL is the
// API root for GitHub Enterprise and may be empty.
func NewClient(auth Auth, baseURL string) (*gh.Client, error) {
	base := otelhttp.NewTransport(http.DefaultTransport)

	var client *gh.Client
	switch {
	case auth.AppID != 0:
		if auth.InstallationID == 0 || auth.PrivateKeyFile == "" {
			return nil, errors.New("github app auth needs an installation id and a private key file")
		}
		tr, err := ghinstallation.NewKeyFromFile(base, auth.AppID, auth.InstallationID, auth.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("github app transport: %w", err)
		}
		if baseURL != "" {
			tr.BaseURL = strings.TrimSuffix(baseURL, "/")
		}
		client = gh.NewClient(&http.Client{Transport: tr, Timeout: 30 * time.Second})
	case auth.Token != "":
		client = gh.NewClient(&http.Client{Transport: base, Timeout: 30 * time.Second}).WithAuthToken(auth.Token)
	default:
		return nil, errors.New("no github credentials configured")
	}

	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	return client, nil
}
