// Package repoconfig loads the per-repository triage policy from
// .github/triagebot.yml.
package repoconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagebot/internal/triage"
)

// DefaultPath is where the config lives relative to the repository root.
const DefaultPath = ".github/triagebot.yml"

var (
	defaultCategories     = []string{"bug", "feature-request", "question", "documentation"}
	defaultRequiredFields = []string{"reproduction steps", "expected behavior", "actual behavior"}
)

// Config mirrors the YAML file.
type Config struct {
	Classification Classification `yaml:"classification"`
	MissingInfo    MissingInfo    `yaml:"missing_info"`
}

type Classification struct {
	Enabled             bool     `yaml:"enabled"`
	Categories          []string `yaml:"categories"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	ClassifyOnEdit      bool     `yaml:"classify_on_edit"`
}

type MissingInfo struct {
	RequiredFields []string `yaml:"required_fields"`
}

// Default returns the config used when a repository has no file.
func Default() Config {
	return Config{
		Classification: Classification{
			Enabled:             true,
			Categories:          append([]string(nil), defaultCategories...),
			ConfidenceThreshold: triage.DefaultConfidenceThreshold,
		},
		MissingInfo: MissingInfo{
			RequiredFields: append([]string(nil), defaultRequiredFields...),
		},
	}
}

// Parse decodes data over the defaults. Keys that are absent keep their
// default; unknown keys are rejected. An empty document yields the defaults.
func Parse(data []byte) (Config, error) {
	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", triage.ErrInvalidPolicy, err)
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads and parses the file at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) normalize() {
	c.Classification.Categories = normalizeNames(c.Classification.Categories)
	c.MissingInfo.RequiredFields = normalizeNames(c.MissingInfo.RequiredFields)
}

func normalizeNames(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// Validate applies the policy rules to the config.
func (c Config) Validate() error {
	return c.Policy().Validate()
}

// Policy converts the file contents to the engine's policy value.
func (c Config) Policy() triage.Policy {
	return triage.Policy{
		ClassificationEnabled: c.Classification.Enabled,
		Categories:            c.Classification.Categories,
		ConfidenceThreshold:   c.Classification.ConfidenceThreshold,
		ClassifyOnEdit:        c.Classification.ClassifyOnEdit,
		RequiredFields:        c.MissingInfo.RequiredFields,
	}
}

// FileSource loads the policy from a checked-out workspace. The issue
// reference is ignored; a workspace holds one repository.
type FileSource struct {
	Path string
}

func (s FileSource) Policy(_ context.Context, _ triage.IssueRef) (triage.Policy, error) {
	c, err := Load(s.Path)
	if err != nil {
		return triage.Policy{}, err
	}
	return c.Policy(), nil
}

// FileReader reads a file from a repository's default branch.
type FileReader interface {
	ReadFile(ctx context.Context, owner, repo, path string) ([]byte, bool, error)
}

// RemoteSource loads the policy from the issue's repository through the
// tracker API.
type RemoteSource struct {
	reader FileReader
	path   string
	logger log.Logger
}

// NewRemoteSource creates a policy source reading path from each repository.
func NewRemoteSource(reader FileReader, path string, logger log.Logger) *RemoteSource {
	if path == "" {
		path = DefaultPath
	}
	return &RemoteSource{reader: reader, path: path, logger: logger}
}

func (s *RemoteSource) Policy(ctx context.Context, ref triage.IssueRef) (triage.Policy, error) {
	data, found, err := s.reader.ReadFile(ctx, ref.Owner, ref.Repo, s.path)
	if err != nil {
		return triage.Policy{}, fmt.Errorf("fetch %s: %w", s.path, err)
	}
	if !found {
		s.logger.Info(ctx, "no repository config, using defaults", "repo", ref.Owner+"/"+ref.Repo, "path", s.path)
		return Default().Policy(), nil
	}
	c, err := Parse(data)
	if err != nil {
		return triage.Policy{}, fmt.Errorf("invalid config at %s/%s:%s: %w", ref.Owner, ref.Repo, s.path, err)
	}
	return c.Policy(), nil
}
