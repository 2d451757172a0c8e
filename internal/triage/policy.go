package triage

import (
	"errors"
	"fmt"
)

// DefaultConfidenceThreshold is the minimum confidence for applying a
// category label without human review.
const DefaultConfidenceThreshold = 0.6

// Policy is the per-repository triage configuration, passed explicitly into
// every run.
type Policy struct {
	ClassificationEnabled bool
	Categories            []string
	ConfidenceThreshold   float64
	ClassifyOnEdit        bool
	RequiredFields        []string
}

// Validate checks the policy the same way the config loader does, so a
// hand-built Policy cannot slip past it.
func (p Policy) Validate() error {
	var errs []error

	if p.ClassificationEnabled && len(p.Categories) == 0 {
		errs = append(errs, errors.New("categories must not be empty when classification is enabled"))
	}
	seen := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		switch {
		case c == "":
			errs = append(errs, errors.New("category names must not be empty"))
		case c == LabelNeedsTriage || c == LabelNeedsInfo:
			errs = append(errs, fmt.Errorf("category %q is reserved", c))
		case seen[c]:
			errs = append(errs, fmt.Errorf("duplicate category %q", c))
		}
		seen[c] = true
	}
	if !(p.ConfidenceThreshold >= 0 && p.ConfidenceThreshold <= 1) {
		errs = append(errs, fmt.Errorf("confidence threshold %v out of range (must be 0..1)", p.ConfidenceThreshold))
	}
	for _, f := range p.RequiredFields {
		if f == "" {
			errs = append(errs, errors.New("required field names must not be empty"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, errors.Join(errs...))
	}
	return nil
}

// shouldClassify decides whether the classifier runs for this snapshot.
func (p Policy) shouldClassify(s *IssueSnapshot) bool {
	if !p.ClassificationEnabled {
		return false
	}
	switch s.Kind {
	case KindOpened:
		return true
	case KindEdited:
		return p.ClassifyOnEdit
	case KindCommented:
		return s.Command != nil && s.Command.Name == CommandReclassify
	}
	return false
}
