// internal/triage/engine.go
package triage

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/go-core/log"
)

// EngineHooks are optional callbacks invoked by the Classifier, Engine and
// Service. Nil fields are skipped.
type EngineHooks struct {
	OnClassifyAttempt func(outcome string, duration float64)
	OnClassified      func(category string, source Source)
	OnFieldsChecked   func(missing []string)
	OnSubmit          func(result string)
	OnRunComplete     func(run *Run)
}

// Engine is the triage orchestrator. It decides, for one snapshot, whether
// to classify, which fields are missing, and what mutations converge the
// issue. It performs no writes and no retries of its own.
type Engine struct {
	classifier *Classifier
	matcher    *FieldMatcher
	logger     log.Logger
	hooks      EngineHooks
}

// NewEngine creates a triage engine. classifier may be nil when no provider
// is configured; policies with classification enabled then fail.
func NewEngine(classifier *Classifier, matcher *FieldMatcher, logger log.Logger, hooks EngineHooks) *Engine {
	if matcher == nil {
		matcher = NewFieldMatcher(DefaultMatchPolicy())
	}
	return &Engine{
		classifier: classifier,
		matcher:    matcher,
		logger:     logger,
		hooks:      hooks,
	}
}

// Run computes the outcome for one snapshot under the given policy. The only
// errors are configuration errors: an invalid policy, a missing classifier,
// or rejected classifier credentials. No remote state is touched.
func (e *Engine) Run(ctx context.Context, policy Policy, snap *IssueSnapshot) (*Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "triage.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("triage.issue", snap.Ref.String()),
		attribute.String("triage.event_kind", string(snap.Kind)),
	)

	L := e.logger.With(
		"issue", snap.Ref.String(),
		"event_kind", snap.Kind,
	)

	if err := policy.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid policy")
		return nil, err
	}

	cls, err := e.classify(ctx, L, policy, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification aborted")
		return nil, err
	}

	fields := e.matcher.Check(policy.RequiredFields, snap.Body)
	missing := fields.Missing()
	if e.hooks.OnFieldsChecked != nil {
		e.hooks.OnFieldsChecked(missing)
	}

	desired := NewReconciler(policy.Categories).Reconcile(snap, cls, fields)

	rec := Record{
		EventKind:     snap.Kind,
		MissingFields: missing,
	}
	if rec.MissingFields == nil {
		rec.MissingFields = []string{}
	}
	if cls != nil {
		rec.Category = cls.Category
		rec.Confidence = cls.Confidence
		rec.Source = cls.Source
		span.SetAttributes(
			attribute.String("triage.category", cls.Category),
			attribute.Float64("triage.confidence", cls.Confidence),
			attribute.String("triage.source", string(cls.Source)),
		)
	}
	span.SetAttributes(attribute.Int("triage.missing_fields", len(missing)))

	L.Info(ctx, "triage decided",
		"category", rec.Category,
		"confidence", rec.Confidence,
		"source", rec.Source,
		"missing_fields", rec.MissingFields,
		"labels_to_add", desired.LabelsToAdd,
		"labels_to_remove", desired.LabelsToRemove,
		"comment_action", desired.Comment,
	)

	return &Outcome{
		Classification: cls,
		Fields:         fields,
		Desired:        desired,
		Record:         rec,
	}, nil
}

// classify returns nil when this event does not touch category labels.
func (e *Engine) classify(ctx context.Context, L log.Logger, policy Policy, snap *IssueSnapshot) (*Classification, error) {
	if snap.Command != nil && snap.Command.Name == CommandLabel {
		if !slices.Contains(policy.Categories, snap.Command.Argument) {
			L.Info(ctx, "ignoring /label with unknown category",
				"requested", snap.Command.Argument,
				"valid", policy.Categories,
			)
			return nil, nil
		}
		cls := &Classification{Category: snap.Command.Argument, Confidence: 1.0, Source: SourceManual}
		e.classified(cls)
		return cls, nil
	}

	if !policy.shouldClassify(snap) {
		L.Info(ctx, "classification skipped",
			"enabled", policy.ClassificationEnabled,
			"classify_on_edit", policy.ClassifyOnEdit,
		)
		return nil, nil
	}
	if e.classifier == nil {
		return nil, fmt.Errorf("%w: classification enabled but no classifier configured", ErrInvalidPolicy)
	}

	cls, err := e.classifier.Classify(ctx, snap.Title, snap.Body, policy.Categories, policy.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	e.classified(&cls)
	return &cls, nil
}

func (e *Engine) classified(c *Classification) {
	if e.hooks.OnClassified != nil {
		e.hooks.OnClassified(c.Category, c.Source)
	}
}
