package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// SubmitResult is the outcome of submitting an event for triage.
type SubmitResult struct {
	ID      string
	Skipped bool
	Reason  string
}

// Service is the business boundary for triage runs: it loads the policy,
// reads fresh remote state, runs the engine, applies the result and records
// the run. Runs on the same issue are serialized.
type Service struct {
	store    Store
	engine   *Engine
	tracker  Tracker
	policies PolicySource
	notifier Notifier
	logger   log.Logger
	hooks    EngineHooks
	locks    *keyLock
	inflight sync.WaitGroup
}

// NewService creates a new triage service. notifier may be nil.
func NewService(store Store, engine *Engine, tracker Tracker, policies PolicySource, notifier Notifier, logger log.Logger, hooks EngineHooks) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		tracker:  tracker,
		policies: policies,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
		locks:    newKeyLock(),
	}
}

// Submit accepts an event and triages it in the background.
func (s *Service) Submit(ctx context.Context, ev *Event) (*SubmitResult, error) {
	cmd, reason := s.admit(ev)
	if reason != "" {
		s.submitted("skipped")
		return &SubmitResult{Skipped: true, Reason: reason}, nil
	}

	run := s.newRun(ev)
	if err := s.store.Put(ctx, run); err != nil {
		s.submitted("error")
		return nil, err
	}
	s.submitted("accepted")

	// pass a copy so the background run owns its record
	cp := *run
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_ = s.execute(context.WithoutCancel(ctx), &cp, ev, cmd)
	}()

	return &SubmitResult{ID: run.ID}, nil
}

// Handle triages an event synchronously and returns the recorded run. The
// error is the run's failure, if any.
func (s *Service) Handle(ctx context.Context, ev *Event) (*Run, error) {
	cmd, reason := s.admit(ev)
	if reason != "" {
		s.logger.Info(ctx, "event skipped", "issue", ev.Ref.String(), "reason", reason)
		now := time.Now()
		return &Run{
			ID:          ulid.Make().String(),
			Issue:       ev.Ref,
			Status:      StatusSkipped,
			Record:      Record{EventKind: ev.Kind, MissingFields: []string{}},
			Error:       reason,
			CreatedAt:   now,
			CompletedAt: now,
		}, nil
	}

	run := s.newRun(ev)
	if err := s.store.Put(ctx, run); err != nil {
		return nil, err
	}
	err := s.execute(ctx, run, ev, cmd)
	return run, err
}

// Wait blocks until background runs started by Submit have finished or ctx
// is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for triage runs: %w", ctx.Err())
	}
}

// Get retrieves a run by ID.
func (s *Service) Get(ctx context.Context, id string) (*Run, bool, error) {
	return s.store.Get(ctx, id)
}

// admit returns a non-empty reason when the event needs no run.
func (s *Service) admit(ev *Event) (*Command, string) {
	switch ev.Kind {
	case KindOpened, KindEdited:
		return nil, ""
	case KindCommented:
		cmd, ok := ParseCommand(ev.CommentBody)
		if !ok {
			return nil, "no slash command"
		}
		return cmd, ""
	}
	return nil, fmt.Sprintf("unsupported event kind %q", ev.Kind)
}

func (s *Service) newRun(ev *Event) *Run {
	return &Run{
		ID:        ulid.Make().String(),
		Issue:     ev.Ref,
		Status:    StatusInProgress,
		Record:    Record{EventKind: ev.Kind, MissingFields: []string{}},
		CreatedAt: time.Now(),
	}
}

func (s *Service) execute(ctx context.Context, run *Run, ev *Event, cmd *Command) error {
	L := s.logger.With("run_id", run.ID, "issue", ev.Ref.String(), "event_kind", ev.Kind)

	unlock := s.locks.Lock(ev.Ref.String())
	defer unlock()

	err := s.triage(ctx, L, run, ev, cmd)

	run.CompletedAt = time.Now()
	run.Duration = run.CompletedAt.Sub(run.CreatedAt).Seconds()
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		L.Error(ctx, err, "triage run failed")
	} else {
		run.Status = StatusComplete
		L.Info(ctx, "triage run complete",
			"category", run.Record.Category,
			"source", run.Record.Source,
			"missing_fields", run.Record.MissingFields,
			"duration", run.Duration,
		)
	}

	if perr := s.store.Put(ctx, run); perr != nil {
		L.Error(ctx, perr, "failed to persist run")
	}
	if s.hooks.OnRunComplete != nil {
		s.hooks.OnRunComplete(run)
	}
	s.notify(ctx, L, run)

	return err
}

func (s *Service) triage(ctx context.Context, L log.Logger, run *Run, ev *Event, cmd *Command) error {
	policy, err := s.policies.Policy(ctx, ev.Ref)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	state, err := s.tracker.Issue(ctx, ev.Ref)
	if err != nil {
		return fmt.Errorf("read issue: %w", err)
	}
	bc, err := s.tracker.FindBotComments(ctx, ev.Ref)
	if err != nil {
		return fmt.Errorf("read bot comments: %w", err)
	}

	snap := &IssueSnapshot{
		Kind:       ev.Kind,
		Ref:        ev.Ref,
		Title:      state.Title,
		Body:       state.Body,
		Labels:     state.Labels,
		BotComment: bc.MissingInfo,
		Notice:     bc.Notice,
		Command:    cmd,
	}

	out, err := s.engine.Run(ctx, policy, snap)
	if err != nil {
		return err
	}
	run.Record = out.Record
	desired := out.Desired
	run.Desired = &desired

	if desired.IsEmpty() {
		L.Info(ctx, "issue already converged")
		return nil
	}
	return Apply(ctx, s.tracker, ev.Ref, desired)
}

func (s *Service) notify(ctx context.Context, L log.Logger, run *Run) {
	if s.notifier == nil {
		return
	}
	if run.Status != StatusFailed && run.Record.Source != SourceFallback {
		return
	}
	if err := s.notifier.Notify(ctx, run); err != nil {
		L.Warn(ctx, "notification failed", "error", err)
	}
}

func (s *Service) submitted(result string) {
	if s.hooks.OnSubmit != nil {
		s.hooks.OnSubmit(result)
	}
}

// IsFatal reports whether err is a configuration error that no amount of
// retrying the same event can fix.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidPolicy)
}
