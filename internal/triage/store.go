package triage

import "context"

// Store keeps run records for lookup. Issue state itself lives on the
// tracker; nothing here is read back into a triage decision.
type Store interface {
	Get(ctx context.Context, id string) (*Run, bool, error)
	Put(ctx context.Context, run *Run) error
}

// Notifier is told about runs that need a human: a needs-triage fallback
// or a failed run.
type Notifier interface {
	Notify(ctx context.Context, run *Run) error
}

// PolicySource loads the triage policy for the repository an issue lives in.
type PolicySource interface {
	Policy(ctx context.Context, ref IssueRef) (Policy, error)
}

// PolicyFunc adapts a function to PolicySource.
type PolicyFunc func(ctx context.Context, ref IssueRef) (Policy, error)

func (f PolicyFunc) Policy(ctx context.Context, ref IssueRef) (Policy, error) {
	return f(ctx, ref)
}
