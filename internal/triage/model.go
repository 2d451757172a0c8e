package triage

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Reserved labels managed by triagebot alongside the configured categories.
const (
	LabelNeedsTriage = "needs-triage"
	LabelNeedsInfo   = "needs-info"
)

// EventKind is the kind of issue event that triggered a run.
type EventKind string

const (
	// KindOpened is a newly opened issue.
	KindOpened EventKind = "opened"

	// KindEdited is an edit to the issue title or body.
	KindEdited EventKind = "edited"

	// KindCommented is a new comment carrying a slash command.
	KindCommented EventKind = "commented"
)

// IssueRef identifies an issue on the tracker.
type IssueRef struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// BotComment is an existing comment posted by triagebot.
type BotComment struct {
	ID   int64
	Body string
}

// BotComments are the marked comments found on an issue. Either may be nil.
type BotComments struct {
	MissingInfo *BotComment
	Notice      *BotComment
}

// IssueSnapshot is the issue state a single run decides on. It is built once
// per event and never mutated afterwards.
type IssueSnapshot struct {
	Kind       EventKind
	Ref        IssueRef
	Title      string
	Body       string
	Labels     []string
	BotComment *BotComment
	// Notice is the low-confidence comment, if one was posted.
	Notice  *BotComment
	Command *Command
}

// HasLabel reports whether the snapshot carries the given label. Label names
// compare case-insensitively, as on GitHub.
func (s *IssueSnapshot) HasLabel(name string) bool {
	_, ok := s.label(name)
	return ok
}

// label returns the issue's own spelling of name.
func (s *IssueSnapshot) label(name string) (string, bool) {
	i := slices.IndexFunc(s.Labels, func(l string) bool { return strings.EqualFold(l, name) })
	if i < 0 {
		return "", false
	}
	return s.Labels[i], true
}

// Source records where a classification came from.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
	SourceManual   Source = "manual"
)

// Classification is the category decided for an issue.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// FieldCheck is the presence verdict for one required field.
type FieldCheck struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
}

// FieldCheckResult preserves the configured field order.
type FieldCheckResult []FieldCheck

// Missing returns the names of absent fields in configured order.
func (r FieldCheckResult) Missing() []string {
	var out []string
	for _, f := range r {
		if !f.Present {
			out = append(out, f.Name)
		}
	}
	return out
}

// CommentAction is what should happen to the bot comment.
type CommentAction string

const (
	CommentNone   CommentAction = "none"
	CommentPost   CommentAction = "post"
	CommentUpdate CommentAction = "update"
	CommentDelete CommentAction = "delete"
)

// DesiredState is the minimal set of mutations that converges an issue.
type DesiredState struct {
	LabelsToAdd    []string      `json:"labels_to_add,omitempty"`
	LabelsToRemove []string      `json:"labels_to_remove,omitempty"`
	Comment        CommentAction `json:"comment_action"`
	CommentID      int64         `json:"comment_id,omitempty"`
	CommentBody    string        `json:"-"`
	// Notice is nil when the low-confidence comment stays as it is.
	Notice *NoticeChange `json:"notice,omitempty"`
}

// NoticeChange is a mutation of the low-confidence comment.
type NoticeChange struct {
	Action CommentAction `json:"action"`
	ID     int64         `json:"id,omitempty"`
	Body   string        `json:"-"`
}

// IsEmpty reports whether applying the state would change nothing.
func (d DesiredState) IsEmpty() bool {
	return len(d.LabelsToAdd) == 0 && len(d.LabelsToRemove) == 0 && d.Comment == CommentNone && d.Notice == nil
}

// Record is the structured per-run summary handed to the logger.
type Record struct {
	EventKind     EventKind `json:"event_kind"`
	Category      string    `json:"category,omitempty"`
	Confidence    float64   `json:"confidence"`
	Source        Source    `json:"source,omitempty"`
	MissingFields []string  `json:"missing_fields"`
}

// Outcome is everything the engine decided for one snapshot.
type Outcome struct {
	Classification *Classification
	Fields         FieldCheckResult
	Desired        DesiredState
	Record         Record
}

// Status tracks where a run is in its lifecycle.
type Status string

const (
	// StatusInProgress means currently being processed
	StatusInProgress Status = "in_progress"

	// StatusComplete means the issue converged
	StatusComplete Status = "complete"

	// StatusSkipped means the event required no work
	StatusSkipped Status = "skipped"

	// StatusFailed means the run aborted or a mutation was rejected
	StatusFailed Status = "failed"
)

// Run is the record of one triage run, kept for lookup and notifications.
type Run struct {
	ID          string        `json:"id"`
	Issue       IssueRef      `json:"issue"`
	Status      Status        `json:"status"`
	Record      Record        `json:"record"`
	Desired     *DesiredState `json:"desired,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    float64       `json:"duration_seconds,omitempty"`
}

// Event is a normalized issue event, independent of how it was delivered.
type Event struct {
	Kind EventKind
	Ref  IssueRef
	// CommentBody is set for KindCommented.
	CommentBody string
	Sender      string
}
