package triage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// mockProvider returns preconfigured responses in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*ClassifyResponse
	errs      []error
	calls     int
	requests  []*ClassifyRequest
}

func (m *mockProvider) Classify(_ context.Context, req *ClassifyRequest) (*ClassifyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	m.requests = append(m.requests, req)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &ClassifyResponse{Category: "bug", Confidence: 0.9, Model: "test-model"}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// blockingProvider waits for its context to end.
type blockingProvider struct{}

func (blockingProvider) Classify(ctx context.Context, _ *ClassifyRequest) (*ClassifyResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// mockTracker is an in-memory issue tracker recording every write.
type mockTracker struct {
	mu       sync.Mutex
	state    IssueState
	comment  *BotComment
	notice   *BotComment
	nextID   int64
	writes   []string
	failOn   string
	issueErr error
	ensured  []string
}

func newMockTracker(title, body string, labels ...string) *mockTracker {
	return &mockTracker{
		state:  IssueState{Title: title, Body: body, Labels: labels},
		nextID: 100,
	}
}

var errTrackerWrite = errors.New("tracker write rejected")

func (m *mockTracker) write(op string) error {
	m.writes = append(m.writes, op)
	if m.failOn == op {
		return errTrackerWrite
	}
	return nil
}

func (m *mockTracker) Issue(_ context.Context, _ IssueRef) (*IssueState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	cp := m.state
	cp.Labels = slices.Clone(m.state.Labels)
	return &cp, nil
}

func (m *mockTracker) FindBotComments(_ context.Context, _ IssueRef) (BotComments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := func(c *BotComment) *BotComment {
		if c == nil {
			return nil
		}
		cp := *c
		return &cp
	}
	return BotComments{MissingInfo: clone(m.comment), Notice: clone(m.notice)}, nil
}

func (m *mockTracker) isNotice(id int64) bool {
	return m.notice != nil && m.notice.ID == id
}

func (m *mockTracker) EnsureLabel(_ context.Context, _ IssueRef, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("ensure:" + name); err != nil {
		return err
	}
	m.ensured = append(m.ensured, name)
	return nil
}

func (m *mockTracker) AddLabels(_ context.Context, _ IssueRef, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("add"); err != nil {
		return err
	}
	for _, n := range names {
		if !slices.ContainsFunc(m.state.Labels, func(l string) bool { return strings.EqualFold(l, n) }) {
			m.state.Labels = append(m.state.Labels, n)
		}
	}
	return nil
}

func (m *mockTracker) RemoveLabel(_ context.Context, _ IssueRef, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("remove:" + name); err != nil {
		return err
	}
	m.state.Labels = slices.DeleteFunc(m.state.Labels, func(l string) bool { return strings.EqualFold(l, name) })
	return nil
}

func (m *mockTracker) CreateComment(_ context.Context, _ IssueRef, body string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if IsNoticeComment(body) {
		if err := m.write("post-notice"); err != nil {
			return 0, err
		}
		m.nextID++
		m.notice = &BotComment{ID: m.nextID, Body: body}
		return m.nextID, nil
	}
	if err := m.write("post"); err != nil {
		return 0, err
	}
	m.nextID++
	m.comment = &BotComment{ID: m.nextID, Body: body}
	return m.nextID, nil
}

func (m *mockTracker) EditComment(_ context.Context, _ IssueRef, id int64, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isNotice(id) {
		if err := m.write("update-notice"); err != nil {
			return err
		}
		m.notice = &BotComment{ID: id, Body: body}
		return nil
	}
	if err := m.write("update"); err != nil {
		return err
	}
	m.comment = &BotComment{ID: id, Body: body}
	return nil
}

func (m *mockTracker) DeleteComment(_ context.Context, _ IssueRef, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isNotice(id) {
		if err := m.write("delete-notice"); err != nil {
			return err
		}
		m.notice = nil
		return nil
	}
	if err := m.write("delete"); err != nil {
		return err
	}
	m.comment = nil
	return nil
}

func (m *mockTracker) labels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.Labels)
}

func (m *mockTracker) writeLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.writes)
}

func (m *mockTracker) resetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

// mockStore implements Store for testing.
type mockStore struct {
	mu     sync.Mutex
	runs   map[string]*Run
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[string]*Run)}
}

func (m *mockStore) Get(_ context.Context, id string) (*Run, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (m *mockStore) Put(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

// mockNotifier records notified runs.
type mockNotifier struct {
	mu   sync.Mutex
	runs []*Run
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs = append(m.runs, &cp)
	return m.err
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

var testCategories = []string{"bug", "feature-request", "question", "documentation"}

var testRequired = []string{"reproduction steps", "expected behavior", "actual behavior"}

func testPolicy() Policy {
	return Policy{
		ClassificationEnabled: true,
		Categories:            testCategories,
		ConfidenceThreshold:   DefaultConfidenceThreshold,
		RequiredFields:        testRequired,
	}
}

var testRef = IssueRef{Owner: "acme", Repo: "widgets", Number: 42}

const completeBody = "## Steps to Reproduce\nClick X\n\n**Expected Behavior:** Y\n\n**Actual Behavior:** Z\n"
