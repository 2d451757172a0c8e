package triage

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFieldMatcher_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		required []string
		body     string
		missing  []string
	}{
		{
			name:     "all present with heading and labels",
			required: testRequired,
			body:     completeBody,
			missing:  nil,
		},
		{
			name:     "title only body",
			required: []string{"reproduction steps", "expected behavior"},
			body:     "The app crashes on startup.",
			missing:  []string{"reproduction steps", "expected behavior"},
		},
		{
			name:     "empty body",
			required: []string{"expected behavior"},
			body:     "",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "field named only in prose",
			required: []string{"expected behavior", "reproduction steps"},
			body:     "The expected behavior is that it works. Steps to reproduce: click the button.",
			missing:  []string{"expected behavior", "reproduction steps"},
		},
		{
			name:     "heading without content",
			required: []string{"expected behavior", "actual behavior"},
			body:     "## Expected Behavior\n\n## Actual Behavior\nIt crashed.",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "issue form no response placeholder",
			required: []string{"expected behavior"},
			body:     "### Expected behavior\n\n_No response_\n",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "heading inside fenced code",
			required: []string{"expected behavior"},
			body:     "Output:\n```\n## Expected Behavior\nY\n```\n",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "heading inside html comment",
			required: []string{"expected behavior"},
			body:     "<!--\n## Expected Behavior\nY\n-->\nIt broke.",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "template hint comment only",
			required: []string{"expected behavior"},
			body:     "## Expected Behavior\n<!-- describe what should happen -->\n",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "deep heading with british spelling",
			required: []string{"expected behavior"},
			body:     "###### Expected Behaviour\nNo crash.",
			missing:  nil,
		},
		{
			name:     "word order insensitive",
			required: []string{"expected behavior"},
			body:     "## Behavior expected\nNo crash.",
			missing:  nil,
		},
		{
			name:     "punctuation in heading",
			required: []string{"expected behavior"},
			body:     "## Expected-Behavior:\nNo crash.",
			missing:  nil,
		},
		{
			name:     "case insensitive",
			required: []string{"Expected Behavior"},
			body:     "## EXPECTED BEHAVIOR\nNo crash.",
			missing:  nil,
		},
		{
			name:     "colon after emphasis",
			required: []string{"expected behavior"},
			body:     "**Expected behavior**: No crash.",
			missing:  nil,
		},
		{
			name:     "underscore emphasis label",
			required: []string{"expected behavior"},
			body:     "__Expected behavior:__ No crash.",
			missing:  nil,
		},
		{
			name:     "label in list item",
			required: []string{"expected behavior"},
			body:     "- **Expected behavior:** No crash.",
			missing:  nil,
		},
		{
			name:     "label without colon",
			required: []string{"expected behavior"},
			body:     "**Expected behavior** no crash.",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "label content on next line",
			required: []string{"expected behavior"},
			body:     "**Expected behavior:**\nNo crash.",
			missing:  nil,
		},
		{
			name:     "label block ends at blank line",
			required: []string{"expected behavior"},
			body:     "**Expected behavior:**\n\nSomething unrelated later.",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "label then list after blank line",
			required: []string{"reproduction steps"},
			body:     "**Steps to reproduce:**\n\n1. click X\n2. see error",
			missing:  []string{"reproduction steps"},
		},
		{
			name:     "heading with bold key value lines",
			required: []string{"environment"},
			body:     "## Environment\n**OS:** Linux\n**Version:** 1.2",
			missing:  nil,
		},
		{
			name:     "heading with bold step labels",
			required: []string{"reproduction steps"},
			body:     "## Steps to Reproduce\n**Step 1:** click X\n**Step 2:** see error",
			missing:  nil,
		},
		{
			name:     "heading with bare label only",
			required: []string{"environment"},
			body:     "## Environment\n**OS:**\n",
			missing:  []string{"environment"},
		},
		{
			name:     "nested label matches its own field",
			required: []string{"environment", "expected behavior"},
			body:     "## Details\n**Environment:** Linux\n\n**Expected behavior:** No crash.",
			missing:  nil,
		},
		{
			name:     "empty nested label under heading",
			required: []string{"details", "expected behavior"},
			body:     "## Details\nSee below.\n**Expected behavior:**\n\n## Logs\nnone",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "setext heading",
			required: []string{"expected behavior"},
			body:     "Expected behavior\n-----------------\nNo crash.",
			missing:  nil,
		},
		{
			name:     "crlf line endings",
			required: []string{"expected behavior"},
			body:     "## Expected Behavior\r\nNo crash.\r\n",
			missing:  nil,
		},
		{
			name:     "similar but different heading",
			required: []string{"expected behavior"},
			body:     "## Unexpected behavior\nIt crashed.",
			missing:  []string{"expected behavior"},
		},
		{
			name:     "plural variant of custom field",
			required: []string{"browser version"},
			body:     "**Browser Versions:** Firefox 120",
			missing:  nil,
		},
		{
			name:     "alias phrase",
			required: []string{"reproduction steps"},
			body:     "### How to reproduce\n1. open the app",
			missing:  nil,
		},
		{
			name:     "preserves configured order",
			required: []string{"environment", "stack trace", "expected behavior"},
			body:     "## Environment\nLinux",
			missing:  []string{"stack trace", "expected behavior"},
		},
	}

	m := NewFieldMatcher(DefaultMatchPolicy())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := m.Check(tt.required, tt.body)
			if len(got) != len(tt.required) {
				t.Fatalf("len(result) = %d, want %d", len(got), len(tt.required))
			}
			if diff := cmp.Diff(tt.missing, got.Missing()); diff != "" {
				t.Errorf("missing mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFieldMatcher_EmptyRequired(t *testing.T) {
	t.Parallel()

	m := NewFieldMatcher(DefaultMatchPolicy())
	got := m.Check(nil, "## Anything\ncontent")
	if len(got) != 0 {
		t.Errorf("len(result) = %d, want 0", len(got))
	}
	if len(got.Missing()) != 0 {
		t.Errorf("Missing() = %v, want none", got.Missing())
	}
}

func TestFieldMatcher_ResultOrderAndNames(t *testing.T) {
	t.Parallel()

	m := NewFieldMatcher(DefaultMatchPolicy())
	got := m.Check(testRequired, "## Actual Behavior\nIt crashed.")
	want := FieldCheckResult{
		{Name: "reproduction steps", Present: false},
		{Name: "expected behavior", Present: false},
		{Name: "actual behavior", Present: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldMatcher_Policy(t *testing.T) {
	t.Parallel()

	strict := NewFieldMatcher(MatchPolicy{MinCoverage: 1.0, MinSharedPrefix: 5})
	loose := NewFieldMatcher(MatchPolicy{MinCoverage: 0.5, MinSharedPrefix: 5})

	tests := []struct {
		name      string
		field     string
		body      string
		strictHit bool
		looseHit  bool
	}{
		{"partial heading", "expected behavior", "## Behavior\nNo crash.", false, true},
		{"lexical variant", "reproduction steps", "## Steps to reproduce\n1. open", true, true},
		{"one of two tokens via variant", "reproduction steps", "## How to reproduce\n1. open", false, true},
		{"unrelated", "expected behavior", "## Environment\nLinux", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := strict.Check([]string{tt.field}, tt.body)[0].Present; got != tt.strictHit {
				t.Errorf("strict present = %v, want %v", got, tt.strictHit)
			}
			if got := loose.Check([]string{tt.field}, tt.body)[0].Present; got != tt.looseHit {
				t.Errorf("loose present = %v, want %v", got, tt.looseHit)
			}
		})
	}
}

func TestParseLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line  string
		label string
		rest  string
		ok    bool
	}{
		{"**Expected:** yes", "Expected", "yes", true},
		{"**Expected**: yes", "Expected", "yes", true},
		{"*Expected:* yes", "Expected", "yes", true},
		{"_Expected_: yes", "Expected", "yes", true},
		{"**Expected** yes", "", "", false},
		{"**Expected:_ yes", "", "", false},
		{"plain: yes", "", "", false},
		{"    **Expected:** indented code", "", "", false},
	}
	for _, tt := range tests {
		label, rest, ok := parseLabel(tt.line)
		if ok != tt.ok || label != tt.label || rest != tt.rest {
			t.Errorf("parseLabel(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.line, label, rest, ok, tt.label, tt.rest, tt.ok)
		}
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"steps to reproduce", []string{"step", "reproduce"}},
		{"expected behaviour", []string{"expected", "behavior"}},
		{"the", []string{"the"}},
		{"dependencies", []string{"dependency"}},
		{"status", []string{"status"}},
		{"analysis", []string{"analysis"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tokenize(normalizeText(tt.in))); diff != "" {
			t.Errorf("tokenize(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func FuzzFieldMatcherCheck(f *testing.F) {
	f.Add("expected behavior", completeBody)
	f.Add("reproduction steps", "## Steps\n```\n## x\n")
	f.Add("a", "**a:** b\r\n<!-- c")
	f.Add("", "")

	m := NewFieldMatcher(DefaultMatchPolicy())
	f.Fuzz(func(t *testing.T, field, body string) {
		required := []string{field, "actual behavior"}
		got := m.Check(required, body)
		if len(got) != len(required) {
			t.Fatalf("len(result) = %d, want %d", len(got), len(required))
		}
		for i, fc := range got {
			if fc.Name != required[i] {
				t.Fatalf("result[%d].Name = %q, want %q", i, fc.Name, required[i])
			}
		}
		// a body without any marker characters never satisfies a field
		if !strings.ContainsAny(body, "#*_-=") && got[1].Present {
			t.Fatalf("field present without structural marker in %q", body)
		}
	})
}
