package triage

import (
	"regexp"
	"strings"
	"unicode"
)

// MatchPolicy tunes how loosely a heading or label may match a required
// field name.
//
// Section boundaries are fixed and not part of the policy. A label's value is
// the text after its colon plus the lines directly below it; the first blank
// line ends it, so "**Steps:**" followed by a blank line and a list is an
// empty label. Put the list under a heading instead. Label lines inside a
// heading section are content of that heading.
type MatchPolicy struct {
	// MinCoverage is the fraction of field tokens that must be matched by
	// tokens of the heading or label text (0..1).
	MinCoverage float64

	// MinSharedPrefix is the shortest common prefix for two different tokens
	// to count as lexical variants ("reproduce" / "reproduction").
	MinSharedPrefix int

	// Aliases groups phrases that name the same field. A field matches a
	// marker if any phrase of its group does.
	Aliases [][]string
}

// DefaultMatchPolicy returns the policy used when none is configured.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{
		MinCoverage:     1.0,
		MinSharedPrefix: 5,
		Aliases: [][]string{
			{"reproduction steps", "steps to reproduce", "how to reproduce", "repro steps", "reproduction"},
			{"expected behavior", "expected behaviour", "expected result", "expected outcome"},
			{"actual behavior", "actual behaviour", "actual result", "current behavior", "what happened"},
			{"environment", "system info", "platform"},
			{"stack trace", "traceback", "error output"},
		},
	}
}

// FieldMatcher decides which required fields an issue body provides. Only
// structural markers count: a heading line, or an emphasized label at the
// start of a line followed by a colon. A field named in running prose is
// absent.
type FieldMatcher struct {
	policy  MatchPolicy
	aliases map[string][]string
}

// NewFieldMatcher creates a matcher with the given policy.
func NewFieldMatcher(policy MatchPolicy) *FieldMatcher {
	aliases := make(map[string][]string)
	for _, group := range policy.Aliases {
		for _, phrase := range group {
			aliases[normalizeText(phrase)] = group
		}
	}
	return &FieldMatcher{policy: policy, aliases: aliases}
}

// Check returns one verdict per required field in the order given. An empty
// field list yields an empty result.
func (m *FieldMatcher) Check(required []string, body string) FieldCheckResult {
	if len(required) == 0 {
		return FieldCheckResult{}
	}

	secs := splitSections(body)
	out := make(FieldCheckResult, 0, len(required))
	for _, field := range required {
		out = append(out, FieldCheck{Name: field, Present: m.present(field, secs)})
	}
	return out
}

func (m *FieldMatcher) present(field string, secs []section) bool {
	phrases := m.phrases(field)
	for _, s := range secs {
		if isEmptyContent(s.content) {
			continue
		}
		for _, p := range phrases {
			if m.matches(p, s.marker) {
				return true
			}
		}
	}
	return false
}

func (m *FieldMatcher) phrases(field string) []string {
	norm := normalizeText(field)
	if group, ok := m.aliases[norm]; ok {
		return group
	}
	return []string{field}
}

// matches reports whether marker text names the phrase, either as a whole
// word substring or by token coverage.
func (m *FieldMatcher) matches(phrase, marker string) bool {
	p := normalizeText(phrase)
	mk := normalizeText(marker)
	if p == "" || mk == "" {
		return false
	}
	if strings.Contains(" "+mk+" ", " "+p+" ") {
		return true
	}

	want := tokenize(p)
	have := tokenize(mk)
	if len(want) == 0 || len(have) == 0 {
		return false
	}
	var hit int
	for _, w := range want {
		for _, h := range have {
			if m.variant(w, h) {
				hit++
				break
			}
		}
	}
	return float64(hit)/float64(len(want)) >= m.policy.MinCoverage
}

// variant reports whether two stemmed tokens are the same word or close
// lexical variants sharing a long common prefix.
func (m *FieldMatcher) variant(a, b string) bool {
	if a == b {
		return true
	}
	shared := 0
	for shared < len(a) && shared < len(b) && a[shared] == b[shared] {
		shared++
	}
	shortest := min(len(a), len(b))
	return shared >= m.policy.MinSharedPrefix && shared >= shortest-4
}

// section is a structural marker and the content it introduces.
type section struct {
	marker  string
	content string
}

var (
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	atxHeadingRe  = regexp.MustCompile(`^ {0,3}#{1,6}(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*$`)
	setextRe      = regexp.MustCompile(`^ {0,3}(?:=+|-+)[ \t]*$`)
	listItemRe    = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s`)
	labelRe       = regexp.MustCompile(`^ {0,3}(?:[-*+][ \t]+)?(\*\*|__|\*|_)([^*_\n]+?)(\*\*|__|\*|_)[ \t]*(:?)[ \t]*(.*)$`)
)

// splitSections walks the body line by line and cuts it into marker
// sections. Heading sections run until the next heading and include any
// label lines inside them; label sections run until a blank line or the
// next marker. Markers inside fenced code blocks are content.
func splitSections(body string) []section {
	body = htmlCommentRe.ReplaceAllString(body, "")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")

	var (
		out      []section
		head     *section
		headBody []string
		lab      *section
		labBody  []string
		inFence  bool
	)
	flushLabel := func() {
		if lab != nil {
			lab.content = strings.Join(labBody, "\n")
			out = append(out, *lab)
		}
		lab, labBody = nil, nil
	}
	flushHeading := func() {
		flushLabel()
		if head != nil {
			head.content = strings.Join(headBody, "\n")
			out = append(out, *head)
		}
		head, headBody = nil, nil
	}
	add := func(line string) {
		if head != nil {
			headBody = append(headBody, line)
		}
		if lab != nil {
			labBody = append(labBody, line)
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			add(line)
			continue
		}
		if inFence {
			add(line)
			continue
		}

		if m := atxHeadingRe.FindStringSubmatch(line); m != nil {
			flushHeading()
			head = &section{marker: m[1]}
			continue
		}

		if trimmed != "" && i+1 < len(lines) && setextRe.MatchString(lines[i+1]) && !listItemRe.MatchString(line) {
			flushHeading()
			head = &section{marker: trimmed}
			i++
			continue
		}

		if label, rest, ok := parseLabel(line); ok {
			flushLabel()
			lab = &section{marker: label}
			labBody = append(labBody, rest)
			// a bare label adds nothing to its heading until its value follows
			if head != nil && strings.TrimSpace(rest) != "" {
				headBody = append(headBody, line)
			}
			continue
		}

		if lab != nil && trimmed == "" {
			flushLabel()
		}
		add(line)
	}
	flushHeading()
	return out
}

// parseLabel recognizes "**Label:** rest", "**Label**: rest" and the
// single-emphasis and underscore forms. The colon is mandatory.
func parseLabel(line string) (label, rest string, ok bool) {
	m := labelRe.FindStringSubmatch(line)
	if m == nil || m[1] != m[3] {
		return "", "", false
	}
	label = strings.TrimSpace(m[2])
	switch {
	case strings.HasSuffix(label, ":"):
		label = strings.TrimSuffix(label, ":")
	case m[4] == ":":
	default:
		return "", "", false
	}
	return label, m[5], true
}

func isEmptyContent(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || t == "_No response_"
}

// normalizeText lowercases, replaces punctuation with spaces and collapses
// whitespace.
func normalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "and": true,
	"or": true, "for": true, "in": true, "on": true, "at": true, "by": true,
	"with": true, "your": true, "my": true, "our": true, "this": true,
	"that": true, "is": true, "are": true, "be": true, "what": true,
	"how": true, "please": true, "any": true, "if": true,
}

// tokenize splits normalized text into stemmed tokens without stop words.
// Text made only of stop words keeps its tokens.
func tokenize(norm string) []string {
	words := strings.Fields(norm)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		out = append(out, stem(w))
	}
	if len(out) == 0 {
		for _, w := range words {
			out = append(out, stem(w))
		}
	}
	return out
}

func stem(w string) string {
	if strings.HasSuffix(w, "iour") {
		w = strings.TrimSuffix(w, "iour") + "ior"
	}
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return strings.TrimSuffix(w, "ies") + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}
