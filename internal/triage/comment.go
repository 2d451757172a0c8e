package triage

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CommentMarker identifies the missing-info comment. It is invisible when
// rendered and must stay stable across releases.
const CommentMarker = "<!-- triagebot:missing-info -->"

// NoticeMarker identifies the low-confidence comment.
const NoticeMarker = "<!-- triagebot:low-confidence -->"

// IsBotComment reports whether a comment body is the missing-info comment.
func IsBotComment(body string) bool {
	return strings.Contains(body, CommentMarker)
}

// IsNoticeComment reports whether a comment body is the low-confidence
// comment.
func IsNoticeComment(body string) bool {
	return strings.Contains(body, NoticeMarker)
}

// RenderLowConfidenceComment builds the comment explaining why an issue
// was left for a maintainer to categorize.
func RenderLowConfidenceComment(confidence float64) string {
	var b strings.Builder
	b.WriteString(NoticeMarker)
	b.WriteString("\nThanks for opening this issue!\n\n")
	fmt.Fprintf(&b, "triagebot wasn't confident enough to assign a category automatically "+
		"(confidence: %.0f%%), so it added the `%s` label. A maintainer will categorize it shortly.\n\n",
		confidence*100, LabelNeedsTriage)
	b.WriteString("You can help by clarifying the issue type in a comment.\n")
	return b.String()
}

// RenderMissingInfoComment builds the comment body listing missing fields.
// The output depends only on the field list, so an unchanged list renders an
// identical body.
func RenderMissingInfoComment(missing []string) string {
	title := cases.Title(language.English)

	var b strings.Builder
	b.WriteString(CommentMarker)
	b.WriteString("\nThanks for opening this issue! To help us resolve it quickly, ")
	b.WriteString("could you please add the following information?\n\n")
	for _, f := range missing {
		fmt.Fprintf(&b, "- **%s**\n", title.String(f))
	}
	fmt.Fprintf(&b, "\n_This message was posted automatically by triagebot. "+
		"Once you've added the missing details, the `%s` label will be removed._\n", LabelNeedsInfo)
	return b.String()
}
