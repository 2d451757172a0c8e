package triage

import (
	"regexp"
	"strings"
)

// CommandName identifies a slash command posted in an issue comment.
type CommandName string

const (
	// CommandLabel overrides the category: "/label <category>".
	CommandLabel CommandName = "label"

	// CommandReclassify reruns classification: "/reclassify".
	CommandReclassify CommandName = "reclassify"
)

// Command is a parsed slash command.
type Command struct {
	Name     CommandName
	Argument string
}

var (
	labelCmdRe      = regexp.MustCompile(`(?im)^/label[ \t]+(\S+)[ \t]*$`)
	reclassifyCmdRe = regexp.MustCompile(`(?im)^/reclassify[ \t]*$`)
)

// ParseCommand finds the first recognized slash command in a comment body.
// "/label" wins over "/reclassify" when both appear.
func ParseCommand(body string) (*Command, bool) {
	if m := labelCmdRe.FindStringSubmatch(body); m != nil {
		return &Command{Name: CommandLabel, Argument: strings.ToLower(m[1])}, true
	}
	if reclassifyCmdRe.MatchString(body) {
		return &Command{Name: CommandReclassify}, true
	}
	return nil, false
}
