// Package command extracts bot commands from comment text.
package command

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	cherryPickPattern = regexp.MustCompile(`(?m)^(?:/cherrypick|/cherry-pick)\s+(.+)$`)
	invitePattern     = regexp.MustCompile(`(?m)^(?:/cherrypick|/cherry-pick)-invite\b`)
	issueRefPattern   = regexp.MustCompile(`(?:^|[^\w/])#(\d+)\b`)
)

// CherryPickTargets returns the branches requested with "/cherry-pick <branch>"
// or "/cherrypick <branch>" lines, trimmed and deduplicated in order of appearance.
func CherryPickTargets(text string) []string {
	var targets []string
	seen := make(map[string]struct{})
	for _, m := range cherryPickPattern.FindAllStringSubmatch(text, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	return targets
}

// IsInvite reports whether text contains a "/cherry-pick-invite" line.
func IsInvite(text string) bool {
	return invitePattern.MatchString(text)
}

// IssueNumbers returns the issues referenced as #N in a commit message, in
// order of first appearance.
func IssueNumbers(message string) []int {
	var numbers []int
	seen := make(map[int]struct{})
	for _, m := range issueRefPattern.FindAllStringSubmatch(message, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		numbers = append(numbers, n)
	}
	return numbers
}
