// Package labels maps pull request labels to cherry-pick targets.
package labels

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Target represents a release branch derived from a cherry-pick label or command.
type Target struct {
	LabelName string
	Branch    string
}

var errEmptyPrefix = errors.New("label prefix cannot be empty")

// Match returns the branch encoded in label when it starts with prefix.
// An empty prefix never matches.
func Match(label, prefix string) (string, bool) {
	prefix = strings.TrimSpace(prefix)
	label = strings.TrimSpace(label)
	if prefix == "" || label == "" {
		return "", false
	}
	if len(label) < len(prefix) || !strings.EqualFold(label[:len(prefix)], prefix) {
		return "", false
	}

	branch := NormalizeBranch(label[len(prefix):])
	if branch == "" {
		return "", false
	}
	return branch, true
}

// CollectTargets scans the provided label names, extracts those that match the given
// prefix, and returns deduplicated Target entries (preserving first-seen order).
func CollectTargets(labelNames []string, prefix string) ([]Target, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, errEmptyPrefix
	}

	targets := make([]Target, 0, len(labelNames))
	for _, name := range labelNames {
		if branch, ok := Match(name, prefix); ok {
			targets = append(targets, Target{LabelName: strings.TrimSpace(name), Branch: branch})
		}
	}
	return MergeTargets(targets), nil
}

// TargetsForBranches builds targets for explicitly requested branches, naming
// the label each one is tracked with.
func TargetsForBranches(branches []string, prefix string) []Target {
	targets := make([]Target, 0, len(branches))
	for _, b := range branches {
		branch := NormalizeBranch(b)
		if branch == "" {
			continue
		}
		targets = append(targets, Target{LabelName: RequestLabel(prefix, branch), Branch: branch})
	}
	return MergeTargets(targets)
}

// RequestLabel is the label asking for a cherry-pick onto branch.
func RequestLabel(prefix, branch string) string {
	return strings.TrimSpace(prefix) + branch
}

// PickedLabel is the label recording a finished cherry-pick onto branch.
func PickedLabel(pickedPrefix, branch string) string {
	return strings.TrimSpace(pickedPrefix) + branch
}

// IsPicked reports whether labelNames record branch as already cherry-picked.
func IsPicked(labelNames []string, pickedPrefix, branch string) bool {
	for _, name := range labelNames {
		if picked, ok := Match(name, pickedPrefix); ok && picked == branch {
			return true
		}
	}
	return false
}

// Exclude returns labelNames without the excluded ones, compared case-insensitively.
func Exclude(labelNames, excluded []string) []string {
	skip := make(map[string]struct{}, len(excluded))
	for _, e := range excluded {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			skip[e] = struct{}{}
		}
	}

	out := make([]string, 0, len(labelNames))
	for _, name := range labelNames {
		if _, ok := skip[strings.ToLower(strings.TrimSpace(name))]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ValidateTargets ensures each target branch conforms to simple safety checks.
func ValidateTargets(targets []Target) error {
	for _, t := range targets {
		if err := ValidateBranch(t.Branch); err != nil {
			return fmt.Errorf("invalid branch %q from label %q: %w", t.Branch, t.LabelName, err)
		}
	}
	return nil
}

// ValidateBranch rejects names git would refuse or that could be mistaken for options.
func ValidateBranch(branch string) error {
	switch {
	case branch == "":
		return errors.New("branch cannot be empty")
	case !utf8.ValidString(branch):
		return errors.New("branch must be valid UTF-8")
	case strings.HasPrefix(branch, "-"):
		return errors.New("branch cannot start with '-'")
	case strings.ContainsAny(branch, " \t\n\r"):
		return errors.New("branch cannot contain whitespace")
	case strings.Contains(branch, ".."):
		return errors.New("branch cannot contain '..'")
	case strings.ContainsAny(branch, "~^:?*[]@{\\"):
		return errors.New("branch contains forbidden git characters")
	}
	return nil
}

// MergeTargets merges multiple slices of targets preserving order and removing duplicates.
func MergeTargets(groups ...[]Target) []Target {
	result := make([]Target, 0)
	seen := make(map[string]struct{})

	for _, group := range groups {
		for _, t := range group {
			if _, ok := seen[t.Branch]; ok {
				continue
			}
			seen[t.Branch] = struct{}{}
			result = append(result, t)
		}
	}

	return result
}

// Branches returns the branch names extracted from the targets.
func Branches(targets []Target) []string {
	branches := make([]string, 0, len(targets))
	for _, t := range targets {
		branches = append(branches, t.Branch)
	}
	return branches
}

// NormalizeBranch trims whitespace, removes leading/trailing slashes, and strips
// refs/heads prefixes from a branch name. It returns an empty string when the
// normalized branch would otherwise be empty.
func NormalizeBranch(branch string) string {
	branch = strings.Trim(strings.TrimSpace(branch), "/")

	const refsHeads = "refs/heads/"
	if len(branch) >= len(refsHeads) && strings.EqualFold(branch[:len(refsHeads)], refsHeads) {
		branch = branch[len(refsHeads):]
	}

	return strings.TrimSpace(strings.Trim(branch, "/"))
}
