package gh

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"regexp"
	"strings"
)

var disallowedBranchChars = regexp.MustCompile(`[^a-zA-Z0-9._/-]+`)

// BranchNamingOptions controls how cherry-pick branch names are generated.
type BranchNamingOptions struct {
	Prefix     string
	MaxLength  int
	HashLength int
}

var defaultBranchNaming = BranchNamingOptions{
	Prefix:     "cherry-pick",
	MaxLength:  100,
	HashLength: 8,
}

// BranchNameForCherryPick returns the fork branch that carries sourcePR
// applied onto targetBranch, e.g. cherry-pick-42-to-release-1.2. Long
// targets are shortened and suffixed with a hash so distinct targets keep
// distinct names.
func BranchNameForCherryPick(targetBranch string, sourcePR int, opts ...BranchNamingOptions) string {
	config := defaultBranchNaming
	if len(opts) > 0 {
		o := opts[0]
		if o.Prefix != "" {
			config.Prefix = o.Prefix
		}
		if o.MaxLength > 0 {
			config.MaxLength = o.MaxLength
		}
		if o.HashLength > 0 {
			config.HashLength = o.HashLength
		}
	}

	head := fmt.Sprintf("%s-%d-to-", config.Prefix, sourcePR)
	target := sanitizeBranchSegment(targetBranch)
	if len(head)+len(target) <= config.MaxLength {
		return head + target
	}

	available := config.MaxLength - len(head)
	if available < 1 {
		available = 1
	}
	return head + shortenTargetSegment(target, available, config.HashLength)
}

// PatchFileName is the local file a pull request's patch is stored in.
func PatchFileName(owner, repo string, number int, targetBranch string) string {
	return fmt.Sprintf("%s-%s-%d-%s.patch", owner, repo, number, normalizeTarget(targetBranch))
}

// PatchPath joins dir and PatchFileName.
func PatchPath(dir, owner, repo string, number int, targetBranch string) string {
	return filepath.Join(dir, PatchFileName(owner, repo, number, targetBranch))
}

func normalizeTarget(target string) string {
	return strings.ReplaceAll(sanitizeBranchSegment(target), "/", "-")
}

func sanitizeBranchSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	segment = strings.ReplaceAll(segment, " ", "-")
	segment = disallowedBranchChars.ReplaceAllString(segment, "-")
	for strings.Contains(segment, "//") {
		segment = strings.ReplaceAll(segment, "//", "/")
	}
	for strings.Contains(segment, "--") {
		segment = strings.ReplaceAll(segment, "--", "-")
	}
	for strings.Contains(segment, "..") {
		segment = strings.ReplaceAll(segment, "..", ".")
	}
	segment = strings.Trim(segment, "-/.")
	if segment == "" {
		return "target"
	}
	return segment
}

func shortenTargetSegment(segment string, available, hashLen int) string {
	if len(segment) <= available {
		return segment
	}
	if hashLen <= 0 {
		hashLen = 8
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(segment))
	hex := fmt.Sprintf("%08x", h.Sum32())
	if hashLen < len(hex) {
		hex = hex[:hashLen]
	}
	if len(hex)+1 >= available {
		if len(hex) > available {
			return hex[:available]
		}
		return hex
	}

	base := strings.TrimRight(segment[:available-len(hex)-1], "-./")
	if base == "" {
		return hex
	}
	return base + "-" + hex
}
