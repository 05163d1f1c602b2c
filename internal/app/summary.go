package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rancher/cherrypicker-action/internal/orchestrator"
)

func (r *Runner) writeStepSummary(result orchestrator.Result) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_STEP_SUMMARY"))
	if path == "" {
		return nil
	}

	var builder strings.Builder
	builder.WriteString("## Cherry-pick summary\n\n")
	builder.WriteString(renderResultDetails(result))

	return r.appendFile(path, builder.String())
}

func (r *Runner) writeGitHubOutputs(result orchestrator.Result) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
	if path == "" {
		return nil
	}

	picked := make([]outputCherryPick, 0)
	skipped := make([]outputSkippedTarget, 0)

	for _, target := range result.Targets {
		switch target.Status {
		case orchestrator.TargetStatusSucceeded, orchestrator.TargetStatusPushed, orchestrator.TargetStatusDryRun:
			picked = append(picked, outputCherryPick{
				Target:         target.Target.Branch,
				Branch:         target.Branch,
				Fork:           target.Fork,
				Status:         string(target.Status),
				PullRequestURL: target.PullRequestURL,
			})
		default:
			skipped = append(skipped, outputSkippedTarget{
				Branch: target.Target.Branch,
				Status: string(target.Status),
				Reason: target.Reason,
			})
		}
	}

	summary := struct {
		SourcePR      int    `json:"source_pr"`
		Skipped       bool   `json:"skipped"`
		SkippedReason string `json:"skipped_reason"`
		Invited       string `json:"invited,omitempty"`
		Failed        bool   `json:"failed"`
	}{
		SourcePR:      result.SourcePR,
		Skipped:       result.Skipped,
		SkippedReason: result.SkippedReason,
		Invited:       result.Invited,
		Failed:        result.Failed(),
	}

	var builder strings.Builder
	for _, out := range []struct {
		key   string
		value any
	}{
		{"cherry_picks", picked},
		{"skipped_targets", skipped},
		{"run_summary", summary},
	} {
		data, err := json.Marshal(out.value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", out.key, err)
		}
		if err := writeMultilineOutput(&builder, out.key, string(data)); err != nil {
			return err
		}
	}

	return r.appendFile(path, builder.String())
}

// appendFile appends content to a runner-provided file, creating its
// directory when missing.
func (r *Runner) appendFile(path, content string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			r.log.Warn("could not create directory", "dir", dir, "error", mkErr)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			r.log.Warn("failed to close file", "path", path, "error", closeErr)
		}
	}()

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func renderResultDetails(result orchestrator.Result) string {
	var builder strings.Builder

	if result.Invited != "" {
		builder.WriteString(fmt.Sprintf("Invited @%s to the bot fork.\n\n", sanitizeMarkdownCell(result.Invited)))
	}

	if result.Skipped {
		reason := result.SkippedReason
		if reason == "" {
			reason = "run skipped"
		}
		builder.WriteString(fmt.Sprintf("Skipped cherry-pick: %s\n", sanitizeMarkdownCell(reason)))
		return builder.String()
	}

	if len(result.Targets) == 0 {
		builder.WriteString("No cherry-pick targets were evaluated.\n")
		return builder.String()
	}

	builder.WriteString("| Target | Status | Branch | Details | Link |\n")
	builder.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, target := range result.Targets {
		link := "-"
		switch {
		case target.PullRequestURL != "":
			link = fmt.Sprintf("[pull request](%s)", target.PullRequestURL)
		case target.IssueURL != "":
			link = fmt.Sprintf("[issue](%s)", target.IssueURL)
		}

		builder.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			sanitizeMarkdownCell(target.Target.Branch),
			sanitizeMarkdownCell(string(target.Status)),
			sanitizeMarkdownCell(target.Branch),
			sanitizeMarkdownCell(target.Reason),
			link,
		))
	}

	return builder.String()
}

type outputCherryPick struct {
	Target         string `json:"target"`
	Branch         string `json:"branch"`
	Fork           string `json:"fork"`
	Status         string `json:"status"`
	PullRequestURL string `json:"pull_request_url,omitempty"`
}

type outputSkippedTarget struct {
	Branch string `json:"branch"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func writeMultilineOutput(w io.Writer, key, value string) error {
	if _, err := fmt.Fprintf(w, "%s<<EOF\n%s\nEOF\n", key, value); err != nil {
		return fmt.Errorf("write output %s: %w", key, err)
	}
	return nil
}

func sanitizeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", "<br>")
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
