package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultLabelPrefix       = "needs-cherry-pick/"
	defaultPickedLabelPrefix = "cherry-picked/"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultGitUserName       = "Cherry-Pick Bot"
	defaultGitUserEmail      = "cherrypicker@users.noreply.github.com"
)

// Config captures runtime options sourced from GitHub Action inputs or environment variables.
type Config struct {
	GitHubToken     string
	GitHubBaseURL   string
	GitHubUploadURL string

	AllowAll                           bool
	CreateIssueOnConflict              bool
	LabelPrefix                        string
	PickedLabelPrefix                  string
	ExcludeLabels                      []string
	CopyIssueNumbersFromSquashedCommit bool

	DryRun    bool
	Verbose   bool
	LogLevel  string
	LogFormat string

	GitUserName  string
	GitUserEmail string
	// WorkDir holds clones and downloaded patches.
	WorkDir string
}

// LoadConfig reads action inputs from the environment, applies defaults, and performs validation.
func LoadConfig() (Config, error) {
	cfg := Config{
		LabelPrefix:       inputOrDefault("label-prefix", defaultLabelPrefix),
		PickedLabelPrefix: inputOrDefault("picked-label-prefix", defaultPickedLabelPrefix),
		LogLevel:          strings.ToLower(inputOrDefault("log-level", defaultLogLevel)),
		LogFormat:         strings.ToLower(inputOrDefault("log-format", defaultLogFormat)),
		GitHubBaseURL:     input("github-base-url"),
		GitHubUploadURL:   input("github-upload-url"),
		GitUserName:       inputOrDefault("git-user-name", defaultGitUserName),
		GitUserEmail:      inputOrDefault("git-user-email", defaultGitUserEmail),
		WorkDir:           input("work-dir"),
		ExcludeLabels:     parseList(input("exclude-labels")),
	}

	cfg.GitHubToken = input("repo-token")
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = input("github-token")
	}
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"allow-all", &cfg.AllowAll},
		{"create-issue-on-conflict", &cfg.CreateIssueOnConflict},
		{"copy-issue-numbers-from-squashed-commit", &cfg.CopyIssueNumbersFromSquashedCommit},
		{"dry-run", &cfg.DryRun},
		{"verbose", &cfg.Verbose},
	}
	for _, f := range flags {
		raw := input(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse input %s: %w", f.name, err)
		}
		*f.dst = v
	}

	if cfg.GitHubToken == "" {
		return Config{}, fmt.Errorf("github token is required (set INPUT_REPO-TOKEN, INPUT_GITHUB_TOKEN or GITHUB_TOKEN)")
	}

	if (cfg.GitHubBaseURL == "") != (cfg.GitHubUploadURL == "") {
		return Config{}, fmt.Errorf("github-base-url and github-upload-url must both be set for GitHub Enterprise")
	}

	if strings.EqualFold(cfg.LabelPrefix, cfg.PickedLabelPrefix) {
		return Config{}, fmt.Errorf("label-prefix and picked-label-prefix must differ (both %q)", cfg.LabelPrefix)
	}

	supportedFormats := map[string]struct{}{"text": {}, "json": {}}
	if _, ok := supportedFormats[cfg.LogFormat]; !ok {
		return Config{}, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "cherrypicker")
	}

	return cfg, nil
}

// input reads an action input. The runner exports input "foo-bar" as
// INPUT_FOO-BAR; INPUT_FOO_BAR is accepted too.
func input(name string) string {
	key := "INPUT_" + strings.ToUpper(name)
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(strings.ReplaceAll(key, "-", "_")))
}

func inputOrDefault(name, fallback string) string {
	if v := input(name); v != "" {
		return v
	}
	return fallback
}

func parseList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}

	return items
}
