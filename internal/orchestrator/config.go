package orchestrator

// Config captures the runtime controls the orchestrator needs.
type Config struct {
	// AllowAll lets anyone request cherry-picks. Otherwise the commenter must
	// be a member of the organization owning the repository.
	AllowAll bool

	// CreateIssueOnConflict opens an issue instead of commenting on the source
	// pull request when a patch does not apply.
	CreateIssueOnConflict bool

	// LabelPrefix marks labels requesting a cherry-pick, e.g. needs-cherry-pick/release-1.2.
	LabelPrefix string

	// PickedLabelPrefix marks labels recording a finished cherry-pick.
	PickedLabelPrefix string

	// ExcludeLabels are never copied from the source pull request.
	ExcludeLabels []string

	CopyIssueNumbersFromSquashedCommit bool

	DryRun bool

	// PatchDir holds downloaded patches. Defaults to os.TempDir().
	PatchDir string
}
