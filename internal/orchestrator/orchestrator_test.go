package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/cherrypicker-action/internal/event"
	"github.com/rancher/cherrypicker-action/internal/git"
	gh "github.com/rancher/cherrypicker-action/internal/github"
	"github.com/rancher/cherrypicker-action/internal/orchestrator"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		client   *fakeGHClient
		forks    *fakeForks
		executor *recordingExecutor
		opener   orchestrator.PullRequestOpener
		cfg      orchestrator.Config
		workDir  string
		patchDir string
	)

	cloneDir := func() string { return filepath.Join(workDir, "acme", "widgets") }
	patchPath := func(target string) string { return gh.PatchPath(patchDir, "acme", "widgets", 42, target) }

	newOrchestrator := func() *orchestrator.Orchestrator {
		o, err := orchestrator.New(cfg, orchestrator.Dependencies{
			GitHub: client,
			Forks:  forks,
			Opener: opener,
			NewGit: func(owner, repo string) (*git.Git, error) {
				return git.New(git.Config{
					Dir:      filepath.Join(workDir, owner, repo),
					Executor: executor,
					Identity: git.StaticIdentity{Name: "Cherry Bot", Email: "bot@example.com"},
				})
			},
		})
		Expect(err).NotTo(HaveOccurred())
		return o
	}

	mergedEvent := func() event.PullRequestPayload {
		return event.PullRequestPayload{
			Action:      event.PullRequestActionClosed,
			Repository:  event.Repository{Owner: "acme", Name: "widgets"},
			PullRequest: event.PullRequest{Number: 42, Merged: true},
		}
	}

	commentEvent := func(body string) event.IssueCommentPayload {
		return event.IssueCommentPayload{
			Action:     event.IssueCommentActionCreated,
			Repository: event.Repository{Owner: "acme", Name: "widgets"},
			Issue:      event.Issue{Number: 42, IsPullRequest: true},
			Comment:    event.Comment{Body: body, Author: "alice"},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		workDir = GinkgoT().TempDir()
		patchDir = GinkgoT().TempDir()
		client = &fakeGHClient{
			user: "cherry-bot",
			pr: gh.PullRequest{
				Owner:    "acme",
				Repo:     "widgets",
				Number:   42,
				Title:    "Fix widget",
				Merged:   true,
				MergeSHA: "abc123",
				PatchURL: "https://github.com/acme/widgets/pull/42.patch",
				Author:   "alice",
				Labels:   []string{"needs-cherry-pick/release-1.2", "kind/bug"},
			},
			patch:   []byte("From abc123 Mon Sep 17 00:00:00 2001\n"),
			members: map[string]bool{"alice": true},
		}
		forks = &fakeForks{}
		executor = &recordingExecutor{}
		opener = nil
		cfg = orchestrator.Config{
			LabelPrefix:       "needs-cherry-pick/",
			PickedLabelPrefix: "cherry-picked/",
			PatchDir:          patchDir,
		}
	})

	It("requires a github client, git factory and label prefixes", func() {
		_, err := orchestrator.New(cfg, orchestrator.Dependencies{})
		Expect(err).To(MatchError(ContainSubstring("github client")))

		_, err = orchestrator.New(orchestrator.Config{}, orchestrator.Dependencies{
			GitHub: client,
			NewGit: func(string, string) (*git.Git, error) { return nil, nil },
		})
		Expect(err).To(MatchError(ContainSubstring("label prefix")))
	})

	Describe("merged pull requests", func() {
		It("runs the cherry-pick workflow against the bot fork", func() {
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets).To(HaveLen(1))

			tr := res.Targets[0]
			Expect(tr.Status).To(Equal(orchestrator.TargetStatusPushed))
			Expect(tr.Branch).To(Equal("cherry-pick-42-to-release-1.2"))
			Expect(tr.Fork).To(Equal("cherry-bot/widgets"))
			Expect(res.Failed()).To(BeFalse())

			Expect(executor.commands()).To(Equal([]string{
				"clone https://github.com/acme/widgets.git " + cloneDir(),
				"ls-remote --exit-code --heads origin release-1.2",
				"checkout release-1.2",
				"config user.name Cherry Bot",
				"config user.email bot@example.com",
				"checkout -b cherry-pick-42-to-release-1.2",
				"am --3way " + patchPath("release-1.2"),
				"push --force https://github.com/cherry-bot/widgets.git cherry-pick-42-to-release-1.2",
			}))
			Expect(forks.calls).To(Equal(1))
			Expect(client.patchURLs).To(Equal([]string{"https://github.com/acme/widgets/pull/42.patch"}))
			Expect(client.addedLabels).To(ConsistOf("cherry-picked/release-1.2"))
		})

		It("removes the downloaded patch and the working copy", func() {
			_, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())

			_, statErr := os.Stat(patchPath("release-1.2"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
			_, statErr = os.Stat(cloneDir())
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("pushes to the fork name returned by the fork synchronizer", func() {
			forks.name = "widgets-1"
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Fork).To(Equal("cherry-bot/widgets-1"))
			Expect(executor.commands()).To(ContainElement(
				"push --force https://github.com/cherry-bot/widgets-1.git cherry-pick-42-to-release-1.2"))
		})

		It("skips pull requests closed without merging", func() {
			ev := mergedEvent()
			ev.PullRequest.Merged = false
			res, err := newOrchestrator().HandlePullRequest(ctx, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeTrue())
			Expect(executor.calls).To(BeEmpty())
		})

		It("skips when no labels request a cherry-pick", func() {
			client.pr.Labels = []string{"kind/bug"}
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeTrue())
			Expect(res.SkippedReason).To(ContainSubstring("needs-cherry-pick/"))
		})

		It("skips targets already carrying the picked label", func() {
			client.pr.Labels = append(client.pr.Labels, "cherry-picked/release-1.2")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusSkippedAlreadyPicked))
			Expect(executor.calls).To(BeEmpty())
			Expect(forks.calls).To(BeZero())
		})

		It("processes every labelled target in order", func() {
			client.pr.Labels = []string{"needs-cherry-pick/release-1.2", "needs-cherry-pick/release-1.1"}
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets).To(HaveLen(2))
			Expect(res.Targets[0].Target.Branch).To(Equal("release-1.2"))
			Expect(res.Targets[1].Target.Branch).To(Equal("release-1.1"))
			Expect(res.Targets[1].Status).To(Equal(orchestrator.TargetStatusPushed))
		})

		It("only picks the added label on labeled events", func() {
			client.pr.Labels = []string{"needs-cherry-pick/release-1.2", "needs-cherry-pick/release-1.1"}
			ev := mergedEvent()
			ev.Action = event.PullRequestActionLabeled
			ev.LabelName = "needs-cherry-pick/release-1.1"

			res, err := newOrchestrator().HandlePullRequest(ctx, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets).To(HaveLen(1))
			Expect(res.Targets[0].Target.Branch).To(Equal("release-1.1"))
		})

		It("ignores labels that do not request a cherry-pick", func() {
			ev := mergedEvent()
			ev.Action = event.PullRequestActionLabeled
			ev.LabelName = "kind/bug"
			res, err := newOrchestrator().HandlePullRequest(ctx, ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeTrue())
		})

		It("reports a missing target branch without applying the patch", func() {
			executor.respond = failWith("ls-remote", "")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusSkippedMissingBranch))
			Expect(executor.commands()).NotTo(ContainElement(HavePrefix("am")))
			Expect(client.comments).To(ContainElement(ContainSubstring("`release-1.2` does not exist")))
		})

		It("comments on the pull request when the patch conflicts", func() {
			executor.respond = failWith("am --3way", "error: patch failed: widget.go:3")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())

			tr := res.Targets[0]
			Expect(tr.Status).To(Equal(orchestrator.TargetStatusConflict))
			Expect(git.IsCommandError(tr.Err)).To(BeTrue())
			Expect(res.Failed()).To(BeTrue())
			Expect(executor.commands()).To(ContainElement("am --abort"))
			Expect(executor.commands()).NotTo(ContainElement(HavePrefix("push")))
			Expect(client.comments).To(HaveLen(1))
			Expect(client.comments[0]).To(ContainSubstring("@alice"))
			Expect(client.comments[0]).To(ContainSubstring("patch failed: widget.go:3"))
			Expect(client.addedLabels).To(BeEmpty())
		})

		It("opens an issue on conflict when configured to", func() {
			cfg.CreateIssueOnConflict = true
			executor.respond = failWith("am --3way", "conflict")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].IssueURL).To(Equal("https://github.com/acme/widgets/issues/101"))
			Expect(client.issues).To(HaveLen(1))
			Expect(client.issues[0].Title).To(Equal("Cherry-pick #42 to release-1.2 failed"))
			Expect(client.issues[0].Assignees).To(Equal([]string{"alice"}))
			Expect(client.comments).To(BeEmpty())
		})

		It("falls back to a comment when the conflict issue cannot be opened", func() {
			cfg.CreateIssueOnConflict = true
			client.createIssueErr = errors.New("issues disabled")
			executor.respond = failWith("am --3way", "conflict")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].IssueURL).To(BeEmpty())
			Expect(client.comments).To(HaveLen(1))
		})

		It("fails the target when the patch cannot be downloaded", func() {
			client.patchErr = gh.ErrNotFound
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusFailed))
			Expect(res.Targets[0].Err).To(MatchError(gh.ErrNotFound))
			Expect(executor.calls).To(BeEmpty())
		})

		It("fails the target when the fork cannot be provisioned", func() {
			forks.err = gh.ErrForkTimeout
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusFailed))
			Expect(res.Targets[0].Err).To(MatchError(gh.ErrForkTimeout))
		})

		It("removes the downloaded patch when the fork cannot be provisioned", func() {
			forks.err = errors.New("fork quota exceeded")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusFailed))
			Expect(client.patchURLs).To(HaveLen(1))

			entries, readErr := os.ReadDir(patchDir)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("fails every pending target when the bot user cannot be resolved", func() {
			client.userErr = errors.New("bad credentials")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusFailed))
			Expect(res.Targets[0].Reason).To(ContainSubstring("bad credentials"))
		})

		It("fails the target when the push is rejected", func() {
			executor.respond = failWith("push", "rejected")
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusFailed))
			Expect(client.addedLabels).To(BeEmpty())
		})

		It("returns an error when the pull request cannot be read", func() {
			client.prErr = gh.ErrNotFound
			_, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).To(MatchError(gh.ErrNotFound))
		})
	})

	Describe("pull request opener", func() {
		It("opens a pull request with copied labels and issue numbers", func() {
			op := &fakeOpener{url: "https://github.com/acme/widgets/pull/77"}
			opener = op
			cfg.CopyIssueNumbersFromSquashedCommit = true
			cfg.ExcludeLabels = []string{"do-not-merge"}
			client.pr.Labels = append(client.pr.Labels, "do-not-merge", "cherry-picked/release-1.1")
			client.commitMsg = "Fix widget (#42)\n\nFixes #7 and #9"

			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusSucceeded))
			Expect(res.Targets[0].PullRequestURL).To(Equal("https://github.com/acme/widgets/pull/77"))

			Expect(op.requests).To(HaveLen(1))
			req := op.requests[0]
			Expect(req.Base).To(Equal("release-1.2"))
			Expect(req.Head).To(Equal("cherry-bot:cherry-pick-42-to-release-1.2"))
			Expect(req.Title).To(Equal("[release-1.2] Fix widget"))
			Expect(req.Labels).To(Equal([]string{"kind/bug"}))
			Expect(req.IssueNumbers).To(Equal([]int{42, 7, 9}))
			Expect(req.Body).To(ContainSubstring("#7, #9"))
		})

		It("fails the target when the opener fails", func() {
			opener = &fakeOpener{err: errors.New("validation failed")}
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusFailed))
			Expect(client.addedLabels).To(BeEmpty())
		})
	})

	Describe("dry run", func() {
		It("skips remote mutations and reports what would run", func() {
			cfg.DryRun = true
			res, err := newOrchestrator().HandlePullRequest(ctx, mergedEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusDryRun))
			Expect(res.Targets[0].Reason).To(ContainSubstring("would push"))
			Expect(forks.calls).To(BeZero())
			Expect(executor.commands()).NotTo(ContainElement(HavePrefix("push")))
			Expect(client.addedLabels).To(BeEmpty())
			Expect(client.createdLabels).To(BeEmpty())
		})
	})

	Describe("comment commands", func() {
		It("labels and cherry-picks a merged pull request", func() {
			res, err := newOrchestrator().HandleIssueComment(ctx, commentEvent("/cherry-pick release-1.3"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets).To(HaveLen(1))
			Expect(res.Targets[0].Target.Branch).To(Equal("release-1.3"))
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusPushed))
			Expect(client.createdLabels).To(ContainElement("needs-cherry-pick/release-1.3"))
			Expect(client.addedLabels).To(Equal([]string{"needs-cherry-pick/release-1.3", "cherry-picked/release-1.3"}))
		})

		It("only records the label on unmerged pull requests", func() {
			client.pr.Merged = false
			res, err := newOrchestrator().HandleIssueComment(ctx, commentEvent("/cherrypick release-1.3"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Targets[0].Status).To(Equal(orchestrator.TargetStatusLabeled))
			Expect(client.addedLabels).To(Equal([]string{"needs-cherry-pick/release-1.3"}))
			Expect(executor.calls).To(BeEmpty())
		})

		It("rejects commenters outside the organization", func() {
			evt := commentEvent("/cherry-pick release-1.3")
			evt.Comment.Author = "mallory"
			res, err := newOrchestrator().HandleIssueComment(ctx, evt)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeTrue())
			Expect(client.comments).To(ContainElement(ContainSubstring("@mallory")))
			Expect(client.addedLabels).To(BeEmpty())
		})

		It("lets anyone request cherry-picks when allow-all is set", func() {
			cfg.AllowAll = true
			evt := commentEvent("/cherry-pick release-1.3")
			evt.Comment.Author = "mallory"
			res, err := newOrchestrator().HandleIssueComment(ctx, evt)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeFalse())
		})

		It("invites the commenter to the bot fork", func() {
			res, err := newOrchestrator().HandleIssueComment(ctx, commentEvent("/cherry-pick-invite"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Invited).To(Equal("alice"))
			Expect(client.collaborators).To(Equal([]string{"cherry-bot/widgets:alice"}))
			Expect(client.comments).To(ContainElement(ContainSubstring("invited to cherry-bot/widgets")))
			Expect(res.Targets).To(BeEmpty())
		})

		It("ignores comments without commands", func() {
			res, err := newOrchestrator().HandleIssueComment(ctx, commentEvent("looks good to me"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeTrue())
		})

		It("ignores edited comments and comments on issues", func() {
			evt := commentEvent("/cherry-pick release-1.3")
			evt.Action = event.IssueCommentActionEdited
			res, err := newOrchestrator().HandleIssueComment(ctx, evt)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeTrue())

			evt = commentEvent("/cherry-pick release-1.3")
			evt.Issue.IsPullRequest = false
			res, err = newOrchestrator().HandleIssueComment(ctx, evt)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(BeTrue())
		})

		It("rejects unsafe branch names", func() {
			_, err := newOrchestrator().HandleIssueComment(ctx, commentEvent("/cherry-pick release..1"))
			Expect(err).To(MatchError(ContainSubstring("invalid branch")))
			Expect(executor.calls).To(BeEmpty())
		})
	})

	It("dispatches decoded events", func() {
		pr := mergedEvent()
		res, err := newOrchestrator().Handle(ctx, event.Event{Name: event.NamePullRequest, PullRequest: &pr})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Targets).To(HaveLen(1))

		_, err = newOrchestrator().Handle(ctx, event.Event{Name: "push"})
		Expect(err).To(MatchError(event.ErrUnsupportedEvent))
	})
})
