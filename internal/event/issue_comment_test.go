package event_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/cherrypicker-action/internal/event"
)

const commentSample = `{
	"action": "created",
	"repository": {"name": "widgets", "owner": {"login": "acme"}},
	"issue": {
		"number": 42,
		"state": "closed",
		"pull_request": {"url": "https://api.github.com/repos/acme/widgets/pulls/42"}
	},
	"comment": {
		"id": 99,
		"body": "/cherry-pick release-1.2",
		"user": {"login": "alice"}
	},
	"sender": {"login": "alice"}
}`

var _ = Describe("ParseIssueCommentEvent", func() {
	It("parses a comment left on a pull request", func() {
		payload, err := event.ParseIssueCommentEvent(strings.NewReader(commentSample))
		Expect(err).NotTo(HaveOccurred())

		Expect(payload.Action).To(Equal(event.IssueCommentActionCreated))
		Expect(payload.Repository).To(Equal(event.Repository{Owner: "acme", Name: "widgets"}))
		Expect(payload.Issue).To(Equal(event.Issue{Number: 42, State: "closed", IsPullRequest: true}))
		Expect(payload.Comment).To(Equal(event.Comment{ID: 99, Body: "/cherry-pick release-1.2", Author: "alice"}))
	})

	It("distinguishes plain issues", func() {
		payload, err := event.ParseIssueCommentEvent(strings.NewReader(`{"action":"edited","issue":{"number":3},"comment":{"body":"hi"},"sender":{"login":"bob"}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.Action).To(Equal(event.IssueCommentActionEdited))
		Expect(payload.Issue.IsPullRequest).To(BeFalse())
		Expect(payload.Comment.Author).To(Equal("bob"))
	})

	It("tolerates a payload without an issue", func() {
		payload, err := event.ParseIssueCommentEvent(strings.NewReader(`{"action":"created"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.Issue.IsPullRequest).To(BeFalse())
	})
})

var _ = Describe("Parse", func() {
	It("dispatches on the event name", func() {
		ev, err := event.Parse(event.NameIssueComment, strings.NewReader(commentSample))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.IssueComment).NotTo(BeNil())
		Expect(ev.PullRequest).To(BeNil())

		ev, err = event.Parse(event.NamePullRequestTarget, strings.NewReader(`{"action":"closed","pull_request":{"number":1}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.PullRequest).NotTo(BeNil())
		Expect(ev.PullRequest.PullRequest.Number).To(Equal(1))
	})

	It("rejects unsupported events", func() {
		_, err := event.Parse("push", strings.NewReader(`{}`))
		Expect(err).To(MatchError(event.ErrUnsupportedEvent))
	})

	It("reads payloads from disk", func() {
		path := filepath.Join(GinkgoT().TempDir(), "event.json")
		Expect(os.WriteFile(path, []byte(commentSample), 0o644)).To(Succeed())

		ev, err := event.ParseFile(event.NameIssueComment, path)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.IssueComment.Comment.Body).To(Equal("/cherry-pick release-1.2"))

		_, err = event.ParseFile(event.NameIssueComment, filepath.Join(GinkgoT().TempDir(), "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("open event file")))
	})
})
