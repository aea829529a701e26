package brain_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/internal/brain"
	"sentinel.app/relay/internal/model"
)

var _ = Describe("Router", func() {
	var (
		ctx    context.Context
		llmFn  *mockLLM
		router *brain.Router
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		llmFn = &mockLLM{}
		router = brain.NewRouter(brain.Deps{LLM: llmFn, CallTimeout: time.Second}, func() time.Time { return now })
	})

	route := func(reply, utterance string) brain.Decision {
		llmFn.routerFn = routeTo(reply)
		return router.Route(ctx, brain.RouteInput{Utterance: utterance})
	}

	Context("parsing classifier output", func() {
		It("routes a bare quoted legacy agent name to log-answer, degraded", func() {
			d := route(`"log_explorer"`, "what happened?")
			Expect(d.Route).To(Equal(brain.RouteLogAnswer))
			Expect(d.Degraded).To(BeTrue())
		})

		It("routes an unquoted legacy agent name to log-answer, degraded", func() {
			d := route("log_explorer", "what happened?")
			Expect(d.Route).To(Equal(brain.RouteLogAnswer))
			Expect(d.Degraded).To(BeTrue())
		})

		It("accepts fenced JSON", func() {
			d := route("```json\n{\"next\": \"remediation\"}\n```", "how do I fix it?")
			Expect(d.Route).To(Equal(brain.RouteRemediation))
			Expect(d.Degraded).To(BeFalse())
		})

		It("accepts the legacy next_agent field", func() {
			d := route(`{"next_agent": "solutions_agent"}`, "how do I fix it?")
			Expect(d.Route).To(Equal(brain.RouteRemediation))
			Expect(d.Degraded).To(BeFalse())
		})

		It("repairs almost valid JSON", func() {
			d := route(`{"next": "remediation",}`, "how do I fix it?")
			Expect(d.Route).To(Equal(brain.RouteRemediation))
			Expect(d.Degraded).To(BeFalse())
		})

		It("falls back to log-answer on unknown handlers", func() {
			d := route(`{"next": "weather_agent"}`, "is it raining?")
			Expect(d.Route).To(Equal(brain.RouteLogAnswer))
			Expect(d.Degraded).To(BeTrue())
			Expect(d.Raw).To(Equal("weather_agent"))
		})

		It("falls back to log-answer when the completion fails", func() {
			llmFn.routerFn = func(context.Context, llm.Request) (string, error) {
				return "", errors.New("quota exceeded")
			}
			d := router.Route(ctx, brain.RouteInput{Utterance: "hello"})
			Expect(d.Route).To(Equal(brain.RouteLogAnswer))
			Expect(d.Degraded).To(BeTrue())
			Expect(llmFn.requests).To(HaveLen(1))
		})
	})

	Context("issue intent", func() {
		It("needs a target when no repository is known", func() {
			d := route(`{"next": "issue-creation"}`, "file issues for these errors")
			Expect(d.Route).To(Equal(brain.RouteNeedsTarget))
		})

		It("takes the repository from the utterance", func() {
			d := route(`{"next": "github_issue_manager"}`, "file it in https://github.com/acme/api")
			Expect(d.Route).To(Equal(brain.RouteIssueCreation))
			Expect(d.RepoTarget).To(Equal("https://github.com/acme/api"))
		})

		It("takes the repository from the classifier when it looks like one", func() {
			d := route(`{"next": "issue-creation", "repo_target": "acme/api"}`, "file it in acme's api repo")
			Expect(d.Route).To(Equal(brain.RouteIssueCreation))
			Expect(d.RepoTarget).To(Equal("acme/api"))
		})

		It("ignores classifier repository text that is not a repository", func() {
			d := route(`{"next": "issue-creation", "repo_target": "the api repo"}`, "file an issue")
			Expect(d.Route).To(Equal(brain.RouteNeedsTarget))
			Expect(d.RepoTarget).To(BeEmpty())
		})

		It("uses the thread's repository", func() {
			llmFn.routerFn = routeTo(`{"next": "issue-creation"}`)
			d := router.Route(ctx, brain.RouteInput{Utterance: "file it", KnownRepo: "acme/api"})
			Expect(d.Route).To(Equal(brain.RouteIssueCreation))
			Expect(d.RepoTarget).To(BeEmpty())
		})

		It("carries explicit issue text", func() {
			d := route(`{"next": "issue-creation", "issue_text": "Enable kernel caching"}`, "file a feature request in https://github.com/acme/api")
			Expect(d.IssueText).To(Equal("Enable kernel caching"))
		})
	})

	It("extracts service and window before classifying", func() {
		d := route(`{"next": "log-answer"}`, "errors for cloud run service api in the last 60 minutes")
		Expect(d.Service).To(Equal(&model.ServiceIdentity{Name: "api", Category: model.CategoryCloudRun}))
		Expect(d.Window).NotTo(BeNil())
		Expect(d.Window.Duration()).To(Equal(60 * time.Minute))

		Expect(llmFn.requests[0].Prompt).To(ContainSubstring("Service in scope: cloud_run api."))
	})
})
