package issue_tracker_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/service/issue_tracker"
)

var _ = Describe("ParseTarget", func() {
	DescribeTable("recognizes repository references",
		func(raw string, provider issue_tracker.Provider, path string) {
			t, err := issue_tracker.ParseTarget(raw, issue_tracker.ProviderGitHub)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Provider).To(Equal(provider))
			Expect(t.Path).To(Equal(path))
		},
		Entry("github url", "https://github.com/acme/api", issue_tracker.ProviderGitHub, "acme/api"),
		Entry("github url with .git", "https://github.com/acme/api.git", issue_tracker.ProviderGitHub, "acme/api"),
		Entry("github url with issues page", "https://github.com/acme/api/issues/12", issue_tracker.ProviderGitHub, "acme/api"),
		Entry("github without scheme", "github.com/acme/api", issue_tracker.ProviderGitHub, "acme/api"),
		Entry("scp remote", "git@github.com:acme/api.git", issue_tracker.ProviderGitHub, "acme/api"),
		Entry("gitlab nested groups", "https://gitlab.com/acme/platform/api", issue_tracker.ProviderGitLab, "acme/platform/api"),
		Entry("gitlab ui suffix", "https://gitlab.com/acme/api/-/issues", issue_tracker.ProviderGitLab, "acme/api"),
		Entry("self-hosted gitlab", "https://gitlab.acme.io/team/api", issue_tracker.ProviderGitLab, "team/api"),
		Entry("bare path uses default", "acme/api", issue_tracker.ProviderGitHub, "acme/api"),
	)

	It("uses the default provider for bare paths", func() {
		t, err := issue_tracker.ParseTarget("acme/api", issue_tracker.ProviderGitLab)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Provider).To(Equal(issue_tracker.ProviderGitLab))
	})

	It("records the host of self-hosted instances", func() {
		t, err := issue_tracker.ParseTarget("https://gitlab.acme.io/team/api", issue_tracker.ProviderGitHub)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Host).To(Equal("gitlab.acme.io"))
	})

	It("splits owner and repo at the last slash", func() {
		t := issue_tracker.Target{Provider: issue_tracker.ProviderGitLab, Path: "acme/platform/api"}
		Expect(t.Owner()).To(Equal("acme/platform"))
		Expect(t.Repo()).To(Equal("api"))
	})

	DescribeTable("rejects non-repository text",
		func(raw string) {
			_, err := issue_tracker.ParseTarget(raw, issue_tracker.ProviderGitHub)
			Expect(err).To(MatchError(issue_tracker.ErrInvalidTarget))
		},
		Entry("empty", "  "),
		Entry("single word", "api"),
		Entry("host only", "https://github.com/"),
		Entry("owner only", "https://github.com/acme"),
	)
})

var _ = Describe("Registry", func() {
	It("fails for providers without a tracker", func() {
		r := issue_tracker.NewRegistry(issue_tracker.ProviderGitHub)
		_, err := r.ListIssues(context.Background(), "https://gitlab.com/acme/api")
		Expect(err).To(MatchError(issue_tracker.ErrProviderUnavailable))
	})

	It("dispatches to the registered tracker", func() {
		fake := &fakeTracker{items: []model.TrackedItem{{Number: 1, Title: "x"}}}
		r := issue_tracker.NewRegistry(issue_tracker.ProviderGitHub)
		r.Register(issue_tracker.ProviderGitHub, fake)

		items, err := r.ListIssues(context.Background(), "acme/api")
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(1))
		Expect(fake.target.Path).To(Equal("acme/api"))
	})
})

type fakeTracker struct {
	items  []model.TrackedItem
	target issue_tracker.Target
}

func (f *fakeTracker) ListIssues(_ context.Context, t issue_tracker.Target) ([]model.TrackedItem, error) {
	f.target = t
	return f.items, nil
}

func (f *fakeTracker) CreateIssue(_ context.Context, t issue_tracker.Target, _ issue_tracker.CreateRequest) (*model.CreatedItem, error) {
	f.target = t
	return &model.CreatedItem{Number: 1}, nil
}

var _ = Describe("GitHubTracker", func() {
	var (
		server  *httptest.Server
		tracker *issue_tracker.GitHubTracker
		created map[string]any
		target  issue_tracker.Target
	)

	BeforeEach(func() {
		created = nil
		target = issue_tracker.Target{Provider: issue_tracker.ProviderGitHub, Path: "acme/api"}
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v3/repos/acme/api/issues", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.Method {
			case http.MethodGet:
				Expect(r.URL.Query().Get("state")).To(Equal("all"))
				_, _ = io.WriteString(w, `[
					{"number": 1, "title": "DB timeout", "state": "open", "html_url": "https://github.com/acme/api/issues/1"},
					{"number": 2, "title": "Noise", "state": "closed", "labels": [{"name": "WontFix"}]},
					{"number": 3, "title": "A PR", "state": "open", "pull_request": {"url": "https://api.github.com/x"}}
				]`)
			case http.MethodPost:
				body, _ := io.ReadAll(r.Body)
				Expect(json.Unmarshal(body, &created)).To(Succeed())
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"number": 7, "html_url": "https://github.com/acme/api/issues/7"}`)
			}
		})
		server = httptest.NewServer(mux)

		var err error
		tracker, err = issue_tracker.NewGitHubTracker("token", server.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("lists issues without pull requests", func() {
		items, err := tracker.ListIssues(context.Background(), target)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(2))
		Expect(items[0]).To(Equal(model.TrackedItem{
			Number: 1, Title: "DB timeout", State: model.ItemStateOpen, URL: "https://github.com/acme/api/issues/1",
		}))
		Expect(items[1].State).To(Equal(model.ItemStateClosed))
		Expect(items[1].HasLabel("wontfix")).To(BeTrue())
	})

	It("creates issues with labels", func() {
		item, err := tracker.CreateIssue(context.Background(), target, issue_tracker.CreateRequest{
			Title: "DB timeout", Body: "details", Labels: []string{"High"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(item.Number).To(Equal(int64(7)))
		Expect(item.URL).To(Equal("https://github.com/acme/api/issues/7"))
		Expect(created).To(HaveKeyWithValue("title", "DB timeout"))
		Expect(created).To(HaveKeyWithValue("labels", ConsistOf("High")))
	})
})

var _ = Describe("GitLabTracker", func() {
	var (
		server  *httptest.Server
		tracker *issue_tracker.GitLabTracker
		created map[string]any
		target  issue_tracker.Target
	)

	BeforeEach(func() {
		created = nil
		target = issue_tracker.Target{Provider: issue_tracker.ProviderGitLab, Path: "acme/api"}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if !strings.HasPrefix(r.URL.Path, "/api/v4/projects/") || !strings.HasSuffix(r.URL.Path, "/issues") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			switch r.Method {
			case http.MethodGet:
				_, _ = io.WriteString(w, `[
					{"id": 104, "iid": 4, "title": "Crash loop", "state": "opened", "labels": ["High"], "web_url": "https://gitlab.com/acme/api/-/issues/4"},
					{"id": 105, "iid": 5, "title": "Old", "state": "closed", "labels": ["wontfix"]}
				]`)
			case http.MethodPost:
				body, _ := io.ReadAll(r.Body)
				Expect(json.Unmarshal(body, &created)).To(Succeed())
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"id": 109, "iid": 9, "title": "Crash loop", "state": "opened", "web_url": "https://gitlab.com/acme/api/-/issues/9"}`)
			}
		}))

		var err error
		tracker, err = issue_tracker.NewGitLabTracker("token", server.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("maps opened to open", func() {
		items, err := tracker.ListIssues(context.Background(), target)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(2))
		Expect(items[0].State).To(Equal(model.ItemStateOpen))
		Expect(items[0].Number).To(Equal(int64(4)))
		Expect(items[1].State).To(Equal(model.ItemStateClosed))
		Expect(items[1].HasLabel("WONTFIX")).To(BeTrue())
	})

	It("creates issues", func() {
		item, err := tracker.CreateIssue(context.Background(), target, issue_tracker.CreateRequest{
			Title: "Crash loop", Body: "evidence",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(item.Number).To(Equal(int64(9)))
		Expect(created).To(HaveKeyWithValue("title", "Crash loop"))
		Expect(created).To(HaveKeyWithValue("description", "evidence"))
	})
})
