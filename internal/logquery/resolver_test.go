package logquery_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/sanitize"
)

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		source   *fakeSource
		resolver *logquery.Resolver
		now      time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = &fakeSource{}
		now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		resolver = logquery.NewResolver(source, logquery.Config{
			ProjectID: "demo-project",
			Now:       func() time.Time { return now },
		})
	})

	Describe("input validation", func() {
		It("rejects an unsafe service name before querying", func() {
			_, err := resolver.Fetch(ctx, logquery.Request{
				Name:     `svc" OR resource.type="gce_instance`,
				Category: model.CategoryCloudRun,
			})

			Expect(errors.Is(err, sanitize.ErrInvalidIdentifier)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("service_name"))
			Expect(source.calls).To(BeEmpty())
		})

		It("rejects an unsafe project id", func() {
			resolver = logquery.NewResolver(source, logquery.Config{ProjectID: "bad/project"})

			_, err := resolver.Fetch(ctx, logquery.Request{Name: "svc", Category: model.CategoryCloudRun})

			Expect(errors.Is(err, sanitize.ErrInvalidIdentifier)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("project_id"))
			Expect(source.calls).To(BeEmpty())
		})

		It("rejects an unknown category", func() {
			_, err := resolver.Fetch(ctx, logquery.Request{Name: "svc", Category: "mainframe"})

			Expect(errors.Is(err, logquery.ErrUnsupportedCategory)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("unsupported service type"))
			Expect(source.calls).To(BeEmpty())
		})

		It("rejects an explicit window longer than 48 hours", func() {
			w := logquery.Window{Start: now.Add(-48*time.Hour - time.Second), End: now}

			_, err := resolver.Fetch(ctx, logquery.Request{Name: "svc", Category: model.CategoryCloudRun, Window: &w})

			Expect(errors.Is(err, logquery.ErrInvalidTimeRange)).To(BeTrue())
			Expect(source.calls).To(BeEmpty())
		})

		It("accepts an explicit window of exactly 48 hours", func() {
			w := logquery.Window{Start: now.Add(-48 * time.Hour), End: now}

			_, err := resolver.Fetch(ctx, logquery.Request{Name: "svc", Category: model.CategoryCloudRun, Window: &w})

			Expect(err).NotTo(HaveOccurred())
			Expect(source.calls).NotTo(BeEmpty())
		})

		It("rejects a window that ends before it starts", func() {
			w := logquery.Window{Start: now, End: now.Add(-time.Minute)}

			_, err := resolver.Fetch(ctx, logquery.Request{Name: "svc", Category: model.CategoryCloudRun, Window: &w})

			Expect(errors.Is(err, logquery.ErrInvalidTimeRange)).To(BeTrue())
		})
	})

	Describe("filter ordering", func() {
		It("tries the primary label first and returns the first non-empty result", func() {
			source.respond = matching([]string{"line from configuration"}, "configuration_name")

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Entries).To(Equal([]string{"line from configuration"}))
			Expect(source.calls).To(HaveLen(2))
			Expect(source.calls[0]).To(ContainSubstring(`resource.labels.service_name = "my-svc"`))
			Expect(source.calls[1]).To(ContainSubstring(`resource.labels.configuration_name = "my-svc"`))
			Expect(res.Filter).To(Equal(source.calls[1]))
			Expect(res.Escalated).To(BeFalse())
		})

		It("stops at the first filter that yields entries", func() {
			source.respond = matching([]string{"primary"}, "service_name")

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Entries).To(Equal([]string{"primary"}))
			Expect(source.calls).To(HaveLen(1))
			Expect(res.Attempts).To(Equal(1))
		})

		It("scopes every filter to the resource type and time window", func() {
			_, err := resolver.Fetch(ctx, logquery.Request{Name: "b-1", Category: model.CategoryCloudBuild})

			Expect(err).NotTo(HaveOccurred())
			for _, f := range source.calls {
				Expect(f).To(HavePrefix(`resource.type = "build" AND `))
				Expect(f).To(ContainSubstring(`timestamp >= "`))
				Expect(f).To(ContainSubstring(`timestamp <= "2026-03-10T12:00:00Z"`))
			}
			Expect(source.calls[2]).To(ContainSubstring(`logName="projects/demo-project/logs/cloudbuild"`))
		})

		It("passes the default limit when none is set", func() {
			_, _ = resolver.Fetch(ctx, logquery.Request{Name: "svc", Category: model.CategoryCloudFunctions})

			Expect(source.limits[0]).To(Equal(logquery.DefaultLimit))
		})
	})

	Describe("window escalation", func() {
		It("widens the default window to 48 hours exactly once", func() {
			wideStart := `timestamp >= "2026-03-08T12:00:00Z"`
			source.respond = matching([]string{"older line"}, wideStart, "configuration_name")

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Entries).To(Equal([]string{"older line"}))
			Expect(res.Escalated).To(BeTrue())
			Expect(res.Window.Duration()).To(Equal(48 * time.Hour))
			Expect(source.calls).To(HaveLen(4))
			Expect(source.calls[0]).To(ContainSubstring(`timestamp >= "2026-03-09T12:00:00Z"`))
			Expect(source.calls[1]).To(ContainSubstring(`timestamp >= "2026-03-09T12:00:00Z"`))
			Expect(source.calls[2]).To(ContainSubstring(wideStart))
			Expect(source.calls[3]).To(ContainSubstring(wideStart))
		})

		It("returns an empty result without error when nothing is found after escalating", func() {
			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Entries).To(BeEmpty())
			Expect(res.Escalated).To(BeTrue())
			Expect(source.calls).To(HaveLen(4))
		})

		It("never escalates an explicit window", func() {
			w := logquery.Window{Start: now.Add(-time.Hour), End: now}

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun, Window: &w})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Escalated).To(BeFalse())
			Expect(source.calls).To(HaveLen(2))
			for _, f := range source.calls {
				Expect(f).To(ContainSubstring(`timestamp >= "2026-03-10T11:00:00Z"`))
			}
		})

		It("does not escalate categories that opt out", func() {
			table := logquery.DefaultTable()
			tmpl := table[model.CategoryGCE]
			tmpl.Escalate = false
			table[model.CategoryGCE] = tmpl
			resolver = logquery.NewResolver(source, logquery.Config{
				ProjectID: "demo-project",
				Table:     table,
				Now:       func() time.Time { return now },
			})

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "vm-1", Category: model.CategoryGCE})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Escalated).To(BeFalse())
			Expect(source.calls).To(HaveLen(2))
		})
	})

	Describe("transport errors", func() {
		It("moves on to the next filter after a recoverable error", func() {
			source.respond = func(filter string) ([]string, error) {
				if strings.Contains(filter, "service_name") {
					return nil, errors.New("connection reset")
				}
				return []string{"fallback hit"}, nil
			}

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Entries).To(Equal([]string{"fallback hit"}))
		})

		It("stops at an unrecoverable error and reports it", func() {
			source.respond = func(string) ([]string, error) {
				return nil, logquery.Unrecoverable(errors.New("permission denied"))
			}

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			var upstream *logquery.UpstreamFetchError
			Expect(errors.As(err, &upstream)).To(BeTrue())
			Expect(errors.Is(err, logquery.ErrUnrecoverable)).To(BeTrue())
			Expect(res.Entries).To(BeEmpty())
			Expect(source.calls).To(HaveLen(1))
		})

		It("reports the error when every attempt failed", func() {
			source.respond = func(string) ([]string, error) {
				return nil, errors.New("timeout talking to backend")
			}

			res, err := resolver.Fetch(ctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			var upstream *logquery.UpstreamFetchError
			Expect(errors.As(err, &upstream)).To(BeTrue())
			Expect(upstream.Err.Error()).To(Equal("timeout talking to backend"))
			Expect(res.Entries).To(BeEmpty())
			Expect(source.calls).To(HaveLen(4))
		})

		It("treats a cancelled context as unrecoverable", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			source.respond = func(string) ([]string, error) {
				return nil, cctx.Err()
			}

			_, err := resolver.Fetch(cctx, logquery.Request{Name: "my-svc", Category: model.CategoryCloudRun})

			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(source.calls).To(HaveLen(1))
		})
	})
})
