package logquery_test

import (
	"errors"
	"time"

	"cloud.google.com/go/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sentinel.app/relay/internal/logquery"
)

var _ = Describe("FormatEntry", func() {
	at := time.Date(2025, 3, 1, 11, 2, 3, 0, time.FixedZone("CET", 3600))

	DescribeTable("renders one line per entry",
		func(payload any, want string) {
			line := logquery.FormatEntry(&logging.Entry{Timestamp: at, Severity: logging.Error, Payload: payload})
			Expect(line).To(Equal(want))
		},
		Entry("text payload", "upstream timeout", "2025-03-01T10:02:03Z Error upstream timeout"),
		Entry("multiline text", "panic: boom\ngoroutine 1", `2025-03-01T10:02:03Z Error panic: boom\ngoroutine 1`),
		Entry("json payload", map[string]any{"status": 500}, `2025-03-01T10:02:03Z Error {"status":500}`),
		Entry("no payload", nil, "2025-03-01T10:02:03Z Error "),
	)
})

var _ = Describe("Cloud Logging errors", func() {
	DescribeTable("stop the resolver only for request-level failures",
		func(code codes.Code, unrecoverable bool) {
			err := logquery.ClassifyCloudError(status.Error(code, "x"))
			Expect(errors.Is(err, logquery.ErrUnrecoverable)).To(Equal(unrecoverable))
		},
		Entry("unauthenticated", codes.Unauthenticated, true),
		Entry("permission denied", codes.PermissionDenied, true),
		Entry("bad filter", codes.InvalidArgument, true),
		Entry("unavailable", codes.Unavailable, false),
		Entry("deadline", codes.DeadlineExceeded, false),
	)
})
