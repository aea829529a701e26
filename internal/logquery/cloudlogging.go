package logquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/logging"
	"cloud.google.com/go/logging/logadmin"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CloudLoggingSource reads entries from Google Cloud Logging.
type CloudLoggingSource struct {
	client *logadmin.Client
}

func NewCloudLoggingSource(ctx context.Context, projectID string, opts ...option.ClientOption) (*CloudLoggingSource, error) {
	client, err := logadmin.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating cloud logging client: %w", err)
	}
	return &CloudLoggingSource{client: client}, nil
}

func (s *CloudLoggingSource) ListEntries(ctx context.Context, filter string, limit int) ([]string, error) {
	it := s.client.Entries(ctx, logadmin.Filter(filter), logadmin.NewestFirst())

	var lines []string
	for len(lines) < limit {
		entry, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyCloudError(err)
		}
		lines = append(lines, FormatEntry(entry))
	}
	return lines, nil
}

func (s *CloudLoggingSource) Close() error {
	return s.client.Close()
}

func classifyCloudError(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.NotFound:
		return Unrecoverable(err)
	default:
		return err
	}
}

// FormatEntry renders an entry as a single line: timestamp, severity, payload.
func FormatEntry(e *logging.Entry) string {
	var payload string
	switch p := e.Payload.(type) {
	case nil:
	case string:
		payload = p
	case proto.Message:
		if b, err := protojson.Marshal(p); err == nil {
			payload = string(b)
		}
	case fmt.Stringer:
		payload = p.String()
	default:
		if b, err := json.Marshal(p); err == nil {
			payload = string(b)
		} else {
			payload = fmt.Sprint(p)
		}
	}
	payload = strings.ReplaceAll(strings.TrimSpace(payload), "\n", `\n`)
	return fmt.Sprintf("%s %s %s", e.Timestamp.UTC().Format(time.RFC3339Nano), e.Severity, payload)
}
