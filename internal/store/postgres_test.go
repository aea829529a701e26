package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/store"
)

type execCall struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	execs    []execCall
	execTag  string
	execErr  error
	rowData  []byte
	rowErr   error
	queryArg []any
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag(f.execTag), f.execErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.queryArg = args
	return fakeRow{data: f.rowData, err: f.rowErr}
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

var _ = Describe("PostgresStore", func() {
	var (
		ctx context.Context
		q   *fakeQuerier
		s   *store.PostgresStore
		st  *model.ThreadState
	)

	BeforeEach(func() {
		ctx = context.Background()
		q = &fakeQuerier{}
		s = store.NewPostgresStore(q)
		st = model.NewThreadState("t1", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
		st.Version = 1
	})

	It("creates the checkpoints table", func() {
		Expect(s.EnsureSchema(ctx)).To(Succeed())
		Expect(q.execs).To(HaveLen(1))
		Expect(q.execs[0].sql).To(ContainSubstring("CREATE TABLE IF NOT EXISTS checkpoints"))
	})

	It("inserts new threads without overwriting", func() {
		q.execTag = "INSERT 0 1"
		Expect(s.Save(ctx, st, 0)).To(Succeed())
		Expect(q.execs[0].sql).To(ContainSubstring("ON CONFLICT (thread_id) DO NOTHING"))
		Expect(q.execs[0].args[0]).To(Equal("t1"))
		Expect(q.execs[0].args[1]).To(Equal(int64(1)))
	})

	It("reports a conflict when the insert hit an existing row", func() {
		q.execTag = "INSERT 0 0"
		Expect(s.Save(ctx, st, 0)).To(MatchError(store.ErrVersionConflict))
	})

	It("updates conditionally on the expected version", func() {
		st.Version = 4
		q.execTag = "UPDATE 1"
		Expect(s.Save(ctx, st, 3)).To(Succeed())
		Expect(q.execs[0].sql).To(ContainSubstring("WHERE thread_id = $1 AND version = $4"))
		Expect(q.execs[0].args[3]).To(Equal(int64(3)))
	})

	It("reports a conflict when no row matched the update", func() {
		st.Version = 4
		q.execTag = "UPDATE 0"
		Expect(s.Save(ctx, st, 3)).To(MatchError(store.ErrVersionConflict))
	})

	It("wraps driver errors", func() {
		q.execErr = errors.New("connection reset")
		err := s.Save(ctx, st, 0)
		Expect(err).To(MatchError(ContainSubstring("saving checkpoint t1: connection reset")))
		Expect(errors.Is(err, store.ErrVersionConflict)).To(BeFalse())
	})

	It("maps missing rows to ErrNotFound", func() {
		q.rowErr = pgx.ErrNoRows
		_, err := s.Load(ctx, "t1")
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("decodes stored state", func() {
		st.RepoTarget = "acme/api"
		data, err := json.Marshal(st)
		Expect(err).NotTo(HaveOccurred())
		q.rowData = data

		loaded, err := s.Load(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.RepoTarget).To(Equal("acme/api"))
		Expect(q.queryArg).To(Equal([]any{"t1"}))
	})
})
