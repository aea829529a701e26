package store_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/store"
)

var _ = Describe("RedisStore", func() {
	var (
		ctx    context.Context
		mr     *miniredis.Miniredis
		client *redis.Client
		s      *store.RedisStore
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr = miniredis.RunT(GinkgoT())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)
		s = store.NewRedisStore(client, "sentinel:thread:", time.Hour)
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	newState := func(id string, version int64) *model.ThreadState {
		st := model.NewThreadState(id, now)
		st.Version = version
		st.AppendMessage(model.RoleUser, "show errors", now)
		return st
	}

	It("returns ErrNotFound for unknown threads", func() {
		_, err := s.Load(ctx, "missing")
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("round-trips a saved state under the key prefix with a TTL", func() {
		st := newState("t1", 1)
		st.Service = &model.ServiceIdentity{Name: "api", Category: model.CategoryCloudRun}
		st.RepoTarget = "acme/api"
		Expect(s.Save(ctx, st, 0)).To(Succeed())

		Expect(mr.Exists("sentinel:thread:t1")).To(BeTrue())
		Expect(mr.TTL("sentinel:thread:t1")).To(Equal(time.Hour))

		loaded, err := s.Load(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Version).To(Equal(int64(1)))
		Expect(loaded.Service).To(Equal(st.Service))
		Expect(loaded.RepoTarget).To(Equal("acme/api"))
		Expect(loaded.Messages).To(HaveLen(1))
	})

	It("advances when the expected version matches", func() {
		Expect(s.Save(ctx, newState("t1", 1), 0)).To(Succeed())
		Expect(s.Save(ctx, newState("t1", 2), 1)).To(Succeed())

		loaded, err := s.Load(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Version).To(Equal(int64(2)))
	})

	It("rejects a stale write and keeps the stored state", func() {
		Expect(s.Save(ctx, newState("t1", 1), 0)).To(Succeed())
		Expect(s.Save(ctx, newState("t1", 2), 1)).To(Succeed())

		Expect(s.Save(ctx, newState("t1", 2), 1)).To(MatchError(store.ErrVersionConflict))
		Expect(s.Save(ctx, newState("t1", 1), 0)).To(MatchError(store.ErrVersionConflict))

		loaded, err := s.Load(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Version).To(Equal(int64(2)))
	})

	It("reports backend failures as errors, not conflicts", func() {
		mr.Close()
		err := s.Save(ctx, newState("t1", 1), 0)
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(store.ErrVersionConflict))
	})
})
