package worker_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"sentinel.app/relay/internal/queue"
	"sentinel.app/relay/internal/worker"
)

type claimPage struct {
	messages []redis.XMessage
	next     string
}

type fakeClaimer struct {
	pages  []claimPage
	err    error
	starts []string
}

func (f *fakeClaimer) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	cmd := redis.NewXAutoClaimCmd(ctx)
	f.starts = append(f.starts, a.Start)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	if len(f.pages) == 0 {
		cmd.SetVal(nil, "0-0")
		return cmd
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	cmd.SetVal(page.messages, page.next)
	return cmd
}

func streamEntry(id, thread string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]interface{}{
		"thread_id": thread, "at": "2025-03-01T12:00:00Z", "user": "hi",
	}}
}

var _ = Describe("RedisReclaimer", func() {
	var (
		client    *fakeClaimer
		consumer  *fakeConsumer
		processed []queue.Message
		processFn func(queue.Message) error
		reclaimer *worker.RedisReclaimer
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &fakeClaimer{}
		consumer = &fakeConsumer{}
		processed = nil
		processFn = nil
		reclaimer = worker.NewRedisReclaimer(client, worker.RedisReclaimerConfig{
			Stream: "s", Group: "g", Consumer: "c", BatchSize: 10, MaxPasses: 5,
		}, consumer, func(_ context.Context, msg queue.Message) error {
			if processFn != nil {
				if err := processFn(msg); err != nil {
					return err
				}
			}
			processed = append(processed, msg)
			return nil
		})
	})

	It("processes claimed messages across pages", func() {
		client.pages = []claimPage{
			{messages: []redis.XMessage{streamEntry("1-0", "t1")}, next: "5-0"},
			{messages: []redis.XMessage{streamEntry("6-0", "t2")}, next: "0-0"},
		}

		n, err := reclaimer.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
		Expect(client.starts).To(Equal([]string{"0-0", "5-0"}))
		Expect(processed).To(HaveLen(2))
		Expect(processed[1].Event.ThreadID).To(Equal("t2"))
	})

	It("stops after MaxPasses pages", func() {
		for i := 0; i < 8; i++ {
			client.pages = append(client.pages, claimPage{next: "9-0"})
		}
		_, err := reclaimer.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.starts).To(HaveLen(5))
	})

	It("dead-letters reclaimed messages that do not parse", func() {
		client.pages = []claimPage{{messages: []redis.XMessage{{ID: "1-0", Values: map[string]interface{}{"user": "hi"}}}}}

		n, err := reclaimer.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		_, _, dlq := consumer.snapshot()
		Expect(dlq).To(Equal([]string{"1-0"}))
		Expect(processed).To(BeEmpty())
	})

	It("keeps going when one message fails", func() {
		processFn = func(m queue.Message) error {
			if m.ID == "1-0" {
				return errors.New("disk full")
			}
			return nil
		}
		client.pages = []claimPage{{messages: []redis.XMessage{streamEntry("1-0", "t1"), streamEntry("2-0", "t2")}}}

		n, err := reclaimer.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
		Expect(processed).To(HaveLen(1))
		Expect(processed[0].ID).To(Equal("2-0"))
	})

	It("reports claim failures", func() {
		client.err = errors.New("NOGROUP")
		_, err := reclaimer.ReclaimOnce(ctx)
		Expect(err).To(MatchError(ContainSubstring("xautoclaim")))
	})
})
