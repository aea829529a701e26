package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/queue"
	"sentinel.app/relay/internal/worker"
)

func transcriptMessage(id, thread string, attempt int) queue.Message {
	return queue.Message{
		ID:      id,
		Attempt: attempt,
		Event: model.TranscriptEvent{
			ThreadID:  thread,
			User:      "what failed?",
			Assistant: "nothing",
			Route:     model.NodeLogAnswer,
			At:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

var _ = Describe("Worker", func() {
	var (
		consumer *fakeConsumer
		archiver *fakeArchiver
		w        *worker.Worker
	)

	runUntil := func(done func() bool) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		go func() { errCh <- w.Run(ctx) }()
		Eventually(done).Should(BeTrue())
		w.Stop()
		Eventually(errCh).Should(Receive(BeNil()))
	}

	BeforeEach(func() {
		consumer = &fakeConsumer{}
		archiver = &fakeArchiver{}
		w = worker.New(consumer, archiver, worker.Config{MaxAttempts: 3, ErrorBackoff: time.Millisecond})
	})

	It("archives and acknowledges every message in order", func() {
		consumer.batches = [][]queue.Message{
			{transcriptMessage("1-0", "t1", 1), transcriptMessage("2-0", "t2", 1)},
			{transcriptMessage("3-0", "t1", 1)},
		}

		runUntil(func() bool { return len(archiver.archived()) == 3 })

		acked, requeued, dlq := consumer.snapshot()
		Expect(acked).To(Equal([]string{"1-0", "2-0", "3-0"}))
		Expect(requeued).To(BeEmpty())
		Expect(dlq).To(BeEmpty())
		Expect(archiver.archived()[2].ThreadID).To(Equal("t1"))
	})

	It("requeues a failed message below the attempt limit", func() {
		archiver.archiveFn = func(model.TranscriptEvent) error { return errors.New("disk full") }
		consumer.batches = [][]queue.Message{{transcriptMessage("1-0", "t1", 1)}}

		runUntil(func() bool {
			_, requeued, _ := consumer.snapshot()
			return len(requeued) == 1
		})

		acked, _, dlq := consumer.snapshot()
		Expect(acked).To(BeEmpty())
		Expect(dlq).To(BeEmpty())
	})

	It("dead-letters a message at the attempt limit", func() {
		archiver.archiveFn = func(model.TranscriptEvent) error { return errors.New("disk full") }
		consumer.batches = [][]queue.Message{{transcriptMessage("1-0", "t1", 3)}}

		runUntil(func() bool {
			_, _, dlq := consumer.snapshot()
			return len(dlq) == 1
		})
	})

	It("recovers from a panicking archiver", func() {
		archiver.archiveFn = func(e model.TranscriptEvent) error {
			if e.ThreadID == "boom" {
				panic("nil map")
			}
			return nil
		}
		consumer.batches = [][]queue.Message{{transcriptMessage("1-0", "boom", 1), transcriptMessage("2-0", "ok", 1)}}

		runUntil(func() bool { return len(archiver.archived()) == 1 })

		acked, requeued, _ := consumer.snapshot()
		Expect(acked).To(Equal([]string{"2-0"}))
		Expect(requeued).To(Equal([]string{"1-0"}))
	})

	It("keeps running after a read error and stops on context cancel", func() {
		consumer.readErr = errors.New("connection refused")
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- w.Run(ctx) }()

		Consistently(errCh, 20*time.Millisecond).ShouldNot(Receive())
		cancel()
		Eventually(errCh).Should(Receive(MatchError(context.Canceled)))
	})
})
