package scrapequeue_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reviewlens/scrapequeue"
)

var _ = Describe("BadgerStore", func() {
	StoreTestSuite(func() (scrapequeue.Store, func()) {
		tmpDir, err := os.MkdirTemp("", "scrapequeue_badger_*")
		Expect(err).NotTo(HaveOccurred())

		store, err := scrapequeue.NewBadgerStore(tmpDir, testLogger())
		Expect(err).NotTo(HaveOccurred())

		return store, func() {
			_ = store.Close()
			_ = os.RemoveAll(tmpDir)
		}
	})

	Describe("durability", func() {
		It("should survive a close and reopen with queue, pointer and pending view intact", func() {
			tmpDir, err := os.MkdirTemp("", "scrapequeue_badger_reopen_*")
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = os.RemoveAll(tmpDir) }()

			ctx := context.Background()

			store, err := scrapequeue.NewBadgerStore(tmpDir, testLogger())
			Expect(err).NotTo(HaveOccurred())
			Expect(store.AppendRecord(ctx, testRecord("a", "https://example.com/a"))).To(Succeed())
			Expect(store.AppendRecord(ctx, testRecord("b", "https://example.com/b"))).To(Succeed())
			Expect(store.SetActiveJob(ctx, "job-7", "https://example.com/active")).To(Succeed())
			Expect(store.PrependCompleted(ctx, &scrapequeue.CompletedEntry{
				JobID: "j-done",
				URL:   "https://example.com/done",
			})).To(Succeed())
			Expect(store.Close()).To(Succeed())

			// Simulates a process restart: a fresh store over the same data dir.
			reopened, err := scrapequeue.NewBadgerStore(tmpDir, testLogger())
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = reopened.Close() }()

			records, err := reopened.ListRecords(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].ID).To(Equal("a"))
			Expect(records[1].ID).To(Equal("b"))

			jobID, url, err := reopened.ActiveJobRef(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobID).To(Equal("job-7"))
			Expect(url).To(Equal("https://example.com/active"))

			entries, err := reopened.ListCompleted(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].JobID).To(Equal("j-done"))
		})

		It("should keep FIFO order across a reopen after partial consumption", func() {
			tmpDir, err := os.MkdirTemp("", "scrapequeue_badger_fifo_*")
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = os.RemoveAll(tmpDir) }()

			ctx := context.Background()

			store, err := scrapequeue.NewBadgerStore(tmpDir, testLogger())
			Expect(err).NotTo(HaveOccurred())
			for _, id := range []string{"a", "b", "c"} {
				Expect(store.AppendRecord(ctx, testRecord(id, "https://example.com/"+id))).To(Succeed())
			}
			head, err := store.PopFront(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(head.ID).To(Equal("a"))
			Expect(store.Close()).To(Succeed())

			reopened, err := scrapequeue.NewBadgerStore(tmpDir, testLogger())
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = reopened.Close() }()

			// New appends must land behind records that survived the reopen.
			Expect(reopened.AppendRecord(ctx, testRecord("d", "https://example.com/d"))).To(Succeed())

			records, err := reopened.ListRecords(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].ID).To(Equal("b"))
			Expect(records[1].ID).To(Equal("c"))
			Expect(records[2].ID).To(Equal("d"))
		})
	})
})
