package scrapequeue_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reviewlens/scrapequeue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}))
}

func testRecord(id, url string) *scrapequeue.JobRecord {
	return &scrapequeue.JobRecord{
		ID:          id,
		URL:         url,
		ProductName: "example.com",
		ProductLink: url,
		AddedAt:     time.Now(),
	}
}

// StoreTestSuite runs the shared Store contract against one implementation.
// newStore returns a fresh empty store and its cleanup function.
func StoreTestSuite(newStore func() (scrapequeue.Store, func())) {
	var (
		store   scrapequeue.Store
		cleanup func()
		ctx     context.Context
	)

	BeforeEach(func() {
		store, cleanup = newStore()
		ctx = context.Background()
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("queue operations", func() {
		It("should list records in FIFO order", func() {
			Expect(store.AppendRecord(ctx, testRecord("a", "https://example.com/a"))).To(Succeed())
			Expect(store.AppendRecord(ctx, testRecord("b", "https://example.com/b"))).To(Succeed())
			Expect(store.AppendRecord(ctx, testRecord("c", "https://example.com/c"))).To(Succeed())

			records, err := store.ListRecords(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].ID).To(Equal("a"))
			Expect(records[1].ID).To(Equal("b"))
			Expect(records[2].ID).To(Equal("c"))
		})

		It("should round-trip record fields through the store", func() {
			original := testRecord("a", "https://www.example.com/product/42")
			Expect(store.AppendRecord(ctx, original)).To(Succeed())

			records, err := store.ListRecords(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal(original.ID))
			Expect(records[0].URL).To(Equal(original.URL))
			Expect(records[0].ProductName).To(Equal(original.ProductName))
			Expect(records[0].ProductLink).To(Equal(original.ProductLink))
			Expect(records[0].AddedAt).To(BeTemporally("~", original.AddedAt, time.Second))
		})

		It("should reject a nil record and an empty ID", func() {
			Expect(store.AppendRecord(ctx, nil)).NotTo(Succeed())
			Expect(store.AppendRecord(ctx, testRecord("", "https://example.com/a"))).NotTo(Succeed())
		})

		It("should remove one record by ID and preserve order of the rest", func() {
			Expect(store.AppendRecord(ctx, testRecord("a", "https://example.com/a"))).To(Succeed())
			Expect(store.AppendRecord(ctx, testRecord("b", "https://example.com/b"))).To(Succeed())
			Expect(store.AppendRecord(ctx, testRecord("c", "https://example.com/c"))).To(Succeed())

			removed, err := store.RemoveRecord(ctx, "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())

			records, err := store.ListRecords(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].ID).To(Equal("a"))
			Expect(records[1].ID).To(Equal("c"))
		})

		It("should report false when removing an unknown ID", func() {
			removed, err := store.RemoveRecord(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())
		})

		It("should pop the head and shift the remainder forward", func() {
			Expect(store.AppendRecord(ctx, testRecord("a", "https://example.com/a"))).To(Succeed())
			Expect(store.AppendRecord(ctx, testRecord("b", "https://example.com/b"))).To(Succeed())

			head, err := store.PopFront(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(head).NotTo(BeNil())
			Expect(head.ID).To(Equal("a"))

			records, err := store.ListRecords(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("b"))
		})

		It("should return nil when popping an empty queue", func() {
			head, err := store.PopFront(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(head).To(BeNil())
		})
	})

	Describe("active job pointer", func() {
		It("should round-trip the pointer", func() {
			Expect(store.SetActiveJob(ctx, "job-1", "https://example.com/p")).To(Succeed())

			jobID, url, err := store.ActiveJobRef(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobID).To(Equal("job-1"))
			Expect(url).To(Equal("https://example.com/p"))
		})

		It("should read empty strings when the pointer was never set", func() {
			jobID, url, err := store.ActiveJobRef(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobID).To(BeEmpty())
			Expect(url).To(BeEmpty())
		})

		It("should clear the pointer", func() {
			Expect(store.SetActiveJob(ctx, "job-1", "https://example.com/p")).To(Succeed())
			Expect(store.ClearActiveJob(ctx)).To(Succeed())

			jobID, url, err := store.ActiveJobRef(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobID).To(BeEmpty())
			Expect(url).To(BeEmpty())
		})
	})

	Describe("pending view", func() {
		entry := func(jobID string) *scrapequeue.CompletedEntry {
			return &scrapequeue.CompletedEntry{
				JobID:       jobID,
				URL:         "https://example.com/" + jobID,
				ProductName: "example.com",
				Result:      []byte(`{"reviews":12}`),
				FinishedAt:  time.Now(),
			}
		}

		It("should list entries most recent first", func() {
			Expect(store.PrependCompleted(ctx, entry("j1"))).To(Succeed())
			Expect(store.PrependCompleted(ctx, entry("j2"))).To(Succeed())
			Expect(store.PrependCompleted(ctx, entry("j3"))).To(Succeed())

			entries, err := store.ListCompleted(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].JobID).To(Equal("j3"))
			Expect(entries[1].JobID).To(Equal("j2"))
			Expect(entries[2].JobID).To(Equal("j1"))
		})

		It("should preserve the result payload", func() {
			Expect(store.PrependCompleted(ctx, entry("j1"))).To(Succeed())

			entries, err := store.ListCompleted(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Result).To(Equal([]byte(`{"reviews":12}`)))
		})

		It("should remove one entry by job ID", func() {
			Expect(store.PrependCompleted(ctx, entry("j1"))).To(Succeed())
			Expect(store.PrependCompleted(ctx, entry("j2"))).To(Succeed())

			removed, err := store.RemoveCompleted(ctx, "j1")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())

			entries, err := store.ListCompleted(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].JobID).To(Equal("j2"))
		})

		It("should report false when removing an unknown entry", func() {
			removed, err := store.RemoveCompleted(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())
		})
	})
}

var _ = Describe("InMemoryStore", func() {
	StoreTestSuite(func() (scrapequeue.Store, func()) {
		store := scrapequeue.NewInMemoryStore()
		return store, func() { _ = store.Close() }
	})
})
