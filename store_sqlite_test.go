//go:build sqlite
// +build sqlite

package scrapequeue_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reviewlens/scrapequeue"
)

var _ = Describe("SQLiteStore", func() {
	StoreTestSuite(func() (scrapequeue.Store, func()) {
		tmpFile, err := os.CreateTemp("", "scrapequeue_sqlite_*.db")
		Expect(err).NotTo(HaveOccurred())
		tmpFile.Close()

		store, err := scrapequeue.NewSQLiteStore(tmpFile.Name(), testLogger())
		Expect(err).NotTo(HaveOccurred())

		return store, func() {
			_ = store.Close()
			_ = os.Remove(tmpFile.Name())
		}
	})

	It("should survive a close and reopen with all state intact", func() {
		tmpFile, err := os.CreateTemp("", "scrapequeue_sqlite_reopen_*.db")
		Expect(err).NotTo(HaveOccurred())
		tmpFile.Close()
		defer func() { _ = os.Remove(tmpFile.Name()) }()

		ctx := context.Background()

		store, err := scrapequeue.NewSQLiteStore(tmpFile.Name(), testLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(store.AppendRecord(ctx, testRecord("a", "https://example.com/a"))).To(Succeed())
		Expect(store.SetActiveJob(ctx, "job-7", "https://example.com/active")).To(Succeed())
		Expect(store.Close()).To(Succeed())

		reopened, err := scrapequeue.NewSQLiteStore(tmpFile.Name(), testLogger())
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = reopened.Close() }()

		records, err := reopened.ListRecords(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal("a"))

		jobID, _, err := reopened.ActiveJobRef(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(jobID).To(Equal("job-7"))
	})
})
