package migrations_test

import (
	"os"
	"path"
	"path/filepath"

	"github.com/kubev2v/media-analyzer/internal/config"
	"github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("migrations", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	tableExists := func(name string) bool {
		count := 0
		tx := gormdb.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
		Expect(tx.Error).To(BeNil())
		return count == 1
	}

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "jobs.db")
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DROP TABLE IF EXISTS jobs;")
		gormdb.Exec("DROP TABLE IF EXISTS goose_db_version;")
	})

	Context("store migrations", func() {
		It("fails to migrate the db -- migration folder does not exist", func() {
			err := migrations.MigrateStore(gormdb, "some folder")
			Expect(err).NotTo(BeNil())
		})

		It("successfully migrates the db from a folder", func() {
			currentFolder, err := os.Getwd()
			Expect(err).To(BeNil())

			err = migrations.MigrateStore(gormdb, path.Join(currentFolder, "sql"))
			Expect(err).To(BeNil())
			Expect(tableExists("jobs")).To(BeTrue())
		})

		It("successfully migrates the db from the embedded migrations", func() {
			Expect(migrations.MigrateStore(gormdb, "")).To(BeNil())
			Expect(tableExists("jobs")).To(BeTrue())

			// applying twice is a no-op
			Expect(migrations.MigrateStore(gormdb, "")).To(BeNil())
		})
	})
})
