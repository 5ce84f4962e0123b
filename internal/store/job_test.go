package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	st "github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("job store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(newTestConfig())
		Expect(err).To(BeNil())
		gormdb = db
		s = st.NewStore(db)
		Expect(s.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	newJob := func() model.Job {
		id := uuid.NewString()
		return *model.NewJob(id, model.InputRef{Path: "uploads/" + id + ".mp4", Filename: "clip.mp4", Size: 1024})
	}

	Context("create", func() {
		It("creates a pending job", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.CreatedAt).NotTo(BeZero())
			Expect(job.UpdatedAt).NotTo(BeZero())

			fetched, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(fetched.InputFilename).To(Equal("clip.mp4"))
			Expect(fetched.InputSize).To(Equal(int64(1024)))
			Expect(fetched.Report).To(BeNil())
			Expect(fetched.Error).To(BeNil())
		})

		It("refuses a duplicated id", func() {
			job := newJob()
			_, err := s.Job().Create(context.TODO(), job)
			Expect(err).To(BeNil())

			_, err = s.Job().Create(context.TODO(), job)
			Expect(errors.Is(err, st.ErrDuplicateKey)).To(BeTrue())
		})

		It("refuses a job that does not start pending", func() {
			job := newJob()
			job.Status = model.JobStatusProcessing
			_, err := s.Job().Create(context.TODO(), job)
			Expect(errors.Is(err, model.ErrInvalidJob)).To(BeTrue())
		})
	})

	Context("get", func() {
		It("returns not found for an unknown id", func() {
			_, err := s.Job().Get(context.TODO(), uuid.NewString())
			Expect(errors.Is(err, st.ErrRecordNotFound)).To(BeTrue())
		})
	})

	Context("update", func() {
		It("walks the whole lifecycle", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())

			updated, err := s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Status = model.JobStatusProcessing
				return nil
			})
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(model.JobStatusProcessing))
			Expect(updated.UpdatedAt).To(BeTemporally(">=", job.UpdatedAt))

			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.TotalChunks = 2
				return nil
			})
			Expect(err).To(BeNil())

			for i := 1; i <= 2; i++ {
				_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
					j.ChunksProcessed++
					return nil
				})
				Expect(err).To(BeNil())
			}

			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Complete("the report")
				return nil
			})
			Expect(err).To(BeNil())

			fetched, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(fetched.Status).To(Equal(model.JobStatusComplete))
			Expect(fetched.ChunksProcessed).To(Equal(2))
			Expect(fetched.TotalChunks).To(Equal(2))
			Expect(*fetched.Report).To(Equal("the report"))
			Expect(fetched.Error).To(BeNil())
		})

		It("refuses to skip processing", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())

			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Complete("too early")
				return nil
			})
			Expect(errors.Is(err, model.ErrInvalidTransition)).To(BeTrue())

			fetched, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(fetched.Status).To(Equal(model.JobStatusPending))
			Expect(fetched.Report).To(BeNil())
		})

		It("never leaves a terminal status", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())

			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Status = model.JobStatusProcessing
				return nil
			})
			Expect(err).To(BeNil())
			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Fail("segmentation failed")
				return nil
			})
			Expect(err).To(BeNil())

			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Status = model.JobStatusProcessing
				j.Error = nil
				return nil
			})
			Expect(errors.Is(err, model.ErrInvalidTransition)).To(BeTrue())
		})

		It("refuses progress beyond the total", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())

			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Status = model.JobStatusProcessing
				j.TotalChunks = 1
				return nil
			})
			Expect(err).To(BeNil())

			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.ChunksProcessed = 2
				return nil
			})
			Expect(errors.Is(err, model.ErrInvalidJob)).To(BeTrue())
		})

		It("aborts when the mutation fails", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())

			boom := errors.New("boom")
			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Status = model.JobStatusProcessing
				return boom
			})
			Expect(errors.Is(err, boom)).To(BeTrue())

			fetched, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(fetched.Status).To(Equal(model.JobStatusPending))
		})

		It("returns not found for an unknown id", func() {
			_, err := s.Job().Update(context.TODO(), uuid.NewString(), func(j *model.Job) error { return nil })
			Expect(errors.Is(err, st.ErrRecordNotFound)).To(BeTrue())
		})

		It("serializes concurrent increments", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())
			_, err = s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
				j.Status = model.JobStatusProcessing
				j.TotalChunks = 20
				return nil
			})
			Expect(err).To(BeNil())

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := s.Job().Update(context.TODO(), job.ID, func(j *model.Job) error {
						j.ChunksProcessed++
						return nil
					})
					Expect(err).To(BeNil())
				}()
			}
			wg.Wait()

			fetched, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(fetched.ChunksProcessed).To(Equal(20))
		})
	})

	Context("list", func() {
		BeforeEach(func() {
			for i := 0; i < 5; i++ {
				job := newJob()
				job.InputFilename = fmt.Sprintf("clip-%d.mp4", i)
				_, err := s.Job().Create(context.TODO(), job)
				Expect(err).To(BeNil())
				time.Sleep(2 * time.Millisecond)
			}
		})

		It("lists every job", func() {
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter(), st.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(5))
		})

		It("filters by status", func() {
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter(), nil)
			Expect(err).To(BeNil())
			_, err = s.Job().Update(context.TODO(), jobs[0].ID, func(j *model.Job) error {
				j.Status = model.JobStatusProcessing
				return nil
			})
			Expect(err).To(BeNil())

			processing, err := s.Job().List(context.TODO(), st.NewJobQueryFilter().ByStatus(model.JobStatusProcessing), nil)
			Expect(err).To(BeNil())
			Expect(processing).To(HaveLen(1))
			Expect(processing[0].ID).To(Equal(jobs[0].ID))

			count, err := s.Job().Count(context.TODO(), st.NewJobQueryFilter().ByStatus(model.JobStatusPending))
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(4)))
		})

		It("pages in creation order", func() {
			opts := st.NewJobQueryOptions().WithSortOrder(st.SortByCreatedTime).WithOffset(1).WithLimit(2)
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter(), opts)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].InputFilename).To(Equal("clip-1.mp4"))
			Expect(jobs[1].InputFilename).To(Equal("clip-2.mp4"))
		})

		It("sorts newest first", func() {
			opts := st.NewJobQueryOptions().WithSortOrder(st.SortByCreatedTimeDesc).WithLimit(1)
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter(), opts)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].InputFilename).To(Equal("clip-4.mp4"))
		})
	})

	Context("delete", func() {
		It("deletes a job", func() {
			job, err := s.Job().Create(context.TODO(), newJob())
			Expect(err).To(BeNil())

			Expect(s.Job().Delete(context.TODO(), job.ID)).To(BeNil())

			_, err = s.Job().Get(context.TODO(), job.ID)
			Expect(errors.Is(err, st.ErrRecordNotFound)).To(BeTrue())
		})

		It("returns not found for an unknown id", func() {
			err := s.Job().Delete(context.TODO(), uuid.NewString())
			Expect(errors.Is(err, st.ErrRecordNotFound)).To(BeTrue())
		})
	})
})
