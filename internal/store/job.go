package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kubev2v/media-analyzer/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobMutation changes a job in place. Returning an error aborts the update.
type JobMutation func(job *model.Job) error

type Job interface {
	InitialMigration(ctx context.Context) error
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, mutate JobMutation) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) ([]model.Job, error)
	Count(ctx context.Context, filter *JobQueryFilter) (int64, error)
	Delete(ctx context.Context, id string) error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Job{})
}

// Create inserts a new PENDING job.
func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.Status != model.JobStatusPending {
		return nil, fmt.Errorf("%w: new jobs start as %s", model.ErrInvalidJob, model.JobStatusPending)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	err := s.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Job{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateKey
		}
		return tx.Create(&job).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		if errors.Is(err, ErrDuplicateKey) {
			return nil, err
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}

	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := s.getDB(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &job, nil
}

// Update applies mutate to the current record and writes the result in one transaction.
// The row is locked for the duration so concurrent updates of the same job are serialized,
// and the new record is validated against the job state machine before it is saved.
func (s *JobStore) Update(ctx context.Context, id string, mutate JobMutation) (*model.Job, error) {
	var updated model.Job

	err := s.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}

		next := current
		if err := mutate(&next); err != nil {
			return err
		}
		if err := current.ValidateUpdate(&next); err != nil {
			return err
		}

		next.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) ([]model.Job, error) {
	var jobs []model.Job
	tx := s.getDB(ctx).Model(&jobs)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) Count(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	var count int64
	tx := s.getDB(ctx).Model(&model.Job{})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	result := s.getDB(ctx).Delete(&model.Job{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
