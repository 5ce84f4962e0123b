package store

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	// Session returns a handle sharing the connection pool but no state with this one.
	Session(ctx context.Context) Store
	Job() Job
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db  *gorm.DB
	job Job
	log logrus.FieldLogger
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:  db,
		job: NewJobStore(db),
		log: logrus.StandardLogger().WithField("component", "store"),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db, s.log)
}

func (s *DataStore) Session(ctx context.Context) Store {
	return NewStore(s.db.Session(&gorm.Session{NewDB: true, Context: ctx}))
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.job.InitialMigration(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
