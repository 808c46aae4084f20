package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"tiktorch/internal/core/domain"
)

const jobPrefix = "job:"

// ErrNotFound is returned when a job is not in the journal.
var ErrNotFound = errors.New("job not found")

// Store wraps PebbleDB as a journal of job snapshots.
type Store struct {
	db     *pebble.DB
	logger *zap.Logger
	mu     sync.RWMutex
}

// Open opens (or creates) the journal under dataDir.
func Open(dataDir string, logger *zap.Logger) (*Store, error) {
	dbPath := filepath.Join(dataDir, "journal")

	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	logger.Debug("Opened job journal", zap.String("path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the PebbleDB connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores the latest snapshot of job.
func (s *Store) Put(ctx context.Context, job domain.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set(JobKey(job.ID), data, pebble.Sync)
}

// Get returns the snapshot stored for jobID.
func (s *Store) Get(ctx context.Context, jobID string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, closer, err := s.db.Get(JobKey(jobID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return domain.Job{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return domain.Job{}, err
	}
	defer closer.Close()

	var job domain.Job
	if err := json.Unmarshal(value, &job); err != nil {
		return domain.Job{}, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return job, nil
}

// List returns every journaled job, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(jobPrefix),
		UpperBound: []byte(jobPrefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var jobs []domain.Job
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var job domain.Job
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			s.logger.Warn("Skipping unreadable journal entry",
				zap.String("key", string(iter.Key())),
				zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// JobKey returns the storage key for a job snapshot.
func JobKey(jobID string) []byte {
	return []byte(jobPrefix + jobID)
}
