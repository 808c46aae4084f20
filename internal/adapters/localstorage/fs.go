package localstorage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const snapshotFile = "job.json"

// LocalStorage implements ports.Storage for the local filesystem.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// InitJob creates the job directory.
func (s *LocalStorage) InitJob(ctx context.Context, jobID string) error {
	path := s.GetJobPath(jobID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	return nil
}

// SaveInput writes the job snapshot, replacing any earlier one.
func (s *LocalStorage) SaveInput(ctx context.Context, jobID string, data []byte) error {
	path := filepath.Join(s.GetJobPath(jobID), snapshotFile)
	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("failed to save %s: %w", snapshotFile, err)
	}
	return nil
}

// SaveVideo streams the processed video into the job directory. A
// partially written file never replaces an existing one.
func (s *LocalStorage) SaveVideo(ctx context.Context, jobID string, reader io.Reader, filename string) error {
	if filename == "" {
		filename = "result.mp4"
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("invalid video filename %q", filename)
	}
	path := filepath.Join(s.GetJobPath(jobID), filename)

	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, &ctxReader{ctx: ctx, r: reader})
		return err
	}); err != nil {
		return fmt.Errorf("failed to write video file %s: %w", path, err)
	}
	return nil
}

// GetJobPath returns the path for a job directory.
func (s *LocalStorage) GetJobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "jobs", jobID)
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tiktorch-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
