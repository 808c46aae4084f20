package localsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileSource implements ports.SourceProvider for videos on the local disk.
type FileSource struct{}

// NewFileSource creates a FileSource.
func NewFileSource() *FileSource {
	return &FileSource{}
}

// Open opens the recording at location for reading.
func (s *FileSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source video %s: %w", location, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source video %s is a directory", location)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open source video %s: %w", location, err)
	}
	return f, nil
}

// Remove deletes the recording at location. A missing file is not an error.
func (s *FileSource) Remove(location string) error {
	if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove file at %s: %w", location, err)
	}
	return nil
}
