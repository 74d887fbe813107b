package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/medremind/internal/model"
)

// FileQueue is a MemoryQueue whose state survives between processes.
// Every operation that changes or delivers alerts rewrites the YAML file.
type FileQueue struct {
	mem  *MemoryQueue
	path string
}

var _ Notifier = (*FileQueue)(nil)

// OpenFileQueue loads the queue stored at path. A missing file yields an
// empty queue; the file is created on the first write.
func OpenFileQueue(path string, opts ...Option) (*FileQueue, error) {
	q := &FileQueue{mem: NewMemoryQueue(opts...), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", path, err)
	}

	var s snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse queue %s: %w", path, err)
	}
	q.mem.restore(s)
	return q, nil
}

// Schedule implements Notifier. If the file cannot be written the alert is
// withdrawn so the caller never holds an id the next process cannot see.
func (q *FileQueue) Schedule(ctx context.Context, content model.Content, at time.Time) (string, error) {
	id, err := q.mem.Schedule(ctx, content, at)
	if err != nil {
		return "", err
	}
	if err := q.save(); err != nil {
		q.mem.Drop(id)
		return "", err
	}
	return id, nil
}

// Cancel implements Notifier.
func (q *FileQueue) Cancel(ctx context.Context, id string) error {
	if err := q.mem.Cancel(ctx, id); err != nil {
		return err
	}
	return q.save()
}

// Scheduled implements Notifier.
func (q *FileQueue) Scheduled(ctx context.Context) ([]model.ScheduledAlert, error) {
	out, err := q.mem.Scheduled(ctx)
	if err != nil {
		return nil, err
	}
	return out, q.save()
}

// Presented implements Notifier.
func (q *FileQueue) Presented(ctx context.Context) ([]model.PresentedAlert, error) {
	out, err := q.mem.Presented(ctx)
	if err != nil {
		return nil, err
	}
	return out, q.save()
}

// Dismiss implements Notifier.
func (q *FileQueue) Dismiss(ctx context.Context, id string) error {
	if err := q.mem.Dismiss(ctx, id); err != nil {
		return err
	}
	return q.save()
}

// Cap returns the configured queue cap.
func (q *FileQueue) Cap() int {
	return q.mem.Cap()
}

func (q *FileQueue) save() error {
	data, err := yaml.Marshal(q.mem.snapshot())
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if dir := filepath.Dir(q.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create queue dir %s: %w", dir, err)
		}
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write queue %s: %w", q.path, err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("replace queue %s: %w", q.path, err)
	}
	return nil
}
