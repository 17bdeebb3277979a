package storage

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shortgrab/backend/internal/metrics"
)

var (
	// ErrQueueClosed is returned by Enqueue after Shutdown was called.
	ErrQueueClosed = errors.New("archive queue closed")
	// ErrQueueFull is returned when every queue slot is taken.
	ErrQueueFull = errors.New("archive queue full")
)

// Uploader stores one local file for a bot and returns its object key.
type Uploader interface {
	Archive(ctx context.Context, botID, localPath string) (string, error)
}

// QueueConfig controls the archive worker pool.
type QueueConfig struct {
	BotID     string
	QueueSize int
	Workers   int
	// Timeout bounds a single upload.
	Timeout time.Duration
}

// ArchiveQueue uploads delivered videos in the background. It owns every file
// it accepts and removes it once the upload finished, successfully or not.
type ArchiveQueue struct {
	uploader Uploader
	cfg      QueueConfig
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan string
	wg     sync.WaitGroup
}

// NewArchiveQueue starts cfg.Workers upload workers.
func NewArchiveQueue(uploader Uploader, cfg QueueConfig, logger *slog.Logger) *ArchiveQueue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &ArchiveQueue{
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan string, cfg.QueueSize),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.worker()
	}
	return q
}

// Enqueue hands localPath to the queue without blocking. On error the caller
// keeps ownership of the file.
func (q *ArchiveQueue) Enqueue(ctx context.Context, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- localPath:
		return nil
	default:
		metrics.ArchiveUploadsTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Shutdown stops accepting files and waits for queued uploads to drain.
func (q *ArchiveQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (q *ArchiveQueue) worker() {
	defer q.wg.Done()

	for localPath := range q.jobs {
		q.handle(localPath)
	}
}

func (q *ArchiveQueue) handle(localPath string) {
	logger := q.logger.With(slog.String("file", localPath))

	defer func() {
		if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove archived file", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.Timeout)
	defer cancel()

	key, err := q.uploader.Archive(ctx, q.cfg.BotID, localPath)
	if err != nil {
		metrics.ArchiveUploadsTotal.WithLabelValues("failed").Inc()
		logger.Error("archive upload failed", slog.Any("error", err))
		return
	}
	metrics.ArchiveUploadsTotal.WithLabelValues("uploaded").Inc()
	logger.Debug("video archived", slog.String("key", key))
}
