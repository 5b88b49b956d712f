package cachefile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// writeJob 是一次待落盘的完整集合。尚未开始执行的任务会被后续提交合并，
// 只保留最新集合，但所有提交方的 Notifier 都会收到结果。
type writeJob[T any] struct {
	items []T
	sinks []Notifier
	gen   uint64
}

// snapshotWriter 由单个后台 goroutine 顺序执行写入，文件最终一定反映最后一次提交。
type snapshotWriter[T any] struct {
	file     *snapshotFile
	encode   func(T) (json.RawMessage, error)
	logger   logrus.FieldLogger
	fallback Notifier

	mu       sync.Mutex
	pending  *writeJob[T]
	queued   uint64
	done     uint64
	lastErr  error
	closed   bool
	progress chan struct{}

	wake    chan struct{}
	stopped chan struct{}
}

func newSnapshotWriter[T any](file *snapshotFile, encode func(T) (json.RawMessage, error), logger logrus.FieldLogger, fallback Notifier) *snapshotWriter[T] {
	w := &snapshotWriter[T]{
		file:     file,
		encode:   encode,
		logger:   logger,
		fallback: fallback,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	go w.run()
	return w
}

// submit 将 items 排入写入队列后立即返回；调用方不得再修改 items。
func (w *snapshotWriter[T]) submit(items []T, sink Notifier) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	w.queued++
	if w.pending == nil {
		w.pending = &writeJob[T]{}
	}
	w.pending.items = items
	w.pending.gen = w.queued
	if sink != nil {
		w.pending.sinks = append(w.pending.sinks, sink)
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

func (w *snapshotWriter[T]) run() {
	defer close(w.stopped)

	for range w.wake {
		for {
			w.mu.Lock()
			job := w.pending
			w.pending = nil
			w.mu.Unlock()

			if job == nil {
				break
			}
			w.finish(job, w.write(job.items))
		}
	}
}

func (w *snapshotWriter[T]) write(items []T) error {
	raws := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		raw, err := w.encode(item)
		if err != nil {
			return fmt.Errorf("serialize entry %d: %w", i, err)
		}
		raws = append(raws, raw)
	}
	return w.file.write(raws)
}

func (w *snapshotWriter[T]) finish(job *writeJob[T], err error) {
	w.mu.Lock()
	w.done = job.gen
	w.lastErr = err
	close(w.progress)
	w.progress = make(chan struct{})
	w.mu.Unlock()

	fields := logrus.Fields{
		"action":     "snapshot_write",
		"cache_file": w.file.name(),
		"entries":    len(job.items),
	}
	if err == nil {
		w.logger.WithFields(fields).Debug("cache file synced")
		return
	}

	w.logger.WithFields(fields).WithError(err).Error("cache file write failed")
	notified := false
	for _, sink := range job.sinks {
		sink.Notify(err)
		notified = true
	}
	if !notified && w.fallback != nil {
		w.fallback.Notify(err)
	}
}

// flush 等待调用时已提交的写入全部完成，返回最近一次写入的结果。
func (w *snapshotWriter[T]) flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.queued
	for w.done < target {
		ch := w.progress
		w.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		w.mu.Lock()
	}
	err := w.lastErr
	w.mu.Unlock()
	return err
}

func (w *snapshotWriter[T]) lastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *snapshotWriter[T]) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// shutdown 停止接受新任务，可重复调用。
func (w *snapshotWriter[T]) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.wake)
	}
}

// close 停止接受新任务，并等待队列中的写入完成。
func (w *snapshotWriter[T]) close(ctx context.Context) error {
	w.shutdown()

	select {
	case <-w.stopped:
		return w.lastError()
	case <-ctx.Done():
		return ctx.Err()
	}
}
