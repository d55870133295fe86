package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// Job 提交到池中的工作单元
type Job func(ctx context.Context) error

// Config 工作池配置
type Config struct {
	MaxWorkers  int           `json:"max_workers" yaml:"max_workers"`
	QueueSize   int           `json:"queue_size" yaml:"queue_size"`
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  100,
		QueueSize:   100,
		IdleTimeout: 60 * time.Second,
	}
}

type submission struct {
	job  Job
	ctx  context.Context
	done chan error
}

// Workers 按需扩容的 goroutine 工作池。
// worker 数量不超过 MaxWorkers，空闲超过 IdleTimeout 的多余 worker 退出。
type Workers struct {
	config  Config
	jobs    chan submission
	workers atomic.Int32
	active  atomic.Int32
	closed  atomic.Bool
	closeMu sync.RWMutex
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64

	logger *zap.Logger
}

// New 创建工作池
func New(config Config, logger *zap.Logger) *Workers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	return &Workers{
		config: config,
		jobs:   make(chan submission, config.QueueSize),
		logger: logger.With(zap.String("component", "worker_pool")),
	}
}

// Submit 非阻塞提交。返回的通道在 job 结束后收到其错误（含 panic 转换的错误）。
// 队列已满且 worker 已达上限时返回 ErrPoolFull。
func (w *Workers) Submit(ctx context.Context, job Job) (<-chan error, error) {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed.Load() {
		return nil, ErrPoolClosed
	}

	s := submission{job: job, ctx: ctx, done: make(chan error, 1)}
	w.submitted.Add(1)

	// 先保证有 worker 可以接手，再入队
	w.spawn()
	select {
	case w.jobs <- s:
		return s.done, nil
	default:
	}
	if w.spawn() {
		select {
		case w.jobs <- s:
			return s.done, nil
		default:
		}
	}
	w.rejected.Add(1)
	return nil, ErrPoolFull
}

// spawn 在未达上限时启动一个 worker
func (w *Workers) spawn() bool {
	for {
		n := w.workers.Load()
		if n >= int32(w.config.MaxWorkers) {
			return false
		}
		if n > 0 && int(w.active.Load()) < int(n) && len(w.jobs) == 0 {
			// 仍有空闲 worker
			return false
		}
		if w.workers.CompareAndSwap(n, n+1) {
			w.wg.Add(1)
			go w.loop()
			return true
		}
	}
}

func (w *Workers) loop() {
	defer w.wg.Done()

	idle := time.NewTimer(w.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case s, ok := <-w.jobs:
			if !ok {
				w.workers.Add(-1)
				return
			}
			w.active.Add(1)
			err := w.run(s)
			w.active.Add(-1)

			s.done <- err
			close(s.done)
			if err != nil {
				w.failed.Add(1)
			} else {
				w.completed.Add(1)
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(w.config.IdleTimeout)

		case <-idle.C:
			if n := w.workers.Load(); n > 1 && w.workers.CompareAndSwap(n, n-1) {
				return
			}
			idle.Reset(w.config.IdleTimeout)
		}
	}
}

func (w *Workers) run(s submission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.panicked.Add(1)
			w.logger.Error("job panicked", zap.Any("panic", r))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.job(s.ctx)
}

// Close 停止接收新 job，等待已提交的 job 执行完毕
func (w *Workers) Close() {
	w.closeMu.Lock()
	if w.closed.Swap(true) {
		w.closeMu.Unlock()
		return
	}
	close(w.jobs)
	w.closeMu.Unlock()
	w.wg.Wait()
}

// Stats 工作池统计
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
	Rejected  int64 `json:"rejected"`
}

// Stats 返回统计快照
func (w *Workers) Stats() Stats {
	return Stats{
		Workers:   int(w.workers.Load()),
		Active:    int(w.active.Load()),
		Queued:    len(w.jobs),
		Submitted: w.submitted.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
		Panicked:  w.panicked.Load(),
		Rejected:  w.rejected.Load(),
	}
}
