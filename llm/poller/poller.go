// Package poller 以固定间隔驱动异步任务直到终态。
//
// 每次状态查询前等待 Interval；查询函数返回错误立即中止（硬失败）；
// 达到 MaxAttempts 次查询仍未终态返回 ASYNC_TASK_TIMEOUT；ctx 取消立即返回。
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/types"
)

// 默认轮询参数
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 60
)

// Status 异步任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

// Job 一个已提交的异步任务，由单次 Poll 调用独占
type Job struct {
	ID          string
	Provider    types.ProviderFamily
	PollURL     string
	SubmittedAt time.Time
	Status      Status
	Attempts    int
}

// NewJob 创建处于 pending 状态的任务
func NewJob(id string, provider types.ProviderFamily, pollURL string) *Job {
	return &Job{
		ID:          id,
		Provider:    provider,
		PollURL:     pollURL,
		SubmittedAt: time.Now(),
		Status:      StatusPending,
	}
}

// Check 单次状态查询结果
type Check[T any] struct {
	Status  Status
	Result  T
	Message string // 失败时的供应商信息
}

// PollFunc 状态查询函数
type PollFunc[T any] func(ctx context.Context) (Check[T], error)

// Observer 轮询结果观察者
type Observer interface {
	ObservePoll(provider string, status string, attempts int, elapsed time.Duration)
}

// Observers 将轮询终态依次转发给多个 Observer
func Observers(obs ...Observer) Observer { return multiObserver(obs) }

type multiObserver []Observer

func (m multiObserver) ObservePoll(provider string, status string, attempts int, elapsed time.Duration) {
	for _, o := range m {
		o.ObservePoll(provider, status, attempts, elapsed)
	}
}

// Poller 轮询参数
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Observer    Observer
	logger      *zap.Logger
}

// New 创建轮询器，非正参数使用默认值
func New(interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		Interval:    interval,
		MaxAttempts: maxAttempts,
		logger:      logger.With(zap.String("component", "poller")),
	}
}

// Poll 轮询任务直到终态
func Poll[T any](ctx context.Context, p *Poller, job *Job, fn PollFunc[T]) (T, error) {
	var zero T
	logger := p.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(
		zap.String("provider", string(job.Provider)),
		zap.String("task_id", job.ID))

	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	for job.Attempts < p.MaxAttempts {
		select {
		case <-ctx.Done():
			p.finish(job, "cancelled")
			log.Info("轮询已取消", zap.Int("attempts", job.Attempts))
			return zero, types.FromContext(ctx.Err())
		case <-timer.C:
		}

		job.Attempts++
		check, err := fn(ctx)
		if err != nil {
			// 查询失败为硬失败，直接中止
			p.finish(job, "error")
			log.Warn("任务状态查询失败", zap.Int("attempt", job.Attempts), zap.Error(err))
			return zero, err
		}

		switch check.Status {
		case StatusSucceeded:
			job.Status = StatusSucceeded
			p.finish(job, string(StatusSucceeded))
			log.Info("异步任务完成", zap.Int("attempts", job.Attempts),
				zap.Duration("elapsed", time.Since(job.SubmittedAt)))
			return check.Result, nil
		case StatusFailed:
			job.Status = StatusFailed
			p.finish(job, string(StatusFailed))
			log.Warn("异步任务失败", zap.Int("attempts", job.Attempts), zap.String("message", check.Message))
			msg := check.Message
			if msg == "" {
				msg = "provider reported task failure"
			}
			return zero, types.Errorf(types.ErrAsyncTaskFailed, "async task %s failed: %s", job.ID, msg).
				WithProvider(string(job.Provider)).
				WithDetail(msg)
		case StatusRunning:
			job.Status = StatusRunning
		}

		log.Debug("异步任务进行中", zap.Int("attempt", job.Attempts), zap.String("status", string(job.Status)))
		timer.Reset(p.Interval)
	}

	job.Status = StatusTimedOut
	p.finish(job, string(StatusTimedOut))
	log.Warn("异步任务轮询超时", zap.Int("attempts", job.Attempts))
	return zero, types.Errorf(types.ErrAsyncTaskTimeout,
		"async task %s did not finish after %d polls", job.ID, job.Attempts).
		WithProvider(string(job.Provider))
}

func (p *Poller) finish(job *Job, outcome string) {
	if p.Observer != nil {
		p.Observer.ObservePoll(string(job.Provider), outcome, job.Attempts, time.Since(job.SubmittedAt))
	}
}
