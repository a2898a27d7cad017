package datapush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"

	"RosterDashboard/src/storage"
)

// Runner 定时执行的发布任务，Publisher 实现了它
type Runner interface {
	Run(ctx context.Context) (*Result, error)
}

// Job 一个定时任务
type Job func(ctx context.Context) error

// Scheduler 按 cron 表达式定时执行任务
// 表达式带秒字段，例如 "0 0 7 * * *"，也支持 "@every 1h" 这样的描述符
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *storage.Logger
}

func NewScheduler(timeout time.Duration, logger *storage.Logger) *Scheduler {
	if logger == nil {
		logger = storage.Discard()
	}
	return &Scheduler{
		cron:    cron.New(),
		timeout: timeout,
		logger:  logger,
	}
}

// Add 注册一个任务，表达式非法时返回错误
// 同一个任务上一次还没结束时跳过本次
func (s *Scheduler) Add(name, spec string, job Job) error {
	if err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

// AddPublish 注册定时发布
func (s *Scheduler) AddPublish(spec string, runner Runner) error {
	return s.Add("publish", spec, PublishJob(runner, s.logger))
}

// PublishJob 把 Runner 包装成任务，并记录发布结果
func PublishJob(runner Runner, logger *storage.Logger) Job {
	return func(ctx context.Context) error {
		res, err := runner.Run(ctx)
		if res != nil {
			logger.Info("publish finished", "run", res.RunID, "dir", res.Dir, "charts", len(res.Charts), "skipped", len(res.Skipped))
		}
		return err
	}
}

func (s *Scheduler) wrap(name string, job Job) func() {
	var running sync.Mutex
	return func() {
		if !running.TryLock() {
			s.logger.Warning("previous run still in progress, skipping", "job", name)
			return
		}
		defer running.Unlock()

		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job done", "job", name, "elapsed", time.Since(start))
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop 停止调度，不等待正在执行的任务
func (s *Scheduler) Stop() { s.cron.Stop() }
