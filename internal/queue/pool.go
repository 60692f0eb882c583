package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type PoolConfig struct {
	Name         string
	PollInterval time.Duration
	ClaimIdle    time.Duration
	Sinks        []DeadLetterSink
}

// Pool runs one Worker per queue together with the retry manager and the
// scheduler.
type Pool struct {
	q       *RedisQueue
	workers []*Worker
	cfg     PoolConfig
	logger  *slog.Logger
}

func NewPool(q *RedisQueue, reg *Registry, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	p := &Pool{q: q, cfg: cfg, logger: logger}
	for _, kind := range Kinds() {
		h, _ := reg.Handler(kind)
		w := NewWorker(q, kind, h, cfg.Name, cfg.Sinks, logger)
		w.claimIdle = cfg.ClaimIdle
		p.workers = append(p.workers, w)
	}
	return p, nil
}

func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Run blocks until ctx is cancelled and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.q.EnsureGroups(ctx); err != nil {
		return fmt.Errorf("ensure groups: %w", err)
	}

	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.q.RunRetryManager(ctx, p.cfg.PollInterval)
	}()
	go func() {
		defer wg.Done()
		p.q.RunScheduler(ctx, p.cfg.PollInterval)
	}()

	wg.Wait()
	return nil
}
