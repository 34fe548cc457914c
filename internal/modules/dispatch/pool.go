// README: Worker pool consuming the dispatch queue, with exponential retry backoff.
package dispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fitdash/internal/config"
	"fitdash/internal/metrics"
	"fitdash/internal/types"
)

type Assigner interface {
	Assign(ctx context.Context, orderID types.ID) (Result, error)
}

type Pool struct {
	queue    Queue
	assigner Assigner
	cfg      config.DispatchConfig
	now      func() time.Time
}

func NewPool(queue Queue, assigner Assigner, cfg config.DispatchConfig) *Pool {
	return &Pool{queue: queue, assigner: assigner, cfg: cfg, now: time.Now}
}

// Run starts cfg.Workers consumers plus the retry promoter and blocks until
// ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			p.consume(ctx, worker)
			return nil
		})
	}
	g.Go(func() error {
		p.runPromoter(ctx)
		return nil
	})
	return g.Wait()
}

func (p *Pool) consume(ctx context.Context, worker int) {
	for ctx.Err() == nil {
		id, ok, err := p.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", worker).Msg("dispatch queue pop failed")
			sleep(ctx, popTimeout)
			continue
		}
		if !ok {
			continue
		}
		p.handle(ctx, id)
	}
}

// handle runs one attempt and decides whether the order needs another.
func (p *Pool) handle(ctx context.Context, id types.ID) {
	result, err := p.assigner.Assign(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("order_id", string(id)).Msg("dispatch attempt failed")
	}

	switch result {
	case ResultAssigned, ResultSkipped:
		if err := p.queue.Forget(ctx, id); err != nil {
			log.Warn().Err(err).Str("order_id", string(id)).Msg("clear dispatch attempts failed")
		}
	default:
		p.retry(ctx, id)
	}
}

func (p *Pool) retry(ctx context.Context, id types.ID) {
	attempt, err := p.queue.IncrAttempts(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("order_id", string(id)).Msg("count dispatch attempt failed")
		return
	}
	if attempt >= p.cfg.MaxAttempts {
		log.Warn().Str("order_id", string(id)).Int("attempts", attempt).Msg("dispatch attempts exhausted")
		if err := p.queue.Forget(ctx, id); err != nil {
			log.Warn().Err(err).Str("order_id", string(id)).Msg("clear dispatch attempts failed")
		}
		return
	}
	at := p.now().Add(Backoff(attempt, p.cfg.Backoff, p.cfg.BackoffMax))
	if err := p.queue.Schedule(ctx, id, at); err != nil {
		log.Error().Err(err).Str("order_id", string(id)).Msg("schedule dispatch retry failed")
	}
}

func (p *Pool) runPromoter(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(p.cfg.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.promote(ctx)
		}
	}
}

func (p *Pool) promote(ctx context.Context) {
	if _, err := p.queue.PromoteDue(ctx, p.now()); err != nil {
		log.Error().Err(err).Msg("promote dispatch retries failed")
		return
	}
	if n, err := p.queue.RetryLen(ctx); err == nil {
		metrics.DispatchQueueDepth.Set(float64(n))
	}
}

// Backoff is base·2^(attempt-1), capped at ceiling, without jitter.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval: base,
		Multiplier:      2,
		MaxInterval:     ceiling,
	}
	d := b.NextBackOff()
	for i := 1; i < attempt && d < ceiling; i++ {
		d = b.NextBackOff()
	}
	return min(d, ceiling)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
