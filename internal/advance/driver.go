// Package advance drives a card from loading to loaded, retrying failed fetches
// and recording every step as arena actions.
package advance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/arena"
	"github.com/DoyleJ11/meme-arena/internal/situation"
)

var (
	ErrRetriesExhausted = errors.New("card retries exhausted")
	ErrRejected         = errors.New("situation rejected by quality check")
)

type Fetcher interface {
	FetchOne(ctx context.Context) (string, error)
}

// DispatchFunc records an action against the viewer's arena state.
type DispatchFunc func(arena.Action)

// Policy is the retry ceiling and backoff curve. MaxRetries of zero disables retries.
type Policy struct {
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.RandomizationFactor
	b.Reset()
	return b
}

type Driver struct {
	fetcher  Fetcher
	policy   Policy
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	validate func(string) bool
}

func NewDriver(f Fetcher, p Policy, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		fetcher:  f,
		policy:   p,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		validate: situation.Validate,
	}
}

// Advance loads the next card. It returns nil once a card is loaded, ctx.Err()
// when cancelled, and ErrRetriesExhausted when the ceiling is reached.
func (d *Driver) Advance(ctx context.Context, dispatch DispatchFunc) error {
	dispatch(arena.UpdateCardLoadingState{
		Patch: arena.PatchStatus(arena.StatusLoading).WithRetryCount(0).WithoutLastRetryTime(),
	})

	text, err := d.fetch(ctx)
	if err == nil {
		d.loaded(dispatch, text)
		return nil
	}
	if cancelled(ctx, err) {
		return cancelErr(ctx, err)
	}
	d.failed(dispatch, 0, err)

	bo := d.policy.backOff()
	for attempt := 1; attempt <= d.policy.MaxRetries; attempt++ {
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}

		stamp := d.now()
		dispatch(arena.UpdateCardLoadingState{
			Patch: arena.PatchStatus(arena.StatusRetrying).WithRetryCount(attempt).WithLastRetryTime(stamp),
		})

		// The wait is measured from the stamped retry time.
		if err := d.sleep(ctx, stamp.Add(delay).Sub(d.now())); err != nil {
			return ctx.Err()
		}

		text, err = d.fetch(ctx)
		if err == nil {
			d.loaded(dispatch, text)
			return nil
		}
		if cancelled(ctx, err) {
			return cancelErr(ctx, err)
		}
		d.failed(dispatch, attempt, err)
	}

	return fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, d.policy.MaxRetries, err)
}

func (d *Driver) fetch(ctx context.Context) (string, error) {
	text, err := d.fetcher.FetchOne(ctx)
	if err != nil {
		return "", err
	}
	if !d.validate(text) {
		return "", fmt.Errorf("%w: %q", ErrRejected, text)
	}
	return text, nil
}

func (d *Driver) loaded(dispatch DispatchFunc, text string) {
	dispatch(arena.SetCard{Text: text})
	dispatch(arena.UpdateCardLoadingState{Patch: arena.PatchStatus(arena.StatusLoaded)})
}

func (d *Driver) failed(dispatch DispatchFunc, attempt int, err error) {
	d.logger.Warn("card fetch failed", zap.Int("attempt", attempt), zap.Error(err))
	dispatch(arena.UpdateCardLoadingState{Patch: arena.PatchStatus(arena.StatusError)})
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, situation.ErrCancelled)
}

func cancelErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
