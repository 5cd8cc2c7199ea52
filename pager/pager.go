// Package pager implements rate-limited pagination over remote collection
// endpoints. Both upstream platforms hand back their rate budget in response
// metadata; the pager self-throttles against that budget, retries the same
// page after an explicit 429, and reports truncation when a page fetch fails
// outright so callers can tell a short result from an exhausted one.
package pager

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Budget assumed when a response carries no rate metadata.
	DefaultRemaining   = 150
	DefaultResetWindow = 60 * time.Second

	// Fixed cooldown after an explicit rate-limit-exceeded response.
	RateLimitCooldown = 60 * time.Second
)

// ErrRateLimited marks an explicit rate-limit-exceeded response (HTTP 429).
// Fetch functions must wrap or return it so the pager can retry the same
// page instead of giving up.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateState is the budget reported by a response: how many requests remain
// and when the window resets.
type RateState struct {
	Remaining int
	ResetAt   time.Time
}

// Page is one fetched page. Next is an opaque cursor for the following page;
// empty means the collection is exhausted. Rate may be nil when the response
// carried no rate metadata.
type Page[T any] struct {
	Items []T
	Next  string
	Rate  *RateState
}

// FetchFunc fetches the page identified by cursor. The empty cursor means
// the first page.
type FetchFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Result is the outcome of a full pagination pass. Truncated reports that
// pagination stopped early on a fetch failure: Items is then a partial
// prefix, not the full collection, and correctness-critical consumers must
// not treat it as exhaustive.
type Result[T any] struct {
	Items     []T
	Truncated bool
}

type attemptOutcome int

const (
	attemptOK attemptOutcome = iota
	attemptRateLimited
	attemptFailed
)

// Pager walks a paginated endpoint while respecting the remote rate budget.
// The budget fields are scoped to one Pager value; a Pager must not be
// shared across concurrent flows.
type Pager[T any] struct {
	remaining int
	resetAt   time.Time
	cooldown  time.Duration
	log       *logrus.Logger
}

func New[T any](log *logrus.Logger) *Pager[T] {
	return &Pager[T]{
		remaining: DefaultRemaining,
		resetAt:   time.Now().Add(DefaultResetWindow),
		cooldown:  RateLimitCooldown,
		log:       log,
	}
}

// All fetches every page. It never returns an error: a mid-pagination
// failure yields the items accumulated so far with Truncated set.
func (p *Pager[T]) All(ctx context.Context, fetch FetchFunc[T]) Result[T] {
	var items []T
	cursor := ""

	for {
		if err := p.waitForBudget(ctx); err != nil {
			return Result[T]{Items: items, Truncated: true}
		}

		page, err := fetch(ctx, cursor)
		switch classify(err) {
		case attemptRateLimited:
			p.log.WithFields(logrus.Fields{
				"module":   "pager",
				"cooldown": p.cooldown.String(),
			}).Error("rate limit exceeded; waiting before retrying the same page")
			if serr := sleepCtx(ctx, p.cooldown); serr != nil {
				return Result[T]{Items: items, Truncated: true}
			}
			// Retry the same cursor; unbounded, bounded only by upstream
			// eventually succeeding.
			continue
		case attemptFailed:
			p.log.WithFields(logrus.Fields{
				"module": "pager",
				"cursor": cursor,
			}).Error("page fetch failed; returning partial result: " + err.Error())
			return Result[T]{Items: items, Truncated: true}
		}

		p.observe(page.Rate)
		items = append(items, page.Items...)

		if page.Next == "" {
			return Result[T]{Items: items}
		}
		cursor = page.Next
	}
}

// waitForBudget blocks until the rate window resets when the tracked budget
// is spent. Cancellable via ctx.
func (p *Pager[T]) waitForBudget(ctx context.Context) error {
	now := time.Now()
	if p.remaining > 1 || !now.Before(p.resetAt) {
		return nil
	}
	wait := p.resetAt.Sub(now)
	p.log.WithFields(logrus.Fields{
		"module": "pager",
		"wait":   wait.String(),
	}).Info("rate budget spent; waiting for reset")
	return sleepCtx(ctx, wait)
}

func (p *Pager[T]) observe(rate *RateState) {
	if rate == nil {
		p.remaining = DefaultRemaining
		p.resetAt = time.Now().Add(DefaultResetWindow)
		return
	}
	p.remaining = rate.Remaining
	p.resetAt = rate.ResetAt
}

func classify(err error) attemptOutcome {
	if err == nil {
		return attemptOK
	}
	if errors.Is(err, ErrRateLimited) {
		return attemptRateLimited
	}
	return attemptFailed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
