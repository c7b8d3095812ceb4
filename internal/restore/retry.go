package restore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"driverecover/internal/metrics"
	"driverecover/internal/remote"
)

// Outcome classifies a finished restore call.
type Outcome int

const (
	// Restored means the item left the recycle bin.
	Restored Outcome = iota
	// NotDeleted means the service refused the call because the item is
	// not in the recycle bin.
	NotDeleted
	// Failed means the item could not be restored.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Restored:
		return "restored"
	case NotDeleted:
		return "not-deleted"
	}
	return "failed"
}

// Result is the outcome of Policy.Restore. Err holds the last service error
// when Outcome is Failed.
type Result struct {
	Outcome  Outcome
	Attempts int
	Err      *remote.Error
}

// linearBackOff waits base*n before the n-th retry.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// Policy restores single items with bounded retries.
type Policy struct {
	client      remote.Client
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
	log         *zap.Logger

	// Report is called with the failed attempt number, its error and the
	// delay before the next attempt.
	Report func(itemID string, attempt int, err error, delay time.Duration)

	timer backoff.Timer
}

// NewPolicy returns a Policy configured from opts.
func NewPolicy(client remote.Client, opts Options) *Policy {
	opts = DefaultOptions().Merge(opts)
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{
		client:      client,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.RetryDelay,
		timeout:     opts.RequestTimeout,
		log:         log,
	}
}

// Restore restores itemID, retrying transient failures. A not-allowed answer
// is checked against the item's existence. The returned error is non-nil only
// when ctx was cancelled or the client failed in an unexpected way.
func (p *Policy) Restore(ctx context.Context, itemID, targetParentID string) (Result, error) {
	attempts := 0
	op := func() error {
		attempts++
		if attempts > 1 {
			p.log.Warn("retrying restore",
				zap.String("item_id", itemID),
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", p.maxAttempts))
		}

		err := withTimeout(ctx, p.timeout, func(ctx context.Context) error {
			return p.client.RestoreItem(ctx, itemID, targetParentID)
		})
		if err == nil || remote.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	var b backoff.BackOff = &linearBackOff{base: p.baseDelay}
	b = backoff.WithMaxRetries(b, uint64(p.maxAttempts-1))

	notify := func(err error, d time.Duration) {
		metrics.RecordRetry()
		if p.Report != nil {
			p.Report(itemID, attempts, err, d)
		}
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), notify, p.timer)
	if err == nil {
		return Result{Outcome: Restored, Attempts: attempts}, nil
	}

	rerr, ok := remote.AsError(err)
	if !ok {
		return Result{Attempts: attempts}, err
	}

	p.log.Debug("restore failed",
		zap.String("item_id", itemID),
		zap.String("code", rerr.Code),
		zap.Int("attempts", attempts))

	if remote.IsNotAllowed(rerr) {
		exists, xerr := withTimeoutValue(ctx, p.timeout, func(ctx context.Context) (bool, error) {
			return p.client.ItemExists(ctx, itemID)
		})
		if xerr != nil {
			if _, ok := remote.AsError(xerr); !ok {
				return Result{Attempts: attempts}, xerr
			}
		}
		if xerr == nil && exists {
			return Result{Outcome: NotDeleted, Attempts: attempts}, nil
		}
	}

	return Result{Outcome: Failed, Attempts: attempts, Err: rerr}, nil
}

// RestoreOnce issues a single restore call without retries. The error is a
// *remote.Error for service failures, anything else is unexpected.
func (p *Policy) RestoreOnce(ctx context.Context, itemID, targetParentID string, timeout time.Duration) error {
	return withTimeout(ctx, timeout, func(ctx context.Context) error {
		return p.client.RestoreItem(ctx, itemID, targetParentID)
	})
}

// withTimeout runs fn with a per-call deadline. A deadline hit inside the call
// is reported as a timeout error; cancellation of ctx itself is returned as is.
func withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := withTimeoutValue(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func withTimeoutValue[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	v, err := fn(cctx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return v, ctx.Err()
	}
	if _, ok := remote.AsError(err); !ok && cctx.Err() == context.DeadlineExceeded {
		return v, &remote.Error{Code: remote.CodeTimeout, Message: "the request timed out"}
	}
	return v, err
}
