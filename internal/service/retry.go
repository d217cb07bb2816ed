package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
)

// retrier runs an operation once more after a backoff when it fails with an
// internal error. Every other error class is returned as is.
type retrier struct {
	backoff time.Duration
	log     *slog.Logger
}

func (r retrier) do(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || apperr.CodeOf(err) != apperr.CodeInternal {
		return err
	}

	r.log.Warn("store operation failed, retrying", "op", op, "err", err)
	timer := time.NewTimer(r.backoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		return err
	case <-timer.C:
	}

	if err = fn(); err != nil && apperr.CodeOf(err) == apperr.CodeInternal {
		r.log.Error("store operation failed after retry", "op", op, "err", err)
	}
	return err
}
