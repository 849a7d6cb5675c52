// Package services holds the business rules of the order backend. Services
// return *apperr.Error values for every outcome a client can act on; the
// controllers only translate them.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
	"github.com/shashiranjanraj/vidorder/pkg/queue"
)

// Dispatcher queues background jobs.
type Dispatcher interface {
	Dispatch(ctx context.Context, job queue.Job) error
}

// dispatch queues job and only logs a failure; mail is never allowed to
// fail the request that triggered it.
func dispatch(ctx context.Context, d Dispatcher, job queue.Job) {
	if d == nil {
		return
	}
	if err := d.Dispatch(ctx, job); err != nil {
		logger.WithCtx(ctx).Error("services: dispatch job", "error", err)
	}
}

// storeError maps a repository failure; ErrNotFound becomes notFound.
func storeError(err error, notFound string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Internal("store failure", err)
}

func utcNow() time.Time { return time.Now().UTC() }
