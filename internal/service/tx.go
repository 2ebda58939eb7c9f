package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// txRunner wraps a unit of work in one transaction at the configured isolation level.
type txRunner struct {
	provider  txProvider
	isolation sql.IsolationLevel
}

func (r txRunner) run(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if r.provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
	}
	tx, err := r.provider.BeginTxx(ctx, &sql.TxOptions{Isolation: r.isolation})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// WorkflowConfig governs transactional registration and billing services.
type WorkflowConfig struct {
	Isolation sql.IsolationLevel
	Clock     func() time.Time
}

func (c WorkflowConfig) clock() func() time.Time {
	if c.Clock != nil {
		return c.Clock
	}
	return func() time.Time { return time.Now().UTC() }
}
