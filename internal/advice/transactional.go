// Package advice provides ready-made aspect.Advice implementations.
package advice

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/aspect"
	"github.com/conduit-lang/stereotype/internal/transaction"
)

// Log lines emitted by the transactional advice
const (
	MsgBegin    = "BEGIN TRANSACTION"
	MsgCommit   = "COMMIT"
	MsgRollback = "ROLLBACK"
)

// ErrNoUnitOfWork is returned when the factory produces no unit of work
var ErrNoUnitOfWork = errors.New("transaction factory returned nil")

type unitOfWorkKey struct{}

type transactional struct {
	aspect.Base
	factory transaction.Factory
	logger  *zap.Logger
}

// Transactional runs each invocation in its own unit of work. The unit of
// work is committed when the target returns and rolled back when it fails;
// the target's fault is never swallowed. The target can reach the unit of
// work through transaction.FromContext.
//
// State is kept per invocation, so one advice value may serve concurrent
// calls.
func Transactional(factory transaction.Factory, logger *zap.Logger) aspect.Advice {
	if factory == nil {
		factory = transaction.NewFactory(false)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &transactional{factory: factory, logger: logger}
}

func (t *transactional) Before(ctx context.Context, jp *aspect.JoinPoint) error {
	u := t.factory(ctx)
	if u == nil {
		return ErrNoUnitOfWork
	}
	if err := u.Initialize(ctx); err != nil {
		return err
	}

	jp.Set(unitOfWorkKey{}, u)
	jp.SetContext(transaction.WithContext(ctx, u))
	t.logger.Info(MsgBegin, zap.String("target", jp.Name()))
	return nil
}

func (t *transactional) AfterReturn(ctx context.Context, jp *aspect.JoinPoint) error {
	u := unitOfWork(jp)
	if u == nil {
		return nil
	}
	if err := u.Commit(ctx); err != nil {
		return err
	}
	t.logger.Info(MsgCommit, zap.String("target", jp.Name()))
	return nil
}

func (t *transactional) AfterException(ctx context.Context, jp *aspect.JoinPoint, fault error) error {
	u := unitOfWork(jp)
	if u == nil {
		return nil
	}
	if err := u.Rollback(ctx); err != nil {
		return err
	}
	t.logger.Info(MsgRollback, zap.String("target", jp.Name()), zap.NamedError("fault", fault))
	return nil
}

// After rolls back a unit of work that is still active, which happens when
// a later advice's Before failed and the target never ran, then disposes it.
func (t *transactional) After(ctx context.Context, jp *aspect.JoinPoint) error {
	u := unitOfWork(jp)
	if u == nil {
		return nil
	}

	var rollbackErr error
	if u.State() == transaction.StateActive {
		if rollbackErr = u.Rollback(ctx); rollbackErr == nil {
			t.logger.Info(MsgRollback, zap.String("target", jp.Name()), zap.String("reason", "target did not run"))
		}
	}
	return errors.Join(rollbackErr, u.Dispose(ctx))
}

func unitOfWork(jp *aspect.JoinPoint) *transaction.UnitOfWork {
	u, _ := jp.Value(unitOfWorkKey{}).(*transaction.UnitOfWork)
	return u
}
