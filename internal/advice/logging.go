package advice

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/aspect"
)

type logging struct {
	aspect.Base
	logger *zap.Logger
}

// Logging logs every invocation's entry at Debug, its return at Debug and
// its failure at Warn
func Logging(logger *zap.Logger) aspect.Advice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logging{logger: logger}
}

func (l *logging) Before(ctx context.Context, jp *aspect.JoinPoint) error {
	l.logger.Debug("invoking", zap.String("target", jp.Name()), zap.Int("args", len(jp.Args())))
	return nil
}

func (l *logging) AfterReturn(ctx context.Context, jp *aspect.JoinPoint) error {
	l.logger.Debug("returned", zap.String("target", jp.Name()), zap.Any("result", jp.Result()))
	return nil
}

func (l *logging) AfterException(ctx context.Context, jp *aspect.JoinPoint, fault error) error {
	l.logger.Warn("failed", zap.String("target", jp.Name()), zap.Error(fault))
	return nil
}

type startedKey struct{}

type timing struct {
	aspect.Base
	logger *zap.Logger
	now    func() time.Time
}

// Timing logs how long each invocation took, enter to exit
func Timing(logger *zap.Logger) aspect.Advice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &timing{logger: logger, now: time.Now}
}

func (t *timing) Around(ctx context.Context, jp *aspect.JoinPoint, phase aspect.Phase) error {
	if phase == aspect.PhaseEnter {
		jp.Set(startedKey{}, t.now())
		return nil
	}

	started, ok := jp.Value(startedKey{}).(time.Time)
	if !ok {
		return nil
	}
	t.logger.Info("invocation finished",
		zap.String("target", jp.Name()),
		zap.Duration("duration", t.now().Sub(started)),
		zap.Bool("failed", jp.Fault() != nil),
	)
	return nil
}
