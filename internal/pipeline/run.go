package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/pkg/logger"
	"github.com/okian/autotrain/pkg/metrics"
)

// ReasonCancelled is the failure reason of a cancelled run.
const ReasonCancelled = "cancelled"

// run is the mutable state of one execution. It is owned by a single
// goroutine; observers receive clones.
type run struct {
	p   *Pipeline
	rec model.RunRecord
	err error
	log logger.Logger
}

func (p *Pipeline) start(ctx context.Context, req model.RunRequest) *run {
	trigger := req.Trigger
	if trigger == "" {
		trigger = "manual"
	}
	r := &run{
		p: p,
		rec: model.RunRecord{
			ID:        req.ID,
			Trigger:   trigger,
			State:     model.StatePending,
			StartedAt: p.now().UTC(),
		},
		log: p.log.With(logger.String("run_id", req.ID)),
	}
	metrics.RunStarted()
	r.log.Info(ctx, "run started", logger.String("trigger", trigger))
	r.notify(ctx)
	return r
}

func (r *run) moveTo(ctx context.Context, to model.RunState) {
	now := r.p.now().UTC()
	r.rec.Transitions = append(r.rec.Transitions, model.Transition{From: r.rec.State, To: to, At: now})
	r.rec.State = to
	if to.Terminal() {
		r.rec.FinishedAt = now
	}
	r.notify(ctx)
}

func (r *run) notify(ctx context.Context) {
	for _, fn := range r.p.observers {
		fn(ctx, r.rec.Clone())
	}
}

func (r *run) fail(ctx context.Context, stage model.Stage, err error) {
	var se *failure.StageError
	if !errors.As(err, &se) {
		se = failure.New(string(stage), kindOf(err), err)
	}
	r.err = se
	r.rec.FailedStage = stage
	r.rec.Reason = reason(err)
	r.moveTo(ctx, model.StateFailed)

	metrics.RecordStageFailure(string(stage), label(err))
	r.log.Error(ctx, "run failed",
		logger.String("stage", string(stage)),
		logger.String("kind", label(err)),
		logger.Error(err),
	)
}

func (r *run) succeed(ctx context.Context) {
	r.moveTo(ctx, model.StateSucceeded)
	r.log.Info(ctx, "run succeeded",
		logger.Bool("promoted", r.rec.Promoted),
		logger.String("version", r.rec.Version),
	)
}

func (r *run) finish(context.Context) {
	metrics.RunFinished()
	metrics.RecordRun(string(r.rec.State))
}

func (r *run) result() Result {
	rec := r.rec.Clone()
	return Result{
		RunID:       rec.ID,
		Status:      rec.State,
		FailedStage: rec.FailedStage,
		Reason:      rec.Reason,
		Promoted:    rec.Promoted,
		Version:     rec.Version,
		Verdict:     rec.Verdict,
		Reports:     rec.Reports,
		Err:         r.err,
	}
}

func reason(err error) string {
	if isCancel(err) {
		return ReasonCancelled
	}
	var se *failure.StageError
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	return err.Error()
}

// kindOf classifies err. Errors outside the known kinds are their own kind.
func kindOf(err error) error {
	if k := failure.Kind(err); k != nil {
		return k
	}
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	case errors.Is(err, ErrArtifact):
		return ErrArtifact
	default:
		return err
	}
}

func label(err error) string {
	switch {
	case failure.Kind(err) != nil:
		return failure.Label(err)
	case isCancel(err):
		return ReasonCancelled
	case errors.Is(err, ErrArtifact):
		return "artifact"
	default:
		return "unknown"
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// stage moves r into the working state of s, runs fn and records the
// outcome. A context cancelled before the stage starts fails the run at s.
func stage[T any](ctx context.Context, r *run, s model.Stage, fn func(context.Context) (T, error)) (T, bool) {
	var zero T
	r.moveTo(ctx, model.StateFor(s))
	if err := ctx.Err(); err != nil {
		r.fail(ctx, s, err)
		return zero, false
	}

	start := time.Now()
	out, err := fn(ctx)
	took := time.Since(start)
	if err != nil {
		metrics.RecordStageDuration(string(s), "error", took)
		r.fail(ctx, s, err)
		return zero, false
	}
	metrics.RecordStageDuration(string(s), "ok", took)
	r.log.Debug(ctx, "stage done", logger.String("stage", string(s)), logger.Duration("took", took))
	return out, true
}
