package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"attendance/internal/apperr"
	"attendance/internal/enrich"
	"attendance/internal/storage"
)

// Processor records each check-in and then commits its offset. Messages that
// failed for a transient reason are left uncommitted so a restarted consumer
// sees them again.
type Processor struct {
	source   MessageIterator
	recorder Recorder
	logger   *slog.Logger
	pipeline *enrich.Pipeline[Checkin]
}

func NewProcessor(source MessageIterator, recorder Recorder, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Processor{source: source, recorder: recorder, logger: logger}
	p.pipeline = enrich.NewPipeline(logger,
		enrich.NewStage("record", p.record),
		enrich.NewStage("commit", p.commit),
	)
	return p
}

// Run processes messages until the source closes or ctx is canceled.
func (p *Processor) Run(ctx context.Context) {
	p.pipeline.Process(ctx, NewIterator(p.source, p.logger).Checkins(ctx))
}

func (p *Processor) record(ctx context.Context, c *Checkin) error {
	if c.DecodeErr != nil {
		c.Commit = true
		return nil
	}
	rec, err := p.recorder.RecordAttendance(ctx, c.Request)
	switch {
	case err == nil:
		c.Record = &rec
		c.Commit = true
		return nil
	case transient(err):
		return err
	default:
		p.logger.Warn("checkin rejected",
			"employee_id", c.Request.EmployeeID,
			"kind", apperr.KindOf(err).String(),
			"offset", c.Message.Offset,
			"error", err)
		c.Commit = true
		return nil
	}
}

func (p *Processor) commit(ctx context.Context, c *Checkin) error {
	if !c.Commit {
		return nil
	}
	if err := p.source.CommitOffset(ctx, c.Message); err != nil {
		return err
	}
	c.Committed = true
	return nil
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return apperr.Retryable(err) || errors.Is(err, storage.ErrConcurrentWrite)
}
