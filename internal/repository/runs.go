package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

const (
	runTable    = "billing_run"
	resultTable = "billing_result"
)

var runColumns = []string{
	"id", "source", "status", "file_count", "step_count", "result_count",
	"error_kind", "error_message", "started_at", "finished_at",
}

var resultColumns = []string{
	"run_id", "position", "classification", "invoice_number", "due_date",
	"total_amount", "total_paid", "payment_method", "raw_text_preview", "created_at",
}

type RunRepository interface {
	Start(ctx context.Context, run *entity.Run) error
	FinishSuccess(ctx context.Context, id uuid.UUID, steps int, results []entity.ClassifiedResult) error
	FinishFailure(ctx context.Context, id uuid.UUID, steps int, kind, message string) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Run, error)
	ListRecent(ctx context.Context, limit int) ([]entity.Run, error)
	ListResults(ctx context.Context, from, to time.Time) ([]entity.RunResult, error)
}

type runRepo struct {
	drv     dialect.Driver
	dialect string
	log     *slog.Logger
	now     func() time.Time
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{drv: db.Driver, dialect: db.Dialect, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (r *runRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.dialect)
}

func (r *runRepo) Start(ctx context.Context, run *entity.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now()
	}
	run.Status = constants.RunStatusRunning
	q, args := r.builder().Insert(runTable).
		Columns("id", "source", "status", "file_count", "started_at").
		Values(run.ID.String(), run.Source, string(run.Status), run.FileCount, run.StartedAt.UTC()).
		Query()
	if err := r.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("billing_run start failed", "run_id", run.ID, "err", err)
		return common.NewAppError("DB_ERROR", "start run", errors.Join(common.ErrDatabase, err))
	}
	r.log.Info("billing_run started", "run_id", run.ID, "files", run.FileCount)
	return nil
}

func (r *runRepo) FinishSuccess(ctx context.Context, id uuid.UUID, steps int, results []entity.ClassifiedResult) error {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return err
	}
	now := r.now()

	q, args := r.builder().Update(runTable).
		Set("status", string(constants.RunStatusDone)).
		Set("step_count", steps).
		Set("result_count", len(results)).
		Set("finished_at", now).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		_ = tx.Rollback()
		r.log.Error("billing_run finish(DONE) failed", "run_id", id, "err", err)
		return err
	}

	if len(results) > 0 {
		ins := r.builder().Insert(resultTable).Columns(resultColumns...)
		for i, res := range results {
			row := entity.NewRunResult(id, i, res)
			ins.Values(
				row.RunID.String(), row.Position, string(row.Classification),
				nullString(row.InvoiceNumber), nullString(row.DueDate), nullString(row.TotalAmount),
				nullString(row.TotalPaid), nullString(row.PaymentMethod), nullString(row.RawTextPreview),
				now,
			)
		}
		q, args = ins.Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			_ = tx.Rollback()
			r.log.Error("billing_result insert failed", "run_id", id, "err", err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.log.Info("billing_run finished (DONE)", "run_id", id, "steps", steps, "results", len(results))
	return nil
}

func (r *runRepo) FinishFailure(ctx context.Context, id uuid.UUID, steps int, kind, message string) error {
	q, args := r.builder().Update(runTable).
		Set("status", string(constants.RunStatusFailed)).
		Set("step_count", steps).
		Set("error_kind", kind).
		Set("error_message", message).
		Set("finished_at", r.now()).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := r.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("billing_run finish(FAILED) failed", "run_id", id, "err", err)
		return err
	}
	r.log.Warn("billing_run finished (FAILED)", "run_id", id, "kind", kind, "error", message)
	return nil
}

func (r *runRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Run, error) {
	b := r.builder()
	q, args := b.Select(runColumns...).
		From(b.Table(runTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	runs, err := r.queryRuns(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	return &runs[0], nil
}

func (r *runRepo) ListRecent(ctx context.Context, limit int) ([]entity.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	b := r.builder()
	q, args := b.Select(runColumns...).
		From(b.Table(runTable)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit).
		Query()
	return r.queryRuns(ctx, q, args)
}

// ListResults returns results created in [from, to), ordered by run and position.
// Zero bounds are open.
func (r *runRepo) ListResults(ctx context.Context, from, to time.Time) ([]entity.RunResult, error) {
	b := r.builder()
	sel := b.Select(resultColumns...).From(b.Table(resultTable))
	var preds []*entsql.Predicate
	if !from.IsZero() {
		preds = append(preds, entsql.GTE("created_at", from.UTC()))
	}
	if !to.IsZero() {
		preds = append(preds, entsql.LT("created_at", to.UTC()))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy("created_at", "run_id", "position").Query()

	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.RunResult
	for rows.Next() {
		var (
			row                                     entity.RunResult
			runID, class                            string
			inv, due, amount, paid, method, preview sql.NullString
		)
		if err := rows.Scan(&runID, &row.Position, &class, &inv, &due, &amount, &paid, &method, &preview, &row.CreatedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(runID)
		if err != nil {
			return nil, err
		}
		row.RunID = id
		row.Classification = constants.Classification(class)
		row.InvoiceNumber = stringPtr(inv)
		row.DueDate = stringPtr(due)
		row.TotalAmount = stringPtr(amount)
		row.TotalPaid = stringPtr(paid)
		row.PaymentMethod = stringPtr(method)
		row.RawTextPreview = stringPtr(preview)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *runRepo) queryRuns(ctx context.Context, q string, args []any) ([]entity.Run, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Run
	for rows.Next() {
		var (
			run        entity.Run
			id, status string
			kind, msg  sql.NullString
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&id, &run.Source, &status, &run.FileCount, &run.StepCount, &run.ResultCount,
			&kind, &msg, &run.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		run.ID = parsed
		run.Status = constants.RunStatus(status)
		run.ErrorKind = stringPtr(kind)
		run.ErrorMessage = stringPtr(msg)
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
