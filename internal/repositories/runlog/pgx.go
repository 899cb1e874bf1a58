package runlog

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/repositories"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
)

type Pgx struct {
	pg     *pgxpool.Pool
	logger logger.Logger
}

func NewPgx(pg *pgxpool.Pool, logger logger.Logger) *Pgx {
	return &Pgx{
		pg:     pg,
		logger: logger.WithComponent("RunLogRepo"),
	}
}

var _ Repository = (*Pgx)(nil)

func (p *Pgx) Create(ctx context.Context, run domain.SyncRun) error {
	query, args, err := repositories.SqBuilder.
		Insert("sync_runs").
		Columns("id", "username", "kind", "status", "started_at").
		Values(run.ID, run.Username, string(run.Kind), string(run.Status), run.StartedAt).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	return err
}

func (p *Pgx) Finish(ctx context.Context, id string, status domain.RunStatus, processed, skipped int, errMsg string) error {
	query, args, err := repositories.SqBuilder.
		Update("sync_runs").
		Set("status", string(status)).
		Set("processed", processed).
		Set("skipped", skipped).
		Set("error", errMsg).
		Set("finished_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Pgx) GetLatestByUsername(ctx context.Context, username string, count int) ([]*domain.SyncRun, error) {
	query, args, err := repositories.SqBuilder.
		Select("id", "username", "kind", "status", "processed", "skipped", "error", "started_at", "finished_at").
		From("sync_runs").
		Where(sq.Eq{"username": username}).
		OrderBy("started_at DESC").
		Limit(uint64(count)).
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.SyncRun
	for rows.Next() {
		var (
			run      domain.SyncRun
			kind     string
			status   string
			finished *time.Time
		)
		if err := rows.Scan(&run.ID, &run.Username, &kind, &status,
			&run.Processed, &run.Skipped, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		run.Kind = domain.RunKind(kind)
		run.Status = domain.RunStatus(status)
		run.FinishedAt = finished
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (p *Pgx) CleanupOldRecords(ctx context.Context, olderThan string) (int64, error) {
	cutoff := time.Now().Add(-parseDuration(olderThan))

	query, args, err := repositories.SqBuilder.
		Delete("sync_runs").
		Where(sq.Lt{"started_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, repositories.ErrBadQuery
	}

	result, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// GetByID returns a single run.
func (p *Pgx) GetByID(ctx context.Context, id string) (*domain.SyncRun, error) {
	runs, err := p.getWhere(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

func (p *Pgx) getWhere(ctx context.Context, cond sq.Eq) ([]*domain.SyncRun, error) {
	query, args, err := repositories.SqBuilder.
		Select("id", "username", "kind", "status", "processed", "skipped", "error", "started_at", "finished_at").
		From("sync_runs").
		Where(cond).
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.SyncRun
	for rows.Next() {
		var (
			run      domain.SyncRun
			kind     string
			status   string
			finished *time.Time
		)
		if err := rows.Scan(&run.ID, &run.Username, &kind, &status,
			&run.Processed, &run.Skipped, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		run.Kind = domain.RunKind(kind)
		run.Status = domain.RunStatus(status)
		run.FinishedAt = finished
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func parseDuration(duration string) time.Duration {
	d, err := time.ParseDuration(duration)
	if err != nil {
		// Default to 30 days if parsing fails.
		return 30 * 24 * time.Hour
	}
	return d
}
