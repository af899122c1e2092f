package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

const scansTable = "scans"

// ErrNotFound is returned by Get when no scan has the requested id.
var ErrNotFound = errors.New("scan not found")

// PostgresRepository reads and writes scan status in Postgres.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	psql   sq.StatementBuilderType
}

var _ ports.ScanRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wraps an existing pool. Run Migrate before using it.
func NewPostgresRepository(pool *pgxpool.Pool, tracer trace.Tracer) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		tracer: tracer,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// ListPending returns pending scans, oldest first.
func (r *PostgresRepository) ListPending(ctx context.Context) ([]domain.PendingScan, error) {
	query, args, err := r.psql.
		Select("scan_id", "file_path").
		From(scansTable).
		Where(sq.Eq{"diagnosis_status": string(domain.StatusPending)}).
		OrderBy("created_at", "scan_id").
		ToSql()
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "list pending", fmt.Errorf("build query: %w", err))
	}

	var scans []domain.PendingScan
	err = executeAndTrace(ctx, r.tracer, "postgres.list_pending", nil, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query pending scans: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var scan domain.PendingScan
			if err := rows.Scan(&scan.ScanID, &scan.FilePath); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			scans = append(scans, scan)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows iteration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "list pending", err)
	}

	return scans, nil
}

// Update writes the outcome's fields, and only those, on a scan that is still
// pending. A scan that is missing or already terminal is left untouched and
// reported as ErrScanNotPending.
func (r *PostgresRepository) Update(ctx context.Context, scanID string, outcome domain.Outcome) error {
	if !outcome.Valid() {
		return domain.NewError(domain.KindPersistence, "update scan",
			fmt.Errorf("invalid outcome status %q", outcome.Status()))
	}

	set := map[string]any{"diagnosis_status": string(outcome.Status())}
	if d, ok := outcome.Diagnosis(); ok {
		set["diagnosis_type"] = d.Label
		set["confidence_score"] = d.Confidence
	}

	query, args, err := r.psql.
		Update(scansTable).
		SetMap(set).
		Where(sq.Eq{"scan_id": scanID, "diagnosis_status": string(domain.StatusPending)}).
		ToSql()
	if err != nil {
		return domain.NewError(domain.KindPersistence, "update scan", fmt.Errorf("build query: %w", err))
	}

	attrs := []attribute.KeyValue{
		attribute.String("scan_id", scanID),
		attribute.String("diagnosis_status", string(outcome.Status())),
	}
	err = executeAndTrace(ctx, r.tracer, "postgres.update_scan", attrs, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update scan: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("scan %s: %w", scanID, domain.ErrScanNotPending)
		}
		return nil
	})
	if err != nil {
		return domain.NewError(domain.KindPersistence, "update scan", err)
	}

	return nil
}

// Create inserts a new pending scan.
func (r *PostgresRepository) Create(ctx context.Context, scan domain.PendingScan) error {
	query, args, err := r.psql.
		Insert(scansTable).
		Columns("scan_id", "file_path", "diagnosis_status").
		Values(scan.ScanID, scan.FilePath, string(domain.StatusPending)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	attrs := []attribute.KeyValue{attribute.String("scan_id", scan.ScanID)}
	return executeAndTrace(ctx, r.tracer, "postgres.create_scan", attrs, func(ctx context.Context) error {
		if _, err := r.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		return nil
	})
}

// Get loads a full scan record.
func (r *PostgresRepository) Get(ctx context.Context, scanID string) (domain.ScanRecord, error) {
	query, args, err := r.psql.
		Select("scan_id", "file_path", "diagnosis_status", "diagnosis_type", "confidence_score", "created_at").
		From(scansTable).
		Where(sq.Eq{"scan_id": scanID}).
		ToSql()
	if err != nil {
		return domain.ScanRecord{}, fmt.Errorf("build query: %w", err)
	}

	var rec domain.ScanRecord
	attrs := []attribute.KeyValue{attribute.String("scan_id", scanID)}
	err = executeAndTrace(ctx, r.tracer, "postgres.get_scan", attrs, func(ctx context.Context) error {
		var status string
		err := r.pool.QueryRow(ctx, query, args...).Scan(
			&rec.ScanID,
			&rec.FilePath,
			&status,
			&rec.DiagnosisType,
			&rec.ConfidenceScore,
			&rec.CreatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get scan: %w", err)
		}
		rec.Status = domain.DiagnosisStatus(status)
		return nil
	})
	if err != nil {
		return domain.ScanRecord{}, err
	}
	return rec, nil
}
