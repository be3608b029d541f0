package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgColumns = `id::text, blob_name, file_name, uploaded_at, status, extracted_data, processed_at, error_message`

type postgresRepo struct {
	db     DBTX
	logger *zap.Logger
	opts   options
}

func NewPostgresRepository(db DBTX, logger *zap.Logger, opts ...Option) AuthorizationRepository {
	return &postgresRepo{db: db, logger: logger, opts: applyOptions(opts)}
}

func (r *postgresRepo) Create(ctx context.Context, sourcePath, fileName string, uploadedAt time.Time) (string, error) {
	id := r.opts.newID()
	_, err := r.db.Exec(ctx,
		`INSERT INTO authorizations (id, blob_name, file_name, uploaded_at, status) VALUES ($1, $2, $3, $4, $5)`,
		id, sourcePath, fileName, uploadedAt.UTC(), string(constants.StatusProcessing))
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Warn("authorization.create.conflict", zap.String("blob_name", sourcePath))
			return "", fmt.Errorf("%w: %s", ErrConflict, sourcePath)
		}
		r.logger.Error("authorization.create.failed", zap.String("blob_name", sourcePath), zap.Error(err))
		return "", fmt.Errorf("insert authorization: %w", err)
	}
	r.logger.Info("authorization.created", zap.String("id", id), zap.String("blob_name", sourcePath))
	return id, nil
}

func (r *postgresRepo) Complete(ctx context.Context, id string, fields entity.ExtractedFields) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE authorizations SET status = $2, extracted_data = $3, processed_at = $4, error_message = NULL
		 WHERE id = $1 AND status = 'processing'`,
		id, string(constants.StatusCompleted), data, r.opts.now().UTC())
	if err != nil {
		r.logger.Error("authorization.complete.failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("complete authorization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.noRowsUpdated(ctx, id)
	}
	r.logger.Info("authorization.completed", zap.String("id", id))
	return nil
}

func (r *postgresRepo) MarkFailed(ctx context.Context, id, message string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE authorizations SET status = $2, error_message = $3, processed_at = $4, extracted_data = NULL
		 WHERE id = $1 AND status = 'processing'`,
		id, string(constants.StatusFailed), message, r.opts.now().UTC())
	if err != nil {
		r.logger.Error("authorization.mark_failed.failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("mark authorization failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.noRowsUpdated(ctx, id)
	}
	r.logger.Warn("authorization.failed", zap.String("id", id), zap.String("error", message))
	return nil
}

// noRowsUpdated tells a missing record apart from one that is already terminal.
func (r *postgresRepo) noRowsUpdated(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM authorizations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load authorization status: %w", err)
	}
	return fmt.Errorf("%w: %s is %s", ErrTerminal, id, status)
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*entity.AuthorizationRecord, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := r.db.QueryRow(ctx, `SELECT `+pgColumns+` FROM authorizations WHERE id = $1`, id)
	rec, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get authorization: %w", err)
	}
	return rec, nil
}

func (r *postgresRepo) ExistsBySourcePath(ctx context.Context, sourcePath string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM authorizations WHERE blob_name = $1)`, sourcePath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup authorization by blob name: %w", err)
	}
	return exists, nil
}

func (r *postgresRepo) List(ctx context.Context, filter ListFilter) ([]*entity.AuthorizationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+pgColumns+` FROM authorizations
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY uploaded_at DESC, id
		 LIMIT $2 OFFSET $3`,
		string(filter.Status), filter.limit(), max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	return collectPostgres(rows)
}

func (r *postgresRepo) ListStale(ctx context.Context, olderThan time.Time) ([]*entity.AuthorizationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+pgColumns+` FROM authorizations
		 WHERE status = 'processing' AND uploaded_at < $1
		 ORDER BY uploaded_at`, olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stale authorizations: %w", err)
	}
	return collectPostgres(rows)
}

func collectPostgres(rows pgx.Rows) ([]*entity.AuthorizationRecord, error) {
	defer rows.Close()
	var out []*entity.AuthorizationRecord
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPostgres(row pgx.Row) (*entity.AuthorizationRecord, error) {
	var (
		rec       entity.AuthorizationRecord
		status    string
		data      []byte
		processed *time.Time
		errMsg    *string
	)
	if err := row.Scan(&rec.ID, &rec.SourcePath, &rec.FileName, &rec.UploadedAt, &status, &data, &processed, &errMsg); err != nil {
		return nil, err
	}
	fields, err := decodeFields(data)
	if err != nil {
		return nil, err
	}
	rec.Status = constants.AuthorizationStatus(status)
	rec.UploadedAt = rec.UploadedAt.UTC()
	rec.ExtractedFields = fields
	if processed != nil {
		t := processed.UTC()
		rec.ProcessedAt = &t
	}
	rec.ErrorMessage = errMsg
	return &rec, nil
}

// validID reports whether id can be a uuid column value.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
