package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS authorizations (
    id             TEXT PRIMARY KEY,
    blob_name      TEXT NOT NULL UNIQUE,
    file_name      TEXT NOT NULL,
    uploaded_at    TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'processing'
                   CHECK (status IN ('processing', 'completed', 'failed')),
    extracted_data TEXT,
    processed_at   TEXT,
    error_message  TEXT,
    CHECK (extracted_data IS NULL OR error_message IS NULL)
);
CREATE INDEX IF NOT EXISTS authorizations_status_uploaded_idx ON authorizations (status, uploaded_at);
`

const sqliteColumns = `id, blob_name, file_name, uploaded_at, status, extracted_data, processed_at, error_message`

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{`PRAGMA journal_mode = WAL`, `PRAGMA busy_timeout = 5000`, sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return db, nil
}

type sqliteRepo struct {
	db     *sql.DB
	logger *zap.Logger
	opts   options
}

func NewSQLiteRepository(db *sql.DB, logger *zap.Logger, opts ...Option) AuthorizationRepository {
	return &sqliteRepo{db: db, logger: logger, opts: applyOptions(opts)}
}

func (r *sqliteRepo) Create(ctx context.Context, sourcePath, fileName string, uploadedAt time.Time) (string, error) {
	id := r.opts.newID()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO authorizations (id, blob_name, file_name, uploaded_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, sourcePath, fileName, formatTime(uploadedAt), string(constants.StatusProcessing))
	if err != nil {
		if isSQLiteUnique(err) {
			r.logger.Warn("authorization.create.conflict", zap.String("blob_name", sourcePath))
			return "", fmt.Errorf("%w: %s", ErrConflict, sourcePath)
		}
		r.logger.Error("authorization.create.failed", zap.String("blob_name", sourcePath), zap.Error(err))
		return "", fmt.Errorf("insert authorization: %w", err)
	}
	r.logger.Info("authorization.created", zap.String("id", id), zap.String("blob_name", sourcePath))
	return id, nil
}

func (r *sqliteRepo) Complete(ctx context.Context, id string, fields entity.ExtractedFields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE authorizations SET status = ?, extracted_data = ?, processed_at = ?, error_message = NULL
		 WHERE id = ? AND status = 'processing'`,
		string(constants.StatusCompleted), string(data), formatTime(r.opts.now()), id)
	if err != nil {
		r.logger.Error("authorization.complete.failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("complete authorization: %w", err)
	}
	if err := r.checkUpdated(ctx, res, id); err != nil {
		return err
	}
	r.logger.Info("authorization.completed", zap.String("id", id))
	return nil
}

func (r *sqliteRepo) MarkFailed(ctx context.Context, id, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE authorizations SET status = ?, error_message = ?, processed_at = ?, extracted_data = NULL
		 WHERE id = ? AND status = 'processing'`,
		string(constants.StatusFailed), message, formatTime(r.opts.now()), id)
	if err != nil {
		r.logger.Error("authorization.mark_failed.failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("mark authorization failed: %w", err)
	}
	if err := r.checkUpdated(ctx, res, id); err != nil {
		return err
	}
	r.logger.Warn("authorization.failed", zap.String("id", id), zap.String("error", message))
	return nil
}

func (r *sqliteRepo) checkUpdated(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM authorizations WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load authorization status: %w", err)
	}
	return fmt.Errorf("%w: %s is %s", ErrTerminal, id, status)
}

func (r *sqliteRepo) GetByID(ctx context.Context, id string) (*entity.AuthorizationRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM authorizations WHERE id = ?`, id)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get authorization: %w", err)
	}
	return rec, nil
}

func (r *sqliteRepo) ExistsBySourcePath(ctx context.Context, sourcePath string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM authorizations WHERE blob_name = ?`, sourcePath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup authorization by blob name: %w", err)
	}
	return n > 0, nil
}

func (r *sqliteRepo) List(ctx context.Context, filter ListFilter) ([]*entity.AuthorizationRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM authorizations
		 WHERE (? = '' OR status = ?)
		 ORDER BY uploaded_at DESC, id
		 LIMIT ? OFFSET ?`,
		string(filter.Status), string(filter.Status), filter.limit(), max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	return collectSQLite(rows)
}

func (r *sqliteRepo) ListStale(ctx context.Context, olderThan time.Time) ([]*entity.AuthorizationRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM authorizations
		 WHERE status = 'processing' AND uploaded_at < ?
		 ORDER BY uploaded_at`, formatTime(olderThan))
	if err != nil {
		return nil, fmt.Errorf("list stale authorizations: %w", err)
	}
	return collectSQLite(rows)
}

func collectSQLite(rows *sql.Rows) ([]*entity.AuthorizationRecord, error) {
	defer rows.Close()
	var out []*entity.AuthorizationRecord
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (*entity.AuthorizationRecord, error) {
	var (
		rec                 entity.AuthorizationRecord
		uploaded, status    string
		data, processed, em sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.SourcePath, &rec.FileName, &uploaded, &status, &data, &processed, &em); err != nil {
		return nil, err
	}
	t, err := parseTime(uploaded)
	if err != nil {
		return nil, fmt.Errorf("parse uploaded_at: %w", err)
	}
	rec.UploadedAt = t
	rec.Status = constants.AuthorizationStatus(status)
	if data.Valid {
		if rec.ExtractedFields, err = decodeFields([]byte(data.String)); err != nil {
			return nil, err
		}
	}
	if processed.Valid {
		p, err := parseTime(processed.String)
		if err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		rec.ProcessedAt = &p
	}
	if em.Valid {
		msg := em.String
		rec.ErrorMessage = &msg
	}
	return &rec, nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
