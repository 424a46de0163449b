package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

const filesTable = "stored_files"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PgFileRepository stores StoredFile records in the stored_files table.
type PgFileRepository struct {
	db *sqlx.DB
}

func NewPgFileRepository(db *sqlx.DB) *PgFileRepository {
	return &PgFileRepository{db: db}
}

// Create inserts f as a new row.
func (r *PgFileRepository) Create(ctx context.Context, f *domain.StoredFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.DateCreated.IsZero() {
		f.DateCreated = time.Now().UTC()
	}
	query := `
		INSERT INTO stored_files (
			id, hash, owner_id, original_filename, size, width, height, duration, mime_type,
			generated_filename, is_valid, remote_status, local_node, migration_attempts, claimed_at,
			derived_from_id, derivation_type, date_created, date_stored, date_expires
		) VALUES (
			:id, :hash, :owner_id, :original_filename, :size, :width, :height, :duration, :mime_type,
			:generated_filename, :is_valid, :remote_status, :local_node, :migration_attempts, :claimed_at,
			:derived_from_id, :derivation_type, :date_created, :date_stored, :date_expires
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("insert stored file: %w", err)
	}
	return nil
}

// Update writes every mutable column of f back to its row.
func (r *PgFileRepository) Update(ctx context.Context, f *domain.StoredFile) error {
	query := `
		UPDATE stored_files SET
			hash = :hash,
			owner_id = :owner_id,
			original_filename = :original_filename,
			size = :size,
			width = :width,
			height = :height,
			duration = :duration,
			mime_type = :mime_type,
			generated_filename = :generated_filename,
			is_valid = :is_valid,
			remote_status = :remote_status,
			local_node = :local_node,
			migration_attempts = :migration_attempts,
			claimed_at = :claimed_at,
			date_stored = :date_stored,
			date_expires = :date_expires
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, f)
	if err != nil {
		return fmt.Errorf("update stored file: %w", err)
	}
	return expectOne(res)
}

func (r *PgFileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StoredFile, error) {
	return r.getOne(ctx, `SELECT * FROM stored_files WHERE id = $1`, id)
}

func (r *PgFileRepository) GetByHash(ctx context.Context, hash string) (*domain.StoredFile, error) {
	return r.getOne(ctx, `SELECT * FROM stored_files WHERE hash = $1`, hash)
}

// FindDerivation returns the derivation of parentID of the given type, or
// ErrFileNotFound.
func (r *PgFileRepository) FindDerivation(ctx context.Context, parentID uuid.UUID, derivationType int) (*domain.StoredFile, error) {
	query := `
		SELECT * FROM stored_files
		WHERE derived_from_id = $1 AND derivation_type = $2
		ORDER BY date_created DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, parentID, derivationType)
}

func (r *PgFileRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.StoredFile, error) {
	var f domain.StoredFile
	err := r.db.GetContext(ctx, &f, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PgFileRepository) ListDerivations(ctx context.Context, parentID uuid.UUID) ([]domain.StoredFile, error) {
	query := `
		SELECT * FROM stored_files
		WHERE derived_from_id = $1
		ORDER BY derivation_type, date_created
	`
	files := []domain.StoredFile{}
	if err := r.db.SelectContext(ctx, &files, query, parentID); err != nil {
		return nil, err
	}
	return files, nil
}

// List returns one page of files matching filter and the total match count.
func (r *PgFileRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.StoredFile, int, error) {
	where := sq.And{}
	if filter.OwnerID != nil {
		where = append(where, sq.Eq{"owner_id": *filter.OwnerID})
	}
	if filter.Status != nil {
		where = append(where, sq.Eq{"remote_status": int(*filter.Status)})
	}
	if filter.OriginalsOnly {
		where = append(where, sq.Eq{"derived_from_id": nil})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From(filesTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	q := psql.Select("*").From(filesTable).Where(where).
		OrderBy("date_created DESC").
		Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	listSQL, listArgs, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list: %w", err)
	}

	files := []domain.StoredFile{}
	if err := r.db.SelectContext(ctx, &files, listSQL, listArgs...); err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// ClearExpiry keeps a file and all of its derivations.
func (r *PgFileRepository) ClearExpiry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE stored_files
		SET date_expires = NULL
		WHERE id = $1 OR derived_from_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

func (r *PgFileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stored_files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ClaimForMigration moves up to limit files from LOCAL_READY to IN_PROGRESS.
// Rows locked by another migrator are skipped rather than waited on.
func (r *PgFileRepository) ClaimForMigration(ctx context.Context, node string, limit, maxAttempts int, now time.Time) ([]domain.StoredFile, error) {
	query := `
		UPDATE stored_files
		SET remote_status = $1, claimed_at = $2
		WHERE id IN (
			SELECT id FROM stored_files
			WHERE remote_status = $3 AND local_node = $4 AND migration_attempts < $5
			ORDER BY date_created
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`
	files := []domain.StoredFile{}
	err := r.db.SelectContext(ctx, &files, query,
		domain.RemoteStatusInProgress, now, domain.RemoteStatusLocalReady, node, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("claim files: %w", err)
	}
	return files, nil
}

// MarkStored moves a claimed file to REMOTE_ONLY.
func (r *PgFileRepository) MarkStored(ctx context.Context, id uuid.UUID, storedAt time.Time) error {
	query := `
		UPDATE stored_files
		SET remote_status = $1, date_stored = $2, claimed_at = NULL
		WHERE id = $3 AND remote_status = $4
	`
	res, err := r.db.ExecContext(ctx, query, domain.RemoteStatusRemoteOnly, storedAt, id, domain.RemoteStatusInProgress)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *PgFileRepository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE stored_files
		SET remote_status = $1, claimed_at = NULL, migration_attempts = migration_attempts + 1
		WHERE id = $2 AND remote_status = $3
	`
	_, err := r.db.ExecContext(ctx, query, domain.RemoteStatusLocalReady, id, domain.RemoteStatusInProgress)
	return err
}

// ResetStaleClaims returns abandoned IN_PROGRESS files to LOCAL_READY. The
// abandoned copy counts as a failed attempt.
func (r *PgFileRepository) ResetStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query := `
		UPDATE stored_files
		SET remote_status = $1, claimed_at = NULL, migration_attempts = migration_attempts + 1
		WHERE remote_status = $2 AND claimed_at < $3
	`
	res, err := r.db.ExecContext(ctx, query, domain.RemoteStatusLocalReady, domain.RemoteStatusInProgress, claimedBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListExpired returns originals before derivations so deleting an original
// takes its derivations with it.
func (r *PgFileRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.StoredFile, error) {
	query := `
		SELECT * FROM stored_files
		WHERE date_expires IS NOT NULL AND date_expires < $1
		ORDER BY (derived_from_id IS NOT NULL), date_expires
		LIMIT $2
	`
	files := []domain.StoredFile{}
	if err := r.db.SelectContext(ctx, &files, query, now, limit); err != nil {
		return nil, err
	}
	return files, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}
