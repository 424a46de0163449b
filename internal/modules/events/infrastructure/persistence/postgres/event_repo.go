package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/saransh1220/s3files/internal/modules/events/domain"
)

type PgEventRepository struct {
	db *sqlx.DB
}

func NewPgEventRepository(db *sqlx.DB) *PgEventRepository {
	return &PgEventRepository{db: db}
}

func (r *PgEventRepository) Create(ctx context.Context, e *domain.Event) error {
	query := `
		INSERT INTO file_events (id, user_id, type, file_id, hash, status, url, created_at)
		VALUES (:id, :user_id, :type, :file_id, :hash, :status, :url, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, e)
	return err
}

// ListByUser returns a user's events newest first, optionally only those
// after since.
func (r *PgEventRepository) ListByUser(ctx context.Context, userID uuid.UUID, since *time.Time, limit, offset int) ([]domain.Event, error) {
	where := sq.And{sq.Eq{"user_id": userID}}
	if since != nil {
		where = append(where, sq.Gt{"created_at": *since})
	}
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("*").
		From("file_events").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	events := []domain.Event{}
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *PgEventRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
