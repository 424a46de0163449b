package postgres_test

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(sqlDB, "sqlmock"), mock, func() { _ = sqlDB.Close() }
}

var fileColumns = []string{
	"id", "hash", "owner_id", "original_filename", "size", "width", "height", "duration", "mime_type",
	"generated_filename", "is_valid", "remote_status", "local_node", "migration_attempts", "claimed_at",
	"derived_from_id", "derivation_type", "date_created", "date_stored", "date_expires",
}

// fileRow returns a row for an original JPEG owned by owner.
func fileRow(id uuid.UUID, hash string, owner uuid.UUID, status int) []driver.Value {
	return []driver.Value{
		id.String(), hash, owner.String(), "photo.jpg", int64(1234), 640, 480, nil, "image/jpeg",
		"a/b/" + hash[2:] + ".jpg", true, status, "node-1", 0, nil,
		nil, nil, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil, nil,
	}
}
