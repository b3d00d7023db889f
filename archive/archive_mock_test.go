package archive

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/queryflow/internal/database"
)

// setupMockArchive 在 sqlmock 连接上直接构建归档, 跳过迁移以便只断言业务 SQL。
func setupMockArchive(t *testing.T) (*Archive, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{Conn: mockDB})
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	pool, err := database.NewPool(gormDB, database.Options{}, zap.NewNop())
	require.NoError(t, err)

	return &Archive{db: gormDB, pool: pool, logger: zap.NewNop()}, mock
}

func TestArchive_PruneSQL(t *testing.T) {
	archive, mock := setupMockArchive(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "run_records" WHERE created_at < $1`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	removed, err := archive.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_CountSQL(t *testing.T) {
	archive, mock := setupMockArchive(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "run_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := archive.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_SaveSQL(t *testing.T) {
	archive, mock := setupMockArchive(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "run_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	saved, err := archive.Save(context.Background(), sampleSnapshot("exec-pg"))
	require.NoError(t, err)
	assert.Equal(t, uint(1), saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
