package projection

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nimbusline/platform-core/internal/eventlog"
)

func TestRecordAndLastAppliedEventID(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)

	mock.ExpectExec("INSERT INTO projection_progress").WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.RecordProgress(context.Background(), "feed-projection", "e1", time.Now())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT last_applied_event_id FROM projection_progress").
		WillReturnRows(sqlmock.NewRows([]string{"last_applied_event_id"}).AddRow("e1"))

	last, err := store.LastAppliedEventID(context.Background(), "feed-projection")
	require.NoError(t, err)
	require.Equal(t, "e1", last)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRebuilder_TruncateClearsOwnedTablesAndDedup(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rb := NewRebuilder(db, "feed-sub", "feed_entries")

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE feed_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM consumer_dedup WHERE subscription").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM projection_progress WHERE projection").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, rb.Truncate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, eventlog.StartEarliest, rb.RebuildStartPosition())
}
