package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"momentum/internal/types"
)

// --- Mock Rows for Query ---

// mockRows implements pgx.Rows for testing Query results. Each entry in rows
// fills one row's scan destinations.
type mockRows struct {
	rows    []func(dest ...any) error
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(rows []func(dest ...any) error) *mockRows {
	return &mockRows{rows: rows, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.rows)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return r.rows[r.idx](dest...)
}

func (r *mockRows) Close()     { r.closed = true }
func (r *mockRows) Err() error { return r.errVal }

func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// reminderScanFn fills the ListDue scan destinations in column order. Nil
// entries stand in for SQL NULL values.
func reminderScanFn(id, ownerType, ownerID string, callID *string, callDT time.Time, callTZ, callLoc, callTitle, channelID *string, remindAt time.Time, sent bool, sentAt *time.Time, attempts int, errNote *string, lastErrAt *time.Time, createdAt time.Time) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = ownerType
		*dest[2].(*string) = ownerID
		*dest[3].(**string) = callID
		*dest[4].(*time.Time) = callDT
		*dest[5].(**string) = callTZ
		*dest[6].(**string) = callLoc
		*dest[7].(**string) = callTitle
		*dest[8].(**string) = channelID
		*dest[9].(*time.Time) = remindAt
		*dest[10].(*bool) = sent
		*dest[11].(**time.Time) = sentAt
		*dest[12].(*int) = attempts
		*dest[13].(**string) = errNote
		*dest[14].(**time.Time) = lastErrAt
		*dest[15].(*time.Time) = createdAt
		return nil
	}
}

// --- ReminderRepository Tests ---

func TestReminderRepository_ListDue_MapsRows(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	now := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	callDT := time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)
	remindAt := callDT.Add(-24 * time.Hour)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastErr := time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)

	rows := newMockRows([]func(dest ...any) error{
		reminderScanFn("job_1", "squad", "squad_9", strPtr("call_5"), callDT,
			strPtr("Europe/Madrid"), strPtr("Zoom"), strPtr("Weekly sync"), strPtr("chan_77"),
			remindAt, false, nil, 2, strPtr("chat timeout"), timePtr(lastErr), created),
		reminderScanFn("job_2", "coaching_client", "client_3", nil, callDT,
			nil, nil, nil, nil,
			remindAt, false, nil, 0, nil, nil, created),
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{now, 25}).
		Return(rows, nil)

	jobs, err := repo.ListDue(context.Background(), now, 25)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	j := jobs[0]
	assert.Equal(t, "job_1", j.ID)
	assert.Equal(t, types.OwnerSquad, j.OwnerType)
	assert.Equal(t, "squad_9", j.OwnerID)
	assert.Equal(t, "call_5", j.CallID)
	assert.Equal(t, callDT, j.CallDateTime)
	assert.Equal(t, "Europe/Madrid", j.CallTimezone)
	assert.Equal(t, "Zoom", j.CallLocation)
	assert.Equal(t, "Weekly sync", j.CallTitle)
	assert.Equal(t, "chan_77", j.ChatChannelID)
	assert.Equal(t, remindAt, j.ReminderTime)
	assert.False(t, j.Sent)
	assert.Equal(t, 2, j.Attempts)
	assert.Equal(t, "chat timeout", j.Error)
	require.NotNil(t, j.LastErrorAt)
	assert.Equal(t, lastErr, *j.LastErrorAt)

	j = jobs[1]
	assert.Equal(t, types.OwnerCoachingClient, j.OwnerType)
	assert.Equal(t, "", j.CallID)
	assert.Equal(t, "", j.ChatChannelID)
	assert.Nil(t, j.SentAt)
	assert.Nil(t, j.LastErrorAt)

	db.AssertExpectations(t)
}

func TestReminderRepository_ListDue_DefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	now := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{now, 50}).
		Return(newMockRows(nil), nil)

	jobs, err := repo.ListDue(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	db.AssertExpectations(t)
}

func TestReminderRepository_ListDue_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	rows := newMockRows([]func(dest ...any) error{
		func(dest ...any) error { return errors.New("bad column") },
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	_, err := repo.ListDue(context.Background(), time.Now(), 10)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestReminderRepository_MarkSent_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkSent(context.Background(), "job_1", time.Now(), "")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReminderRepository_MarkSent_AlreadySent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkSent(context.Background(), "job_1", time.Now(), "")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundReminderJob, appErr.Code)
}

func TestReminderRepository_MarkSent_NotePassedAsNullable(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	sentAt := time.Date(2026, 3, 4, 17, 5, 0, 0, time.UTC)
	note := "no chat channel configured"
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{sentAt, &note, "job_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkSent(context.Background(), "job_1", sentAt, note)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReminderRepository_RecordFailure_ExecError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset"))

	err := repo.RecordFailure(context.Background(), "job_1", "chat send failed", time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestReminderRepository_MarkFailed_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkFailed(context.Background(), "job_1", "exceeded max attempts", time.Now())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReminderRepository_Delete_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReminderRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"job_stale"}).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)

	err := repo.Delete(context.Background(), "job_stale")
	require.NoError(t, err)
	db.AssertExpectations(t)
}
