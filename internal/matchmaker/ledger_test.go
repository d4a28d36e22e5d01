package matchmaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (Ledger, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresLedger(sqlx.NewDb(db, "postgres")), mock
}

var roomColumns = []string{"id", "room_id", "user_id_1", "user_id_2", "rtc_channel", "status", "started_at", "ended_at", "created_at"}

func TestPostgresLedger_Create(t *testing.T) {
	ledger, mock := newMockLedger(t)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO voice_room \(room_id, user_id_1, user_id_2, rtc_channel, status, started_at\)`).
		WithArgs("abcdef0123456789", int64(1), int64(2), "voice_abcdef0123456789", RoomOngoing, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ledger.Create(context.Background(), &Room{
		RoomID:     "abcdef0123456789",
		UserID1:    1,
		UserID2:    2,
		RTCChannel: ChannelName("abcdef0123456789"),
		Status:     RoomOngoing,
		StartedAt:  &started,
	})
	assert.NoError(t, err)
}

func TestPostgresLedger_CreateRejectsSelfPairing(t *testing.T) {
	ledger, _ := newMockLedger(t)
	err := ledger.Create(context.Background(), &Room{RoomID: "x", UserID1: 7, UserID2: 7})
	assert.ErrorIs(t, err, ErrSelfPairing)
}

func TestPostgresLedger_CreateError(t *testing.T) {
	ledger, mock := newMockLedger(t)
	mock.ExpectExec(`INSERT INTO voice_room`).WillReturnError(errors.New("duplicate key value"))

	err := ledger.Create(context.Background(), &Room{RoomID: "x", UserID1: 1, UserID2: 2, Status: RoomOngoing})
	assert.ErrorContains(t, err, "duplicate key value")
}

func TestPostgresLedger_Get(t *testing.T) {
	ledger, mock := newMockLedger(t)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM voice_room WHERE room_id = \$1`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(roomColumns).
			AddRow(int64(9), "abc", int64(1), int64(2), "voice_abc", RoomOngoing, started, nil, started))

	room, err := ledger.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(9), room.ID)
	assert.Equal(t, "voice_abc", room.RTCChannel)
	assert.Equal(t, RoomOngoing, room.Status)
	require.NotNil(t, room.StartedAt)
	assert.True(t, started.Equal(*room.StartedAt))
	assert.Nil(t, room.EndedAt)
}

func TestPostgresLedger_GetNotFound(t *testing.T) {
	ledger, mock := newMockLedger(t)
	mock.ExpectQuery(`FROM voice_room WHERE room_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(roomColumns))

	_, err := ledger.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestPostgresLedger_EndIsConditional(t *testing.T) {
	ledger, mock := newMockLedger(t)
	at := time.Now()

	mock.ExpectExec(`UPDATE voice_room SET status = 'ended', ended_at = \$2\s+WHERE room_id = \$1 AND status = 'ongoing'`).
		WithArgs("abc", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE voice_room SET status = 'ended'`).
		WithArgs("abc", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := ledger.End(context.Background(), "abc", at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ledger.End(context.Background(), "abc", at)
	require.NoError(t, err)
	assert.False(t, changed, "already ended")
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	require.NoError(t, ledger.Create(ctx, &Room{RoomID: "r1", UserID1: 1, UserID2: 2, Status: RoomOngoing}))
	assert.Error(t, ledger.Create(ctx, &Room{RoomID: "r1", UserID1: 3, UserID2: 4, Status: RoomOngoing}))
	assert.ErrorIs(t, ledger.Create(ctx, &Room{RoomID: "r2", UserID1: 5, UserID2: 5}), ErrSelfPairing)

	_, err := ledger.Get(ctx, "r2")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	changed, err := ledger.End(ctx, "r1", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = ledger.End(ctx, "r1", time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = ledger.End(ctx, "nope", time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	room, err := ledger.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RoomEnded, room.Status)
	assert.NotNil(t, room.EndedAt)
}
