package matchmaker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresLedger struct {
	db *sqlx.DB
}

func NewPostgresLedger(db *sqlx.DB) Ledger {
	return &postgresLedger{db: db}
}

const (
	insertRoomSQL = `INSERT INTO voice_room (room_id, user_id_1, user_id_2, rtc_channel, status, started_at)
VALUES (:room_id, :user_id_1, :user_id_2, :rtc_channel, :status, :started_at)`

	selectRoomSQL = `SELECT id, room_id, user_id_1, user_id_2, rtc_channel, status, started_at, ended_at, created_at
FROM voice_room WHERE room_id = $1`

	endRoomSQL = `UPDATE voice_room SET status = 'ended', ended_at = $2
WHERE room_id = $1 AND status = 'ongoing'`

	endStaleSQL = `UPDATE voice_room SET status = 'ended', ended_at = $2
WHERE status = 'ongoing' AND started_at < $1`
)

func (l *postgresLedger) Create(ctx context.Context, room *Room) error {
	if room.UserID1 == room.UserID2 {
		return ErrSelfPairing
	}
	if _, err := l.db.NamedExecContext(ctx, insertRoomSQL, room); err != nil {
		return fmt.Errorf("insert voice_room %s: %w", room.RoomID, err)
	}
	return nil
}

func (l *postgresLedger) Get(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := l.db.GetContext(ctx, &room, selectRoomSQL, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select voice_room %s: %w", roomID, err)
	}
	return &room, nil
}

func (l *postgresLedger) End(ctx context.Context, roomID string, at time.Time) (bool, error) {
	res, err := l.db.ExecContext(ctx, endRoomSQL, roomID, at)
	if err != nil {
		return false, fmt.Errorf("end voice_room %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *postgresLedger) EndStale(ctx context.Context, before, at time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, endStaleSQL, before, at)
	if err != nil {
		return 0, fmt.Errorf("end stale voice_room: %w", err)
	}
	return res.RowsAffected()
}
