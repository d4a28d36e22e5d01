package matchmaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memLedger struct {
	mu     sync.Mutex
	nextID int64
	rooms  map[string]*Room
}

func NewMemoryLedger() Ledger {
	return &memLedger{rooms: make(map[string]*Room)}
}

func (l *memLedger) Create(ctx context.Context, room *Room) error {
	if room.UserID1 == room.UserID2 {
		return ErrSelfPairing
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rooms[room.RoomID]; ok {
		return fmt.Errorf("duplicate room_id %s", room.RoomID)
	}
	l.nextID++
	cp := *room
	cp.ID = l.nextID
	cp.CreatedAt = time.Now()
	l.rooms[room.RoomID] = &cp
	return nil
}

func (l *memLedger) Get(ctx context.Context, roomID string) (*Room, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	room, ok := l.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (l *memLedger) End(ctx context.Context, roomID string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	room, ok := l.rooms[roomID]
	if !ok || room.Status != RoomOngoing {
		return false, nil
	}
	room.Status = RoomEnded
	room.EndedAt = &at
	return true, nil
}

func (l *memLedger) EndStale(ctx context.Context, before, at time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, room := range l.rooms {
		if room.Status != RoomOngoing || room.StartedAt == nil || !room.StartedAt.Before(before) {
			continue
		}
		room.Status = RoomEnded
		ended := at
		room.EndedAt = &ended
		n++
	}
	return n, nil
}
