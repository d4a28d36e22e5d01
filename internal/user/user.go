package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("用户不存在")

// Profile 匹配需要的用户字段，对应 user 表
type Profile struct {
	ID        int64          `db:"id"`
	Gender    sql.NullInt64  `db:"gender"`
	MinorMode int            `db:"minor_mode"`
	Nickname  sql.NullString `db:"nickname"`
	AvatarURL sql.NullString `db:"avatar_url"`
	Status    int            `db:"status"`
}

// GenderValue 未填写性别时返回 0
func (p *Profile) GenderValue() int {
	if !p.Gender.Valid {
		return 0
	}
	return int(p.Gender.Int64)
}

func (p *Profile) InMinorMode() bool {
	return p.MinorMode == 1
}

// DisplayName 昵称为空时使用 "用户{id}"
func (p *Profile) DisplayName() string {
	if p.Nickname.Valid && p.Nickname.String != "" {
		return p.Nickname.String
	}
	return fmt.Sprintf("用户%d", p.ID)
}

func (p *Profile) Avatar() string {
	if p.AvatarURL.Valid {
		return p.AvatarURL.String
	}
	return ""
}

// Store 只读取正常状态（status=1）的用户
type Store interface {
	GetUser(ctx context.Context, id int64) (*Profile, error)
}

type postgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

const selectUserSQL = `SELECT id, gender, minor_mode, nickname, avatar_url, status
FROM "user" WHERE id = $1 AND status = 1`

func (s *postgresStore) GetUser(ctx context.Context, id int64) (*Profile, error) {
	var p Profile
	err := s.db.GetContext(ctx, &p, selectUserSQL, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %d: %w", id, err)
	}
	return &p, nil
}

// MemoryStore 测试用
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int64]*Profile
}

func NewMemoryStore(profiles ...*Profile) *MemoryStore {
	s := &MemoryStore{users: make(map[int64]*Profile)}
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

func (s *MemoryStore) Put(p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.users[p.ID] = &cp
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[id]
	if !ok || p.Status != 1 {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// New 便捷构造，gender 为 0 表示未填写
func New(id int64, gender int, nickname string) *Profile {
	p := &Profile{ID: id, Status: 1}
	if gender != 0 {
		p.Gender = sql.NullInt64{Int64: int64(gender), Valid: true}
	}
	if nickname != "" {
		p.Nickname = sql.NullString{String: nickname, Valid: true}
	}
	return p
}
