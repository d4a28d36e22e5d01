package matchmaker

import (
	"encoding/json"
	"time"
)

// 匹配池，按性别划分
const (
	PoolMale   = "male"
	PoolFemale = "female"
)

// 用户 gender 字段：1 男 2 女
const (
	GenderMale   = 1
	GenderFemale = 2
)

// join / status 返回的状态
const (
	StatusWaiting   = "waiting"
	StatusMatched   = "matched"
	StatusMinorMode = "minor_mode"
	StatusNoGender  = "no_gender"
)

// 房间状态，只允许 ongoing -> ended
const (
	RoomOngoing = "ongoing"
	RoomEnded   = "ended"
)

// PoolForGender 返回性别对应的匹配池，未声明性别返回 false
func PoolForGender(gender int) (string, bool) {
	switch gender {
	case GenderMale:
		return PoolMale, true
	case GenderFemale:
		return PoolFemale, true
	}
	return "", false
}

// MatchResponse join / status 的返回
type MatchResponse struct {
	Status string `json:"status"`
	RoomID string `json:"roomId,omitempty"`
}

// RoomLeaveRequest 挂断，兼容旧客户端的 room_id
type RoomLeaveRequest struct {
	RoomID       string `json:"roomId" form:"roomId"`
	LegacyRoomID string `json:"room_id" form:"room_id"`
}

func (r RoomLeaveRequest) ID() string {
	if r.RoomID != "" {
		return r.RoomID
	}
	return r.LegacyRoomID
}

// Peer 对方的公开资料
type Peer struct {
	UserID    int64  `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
}

// MarshalJSON 同时输出旧客户端使用的字段名
func (p Peer) MarshalJSON() ([]byte, error) {
	type peer Peer
	return json.Marshal(struct {
		peer
		LegacyUserID    int64  `json:"user_id"`
		NickName        string `json:"nickName"`
		LegacyAvatarURL string `json:"avatar_url"`
	}{peer(p), p.UserID, p.Nickname, p.AvatarURL})
}

// RoomJoinResponse 进入房间需要的通话凭证
type RoomJoinResponse struct {
	RoomID        string `json:"roomId"`
	Token         string `json:"token"`
	Channel       string `json:"channel"`
	ParticipantID uint32 `json:"participantId"`
	Peer          Peer   `json:"peer"`
}

// MarshalJSON 同时输出旧客户端使用的 room_id / rtc_token / uid 等字段
func (r RoomJoinResponse) MarshalJSON() ([]byte, error) {
	type resp RoomJoinResponse
	return json.Marshal(struct {
		resp
		LegacyRoomID string `json:"room_id"`
		RTCToken     string `json:"rtcToken"`
		LegacyToken  string `json:"rtc_token"`
		ChannelID    string `json:"channelId"`
		UID          uint32 `json:"uid"`
	}{resp(r), r.RoomID, r.Token, r.Token, r.Channel, r.ParticipantID})
}

// Room voice_room 表的一行
type Room struct {
	ID         int64      `db:"id" json:"-"`
	RoomID     string     `db:"room_id" json:"roomId"`
	UserID1    int64      `db:"user_id_1" json:"userId1"`
	UserID2    int64      `db:"user_id_2" json:"userId2"`
	RTCChannel string     `db:"rtc_channel" json:"channel"`
	Status     string     `db:"status" json:"status"`
	StartedAt  *time.Time `db:"started_at" json:"startedAt,omitempty"`
	EndedAt    *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// HasParticipant 判断用户是否是房间成员
func (r *Room) HasParticipant(userID int64) bool {
	return userID == r.UserID1 || userID == r.UserID2
}

// PeerOf 返回另一方的 user id
func (r *Room) PeerOf(userID int64) int64 {
	if userID == r.UserID1 {
		return r.UserID2
	}
	return r.UserID1
}

// Pairing 一次成功配对的结果
type Pairing struct {
	RoomID  string
	Channel string
	UserA   int64 // 男池
	UserB   int64 // 女池
}

func (p *Pairing) Includes(userID int64) bool {
	return p != nil && (p.UserA == userID || p.UserB == userID)
}
