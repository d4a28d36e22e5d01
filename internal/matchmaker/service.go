package matchmaker

import (
	"context"
	"errors"
	"time"

	"VoiceMatch/internal/metrics"
	"VoiceMatch/internal/rtctoken"
	"VoiceMatch/internal/user"
	"VoiceMatch/internal/utils"
)

// TokenIssuer 生成 RTC 通话凭证
type TokenIssuer interface {
	Issue(channel string, uid uint32, ttl time.Duration) (string, error)
}

type Options struct {
	MarkerTTL time.Duration // 入池标记有效期
	TokenTTL  time.Duration // RTC token 有效期
}

type Service struct {
	repo   Repo
	ledger Ledger
	engine *Engine
	users  user.Store
	tokens TokenIssuer
	opts   Options
	now    func() time.Time
}

func NewService(repo Repo, ledger Ledger, engine *Engine, users user.Store, tokens TokenIssuer, opts Options) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		engine: engine,
		users:  users,
		tokens: tokens,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *Service) loadUser(ctx context.Context, userID int64) (*user.Profile, error) {
	p, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, NewError(ErrorStatusNotFound, "用户不存在", err)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Join 入池并尝试配对一次。若本次配对包含调用者，直接返回 matched。
func (s *Service) Join(ctx context.Context, userID int64) (*MatchResponse, error) {
	profile, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.InMinorMode() {
		metrics.ObserveJoin(StatusMinorMode)
		return &MatchResponse{Status: StatusMinorMode}, nil
	}
	pool, ok := PoolForGender(profile.GenderValue())
	if !ok {
		metrics.ObserveJoin(StatusNoGender)
		return &MatchResponse{Status: StatusNoGender}, nil
	}

	// ❶ 通话中或已在池中时拒绝；同一用户的并发 join 只有一个能入池
	outcome, err := s.repo.JoinPool(ctx, pool, userID, s.opts.MarkerTTL)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case JoinInRoom:
		return nil, NewError(ErrorStatusConflict, ErrAlreadyInRoom.Error(), nil)
	case JoinAlreadyQueued:
		return nil, NewError(ErrorStatusConflict, ErrAlreadyInPool.Error(), nil)
	}
	utils.Log.Debug("user joined pool", "userId", userID, "pool", pool)

	// ❷ 尝试配对
	p, err := s.engine.TryPair(ctx)
	if err != nil {
		if p == nil {
			return nil, err
		}
		utils.Log.Warn("pairing completed with errors", "roomId", p.RoomID, "err", err)
	}
	if p.Includes(userID) {
		// 发起者已同步拿到结果，不需要再轮询
		_ = s.repo.DeleteMatchResult(ctx, userID)
		metrics.ObserveJoin(StatusMatched)
		return &MatchResponse{Status: StatusMatched, RoomID: p.RoomID}, nil
	}
	metrics.ObserveJoin(StatusWaiting)
	return &MatchResponse{Status: StatusWaiting}, nil
}

// Cancel 取消匹配，从两个池中都尝试删除
func (s *Service) Cancel(ctx context.Context, userID int64) error {
	errs := []error{s.repo.DeleteMarker(ctx, userID)}
	for _, pool := range []string{PoolMale, PoolFemale} {
		errs = append(errs, s.repo.RemoveFromPool(ctx, pool, userID))
	}
	return errors.Join(errs...)
}

// Status 轮询配对结果，结果只会返回一次
func (s *Service) Status(ctx context.Context, userID int64) (*MatchResponse, error) {
	roomID, ok, err := s.repo.ConsumeMatchResult(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		return &MatchResponse{Status: StatusMatched, RoomID: roomID}, nil
	}
	// 仍在轮询的用户续期入池标记
	if err := s.repo.TouchMarker(ctx, userID, s.opts.MarkerTTL); err != nil {
		utils.Log.Warn("refresh marker failed", "userId", userID, "err", err)
	}
	return &MatchResponse{Status: StatusWaiting}, nil
}

// RoomJoin 校验房间与成员身份，返回 RTC token 与对方资料
func (s *Service) RoomJoin(ctx context.Context, userID int64, roomID string) (*RoomJoinResponse, error) {
	if roomID == "" {
		return nil, NewError(ErrorStatusInvalidRequest, "缺少 roomId", nil)
	}
	profile, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.InMinorMode() {
		return nil, NewError(ErrorStatusForbidden, "未成年人模式无法使用", nil)
	}

	room, err := s.ledger.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil, NewError(ErrorStatusNotFound, ErrRoomNotFound.Error(), err)
	}
	if err != nil {
		return nil, err
	}
	if room.Status != RoomOngoing {
		return nil, NewError(ErrorStatusNotFound, ErrRoomNotFound.Error(), nil)
	}
	if !room.HasParticipant(userID) {
		return nil, NewError(ErrorStatusForbidden, ErrNotParticipant.Error(), nil)
	}

	peerID := room.PeerOf(userID)
	peer := Peer{UserID: peerID, Nickname: (&user.Profile{ID: peerID}).DisplayName()}
	if pp, err := s.users.GetUser(ctx, peerID); err == nil {
		peer.Nickname = pp.DisplayName()
		peer.AvatarURL = pp.Avatar()
	} else if !errors.Is(err, user.ErrNotFound) {
		utils.Log.Warn("load peer profile failed", "roomId", roomID, "peer", peerID, "err", err)
	}

	uid := rtctoken.ParticipantID(userID)
	token, err := s.tokens.Issue(room.RTCChannel, uid, s.opts.TokenTTL)
	if err != nil || token == "" {
		utils.Log.Error("issue rtc token failed", "roomId", roomID, "userId", userID, "err", err)
		return nil, NewError(ErrorStatusUpstream, "生成通话凭证失败", err)
	}

	// 已进入房间，未读的配对结果不再需要
	_ = s.repo.DeleteMatchResult(ctx, userID)

	return &RoomJoinResponse{
		RoomID:        room.RoomID,
		Token:         token,
		Channel:       room.RTCChannel,
		ParticipantID: uid,
		Peer:          peer,
	}, nil
}

// RoomLeave 挂断。房间不存在、已结束或调用者不是成员时什么也不做。
func (s *Service) RoomLeave(ctx context.Context, userID int64, roomID string) error {
	if roomID == "" {
		return NewError(ErrorStatusInvalidRequest, "缺少 roomId", nil)
	}
	room, err := s.ledger.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return nil
	}

	changed, err := s.ledger.End(ctx, roomID, s.now())
	if err != nil {
		return err
	}
	if changed {
		metrics.ObserveRoomEnded()
		utils.Log.Info("voice room ended", "roomId", roomID, "by", userID)
	}

	var errs []error
	for _, uid := range []int64{room.UserID1, room.UserID2} {
		errs = append(errs, s.releaseRoom(ctx, uid, roomID))
	}
	return errors.Join(errs...)
}

// releaseRoom 清理用户与该房间相关的临时状态；用户已经进入别的房间时不动
func (s *Service) releaseRoom(ctx context.Context, userID int64, roomID string) error {
	cur, ok, err := s.repo.ActiveRoom(ctx, userID)
	if err != nil {
		return err
	}
	if ok && cur != roomID {
		return nil
	}
	if ok {
		if err := s.repo.ClearActiveRoom(ctx, userID); err != nil {
			return err
		}
	}
	return s.repo.DeleteMatchResult(ctx, userID)
}
