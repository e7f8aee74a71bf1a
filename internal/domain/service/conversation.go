package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/eventbus"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessagePage 消息分页结果（倒序: 最新在前）
type MessagePage struct {
	Messages   []*entity.Message
	NextCursor string
}

// ConversationService 会话存储领域服务
// 房间内的全部变更按房间串行化, 不同房间完全并行;
// OpenRoom 额外按 (商家, 消费者) 组合串行化以避免重复建房
type ConversationService struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	configs  repository.AutoResponseConfigRepository
	bus      eventbus.Bus
	logger   *zap.Logger

	pairLocks *keyedMutex
	roomLocks *keyedMutex
}

// NewConversationService 创建会话服务
func NewConversationService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	configs repository.AutoResponseConfigRepository,
	bus eventbus.Bus,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		rooms:     rooms,
		messages:  messages,
		configs:   configs,
		bus:       bus,
		logger:    logger,
		pairLocks: newKeyedMutex(),
		roomLocks: newKeyedMutex(),
	}
}

// OpenRoom 打开 (商家, 消费者) 的房间
// 幂等: 已有房间直接返回; 归档房间重新激活; 并发调用不会建出重复房间
func (s *ConversationService) OpenRoom(ctx context.Context, businessID, userID string) (*entity.Room, error) {
	if businessID == "" || userID == "" {
		return nil, apperrors.NewInvalidInputError("business id and user id are required")
	}

	unlock := s.pairLocks.Lock(pairKey(businessID, userID))
	defer unlock()

	room, err := s.rooms.FindByPair(ctx, businessID, userID)
	if err == nil {
		if room.Status() == entity.RoomStatusArchived {
			if err := room.Reopen(); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeRoomClosed, "room cannot be reopened", err)
			}
			if err := s.rooms.Save(ctx, room); err != nil {
				return nil, err
			}
			s.publishStatus(ctx, room, userID, "")
		}
		return room, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	room, err = entity.NewRoom(uuid.NewString(), businessID, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid room parameters", err)
	}
	if err := s.rooms.Save(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Info("Room opened",
		zap.String("room_id", room.ID()),
		zap.String("business_id", businessID),
		zap.String("user_id", userID),
	)
	return room, nil
}

// PostMessage 向房间追加一条消息
// 持久化完成后才返回; 事件推送在落库之后异步进行, 不阻塞调用方
func (s *ConversationService) PostMessage(ctx context.Context, roomID string, sender valueobject.Actor, content string, attachment valueobject.Attachment, originConnID string) (*entity.Message, error) {
	if strings.TrimSpace(content) == "" && attachment.IsZero() {
		return nil, apperrors.NewInvalidInputError("message content is empty")
	}

	unlock := s.roomLocks.Lock(roomID)
	defer unlock()

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed() {
		return nil, apperrors.New(apperrors.CodeRoomClosed, "room is closed")
	}
	if err := s.validateSender(ctx, room, sender); err != nil {
		return nil, err
	}

	lastSeq, err := s.messages.LastSeq(ctx, roomID)
	if err != nil {
		return nil, err
	}

	msg, err := entity.NewMessage(uuid.NewString(), roomID, lastSeq+1, content, attachment, sender)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid message", err)
	}

	// 写入失败对本次调用是致命的, 不留半条记录
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, err
	}

	room.Touch()
	if err := s.rooms.Save(ctx, room); err != nil {
		// 消息已落库, 房间时间戳推进失败只降级告警
		s.logger.Warn("Failed to touch room after message",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
	}

	s.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeMessageCreated, &eventbus.MessageCreatedPayload{
		Room:         room,
		Message:      msg,
		OriginConnID: originConnID,
	}))

	return msg, nil
}

// MarkRead 将对方发送的、序号不超过 upToMessageID 的未读消息标记为 readerID 已读
// 幂等: 已读消息的首读时间不会被覆盖
func (s *ConversationService) MarkRead(ctx context.Context, roomID, readerID, upToMessageID, originConnID string) error {
	unlock := s.roomLocks.Lock(roomID)
	defer unlock()

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsParticipant(readerID) {
		return apperrors.New(apperrors.CodeInvalidSender, "reader is not a room participant")
	}

	upTo, err := s.messages.FindByID(ctx, upToMessageID)
	if err != nil {
		return err
	}
	if upTo.RoomID() != roomID {
		return apperrors.NewNotFoundError("message does not belong to room")
	}

	unread, err := s.messages.FindUnreadForReader(ctx, roomID, readerID, upTo.Seq())
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	markedIDs := make([]string, 0, len(unread))
	for _, msg := range unread {
		if !msg.MarkReadBy(readerID, now) {
			continue
		}
		if err := s.messages.Save(ctx, msg); err != nil {
			return err
		}
		markedIDs = append(markedIDs, msg.ID())
	}

	if len(markedIDs) == 0 {
		return nil
	}

	s.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeMessageRead, &eventbus.MessageReadPayload{
		RoomID:       roomID,
		ReaderID:     readerID,
		MessageIDs:   markedIDs,
		UpToSeq:      upTo.Seq(),
		OriginConnID: originConnID,
	}))
	return nil
}

// IsParticipant 判断参与者是否属于该房间
// 投递层订阅前校验用, 房间不存在时返回错误
func (s *ConversationService) IsParticipant(ctx context.Context, roomID, actorID string) (bool, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.IsParticipant(actorID), nil
}

// ListMessages 按倒序分页列出房间消息, 仅房间参与者可读
// cursor 是上一页最旧一条消息的ID; 以房间内序号为边界, 新消息插入不会移动旧页
func (s *ConversationService) ListMessages(ctx context.Context, roomID, viewerID, cursor string, limit int) (*MessagePage, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(viewerID) {
		return nil, apperrors.New(apperrors.CodeInvalidSender, "viewer is not a room participant")
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var beforeSeq int64
	if cursor != "" {
		boundary, err := s.messages.FindByID(ctx, cursor)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid cursor", err)
		}
		if boundary.RoomID() != roomID {
			return nil, apperrors.NewInvalidInputError("cursor does not belong to room")
		}
		beforeSeq = boundary.Seq()
	}

	msgs, err := s.messages.FindPageBefore(ctx, roomID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{Messages: msgs}
	if len(msgs) == limit {
		page.NextCursor = msgs[len(msgs)-1].ID()
	}
	return page, nil
}

// SetRoomStatus 变更房间状态
// ARCHIVED 双方均可; CLOSED 仅商家且为终态; ACTIVE 相当于重新激活归档房间
func (s *ConversationService) SetRoomStatus(ctx context.Context, roomID string, status entity.RoomStatus, actor valueobject.Actor, originConnID string) (*entity.Room, error) {
	if !status.IsValid() {
		return nil, apperrors.NewInvalidInputError("invalid room status")
	}

	unlock := s.roomLocks.Lock(roomID)
	defer unlock()

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.validateParticipant(room, actor); err != nil {
		return nil, err
	}

	var changeErr error
	switch status {
	case entity.RoomStatusActive:
		changeErr = room.Reopen()
	case entity.RoomStatusArchived:
		changeErr = room.Archive()
	case entity.RoomStatusClosed:
		if !actor.IsBusiness() {
			return nil, apperrors.New(apperrors.CodeInvalidSender, "only the business may close a room")
		}
		changeErr = room.Close()
	}
	if changeErr != nil {
		return nil, apperrors.Wrap(apperrors.CodeRoomClosed, "room is closed", changeErr)
	}

	if err := s.rooms.Save(ctx, room); err != nil {
		return nil, err
	}

	s.publishStatus(ctx, room, actor.ID(), originConnID)
	return room, nil
}

// MarkDelivered 记录消息已推送到至少一个在线连接（路由器回调, 尽力而为）
func (s *ConversationService) MarkDelivered(ctx context.Context, messageID string) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	unlock := s.roomLocks.Lock(msg.RoomID())
	defer unlock()

	// 锁内重读, 避免覆盖并发的已读簿记
	msg, err = s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.MarkDelivered() {
		return nil
	}
	return s.messages.Save(ctx, msg)
}

// ListRooms 列出参与者的房间, 按最近活跃排序
func (s *ConversationService) ListRooms(ctx context.Context, actorID string, limit int) ([]*entity.Room, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.rooms.ListByActor(ctx, actorID, limit)
}

// validateSender 校验发送者与房间角色是否匹配
func (s *ConversationService) validateSender(ctx context.Context, room *entity.Room, sender valueobject.Actor) error {
	switch sender.Type() {
	case valueobject.ActorTypeUser:
		if sender.ID() != room.UserID() {
			return apperrors.New(apperrors.CodeInvalidSender, "sender is not the room consumer")
		}
	case valueobject.ActorTypeBusiness:
		if sender.ID() != room.BusinessID() {
			return apperrors.New(apperrors.CodeInvalidSender, "sender is not the room business")
		}
	case valueobject.ActorTypeAI:
		// AI 只能以房间商家的身份发声, 且该商家必须开启自动应答
		if sender.ID() != room.BusinessID() {
			return apperrors.New(apperrors.CodeInvalidSender, "ai sender must match the room business")
		}
		cfg, err := s.configs.FindByBusiness(ctx, room.BusinessID())
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.New(apperrors.CodeInvalidSender, "business has not enabled auto-response")
			}
			return err
		}
		if !cfg.Enabled() {
			return apperrors.New(apperrors.CodeInvalidSender, "business has not enabled auto-response")
		}
	default:
		return apperrors.New(apperrors.CodeInvalidSender, "unknown sender type")
	}
	return nil
}

// validateParticipant 校验操作者是房间参与者且类型与角色一致
func (s *ConversationService) validateParticipant(room *entity.Room, actor valueobject.Actor) error {
	switch actor.Type() {
	case valueobject.ActorTypeUser:
		if actor.ID() == room.UserID() {
			return nil
		}
	case valueobject.ActorTypeBusiness:
		if actor.ID() == room.BusinessID() {
			return nil
		}
	}
	return apperrors.New(apperrors.CodeInvalidSender, "actor is not a room participant")
}

func (s *ConversationService) publishStatus(ctx context.Context, room *entity.Room, changedBy, originConnID string) {
	s.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeRoomStatus, &eventbus.RoomStatusPayload{
		RoomID:       room.ID(),
		Status:       room.Status(),
		ChangedBy:    changedBy,
		OriginConnID: originConnID,
	}))
}

func pairKey(businessID, userID string) string {
	return businessID + "\x00" + userID
}

// keyedMutex 按键互斥锁
// 引用计数归零即回收条目, 键空间不随历史房间无限增长
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock 锁定指定键, 返回解锁函数
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
