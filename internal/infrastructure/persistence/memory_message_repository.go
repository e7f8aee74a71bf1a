package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	domainErrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// MemoryMessageRepository 内存消息仓储 (用于测试和 database.type=memory)
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*entity.Message   // id → message
	byRoom   map[string][]*entity.Message // room id → messages, seq 升序
}

// NewMemoryMessageRepository 创建内存消息仓储
func NewMemoryMessageRepository() repository.MessageRepository {
	return &MemoryMessageRepository{
		messages: make(map[string]*entity.Message),
		byRoom:   make(map[string][]*entity.Message),
	}
}

// Save 保存消息
func (r *MemoryMessageRepository) Save(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copyMessage(message)
	if _, exists := r.messages[message.ID()]; exists {
		// 更新已读/投递簿记: 替换房间切片里的同一条
		list := r.byRoom[message.RoomID()]
		for i, m := range list {
			if m.ID() == message.ID() {
				list[i] = stored
				break
			}
		}
	} else {
		r.byRoom[message.RoomID()] = append(r.byRoom[message.RoomID()], stored)
		sort.Slice(r.byRoom[message.RoomID()], func(i, j int) bool {
			list := r.byRoom[message.RoomID()]
			return list[i].Seq() < list[j].Seq()
		})
	}
	r.messages[message.ID()] = stored
	return nil
}

// FindByID 根据ID查找消息
func (r *MemoryMessageRepository) FindByID(ctx context.Context, id string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("message not found")
	}
	return copyMessage(msg), nil
}

// LastSeq 返回房间内最大序号
func (r *MemoryMessageRepository) LastSeq(ctx context.Context, roomID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byRoom[roomID]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Seq(), nil
}

// FindPageBefore 按序号倒序取一页消息
func (r *MemoryMessageRepository) FindPageBefore(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byRoom[roomID]
	page := make([]*entity.Message, 0, limit)
	for i := len(list) - 1; i >= 0 && len(page) < limit; i-- {
		if beforeSeq > 0 && list[i].Seq() >= beforeSeq {
			continue
		}
		page = append(page, copyMessage(list[i]))
	}
	return page, nil
}

// FindUnreadForReader 返回对方发送且未读的消息, 按序号升序
func (r *MemoryMessageRepository) FindUnreadForReader(ctx context.Context, roomID, readerID string, upToSeq int64) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unread []*entity.Message
	for _, msg := range r.byRoom[roomID] {
		if msg.Seq() > upToSeq {
			break
		}
		if msg.Sender().ID() == readerID || msg.IsReadBy(readerID) {
			continue
		}
		unread = append(unread, copyMessage(msg))
	}
	return unread, nil
}

// Count 统计房间内消息数量
func (r *MemoryMessageRepository) Count(ctx context.Context, roomID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byRoom[roomID])), nil
}

func copyMessage(msg *entity.Message) *entity.Message {
	return entity.ReconstructMessage(
		msg.ID(),
		msg.RoomID(),
		msg.Seq(),
		msg.Content(),
		msg.Attachment(),
		msg.Sender(),
		msg.Delivery(),
		msg.Readers(),
		msg.CreatedAt(),
	)
}
