package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	domainErrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// MemoryRoomRepository 内存房间仓储 (用于测试和 database.type=memory)
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*entity.Room
}

// NewMemoryRoomRepository 创建内存房间仓储
func NewMemoryRoomRepository() repository.RoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[string]*entity.Room),
	}
}

// Save 保存房间
func (r *MemoryRoomRepository) Save(ctx context.Context, room *entity.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID()] = copyRoom(room)
	return nil
}

// FindByID 根据ID查找房间
func (r *MemoryRoomRepository) FindByID(ctx context.Context, id string) (*entity.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("room not found")
	}
	return copyRoom(room), nil
}

// FindByPair 根据 (商家, 消费者) 组合查找房间
func (r *MemoryRoomRepository) FindByPair(ctx context.Context, businessID, userID string) (*entity.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range r.rooms {
		if room.BusinessID() == businessID && room.UserID() == userID {
			return copyRoom(room), nil
		}
	}
	return nil, domainErrors.NewNotFoundError("room not found")
}

// ListByActor 列出参与者的房间, 按更新时间倒序
func (r *MemoryRoomRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*entity.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rooms []*entity.Room
	for _, room := range r.rooms {
		if room.BusinessID() == actorID || room.UserID() == actorID {
			rooms = append(rooms, copyRoom(room))
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt().After(rooms[j].UpdatedAt())
	})
	if len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

func copyRoom(room *entity.Room) *entity.Room {
	return entity.ReconstructRoom(
		room.ID(),
		room.BusinessID(),
		room.UserID(),
		room.Status(),
		room.CreatedAt(),
		room.UpdatedAt(),
	)
}
